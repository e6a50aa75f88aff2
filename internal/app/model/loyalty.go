package model

import (
	"time"
)

type LoyaltyType string

const (
	LoyaltyEarned   LoyaltyType = "earned"
	LoyaltyRedeemed LoyaltyType = "redeemed"
	LoyaltyExpired  LoyaltyType = "expired"
	LoyaltyAdjusted LoyaltyType = "adjusted"
)

// LoyaltyTransaction is a signed point delta; a customer's balance is the
// sum of their transactions. The unique index on (customer, order, type)
// is the authoritative guard against awarding an order twice.
type LoyaltyTransaction struct {
	ID         uint        `gorm:"primarykey" json:"id"`
	StoreID    uint        `gorm:"not null;index" json:"store_id"`
	CustomerID uint        `gorm:"not null;index" json:"customer_id"`
	OrderID    *uint       `gorm:"index" json:"order_id,omitempty"`
	Type       LoyaltyType `gorm:"type:varchar(20);not null" json:"type"`
	Points     int         `gorm:"not null" json:"points"` // signed

	CreatedAt time.Time `json:"created_at"`

	Customer Customer `gorm:"foreignKey:CustomerID" json:"-"`
}

func (LoyaltyTransaction) TableName() string {
	return "loyalty_transactions"
}
