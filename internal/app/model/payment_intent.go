package model

import (
	"time"
)

type IntentState string

const (
	IntentStatePending    IntentState = "pending"
	IntentStateProcessing IntentState = "processing"
	IntentStateSucceeded  IntentState = "succeeded"
	IntentStateFailed     IntentState = "failed"
	IntentStateCanceled   IntentState = "canceled"
)

// Terminal reports whether no further transition is permitted from s.
func (s IntentState) Terminal() bool {
	return s == IntentStateSucceeded || s == IntentStateFailed || s == IntentStateCanceled
}

type PaymentMethod string

const (
	PaymentMethodCard PaymentMethod = "card_present"
	PaymentMethodCash PaymentMethod = "cash"
)

// PaymentIntent drives one checkout attempt. The id is an opaque UUID:
// anyone holding it may poll status, and ids are never enumerable.
type PaymentIntent struct {
	ID         string        `gorm:"type:varchar(36);primarykey" json:"id"`
	StoreID    uint          `gorm:"not null;index" json:"store_id"`
	LocationID uint          `gorm:"not null;index" json:"location_id"`
	CartID     uint          `gorm:"not null;index" json:"cart_id"`
	CustomerID *uint         `gorm:"index" json:"customer_id,omitempty"`
	DeviceKey  string        `gorm:"type:varchar(64)" json:"device_key,omitempty"`
	Amount     float64       `gorm:"not null" json:"amount"`
	Method     PaymentMethod `gorm:"type:varchar(20);not null" json:"method"`
	State      IntentState   `gorm:"type:varchar(20);not null;default:'pending'" json:"state"`

	// ProviderRef is the card terminal transaction id once processing begins.
	ProviderRef   string `gorm:"type:varchar(64);index" json:"provider_ref,omitempty"`
	FailureReason string `gorm:"type:text" json:"failure_reason,omitempty"`
	OrderID       *uint  `gorm:"index" json:"order_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Cart  Cart   `gorm:"foreignKey:CartID" json:"-"`
	Order *Order `gorm:"foreignKey:OrderID" json:"order,omitempty"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}
