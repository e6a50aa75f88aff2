package model

import (
	"time"
)

// InventoryRecord identifies a stock pool for a product at a location.
// It carries no mutable quantity column: on-hand is the sum of the delta
// ledger, and available is on-hand minus what active carts have reserved.
type InventoryRecord struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	StoreID    uint   `gorm:"not null;index" json:"store_id"`
	LocationID uint   `gorm:"not null;index" json:"location_id"`
	ProductID  uint   `gorm:"not null;index" json:"product_id"`
	Lot        string `gorm:"type:varchar(50)" json:"lot,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product  Product  `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Location Location `gorm:"foreignKey:LocationID" json:"-"`
}

func (InventoryRecord) TableName() string {
	return "inventory_records"
}

type DeltaReason string

const (
	DeltaReasonReceived   DeltaReason = "received"
	DeltaReasonSale       DeltaReason = "sale"
	DeltaReasonAdjustment DeltaReason = "adjustment"
)

// InventoryDelta is one signed, append-only stock adjustment. Sale deltas
// are tagged with the order and order item that caused them; a partial
// unique index allows at most one sale delta per order item.
type InventoryDelta struct {
	ID                uint        `gorm:"primarykey" json:"id"`
	InventoryRecordID uint        `gorm:"not null;index" json:"inventory_record_id"`
	Quantity          float64     `gorm:"not null" json:"quantity"` // signed, native units
	Reason            DeltaReason `gorm:"type:varchar(20);not null" json:"reason"`
	OrderID           *uint       `gorm:"index" json:"order_id,omitempty"`
	OrderItemID       *uint       `gorm:"index" json:"order_item_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	InventoryRecord InventoryRecord `gorm:"foreignKey:InventoryRecordID" json:"-"`
}

func (InventoryDelta) TableName() string {
	return "inventory_deltas"
}
