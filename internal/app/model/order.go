package model

import (
	"time"
)

// Order is the immutable result of a succeeded payment intent. Items are a
// snapshot of the cart at settlement; later price or inventory changes never
// alter a historical order.
type Order struct {
	ID              uint    `gorm:"primarykey" json:"id"`
	StoreID         uint    `gorm:"not null;index" json:"store_id"`
	LocationID      uint    `gorm:"not null;index" json:"location_id"`
	CustomerID      *uint   `gorm:"index" json:"customer_id,omitempty"`
	DeviceKey       string  `gorm:"type:varchar(64)" json:"device_key,omitempty"`
	CartID          uint    `gorm:"not null;index" json:"cart_id"`
	PaymentIntentID string  `gorm:"type:varchar(36);not null;index" json:"payment_intent_id"`
	Subtotal        float64 `gorm:"not null" json:"subtotal"`
	Discount        float64 `gorm:"not null" json:"discount"`
	Tax             float64 `gorm:"not null" json:"tax"`
	Total           float64 `gorm:"not null" json:"total"`

	CreatedAt time.Time `json:"created_at"`

	Items []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Order) TableName() string {
	return "orders"
}

type OrderItem struct {
	ID          uint `gorm:"primarykey" json:"id"`
	OrderID     uint `gorm:"not null;index" json:"order_id"`
	ProductID   uint `gorm:"not null;index" json:"product_id"`
	PriceTierID uint `gorm:"not null" json:"price_tier_id"`
	// InventoryRecordID mirrors the cart item's add-time resolution.
	InventoryRecordID uint    `gorm:"not null;index" json:"inventory_record_id"`
	Quantity          int     `gorm:"not null" json:"quantity"`
	TierQuantity      float64 `gorm:"not null" json:"tier_quantity"`
	UnitPrice         float64 `gorm:"not null" json:"unit_price"`
	LineTotal         float64 `gorm:"not null" json:"line_total"`

	CreatedAt time.Time `json:"created_at"`

	Order   Order   `gorm:"foreignKey:OrderID" json:"-"`
	Product Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (OrderItem) TableName() string {
	return "order_items"
}
