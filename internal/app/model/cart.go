package model

import (
	"time"
)

type CartStatus string

const (
	CartStatusActive    CartStatus = "active"
	CartStatusCompleted CartStatus = "completed"
	CartStatusAbandoned CartStatus = "abandoned"
)

// Cart is the unit of synchronization between devices. At most one active
// cart exists per (store, location, customer), or per (location, device)
// when the customer is anonymous; migrate.go installs the partial unique
// indexes that enforce this.
type Cart struct {
	ID         uint       `gorm:"primarykey" json:"id"`
	StoreID    uint       `gorm:"not null;index" json:"store_id"`
	LocationID uint       `gorm:"not null;index" json:"location_id"`
	CustomerID *uint      `gorm:"index" json:"customer_id,omitempty"`
	DeviceKey  string     `gorm:"type:varchar(64);index" json:"device_key,omitempty"` // required when CustomerID is null
	Status     CartStatus `gorm:"type:varchar(20);not null;default:'active'" json:"status"`
	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`

	// Totals are server-computed inside the same transaction as every item
	// mutation. Client-supplied values are never written here.
	Subtotal float64 `gorm:"not null;default:0" json:"subtotal"`
	Discount float64 `gorm:"not null;default:0" json:"discount"`
	Tax      float64 `gorm:"not null;default:0" json:"tax"`
	Total    float64 `gorm:"not null;default:0" json:"total"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Customer *Customer  `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	Items    []CartItem `gorm:"foreignKey:CartID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
}

func (Cart) TableName() string {
	return "carts"
}

type CartItem struct {
	ID          uint `gorm:"primarykey" json:"id"`
	CartID      uint `gorm:"not null;index" json:"cart_id"`
	ProductID   uint `gorm:"not null;index" json:"product_id"`
	PriceTierID uint `gorm:"not null;index" json:"price_tier_id"`
	// InventoryRecordID is resolved at add time, not checkout time, so stock
	// movements between add and checkout cannot change which record is hit.
	InventoryRecordID uint `gorm:"not null;index" json:"inventory_record_id"`

	Quantity int `gorm:"not null;default:1" json:"quantity"` // tier count
	// TierQuantity is Quantity * tier unit amount, in the product's native unit.
	TierQuantity float64 `gorm:"not null" json:"tier_quantity"`
	UnitPrice    float64 `gorm:"not null" json:"unit_price"`
	LineTotal    float64 `gorm:"not null" json:"line_total"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Cart      Cart      `gorm:"foreignKey:CartID" json:"-"`
	Product   Product   `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	PriceTier PriceTier `gorm:"foreignKey:PriceTierID" json:"price_tier,omitempty"`
}

func (CartItem) TableName() string {
	return "cart_items"
}
