package model

import (
	"time"

	"gorm.io/gorm"
)

type Product struct {
	ID          uint   `gorm:"primarykey" json:"id"`
	StoreID     uint   `gorm:"not null;index" json:"store_id"`
	Name        string `gorm:"not null" json:"name"`
	Description string `gorm:"type:text" json:"description"`
	Category    string `gorm:"type:varchar(50);index" json:"category"`
	// Unit is the product's native measurement unit (grams, count, ml).
	// Quantities elsewhere are expressed in this unit, never assumed.
	Unit string `gorm:"type:varchar(20);not null" json:"unit"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Tiers []PriceTier `gorm:"foreignKey:ProductID" json:"tiers,omitempty"`
}

func (Product) TableName() string {
	return "products"
}

// PriceTier is a priced variant of a product: a label ("3.5g", "12oz can"),
// the amount of the product's native unit it represents, and its price.
type PriceTier struct {
	ID         uint    `gorm:"primarykey" json:"id"`
	ProductID  uint    `gorm:"not null;index" json:"product_id"`
	Label      string  `gorm:"not null" json:"label"`
	UnitAmount float64 `gorm:"not null" json:"unit_amount"`
	Price      float64 `gorm:"not null" json:"price"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Product Product `gorm:"foreignKey:ProductID" json:"-"`
}

func (PriceTier) TableName() string {
	return "price_tiers"
}
