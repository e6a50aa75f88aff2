package model

import (
	"time"
)

type Store struct {
	ID       uint    `gorm:"primarykey" json:"id"`
	Name     string  `gorm:"not null" json:"name"`
	Currency string  `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	TaxRate  float64 `gorm:"not null;default:0" json:"tax_rate"` // fraction, e.g. 0.0875

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relationships
	Locations []Location `gorm:"foreignKey:StoreID" json:"locations,omitempty"`
}

func (Store) TableName() string {
	return "stores"
}

type Location struct {
	ID        uint    `gorm:"primarykey" json:"id"`
	StoreID   uint    `gorm:"not null;index" json:"store_id"`
	Name      string  `gorm:"not null" json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Store Store `gorm:"foreignKey:StoreID" json:"-"`
}

func (Location) TableName() string {
	return "locations"
}
