package model

import (
	"time"

	"github.com/lib/pq"
)

type Customer struct {
	ID      uint   `gorm:"primarykey" json:"id"`
	StoreID uint   `gorm:"not null;index" json:"store_id"`
	Name    string `gorm:"not null" json:"name"`
	Phone   string `gorm:"type:varchar(20);index" json:"phone,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Store Store `gorm:"foreignKey:StoreID" json:"-"`
}

func (Customer) TableName() string {
	return "customers"
}

// Device is a provisioned register or tablet. Identified requests carry its
// key; carts created without a known customer are scoped to the device.
//
// Postgres-only model (pq.StringArray); excluded from the sqlite test schema.
type Device struct {
	ID         uint   `gorm:"primarykey" json:"id"`
	StoreID    uint   `gorm:"not null;index" json:"store_id"`
	LocationID uint   `gorm:"not null;index" json:"location_id"`
	Name       string `gorm:"not null" json:"name"`
	// DeviceKey is the stable external identifier carried in cart scoping keys.
	DeviceKey string `gorm:"type:varchar(64);uniqueIndex;not null" json:"device_key"`
	// KeyHash is the bcrypt hash of the pairing secret; never serialized.
	KeyHash      string         `gorm:"not null" json:"-"`
	Capabilities pq.StringArray `gorm:"type:text[];default:'{}';not null" json:"capabilities"` // e.g. ["checkout", "queue", "audit"]

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Store    Store    `gorm:"foreignKey:StoreID" json:"-"`
	Location Location `gorm:"foreignKey:LocationID" json:"-"`
}

func (Device) TableName() string {
	return "devices"
}
