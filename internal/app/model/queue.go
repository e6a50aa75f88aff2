package model

import (
	"time"
)

// QueueEntry orders waiting carts at a location. Positions are dense and
// gapless per location; dequeue closes the gap in the same transaction.
type QueueEntry struct {
	ID         uint `gorm:"primarykey" json:"id"`
	LocationID uint `gorm:"not null;index" json:"location_id"`
	CartID     uint `gorm:"not null;uniqueIndex" json:"cart_id"`
	Position   int  `gorm:"not null" json:"position"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Cart Cart `gorm:"foreignKey:CartID" json:"cart,omitempty"`
}

func (QueueEntry) TableName() string {
	return "queue_entries"
}
