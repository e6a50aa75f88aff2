package repository

import (
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QueueRepository interface {
	ListByLocation(locationID uint) ([]model.QueueEntry, error)
	FindByCartID(cartID uint) (*model.QueueEntry, error)
}

type queueRepository struct {
	db *gorm.DB
}

func NewQueueRepository(db *gorm.DB) QueueRepository {
	return &queueRepository{db: db}
}

func (r *queueRepository) ListByLocation(locationID uint) ([]model.QueueEntry, error) {
	logger.Debug("Listing queue entries by location in database", map[string]interface{}{
		"location_id": locationID,
	})

	var entries []model.QueueEntry
	err := r.db.
		Preload("Cart").
		Preload("Cart.Items").
		Where("location_id = ?", locationID).
		Order("position").
		Find(&entries).Error
	if err != nil {
		logger.Error("Failed to list queue entries by location in database", err, map[string]interface{}{
			"location_id": locationID,
		})
		return nil, err
	}
	return entries, nil
}

func (r *queueRepository) FindByCartID(cartID uint) (*model.QueueEntry, error) {
	var entry model.QueueEntry
	if err := r.db.Where("cart_id = ?", cartID).First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

// NextPosition returns the next dense position for a location. The caller
// must hold a transaction; existing entries are locked so two concurrent
// enqueues cannot compute the same position.
func NextPosition(tx *gorm.DB, locationID uint) (int, error) {
	var entries []model.QueueEntry
	err := tx.
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("location_id = ?", locationID).
		Find(&entries).Error
	if err != nil {
		return 0, err
	}

	max := 0
	for _, e := range entries {
		if e.Position > max {
			max = e.Position
		}
	}
	return max + 1, nil
}
