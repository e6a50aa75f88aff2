package repository

import (
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type OrderRepository interface {
	FindByID(id uint) (*model.Order, error)
	FindByIntentID(intentID string) (*model.Order, error)
	ListByCustomer(customerID uint) ([]model.Order, error)
	ListByStore(storeID uint, from, to time.Time) ([]model.Order, error)
}

type orderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

func (r *orderRepository) FindByID(id uint) (*model.Order, error) {
	logger.Debug("Finding order by ID in database", map[string]interface{}{
		"order_id": id,
	})

	var order model.Order
	err := r.db.
		Preload("Items").
		Preload("Items.Product").
		First(&order, id).Error
	if err != nil {
		logger.Error("Failed to find order by ID in database", err, map[string]interface{}{
			"order_id": id,
		})
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) FindByIntentID(intentID string) (*model.Order, error) {
	var order model.Order
	err := r.db.
		Preload("Items").
		Where("payment_intent_id = ?", intentID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *orderRepository) ListByCustomer(customerID uint) ([]model.Order, error) {
	var orders []model.Order
	err := r.db.
		Preload("Items").
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&orders).Error
	if err != nil {
		logger.Error("Failed to list orders by customer in database", err, map[string]interface{}{
			"customer_id": customerID,
		})
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) ListByStore(storeID uint, from, to time.Time) ([]model.Order, error) {
	query := r.db.Preload("Items").Where("store_id = ?", storeID)
	if !from.IsZero() {
		query = query.Where("created_at >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("created_at < ?", to)
	}

	var orders []model.Order
	if err := query.Order("created_at").Find(&orders).Error; err != nil {
		logger.Error("Failed to list orders by store in database", err, map[string]interface{}{
			"store_id": storeID,
		})
		return nil, err
	}
	return orders, nil
}
