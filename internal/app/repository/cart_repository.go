package repository

import (
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type CartRepository interface {
	FindByID(id uint) (*model.Cart, error)
	FindItemByID(id uint) (*model.CartItem, error)
	FindActiveByCustomer(storeID, locationID, customerID uint) (*model.Cart, error)
	FindActiveByDevice(locationID uint, deviceKey string) (*model.Cart, error)
	FindExpired(now time.Time, limit int) ([]model.Cart, error)
}

type cartRepository struct {
	db *gorm.DB
}

func NewCartRepository(db *gorm.DB) CartRepository {
	return &cartRepository{db: db}
}

func (r *cartRepository) FindByID(id uint) (*model.Cart, error) {
	logger.Debug("Finding cart by ID in database", map[string]interface{}{
		"cart_id": id,
	})

	var cart model.Cart
	err := r.db.
		Preload("Items").
		Preload("Items.Product").
		Preload("Items.PriceTier").
		First(&cart, id).Error
	if err != nil {
		logger.Error("Failed to find cart by ID in database", err, map[string]interface{}{
			"cart_id": id,
		})
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindItemByID(id uint) (*model.CartItem, error) {
	var item model.CartItem
	if err := r.db.First(&item, id).Error; err != nil {
		logger.Error("Failed to find cart item by ID in database", err, map[string]interface{}{
			"cart_item_id": id,
		})
		return nil, err
	}
	return &item, nil
}

func (r *cartRepository) FindActiveByCustomer(storeID, locationID, customerID uint) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.
		Preload("Items").
		Preload("Items.Product").
		Preload("Items.PriceTier").
		Where("store_id = ? AND location_id = ? AND customer_id = ? AND status = ?",
			storeID, locationID, customerID, model.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

func (r *cartRepository) FindActiveByDevice(locationID uint, deviceKey string) (*model.Cart, error) {
	var cart model.Cart
	err := r.db.
		Preload("Items").
		Preload("Items.Product").
		Preload("Items.PriceTier").
		Where("location_id = ? AND device_key = ? AND customer_id IS NULL AND status = ?",
			locationID, deviceKey, model.CartStatusActive).
		First(&cart).Error
	if err != nil {
		return nil, err
	}
	return &cart, nil
}

// FindExpired lists active carts past their expiry. A cart whose payment
// intent is still pending or processing is mid-checkout and not the sweep's
// to abandon; the intent's own reconciliation decides its fate.
func (r *cartRepository) FindExpired(now time.Time, limit int) ([]model.Cart, error) {
	var carts []model.Cart
	err := r.db.
		Where("status = ? AND expires_at < ?", model.CartStatusActive, now).
		Where("id NOT IN (?)", r.db.Model(&model.PaymentIntent{}).
			Select("cart_id").
			Where("state IN ?", []model.IntentState{
				model.IntentStatePending,
				model.IntentStateProcessing,
			})).
		Order("expires_at").
		Limit(limit).
		Find(&carts).Error
	if err != nil {
		logger.Error("Failed to find expired carts in database", err, map[string]interface{}{
			"now": now,
		})
		return nil, err
	}
	return carts, nil
}
