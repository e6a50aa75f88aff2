package repository

import (
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type PaymentIntentRepository interface {
	Create(intent *model.PaymentIntent) error
	FindByID(id string) (*model.PaymentIntent, error)
	FindByCartID(cartID uint) ([]model.PaymentIntent, error)
	FindStuckProcessing(olderThan time.Time) ([]model.PaymentIntent, error)
}

type paymentIntentRepository struct {
	db *gorm.DB
}

func NewPaymentIntentRepository(db *gorm.DB) PaymentIntentRepository {
	return &paymentIntentRepository{db: db}
}

func (r *paymentIntentRepository) Create(intent *model.PaymentIntent) error {
	logger.Debug("Creating payment intent in database", map[string]interface{}{
		"intent_id": intent.ID,
		"cart_id":   intent.CartID,
	})

	if err := r.db.Create(intent).Error; err != nil {
		logger.Error("Failed to create payment intent in database", err, map[string]interface{}{
			"intent_id": intent.ID,
		})
		return err
	}
	return nil
}

func (r *paymentIntentRepository) FindByID(id string) (*model.PaymentIntent, error) {
	var intent model.PaymentIntent
	if err := r.db.Where("id = ?", id).First(&intent).Error; err != nil {
		return nil, err
	}
	return &intent, nil
}

func (r *paymentIntentRepository) FindByCartID(cartID uint) ([]model.PaymentIntent, error) {
	var intents []model.PaymentIntent
	err := r.db.
		Where("cart_id = ?", cartID).
		Order("created_at DESC").
		Find(&intents).Error
	if err != nil {
		logger.Error("Failed to find payment intents by cart in database", err, map[string]interface{}{
			"cart_id": cartID,
		})
		return nil, err
	}
	return intents, nil
}

func (r *paymentIntentRepository) FindStuckProcessing(olderThan time.Time) ([]model.PaymentIntent, error) {
	var intents []model.PaymentIntent
	err := r.db.
		Where("state = ? AND updated_at < ?", model.IntentStateProcessing, olderThan).
		Order("updated_at").
		Find(&intents).Error
	if err != nil {
		logger.Error("Failed to find stuck payment intents in database", err, map[string]interface{}{
			"older_than": olderThan,
		})
		return nil, err
	}
	return intents, nil
}
