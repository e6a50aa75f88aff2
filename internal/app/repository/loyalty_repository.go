package repository

import (
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type LoyaltyRepository interface {
	Balance(customerID uint) (int, error)
	ListByCustomer(customerID uint) ([]model.LoyaltyTransaction, error)
	FindEarnedByOrder(customerID, orderID uint) (*model.LoyaltyTransaction, error)
}

type loyaltyRepository struct {
	db *gorm.DB
}

func NewLoyaltyRepository(db *gorm.DB) LoyaltyRepository {
	return &loyaltyRepository{db: db}
}

func (r *loyaltyRepository) Balance(customerID uint) (int, error) {
	var balance int
	err := r.db.Raw(`
		SELECT COALESCE(SUM(points), 0)
		FROM loyalty_transactions
		WHERE customer_id = ?`, customerID).Row().Scan(&balance)
	if err != nil {
		logger.Error("Failed to compute loyalty balance in database", err, map[string]interface{}{
			"customer_id": customerID,
		})
		return 0, err
	}
	return balance, nil
}

func (r *loyaltyRepository) ListByCustomer(customerID uint) ([]model.LoyaltyTransaction, error) {
	var transactions []model.LoyaltyTransaction
	err := r.db.
		Where("customer_id = ?", customerID).
		Order("created_at DESC").
		Find(&transactions).Error
	if err != nil {
		logger.Error("Failed to list loyalty transactions in database", err, map[string]interface{}{
			"customer_id": customerID,
		})
		return nil, err
	}
	return transactions, nil
}

func (r *loyaltyRepository) FindEarnedByOrder(customerID, orderID uint) (*model.LoyaltyTransaction, error) {
	var transaction model.LoyaltyTransaction
	err := r.db.
		Where("customer_id = ? AND order_id = ? AND type = ?",
			customerID, orderID, model.LoyaltyEarned).
		First(&transaction).Error
	if err != nil {
		return nil, err
	}
	return &transaction, nil
}
