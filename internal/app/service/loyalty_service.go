package service

import (
	"errors"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrCustomerNotFound      = errors.New("customer not found")
	ErrInsufficientPoints    = errors.New("insufficient loyalty balance")
	ErrInvalidRedeemQuantity = errors.New("redeem points must be positive")
)

type LoyaltyService interface {
	GetBalance(customerID uint) (int, error)
	GetHistory(customerID uint) ([]model.LoyaltyTransaction, error)
	Redeem(customerID, storeID uint, points int) (*model.LoyaltyTransaction, error)
}

type loyaltyService struct {
	loyaltyRepo repository.LoyaltyRepository
	storeRepo   repository.StoreRepository
	db          *gorm.DB
}

func NewLoyaltyService(
	loyaltyRepo repository.LoyaltyRepository,
	storeRepo repository.StoreRepository,
	db *gorm.DB,
) LoyaltyService {
	return &loyaltyService{
		loyaltyRepo: loyaltyRepo,
		storeRepo:   storeRepo,
		db:          db,
	}
}

func (s *loyaltyService) GetBalance(customerID uint) (int, error) {
	if _, err := s.storeRepo.FindCustomerByID(customerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrCustomerNotFound
		}
		return 0, err
	}
	return s.loyaltyRepo.Balance(customerID)
}

func (s *loyaltyService) GetHistory(customerID uint) ([]model.LoyaltyTransaction, error) {
	if _, err := s.storeRepo.FindCustomerByID(customerID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, err
	}
	return s.loyaltyRepo.ListByCustomer(customerID)
}

// Redeem burns points as a negative transaction. The balance check and the
// write run in one transaction so two concurrent redemptions cannot both
// spend the same points.
func (s *loyaltyService) Redeem(customerID, storeID uint, points int) (*model.LoyaltyTransaction, error) {
	if points <= 0 {
		return nil, ErrInvalidRedeemQuantity
	}

	logger.Info("Redeeming loyalty points", map[string]interface{}{
		"customer_id": customerID,
		"store_id":    storeID,
		"points":      points,
	})

	var redemption *model.LoyaltyTransaction
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var customer model.Customer
		if err := tx.First(&customer, customerID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCustomerNotFound
			}
			return err
		}

		var balance int
		err := tx.Raw(`
			SELECT COALESCE(SUM(points), 0)
			FROM loyalty_transactions
			WHERE customer_id = ?`, customerID).Row().Scan(&balance)
		if err != nil {
			return err
		}
		if balance < points {
			logger.Warn("Redemption refused: insufficient balance", map[string]interface{}{
				"customer_id": customerID,
				"balance":     balance,
				"points":      points,
			})
			return ErrInsufficientPoints
		}

		redemption = &model.LoyaltyTransaction{
			StoreID:    storeID,
			CustomerID: customerID,
			Type:       model.LoyaltyRedeemed,
			Points:     -points,
		}
		return tx.Create(redemption).Error
	})
	if err != nil {
		return nil, err
	}
	return redemption, nil
}
