package service

import (
	"errors"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrInventoryRecordNotFound = errors.New("inventory record not found")
	ErrInvalidDelta            = errors.New("adjustment quantity must be non-zero")
	ErrStockBelowZero          = errors.New("adjustment would take on-hand below zero")
)

type ProductService interface {
	GetProducts(storeID uint, category string) ([]model.Product, error)
	GetProductByID(productID uint) (*model.Product, error)
	GetAvailability(productID, storeID uint) ([]repository.InventoryAvailability, error)
	AdjustStock(recordID uint, quantity float64, reason model.DeltaReason) (*model.InventoryDelta, error)
}

type productService struct {
	productRepo   repository.ProductRepository
	inventoryRepo repository.InventoryRepository
	db            *gorm.DB
}

func NewProductService(
	productRepo repository.ProductRepository,
	inventoryRepo repository.InventoryRepository,
	db *gorm.DB,
) ProductService {
	return &productService{
		productRepo:   productRepo,
		inventoryRepo: inventoryRepo,
		db:            db,
	}
}

func (s *productService) GetProducts(storeID uint, category string) ([]model.Product, error) {
	return s.productRepo.FindByStore(storeID, category)
}

func (s *productService) GetProductByID(productID uint) (*model.Product, error) {
	product, err := s.productRepo.FindByID(productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	return product, nil
}

func (s *productService) GetAvailability(productID, storeID uint) ([]repository.InventoryAvailability, error) {
	if _, err := s.GetProductByID(productID); err != nil {
		return nil, err
	}
	return s.inventoryRepo.FindAvailableByProduct(productID, storeID)
}

// AdjustStock appends a signed delta to a record's ledger. Stock never gets
// overwritten: receiving and corrections are both new ledger rows, and a
// negative correction may not push on-hand below zero.
func (s *productService) AdjustStock(recordID uint, quantity float64, reason model.DeltaReason) (*model.InventoryDelta, error) {
	if quantity == 0 {
		return nil, ErrInvalidDelta
	}
	if reason != model.DeltaReasonReceived && reason != model.DeltaReasonAdjustment {
		return nil, ErrInvalidDelta
	}

	logger.Info("Adjusting stock", map[string]interface{}{
		"inventory_record_id": recordID,
		"quantity":            quantity,
		"reason":              reason,
	})

	if _, err := s.inventoryRepo.FindRecordByID(recordID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInventoryRecordNotFound
		}
		return nil, err
	}

	if quantity < 0 {
		onHand, err := repository.OnHand(s.db, recordID)
		if err != nil {
			return nil, err
		}
		if onHand+quantity < 0 {
			logger.Warn("Refusing adjustment below zero on-hand", map[string]interface{}{
				"inventory_record_id": recordID,
				"on_hand":             onHand,
				"quantity":            quantity,
			})
			return nil, ErrStockBelowZero
		}
	}

	delta := &model.InventoryDelta{
		InventoryRecordID: recordID,
		Quantity:          quantity,
		Reason:            reason,
	}
	if err := s.inventoryRepo.CreateDelta(delta); err != nil {
		return nil, err
	}
	return delta, nil
}
