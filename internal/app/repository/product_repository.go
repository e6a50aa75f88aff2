package repository

import (
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type ProductRepository interface {
	FindByID(id uint) (*model.Product, error)
	FindByStore(storeID uint, category string) ([]model.Product, error)
	FindTierByID(id uint) (*model.PriceTier, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) FindByID(id uint) (*model.Product, error) {
	logger.Debug("Finding product by ID in database", map[string]interface{}{
		"product_id": id,
	})

	var product model.Product
	if err := r.db.Preload("Tiers").First(&product, id).Error; err != nil {
		logger.Error("Failed to find product by ID in database", err, map[string]interface{}{
			"product_id": id,
		})
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) FindByStore(storeID uint, category string) ([]model.Product, error) {
	logger.Debug("Finding products by store in database", map[string]interface{}{
		"store_id": storeID,
		"category": category,
	})

	query := r.db.Preload("Tiers").Where("store_id = ?", storeID)
	if category != "" {
		query = query.Where("category = ?", category)
	}

	var products []model.Product
	if err := query.Order("name").Find(&products).Error; err != nil {
		logger.Error("Failed to find products by store in database", err, map[string]interface{}{
			"store_id": storeID,
		})
		return nil, err
	}
	return products, nil
}

func (r *productRepository) FindTierByID(id uint) (*model.PriceTier, error) {
	var tier model.PriceTier
	if err := r.db.First(&tier, id).Error; err != nil {
		logger.Error("Failed to find price tier by ID in database", err, map[string]interface{}{
			"price_tier_id": id,
		})
		return nil, err
	}
	return &tier, nil
}
