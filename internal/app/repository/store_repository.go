package repository

import (
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type StoreRepository interface {
	List() ([]model.Store, error)
	FindByID(id uint) (*model.Store, error)
	FindLocationByID(id uint) (*model.Location, error)
	FindLocationsByStore(storeID uint) ([]model.Location, error)
	FindCustomerByID(id uint) (*model.Customer, error)
}

type storeRepository struct {
	db *gorm.DB
}

func NewStoreRepository(db *gorm.DB) StoreRepository {
	return &storeRepository{db: db}
}

func (r *storeRepository) List() ([]model.Store, error) {
	var stores []model.Store
	if err := r.db.Find(&stores).Error; err != nil {
		logger.Error("Failed to list stores in database", err, nil)
		return nil, err
	}
	return stores, nil
}

func (r *storeRepository) FindByID(id uint) (*model.Store, error) {
	var store model.Store
	if err := r.db.Preload("Locations").First(&store, id).Error; err != nil {
		logger.Error("Failed to find store by ID in database", err, map[string]interface{}{
			"store_id": id,
		})
		return nil, err
	}
	return &store, nil
}

func (r *storeRepository) FindLocationByID(id uint) (*model.Location, error) {
	var location model.Location
	if err := r.db.First(&location, id).Error; err != nil {
		logger.Error("Failed to find location by ID in database", err, map[string]interface{}{
			"location_id": id,
		})
		return nil, err
	}
	return &location, nil
}

func (r *storeRepository) FindLocationsByStore(storeID uint) ([]model.Location, error) {
	var locations []model.Location
	if err := r.db.Where("store_id = ?", storeID).Find(&locations).Error; err != nil {
		logger.Error("Failed to find locations by store in database", err, map[string]interface{}{
			"store_id": storeID,
		})
		return nil, err
	}
	return locations, nil
}

func (r *storeRepository) FindCustomerByID(id uint) (*model.Customer, error) {
	var customer model.Customer
	if err := r.db.First(&customer, id).Error; err != nil {
		logger.Error("Failed to find customer by ID in database", err, map[string]interface{}{
			"customer_id": id,
		})
		return nil, err
	}
	return &customer, nil
}
