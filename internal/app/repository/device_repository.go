package repository

import (
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

type DeviceRepository interface {
	FindByKey(deviceKey string) (*model.Device, error)
	Create(device *model.Device) error
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) FindByKey(deviceKey string) (*model.Device, error) {
	var device model.Device
	if err := r.db.Where("device_key = ?", deviceKey).First(&device).Error; err != nil {
		return nil, err
	}
	return &device, nil
}

func (r *deviceRepository) Create(device *model.Device) error {
	if err := r.db.Create(device).Error; err != nil {
		logger.Error("Failed to create device in database", err, map[string]interface{}{
			"device_key": device.DeviceKey,
		})
		return err
	}
	return nil
}
