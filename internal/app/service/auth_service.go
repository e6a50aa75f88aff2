package service

import (
	"errors"
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/mlee/checkline-backend/pkg/util"
	"gorm.io/gorm"
)

var (
	ErrDeviceNotFound    = errors.New("device not found")
	ErrInvalidPairSecret = errors.New("invalid pairing secret")
)

// AuthService pairs provisioned devices. A device presents its key and
// pairing secret once and receives a scoped token for everything after.
type AuthService interface {
	PairDevice(deviceKey, secret, role string) (string, *model.Device, error)
}

type authService struct {
	deviceRepo  repository.DeviceRepository
	jwtSecret   string
	tokenExpiry time.Duration
}

func NewAuthService(deviceRepo repository.DeviceRepository, jwtSecret string, tokenExpiry time.Duration) AuthService {
	return &authService{
		deviceRepo:  deviceRepo,
		jwtSecret:   jwtSecret,
		tokenExpiry: tokenExpiry,
	}
}

func (s *authService) PairDevice(deviceKey, secret, role string) (string, *model.Device, error) {
	device, err := s.deviceRepo.FindByKey(deviceKey)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Warn("Pairing attempt for unknown device", map[string]interface{}{
				"device_key": deviceKey,
			})
			return "", nil, ErrDeviceNotFound
		}
		return "", nil, err
	}

	if !util.VerifySecret(device.KeyHash, secret) {
		logger.Warn("Pairing attempt with bad secret", map[string]interface{}{
			"device_key": deviceKey,
		})
		return "", nil, ErrInvalidPairSecret
	}

	if role == "" {
		role = "register"
	}

	token, err := util.GenerateToken(device.DeviceKey, device.StoreID, device.LocationID, role, s.jwtSecret, s.tokenExpiry)
	if err != nil {
		logger.Error("Failed to sign device token", err, map[string]interface{}{
			"device_key": deviceKey,
		})
		return "", nil, err
	}

	logger.Info("Device paired", map[string]interface{}{
		"device_key":  device.DeviceKey,
		"store_id":    device.StoreID,
		"location_id": device.LocationID,
		"role":        role,
	})
	return token, device, nil
}
