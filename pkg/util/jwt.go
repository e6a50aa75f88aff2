package util

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// DeviceClaims carry a device's identity and visibility scope. Issuance
// happens outside this service; we only validate and read the scope.
type DeviceClaims struct {
	DeviceKey  string `json:"device_key"`
	StoreID    uint   `json:"store_id"`
	LocationID uint   `json:"location_id"`
	Role       string `json:"role"` // register, manager
	jwt.RegisteredClaims
}

// GenerateToken signs a device token. Used by tests and provisioning tools.
func GenerateToken(deviceKey string, storeID, locationID uint, role, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := DeviceClaims{
		DeviceKey:  deviceKey,
		StoreID:    storeID,
		LocationID: locationID,
		Role:       role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken parses and verifies a device token.
func ValidateToken(tokenString, secret string) (*DeviceClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &DeviceClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*DeviceClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
