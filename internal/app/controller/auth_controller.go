package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/service"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type AuthController struct {
	authService service.AuthService
}

func NewAuthController(authService service.AuthService) *AuthController {
	return &AuthController{
		authService: authService,
	}
}

type PairDeviceRequest struct {
	DeviceKey string `json:"device_key" binding:"required"`
	Secret    string `json:"secret" binding:"required"`
	Role      string `json:"role" binding:"omitempty,oneof=register manager"`
}

// PairDevice exchanges a provisioning secret for a scoped device token
// POST /api/v1/auth/pair
func (ctrl *AuthController) PairDevice(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req PairDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid pairing request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	token, device, err := ctrl.authService.PairDevice(req.DeviceKey, req.Secret, req.Role)
	if err != nil {
		if errors.Is(err, service.ErrDeviceNotFound) || errors.Is(err, service.ErrInvalidPairSecret) {
			// One answer for both, so the endpoint cannot be used to probe
			// which device keys exist.
			apperrors.RespondWithError(c, http.StatusUnauthorized, apperrors.AuthDeviceInvalid, "Invalid device key or secret")
			return
		}
		log.Error("Failed to pair device", err, map[string]interface{}{
			"device_key": req.DeviceKey,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":  token,
		"device": device,
	})
}
