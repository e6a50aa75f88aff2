package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/service"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type LoyaltyController struct {
	loyaltyService service.LoyaltyService
}

func NewLoyaltyController(loyaltyService service.LoyaltyService) *LoyaltyController {
	return &LoyaltyController{
		loyaltyService: loyaltyService,
	}
}

type RedeemRequest struct {
	Points int `json:"points" binding:"required,gt=0"`
}

// GetBalance returns a customer's current point balance
// GET /api/v1/customers/:id/loyalty/balance
func (ctrl *LoyaltyController) GetBalance(c *gin.Context) {
	customerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	balance, err := ctrl.loyaltyService.GetBalance(customerID)
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Customer not found")
			return
		}
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"customer_id": customerID,
		"balance":     balance,
	})
}

// GetHistory returns a customer's loyalty transactions, newest first
// GET /api/v1/customers/:id/loyalty
func (ctrl *LoyaltyController) GetHistory(c *gin.Context) {
	customerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	transactions, err := ctrl.loyaltyService.GetHistory(customerID)
	if err != nil {
		if errors.Is(err, service.ErrCustomerNotFound) {
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Customer not found")
			return
		}
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// Redeem burns points against the customer's balance
// POST /api/v1/customers/:id/loyalty/redeem
func (ctrl *LoyaltyController) Redeem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	customerID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	scope, scopeOK := middleware.GetScope(c)
	if !scopeOK {
		apperrors.Unauthorized(c, "")
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Points must be positive")
		return
	}

	redemption, err := ctrl.loyaltyService.Redeem(customerID, scope.StoreID, req.Points)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCustomerNotFound):
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Customer not found")
		case errors.Is(err, service.ErrInsufficientPoints):
			apperrors.Conflict(c, apperrors.ResourceConflict, "Insufficient loyalty balance")
		case errors.Is(err, service.ErrInvalidRedeemQuantity):
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Points must be positive")
		default:
			log.Error("Failed to redeem loyalty points", err, map[string]interface{}{
				"customer_id": customerID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"transaction": redemption})
}
