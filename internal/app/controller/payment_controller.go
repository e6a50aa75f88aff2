package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/service"
	"github.com/mlee/checkline-backend/internal/authz"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type PaymentController struct {
	paymentService service.PaymentService
	cartService    service.CartService
}

func NewPaymentController(paymentService service.PaymentService, cartService service.CartService) *PaymentController {
	return &PaymentController{
		paymentService: paymentService,
		cartService:    cartService,
	}
}

type CreateIntentRequest struct {
	CartID uint   `json:"cart_id" binding:"required"`
	Method string `json:"method" binding:"required,oneof=card_present cash"`
}

type FailIntentRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// CreateIntent opens a checkout attempt for a cart
// POST /api/v1/intents
func (ctrl *PaymentController) CreateIntent(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	var req CreateIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid intent creation request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	if !ctrl.authorizeCart(c, req.CartID) {
		return
	}

	intent, err := ctrl.paymentService.CreateIntent(req.CartID, model.PaymentMethod(req.Method))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCartNotFound):
			apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
		case errors.Is(err, service.ErrCartNotActive):
			apperrors.Conflict(c, apperrors.CartNotActive, "Cart is not active")
		case errors.Is(err, service.ErrCartEmpty):
			apperrors.BadRequest(c, apperrors.IntentInvalidAmount, "Cart has no items")
		default:
			log.Error("Failed to create payment intent", err, map[string]interface{}{
				"cart_id": req.CartID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"intent": intent})
}

// GetIntent reports intent state. The UUID is the capability: no scope
// check, so a customer's phone can poll with nothing but the id.
// GET /api/v1/intents/:id
func (ctrl *PaymentController) GetIntent(c *gin.Context) {
	intentID := c.Param("id")

	intent, err := ctrl.paymentService.GetIntent(intentID)
	if err != nil {
		if errors.Is(err, service.ErrIntentNotFound) {
			apperrors.NotFound(c, apperrors.IntentNotFound, "Payment intent not found")
			return
		}
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

// BeginProcessing starts the terminal transaction
// POST /api/v1/intents/:id/process
func (ctrl *PaymentController) BeginProcessing(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	intentID := c.Param("id")

	intent, err := ctrl.paymentService.BeginProcessing(c.Request.Context(), intentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIntentNotFound):
			apperrors.NotFound(c, apperrors.IntentNotFound, "Payment intent not found")
		case errors.Is(err, service.ErrIntentAlreadyTerminal):
			apperrors.Conflict(c, apperrors.IntentAlreadyTerminal, "Payment intent is already settled")
		case errors.Is(err, service.ErrPaymentDeclined):
			apperrors.RespondWithError(c, http.StatusPaymentRequired, apperrors.InternalExternalAPI, "Payment was declined")
		default:
			log.Error("Failed to begin processing", err, map[string]interface{}{
				"intent_id": intentID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

// CompleteIntent settles the payment. Safe to replay: a succeeded intent
// returns its stored order.
// POST /api/v1/intents/:id/complete
func (ctrl *PaymentController) CompleteIntent(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	intentID := c.Param("id")

	order, err := ctrl.paymentService.CompleteIntent(c.Request.Context(), intentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIntentNotFound):
			apperrors.NotFound(c, apperrors.IntentNotFound, "Payment intent not found")
		case errors.Is(err, service.ErrIntentAlreadyTerminal):
			apperrors.Conflict(c, apperrors.IntentAlreadyTerminal, "Payment intent is already settled")
		case errors.Is(err, service.ErrIntentNotProcessing):
			apperrors.Conflict(c, apperrors.IntentNotFound, "Payment intent is not processing")
		case errors.Is(err, service.ErrPaymentDeclined):
			apperrors.RespondWithError(c, http.StatusPaymentRequired, apperrors.InternalExternalAPI, "Payment was declined")
		case errors.Is(err, service.ErrReconciliationRequired):
			apperrors.RespondWithError(c, http.StatusConflict, apperrors.SettlementReconciliationRequired,
				"Settlement records disagree; the intent stays processing until reconciled")
		case errors.Is(err, service.ErrCartNotActive):
			apperrors.Conflict(c, apperrors.CartNotActive, "Cart was already checked out")
		default:
			log.Error("Failed to complete payment intent", err, map[string]interface{}{
				"intent_id": intentID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order})
}

// CancelIntent abandons a pending checkout attempt
// POST /api/v1/intents/:id/cancel
func (ctrl *PaymentController) CancelIntent(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	intentID := c.Param("id")

	intent, err := ctrl.paymentService.CancelIntent(c.Request.Context(), intentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrIntentNotFound):
			apperrors.NotFound(c, apperrors.IntentNotFound, "Payment intent not found")
		case errors.Is(err, service.ErrIntentNotCancelable):
			apperrors.Conflict(c, apperrors.IntentNotCancelable, "Only a pending intent can be canceled")
		default:
			log.Error("Failed to cancel payment intent", err, map[string]interface{}{
				"intent_id": intentID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

// FailIntent records a terminal-side failure reported by staff
// POST /api/v1/intents/:id/fail
func (ctrl *PaymentController) FailIntent(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)
	intentID := c.Param("id")

	var req FailIntentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "A failure reason is required")
		return
	}

	if err := ctrl.paymentService.FailIntent(intentID, req.Reason); err != nil {
		switch {
		case errors.Is(err, service.ErrIntentNotFound):
			apperrors.NotFound(c, apperrors.IntentNotFound, "Payment intent not found")
		case errors.Is(err, service.ErrIntentAlreadyTerminal):
			apperrors.Conflict(c, apperrors.IntentAlreadyTerminal, "Payment intent is already settled")
		default:
			log.Error("Failed to fail payment intent", err, map[string]interface{}{
				"intent_id": intentID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	intent, err := ctrl.paymentService.GetIntent(intentID)
	if err != nil {
		apperrors.InternalError(c, "")
		return
	}
	c.JSON(http.StatusOK, gin.H{"intent": intent})
}

func (ctrl *PaymentController) authorizeCart(c *gin.Context, cartID uint) bool {
	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return false
	}

	cart, err := ctrl.cartService.GetCart(cartID)
	if err != nil {
		if errors.Is(err, service.ErrCartNotFound) {
			apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
			return false
		}
		apperrors.InternalError(c, "")
		return false
	}

	if !authz.CanRead(scope, authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID}) {
		apperrors.Forbidden(c, "")
		return false
	}
	return true
}
