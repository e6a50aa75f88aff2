package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/service"
	"github.com/mlee/checkline-backend/internal/authz"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type QueueController struct {
	queueService service.QueueService
	cartService  service.CartService
}

func NewQueueController(queueService service.QueueService, cartService service.CartService) *QueueController {
	return &QueueController{
		queueService: queueService,
		cartService:  cartService,
	}
}

type EnqueueRequest struct {
	CustomerID *uint `json:"customer_id"`
}

// Enqueue places the caller's active cart at the tail of the line
// POST /api/v1/queue
func (ctrl *QueueController) Enqueue(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	deviceKey, _ := middleware.GetDeviceKey(c)

	var req EnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid enqueue request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	locationID, ok := ctrl.resolveLocation(c, scope.LocationID)
	if !ok {
		return
	}

	entry, err := ctrl.queueService.Enqueue(service.CartScope{
		StoreID:    scope.StoreID,
		LocationID: locationID,
		CustomerID: req.CustomerID,
		DeviceKey:  deviceKey,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrCartScopeMissing):
			apperrors.BadRequest(c, apperrors.CartScopeMissing, "A customer or device is required")
		case errors.Is(err, service.ErrCartNotActive):
			apperrors.Conflict(c, apperrors.CartNotActive, "Cart is not active")
		default:
			log.Error("Failed to enqueue cart", err, map[string]interface{}{
				"location_id": locationID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// ListQueue returns the location's line in position order
// GET /api/v1/queue
func (ctrl *QueueController) ListQueue(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	locationID, ok := ctrl.resolveLocation(c, scope.LocationID)
	if !ok {
		return
	}

	entries, err := ctrl.queueService.ListQueue(locationID)
	if err != nil {
		log.Error("Failed to list queue", err, map[string]interface{}{
			"location_id": locationID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetPosition returns a cart's place in line
// GET /api/v1/queue/carts/:cartID
func (ctrl *QueueController) GetPosition(c *gin.Context) {
	cartID, ok := parseIDParam(c, "cartID")
	if !ok {
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	entry, err := ctrl.queueService.GetEntryByCart(cartID)
	if err != nil {
		if errors.Is(err, service.ErrQueueEntryNotFound) {
			apperrors.NotFound(c, apperrors.QueueEntryNotFound, "Cart is not in the queue")
			return
		}
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// Dequeue removes a cart from the line, closing the gap
// DELETE /api/v1/queue/carts/:cartID
func (ctrl *QueueController) Dequeue(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseIDParam(c, "cartID")
	if !ok {
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	if err := ctrl.queueService.Dequeue(cartID); err != nil {
		switch {
		case errors.Is(err, service.ErrCartNotFound):
			apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
		case errors.Is(err, service.ErrQueueEntryNotFound):
			apperrors.NotFound(c, apperrors.QueueEntryNotFound, "Cart is not in the queue")
		default:
			log.Error("Failed to dequeue cart", err, map[string]interface{}{
				"cart_id": cartID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"dequeued": true})
}

func (ctrl *QueueController) resolveLocation(c *gin.Context, scoped *uint) (uint, bool) {
	if scoped != nil {
		return *scoped, true
	}
	id, err := strconv.ParseUint(c.Query("location_id"), 10, 32)
	if err != nil || id == 0 {
		apperrors.BadRequest(c, apperrors.ValidationRequired, "location_id is required")
		return 0, false
	}
	return uint(id), true
}

func (ctrl *QueueController) authorizeCart(c *gin.Context, cartID uint) bool {
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
