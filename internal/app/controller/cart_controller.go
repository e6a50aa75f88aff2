package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/service"
	"github.com/mlee/checkline-backend/internal/authz"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type CartController struct {
	cartService service.CartService
}

func NewCartController(cartService service.CartService) *CartController {
	return &CartController{
		cartService: cartService,
	}
}

type ResolveCartRequest struct {
	CustomerID *uint `json:"customer_id"`
	FreshStart bool  `json:"fresh_start"`
}

type AddItemRequest struct {
	ProductID   uint `json:"product_id" binding:"required"`
	PriceTierID uint `json:"price_tier_id" binding:"required"`
	Quantity    int  `json:"quantity" binding:"required,gt=0"`
}

type UpdateItemRequest struct {
	Quantity int `json:"quantity" binding:"gte=0"`
}

// ResolveCart returns the caller's single active cart, creating it if needed
// POST /api/v1/carts/resolve
func (ctrl *CartController) ResolveCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}
	deviceKey, _ := middleware.GetDeviceKey(c)

	var req ResolveCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid cart resolve request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	locationID := uint(0)
	if scope.LocationID != nil {
		locationID = *scope.LocationID
	} else {
		// Managers must say which location they are acting at.
		id, err := strconv.ParseUint(c.Query("location_id"), 10, 32)
		if err != nil {
			apperrors.BadRequest(c, apperrors.ValidationRequired, "location_id is required")
			return
		}
		locationID = uint(id)
	}

	cart, err := ctrl.cartService.GetOrCreateCart(service.CartScope{
		StoreID:    scope.StoreID,
		LocationID: locationID,
		CustomerID: req.CustomerID,
		DeviceKey:  deviceKey,
	}, req.FreshStart)
	if err != nil {
		if errors.Is(err, service.ErrCartScopeMissing) {
			apperrors.BadRequest(c, apperrors.CartScopeMissing, "A customer or device is required")
			return
		}
		log.Error("Failed to resolve cart", err, map[string]interface{}{
			"store_id":    scope.StoreID,
			"location_id": locationID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// GetCart returns one cart with its items
// GET /api/v1/carts/:id
func (ctrl *CartController) GetCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	cart, err := ctrl.cartService.GetCart(cartID)
	if err != nil {
		if errors.Is(err, service.ErrCartNotFound) {
			apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
			return
		}
		log.Error("Failed to fetch cart", err, map[string]interface{}{
			"cart_id": cartID,
		})
		apperrors.InternalError(c, "")
		return
	}

	if !authz.CanRead(scope, authz.RowMeta{StoreID: cart.StoreID, LocationID: cart.LocationID}) {
		apperrors.Forbidden(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// AddItem adds a priced line to the cart
// POST /api/v1/carts/:id/items
func (ctrl *CartController) AddItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid add item request", map[string]interface{}{
			"cart_id": cartID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	cart, err := ctrl.cartService.AddItem(cartID, req.ProductID, req.PriceTierID, req.Quantity)
	if err != nil {
		ctrl.respondCartMutationError(c, err, cartID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// UpdateItem changes a line's quantity; zero removes the line
// PATCH /api/v1/carts/:id/items/:itemID
func (ctrl *CartController) UpdateItem(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemID")
	if !ok {
		return
	}

	var req UpdateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid update item request", map[string]interface{}{
			"cart_id": cartID,
			"error":   err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	cart, err := ctrl.cartService.UpdateItemQuantity(cartID, itemID, req.Quantity)
	if err != nil {
		ctrl.respondCartMutationError(c, err, cartID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// RemoveItem deletes a line
// DELETE /api/v1/carts/:id/items/:itemID
func (ctrl *CartController) RemoveItem(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	itemID, ok := parseIDParam(c, "itemID")
	if !ok {
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	cart, err := ctrl.cartService.RemoveItem(cartID, itemID)
	if err != nil {
		ctrl.respondCartMutationError(c, err, cartID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// ClearCart removes every line
// DELETE /api/v1/carts/:id/items
func (ctrl *CartController) ClearCart(c *gin.Context) {
	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	cart, err := ctrl.cartService.ClearCart(cartID)
	if err != nil {
		ctrl.respondCartMutationError(c, err, cartID)
		return
	}

	c.JSON(http.StatusOK, gin.H{"cart": cart})
}

// AbandonCart retires an active cart
// POST /api/v1/carts/:id/abandon
func (ctrl *CartController) AbandonCart(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	cartID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if !ctrl.authorizeCart(c, cartID) {
		return
	}

	if err := ctrl.cartService.AbandonCart(cartID); err != nil {
		if errors.Is(err, service.ErrCartNotFound) {
			apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
			return
		}
		log.Error("Failed to abandon cart", err, map[string]interface{}{
			"cart_id": cartID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": string(model.CartStatusAbandoned)})
}

// authorizeCart loads the cart and applies the shared visibility predicate.
// Writes a response and returns false on any failure.
func (ctrl *CartController) authorizeCart(c *gin.Context, cartID uint) bool {
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

func (ctrl *CartController) respondCartMutationError(c *gin.Context, err error, cartID uint) {
	log := middleware.GetLoggerFromContext(c)

	switch {
	case errors.Is(err, service.ErrCartNotFound):
		apperrors.NotFound(c, apperrors.CartNotFound, "Cart not found")
	case errors.Is(err, service.ErrCartNotActive):
		apperrors.Conflict(c, apperrors.CartNotActive, "Cart is not active")
	case errors.Is(err, service.ErrCartItemNotFound):
		apperrors.NotFound(c, apperrors.CartItemNotFound, "Cart item not found")
	case errors.Is(err, service.ErrProductNotFound):
		apperrors.NotFound(c, apperrors.ProductNotFound, "Product not found")
	case errors.Is(err, service.ErrTierNotFound), errors.Is(err, service.ErrTierMismatch):
		apperrors.BadRequest(c, apperrors.TierNotFound, "Price tier not found for this product")
	case errors.Is(err, service.ErrOutOfStock):
		apperrors.Conflict(c, apperrors.StockOutOfStock, "Not enough stock available")
	case errors.Is(err, service.ErrInvalidQuantity):
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Quantity must be positive")
	default:
		log.Error("Cart mutation failed", err, map[string]interface{}{
			"cart_id": cartID,
		})
		apperrors.InternalError(c, "")
	}
}

// parseIDParam reads a positive integer path parameter, responding 400 on
// failure.
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || value == 0 {
		apperrors.BadRequest(c, apperrors.ValidationInvalidID, "Invalid id")
		return 0, false
	}
	return uint(value), true
}
