package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/service"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type ProductController struct {
	productService service.ProductService
}

func NewProductController(productService service.ProductService) *ProductController {
	return &ProductController{
		productService: productService,
	}
}

type AdjustStockRequest struct {
	Quantity float64 `json:"quantity" binding:"required"`
	Reason   string  `json:"reason" binding:"required,oneof=received adjustment"`
}

// GetProducts lists the store's catalog
// GET /api/v1/products
func (ctrl *ProductController) GetProducts(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	products, err := ctrl.productService.GetProducts(scope.StoreID, c.Query("category"))
	if err != nil {
		log.Error("Failed to list products", err, map[string]interface{}{
			"store_id": scope.StoreID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"count":    len(products),
	})
}

// GetProduct returns one product with its price tiers
// GET /api/v1/products/:id
func (ctrl *ProductController) GetProduct(c *gin.Context) {
	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	product, err := ctrl.productService.GetProductByID(productID)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			apperrors.NotFound(c, apperrors.ProductNotFound, "Product not found")
			return
		}
		apperrors.InternalError(c, "")
		return
	}

	scope, ok := middleware.GetScope(c)
	if !ok || scope.StoreID != product.StoreID {
		apperrors.Forbidden(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"product": product})
}

// GetAvailability reports per-record on-hand, reserved and available stock
// GET /api/v1/products/:id/availability
func (ctrl *ProductController) GetAvailability(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	productID, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	rows, err := ctrl.productService.GetAvailability(productID, scope.StoreID)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			apperrors.NotFound(c, apperrors.ProductNotFound, "Product not found")
			return
		}
		log.Error("Failed to compute availability", err, map[string]interface{}{
			"product_id": productID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"availability": rows})
}

// AdjustStock appends a signed delta to a record's ledger (manager only)
// POST /api/v1/inventory/:recordID/adjust
func (ctrl *ProductController) AdjustStock(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	recordID, ok := parseIDParam(c, "recordID")
	if !ok {
		return
	}

	var req AdjustStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("Invalid stock adjustment request", map[string]interface{}{
			"error": err.Error(),
		})
		apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Invalid request data")
		return
	}

	delta, err := ctrl.productService.AdjustStock(recordID, req.Quantity, model.DeltaReason(req.Reason))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInventoryRecordNotFound):
			apperrors.NotFound(c, apperrors.ResourceNotFound, "Inventory record not found")
		case errors.Is(err, service.ErrInvalidDelta):
			apperrors.BadRequest(c, apperrors.ValidationInvalidInput, "Adjustment quantity must be non-zero")
		case errors.Is(err, service.ErrStockBelowZero):
			apperrors.Conflict(c, apperrors.StockOutOfStock, "Adjustment would take on-hand below zero")
		default:
			log.Error("Failed to adjust stock", err, map[string]interface{}{
				"inventory_record_id": recordID,
			})
			apperrors.InternalError(c, "")
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"delta": delta})
}
