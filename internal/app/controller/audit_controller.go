package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/app/service"
	apperrors "github.com/mlee/checkline-backend/internal/errors"
	"github.com/mlee/checkline-backend/internal/middleware"
)

type AuditController struct {
	auditService service.AuditService
}

func NewAuditController(auditService service.AuditService) *AuditController {
	return &AuditController{
		auditService: auditService,
	}
}

// ListDeltas returns the stock ledger for the caller's store
// GET /api/v1/audit/deltas
func (ctrl *AuditController) ListDeltas(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	filter := repository.DeltaFilter{
		StoreID: scope.StoreID,
		Reason:  model.DeltaReason(c.Query("reason")),
	}
	if recordID, err := strconv.ParseUint(c.Query("record_id"), 10, 32); err == nil {
		filter.InventoryRecordID = uint(recordID)
	}
	filter.From, filter.To = parsePeriod(c)

	deltas, err := ctrl.auditService.ListDeltas(filter)
	if err != nil {
		log.Error("Failed to list stock ledger", err, map[string]interface{}{
			"store_id": scope.StoreID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"deltas": deltas,
		"count":  len(deltas),
	})
}

// ListOrders returns the store's settled orders for a period
// GET /api/v1/audit/orders
func (ctrl *AuditController) ListOrders(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	from, to := parsePeriod(c)
	orders, err := ctrl.auditService.ListOrders(scope.StoreID, from, to)
	if err != nil {
		log.Error("Failed to list orders", err, map[string]interface{}{
			"store_id": scope.StoreID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// ExportLedger streams the period workbook as an xlsx download
// GET /api/v1/audit/export
func (ctrl *AuditController) ExportLedger(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	from, to := parsePeriod(c)
	f, err := ctrl.auditService.BuildLedgerWorkbook(scope.StoreID, from, to)
	if err != nil {
		log.Error("Failed to build audit workbook", err, map[string]interface{}{
			"store_id": scope.StoreID,
		})
		apperrors.InternalError(c, "")
		return
	}

	filename := fmt.Sprintf("audit-%d-%s.xlsx", scope.StoreID, time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")

	if err := f.Write(c.Writer); err != nil {
		log.Error("Failed to stream audit workbook", err, map[string]interface{}{
			"store_id": scope.StoreID,
		})
	}
}

// ArchiveLedger uploads the period workbook to object storage
// POST /api/v1/audit/archive
func (ctrl *AuditController) ArchiveLedger(c *gin.Context) {
	log := middleware.GetLoggerFromContext(c)

	scope, ok := middleware.GetScope(c)
	if !ok {
		apperrors.Unauthorized(c, "")
		return
	}

	from, to := parsePeriod(c)
	url, err := ctrl.auditService.ArchiveLedger(c.Request.Context(), scope.StoreID, from, to)
	if err != nil {
		if errors.Is(err, service.ErrArchiveUnavailable) {
			apperrors.RespondWithError(c, http.StatusServiceUnavailable, apperrors.InternalExternalAPI,
				"Archive storage is not configured")
			return
		}
		log.Error("Failed to archive audit workbook", err, map[string]interface{}{
			"store_id": scope.StoreID,
		})
		apperrors.InternalError(c, "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

// parsePeriod reads optional from/to query bounds (RFC 3339 or date only).
// Defaults to the last 30 days.
func parsePeriod(c *gin.Context) (time.Time, time.Time) {
	parse := func(s string) (time.Time, bool) {
		if s == "" {
			return time.Time{}, false
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t, true
		}
		if t, err := time.Parse("2006-01-02", s); err == nil {
			return t, true
		}
		return time.Time{}, false
	}

	now := time.Now()
	from, okFrom := parse(c.Query("from"))
	to, okTo := parse(c.Query("to"))
	if !okFrom {
		from = now.AddDate(0, 0, -30)
	}
	if !okTo {
		to = now
	}
	return from, to
}
