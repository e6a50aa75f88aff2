package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/pkg/logger"
	"github.com/xuri/excelize/v2"
)

var (
	ErrArchiveUnavailable = errors.New("audit archive storage is not configured")
)

// ArchiveStorage is the slice of object storage the audit export needs.
type ArchiveStorage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

type AuditService interface {
	ListDeltas(filter repository.DeltaFilter) ([]model.InventoryDelta, error)
	ListOrders(storeID uint, from, to time.Time) ([]model.Order, error)
	BuildLedgerWorkbook(storeID uint, from, to time.Time) (*excelize.File, error)
	ArchiveLedger(ctx context.Context, storeID uint, from, to time.Time) (string, error)
}

type auditService struct {
	inventoryRepo repository.InventoryRepository
	orderRepo     repository.OrderRepository
	storage       ArchiveStorage
}

func NewAuditService(
	inventoryRepo repository.InventoryRepository,
	orderRepo repository.OrderRepository,
	storage ArchiveStorage,
) AuditService {
	return &auditService{
		inventoryRepo: inventoryRepo,
		orderRepo:     orderRepo,
		storage:       storage,
	}
}

func (s *auditService) ListDeltas(filter repository.DeltaFilter) ([]model.InventoryDelta, error) {
	return s.inventoryRepo.ListDeltas(filter)
}

func (s *auditService) ListOrders(storeID uint, from, to time.Time) ([]model.Order, error) {
	return s.orderRepo.ListByStore(storeID, from, to)
}

// BuildLedgerWorkbook renders the period's stock movements and orders into
// a two-sheet workbook. The ledger sheet is the full append-only trail; an
// auditor can re-derive any on-hand figure by summing it.
func (s *auditService) BuildLedgerWorkbook(storeID uint, from, to time.Time) (*excelize.File, error) {
	deltas, err := s.inventoryRepo.ListDeltas(repository.DeltaFilter{
		StoreID: storeID,
		From:    from,
		To:      to,
	})
	if err != nil {
		return nil, err
	}
	orders, err := s.orderRepo.ListByStore(storeID, from, to)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	ledger := "Stock Ledger"
	f.SetSheetName("Sheet1", ledger)

	headers := []string{"Delta ID", "Record ID", "Quantity", "Reason", "Order ID", "Order Item ID", "Recorded At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(ledger, cell, h)
	}
	for row, d := range deltas {
		values := []interface{}{d.ID, d.InventoryRecordID, d.Quantity, string(d.Reason), deref(d.OrderID), deref(d.OrderItemID), d.CreatedAt.Format(time.RFC3339)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(ledger, cell, v)
		}
	}

	orderSheet := "Orders"
	f.NewSheet(orderSheet)
	orderHeaders := []string{"Order ID", "Location ID", "Customer ID", "Intent ID", "Subtotal", "Discount", "Tax", "Total", "Created At"}
	for i, h := range orderHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(orderSheet, cell, h)
	}
	for row, o := range orders {
		values := []interface{}{o.ID, o.LocationID, deref(o.CustomerID), o.PaymentIntentID, o.Subtotal, o.Discount, o.Tax, o.Total, o.CreatedAt.Format(time.RFC3339)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(orderSheet, cell, v)
		}
	}

	return f, nil
}

// ArchiveLedger uploads the period workbook to object storage and returns
// the archived file URL.
func (s *auditService) ArchiveLedger(ctx context.Context, storeID uint, from, to time.Time) (string, error) {
	if s.storage == nil {
		return "", ErrArchiveUnavailable
	}

	f, err := s.BuildLedgerWorkbook(storeID, from, to)
	if err != nil {
		return "", err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", fmt.Errorf("failed to serialize workbook: %w", err)
	}

	key := fmt.Sprintf("audit/store-%d/%s.xlsx", storeID, from.Format("2006-01-02"))
	url, err := s.storage.Upload(ctx, key, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf)
	if err != nil {
		logger.Error("Failed to archive audit workbook", err, map[string]interface{}{
			"store_id": storeID,
			"key":      key,
		})
		return "", err
	}

	logger.Info("Audit workbook archived", map[string]interface{}{
		"store_id": storeID,
		"key":      key,
	})
	return url, nil
}

func deref(v *uint) interface{} {
	if v == nil {
		return ""
	}
	return *v
}
