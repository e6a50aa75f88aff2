package service

import (
	"errors"
	"math"

	apperrors "github.com/mlee/checkline-backend/internal/errors"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

var (
	ErrSettlementConflict = errors.New("settlement effects already recorded")
)

// SettlementService writes the side effects of a succeeded payment: one
// negative sale delta per order item and one loyalty award per order. Both
// writes sit behind partial unique indexes, so a double invocation cannot
// record an effect twice no matter how the callers race.
type SettlementService interface {
	Settle(tx *gorm.DB, order *model.Order) (*model.LoyaltyTransaction, error)
	ReconcileOrder(orderID uint) error
}

type settlementService struct {
	db *gorm.DB
}

func NewSettlementService(db *gorm.DB) SettlementService {
	return &settlementService{db: db}
}

// Settle records the inventory deductions and the loyalty award for an order
// inside the caller's transaction. Returns the created loyalty transaction,
// or nil when the order has no customer or earns no points.
func (s *settlementService) Settle(tx *gorm.DB, order *model.Order) (*model.LoyaltyTransaction, error) {
	for i := range order.Items {
		item := &order.Items[i]
		delta := model.InventoryDelta{
			InventoryRecordID: item.InventoryRecordID,
			Quantity:          -item.TierQuantity,
			Reason:            model.DeltaReasonSale,
			OrderID:           &order.ID,
			OrderItemID:       &item.ID,
		}
		if err := tx.Create(&delta).Error; err != nil {
			if apperrors.IsUniqueViolation(err) {
				logger.Warn("Sale delta already recorded for order item", map[string]interface{}{
					"order_id":      order.ID,
					"order_item_id": item.ID,
				})
				return nil, ErrSettlementConflict
			}
			return nil, err
		}
	}

	award, err := s.award(tx, order)
	if err != nil {
		return nil, err
	}
	return award, nil
}

func (s *settlementService) award(tx *gorm.DB, order *model.Order) (*model.LoyaltyTransaction, error) {
	if order.CustomerID == nil {
		return nil, nil
	}
	points := int(math.Floor(order.Total))
	if points <= 0 {
		return nil, nil
	}

	award := model.LoyaltyTransaction{
		StoreID:    order.StoreID,
		CustomerID: *order.CustomerID,
		OrderID:    &order.ID,
		Type:       model.LoyaltyEarned,
		Points:     points,
	}
	if err := tx.Create(&award).Error; err != nil {
		if apperrors.IsUniqueViolation(err) {
			logger.Warn("Loyalty award already recorded for order", map[string]interface{}{
				"order_id":    order.ID,
				"customer_id": *order.CustomerID,
			})
			return nil, ErrSettlementConflict
		}
		return nil, err
	}
	return &award, nil
}

// ReconcileOrder re-derives the three settlement effects for an order and
// fills in whichever are missing. Each effect is checked independently, so
// a crash that landed between writes heals without duplicating the writes
// that did land.
func (s *settlementService) ReconcileOrder(orderID uint) error {
	var order model.Order
	if err := s.db.Preload("Items").First(&order, orderID).Error; err != nil {
		return err
	}

	logger.Info("Reconciling settlement effects for order", map[string]interface{}{
		"order_id": orderID,
	})

	repaired := 0
	for i := range order.Items {
		item := &order.Items[i]

		var count int64
		err := s.db.Model(&model.InventoryDelta{}).
			Where("order_item_id = ? AND reason = ?", item.ID, model.DeltaReasonSale).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}

		delta := model.InventoryDelta{
			InventoryRecordID: item.InventoryRecordID,
			Quantity:          -item.TierQuantity,
			Reason:            model.DeltaReasonSale,
			OrderID:           &order.ID,
			OrderItemID:       &item.ID,
		}
		if err := s.db.Create(&delta).Error; err != nil {
			if apperrors.IsUniqueViolation(err) {
				continue
			}
			return err
		}
		repaired++
	}

	if order.CustomerID != nil {
		points := int(math.Floor(order.Total))
		if points > 0 {
			var count int64
			err := s.db.Model(&model.LoyaltyTransaction{}).
				Where("customer_id = ? AND order_id = ? AND type = ?",
					*order.CustomerID, order.ID, model.LoyaltyEarned).
				Count(&count).Error
			if err != nil {
				return err
			}
			if count == 0 {
				award := model.LoyaltyTransaction{
					StoreID:    order.StoreID,
					CustomerID: *order.CustomerID,
					OrderID:    &order.ID,
					Type:       model.LoyaltyEarned,
					Points:     points,
				}
				if cerr := s.db.Create(&award).Error; cerr != nil {
					if !apperrors.IsUniqueViolation(cerr) {
						return cerr
					}
				} else {
					repaired++
				}
			}
		}
	}

	if repaired > 0 {
		logger.Warn("Settlement effects repaired", map[string]interface{}{
			"order_id": orderID,
			"repaired": repaired,
		})
	}
	return nil
}
