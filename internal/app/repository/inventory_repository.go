package repository

import (
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

// InventoryAvailability is one stock record with its derived quantities.
// OnHand is the sum of the delta ledger; Reserved is the tier quantity held
// by active cart items pointing at the record.
type InventoryAvailability struct {
	InventoryRecordID uint    `json:"inventory_record_id"`
	StoreID           uint    `json:"store_id"`
	LocationID        uint    `json:"location_id"`
	ProductID         uint    `json:"product_id"`
	Lot               string  `json:"lot,omitempty"`
	Latitude          float64 `json:"-"`
	Longitude         float64 `json:"-"`
	OnHand            float64 `json:"on_hand"`
	Reserved          float64 `json:"reserved"`
	Available         float64 `json:"available"`
}

// DeltaFilter narrows ledger listings for the audit endpoints.
type DeltaFilter struct {
	StoreID           uint
	InventoryRecordID uint
	Reason            model.DeltaReason
	From              time.Time
	To                time.Time
}

type InventoryRepository interface {
	FindRecordByID(id uint) (*model.InventoryRecord, error)
	FindAvailableByProduct(productID, storeID uint) ([]InventoryAvailability, error)
	ListDeltas(filter DeltaFilter) ([]model.InventoryDelta, error)
	CreateDelta(delta *model.InventoryDelta) error
}

type inventoryRepository struct {
	db *gorm.DB
}

func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) FindRecordByID(id uint) (*model.InventoryRecord, error) {
	var record model.InventoryRecord
	if err := r.db.Preload("Product").First(&record, id).Error; err != nil {
		logger.Error("Failed to find inventory record by ID in database", err, map[string]interface{}{
			"inventory_record_id": id,
		})
		return nil, err
	}
	return &record, nil
}

func (r *inventoryRepository) FindAvailableByProduct(productID, storeID uint) ([]InventoryAvailability, error) {
	logger.Debug("Computing availability by product in database", map[string]interface{}{
		"product_id": productID,
		"store_id":   storeID,
	})

	rows, err := AvailabilityByProduct(r.db, productID, storeID)
	if err != nil {
		logger.Error("Failed to compute availability by product in database", err, map[string]interface{}{
			"product_id": productID,
			"store_id":   storeID,
		})
		return nil, err
	}
	return rows, nil
}

// AvailabilityByProduct lists a product's stock records with derived
// quantities on the given handle, so services can run it inside a
// transaction.
func AvailabilityByProduct(db *gorm.DB, productID, storeID uint) ([]InventoryAvailability, error) {
	var rows []InventoryAvailability
	err := db.Raw(`
		SELECT ir.id AS inventory_record_id,
		       ir.store_id,
		       ir.location_id,
		       ir.product_id,
		       ir.lot,
		       l.latitude,
		       l.longitude,
		       COALESCE((SELECT SUM(d.quantity)
		                 FROM inventory_deltas d
		                 WHERE d.inventory_record_id = ir.id), 0) AS on_hand,
		       COALESCE((SELECT SUM(ci.tier_quantity)
		                 FROM cart_items ci
		                 JOIN carts c ON c.id = ci.cart_id
		                 WHERE ci.inventory_record_id = ir.id
		                   AND c.status = 'active'), 0) AS reserved
		FROM inventory_records ir
		JOIN locations l ON l.id = ir.location_id
		WHERE ir.product_id = ? AND ir.store_id = ?`,
		productID, storeID).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for i := range rows {
		rows[i].Available = rows[i].OnHand - rows[i].Reserved
	}
	return rows, nil
}

func (r *inventoryRepository) ListDeltas(filter DeltaFilter) ([]model.InventoryDelta, error) {
	query := r.db.
		Joins("JOIN inventory_records ON inventory_records.id = inventory_deltas.inventory_record_id").
		Where("inventory_records.store_id = ?", filter.StoreID)

	if filter.InventoryRecordID != 0 {
		query = query.Where("inventory_deltas.inventory_record_id = ?", filter.InventoryRecordID)
	}
	if filter.Reason != "" {
		query = query.Where("inventory_deltas.reason = ?", filter.Reason)
	}
	if !filter.From.IsZero() {
		query = query.Where("inventory_deltas.created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("inventory_deltas.created_at < ?", filter.To)
	}

	var deltas []model.InventoryDelta
	if err := query.Order("inventory_deltas.created_at").Find(&deltas).Error; err != nil {
		logger.Error("Failed to list inventory deltas in database", err, map[string]interface{}{
			"store_id": filter.StoreID,
		})
		return nil, err
	}
	return deltas, nil
}

func (r *inventoryRepository) CreateDelta(delta *model.InventoryDelta) error {
	if err := r.db.Create(delta).Error; err != nil {
		logger.Error("Failed to create inventory delta in database", err, map[string]interface{}{
			"inventory_record_id": delta.InventoryRecordID,
			"reason":              delta.Reason,
		})
		return err
	}
	return nil
}

// Availability computes available stock for a single record on the given
// handle, so services can read it inside a transaction. Cart items whose id
// matches excludeItemID are left out of the reservation sum; pass 0 to
// count every active reservation.
func Availability(db *gorm.DB, recordID uint, excludeItemID uint) (float64, error) {
	var available float64
	err := db.Raw(`
		SELECT COALESCE((SELECT SUM(d.quantity)
		                 FROM inventory_deltas d
		                 WHERE d.inventory_record_id = ?), 0)
		     - COALESCE((SELECT SUM(ci.tier_quantity)
		                 FROM cart_items ci
		                 JOIN carts c ON c.id = ci.cart_id
		                 WHERE ci.inventory_record_id = ?
		                   AND c.status = 'active'
		                   AND ci.id <> ?), 0)`,
		recordID, recordID, excludeItemID).Row().Scan(&available)
	if err != nil {
		return 0, err
	}
	return available, nil
}

// OnHand sums the delta ledger for one record.
func OnHand(db *gorm.DB, recordID uint) (float64, error) {
	var onHand float64
	err := db.Raw(`
		SELECT COALESCE(SUM(quantity), 0)
		FROM inventory_deltas
		WHERE inventory_record_id = ?`, recordID).Row().Scan(&onHand)
	if err != nil {
		return 0, err
	}
	return onHand, nil
}
