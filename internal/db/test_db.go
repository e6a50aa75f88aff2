package db

import (
	"fmt"
	"log"
	"sync/atomic"

	"github.com/mlee/checkline-backend/internal/app/model"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var testDBSeq int64

// SetupTestDB creates an in-memory SQLite database for testing.
// Device is excluded: it uses a Postgres array column.
//
// The DSN is a uniquely named shared-cache database rather than the bare
// ":memory:": every connection gorm's pool opens must see the same schema,
// and a plain ":memory:" DSN gives each connection its own empty database.
func SetupTestDB() (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:checkline_test_%d?mode=memory&cache=shared",
		atomic.AddInt64(&testDBSeq, 1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}

	err = db.AutoMigrate(
		&model.Store{},
		&model.Location{},
		&model.Customer{},
		&model.Product{},
		&model.PriceTier{},
		&model.InventoryRecord{},
		&model.InventoryDelta{},
		&model.Cart{},
		&model.CartItem{},
		&model.QueueEntry{},
		&model.PaymentIntent{},
		&model.Order{},
		&model.OrderItem{},
		&model.LoyaltyTransaction{},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}

	// Tests exercise the same partial unique indexes production relies on.
	if err := CreateConstraints(db); err != nil {
		return nil, fmt.Errorf("failed to create test constraints: %w", err)
	}

	return db, nil
}

// CleanupTestDB cleans up the test database
func CleanupTestDB(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get DB instance: %v", err)
		return
	}
	sqlDB.Close()
}

// TruncateAllTables removes all data from tables
func TruncateAllTables(db *gorm.DB) error {
	tables := []string{
		"loyalty_transactions", "order_items", "orders", "payment_intents",
		"queue_entries", "cart_items", "carts", "inventory_deltas",
		"inventory_records", "price_tiers", "products", "customers",
		"locations", "stores",
	}
	for _, table := range tables {
		if err := db.Exec(fmt.Sprintf("DELETE FROM %s", table)).Error; err != nil {
			return err
		}
	}
	return nil
}
