package db

import (
	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/pkg/logger"
	"gorm.io/gorm"
)

// Migrate runs database migrations
func Migrate() error {
	logger.Info("Running database migrations...")

	models := []interface{}{
		&model.Store{},
		&model.Location{},
		&model.Customer{},
		&model.Device{},
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
	}

	if err := DB.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run migrations", err)
		return err
	}

	if err := CreateConstraints(DB); err != nil {
		logger.Error("Failed to create uniqueness constraints", err)
		return err
	}

	logger.Info("Database migrations completed successfully", map[string]interface{}{
		"models_count": len(models),
	})
	return nil
}

// CreateConstraints installs the partial unique indexes the synchronization
// core relies on. AutoMigrate cannot express them; the same SQL is valid on
// Postgres and SQLite, so tests run against the identical guards.
func CreateConstraints(db *gorm.DB) error {
	stmts := []string{
		// One active cart per (store, location, customer) for known customers.
		`CREATE UNIQUE INDEX IF NOT EXISTS uidx_carts_active_customer
			ON carts (store_id, location_id, customer_id)
			WHERE status = 'active' AND customer_id IS NOT NULL`,
		// One active cart per (location, device) for anonymous carts.
		`CREATE UNIQUE INDEX IF NOT EXISTS uidx_carts_active_device
			ON carts (location_id, device_key)
			WHERE status = 'active' AND customer_id IS NULL`,
		// At most one sale delta per order item (settlement idempotency).
		`CREATE UNIQUE INDEX IF NOT EXISTS uidx_inventory_deltas_sale
			ON inventory_deltas (order_item_id)
			WHERE reason = 'sale' AND order_item_id IS NOT NULL`,
		// At most one earned loyalty transaction per (customer, order).
		`CREATE UNIQUE INDEX IF NOT EXISTS uidx_loyalty_earned_order
			ON loyalty_transactions (customer_id, order_id, type)
			WHERE order_id IS NOT NULL`,
		// One order per payment intent.
		`CREATE UNIQUE INDEX IF NOT EXISTS uidx_orders_intent
			ON orders (payment_intent_id)`,
	}

	for _, stmt := range stmts {
		if err := db.Exec(stmt).Error; err != nil {
			return err
		}
	}
	return nil
}
