package service

import (
	"testing"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type settlementFixture struct {
	db       *gorm.DB
	svc      SettlementService
	store    model.Store
	location model.Location
	customer model.Customer
	product  model.Product
	tier     model.PriceTier
	record   model.InventoryRecord
}

func setupSettlementServiceTest(t *testing.T) *settlementFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &settlementFixture{db: testDB, svc: NewSettlementService(testDB)}

	f.store = model.Store{Name: "Test Store", Currency: "USD", TaxRate: 0.1}
	require.NoError(t, testDB.Create(&f.store).Error)
	f.location = model.Location{StoreID: f.store.ID, Name: "Counter"}
	require.NoError(t, testDB.Create(&f.location).Error)
	f.customer = model.Customer{StoreID: f.store.ID, Name: "Test Customer"}
	require.NoError(t, testDB.Create(&f.customer).Error)
	f.product = model.Product{StoreID: f.store.ID, Name: "Test Product", Unit: "grams"}
	require.NoError(t, testDB.Create(&f.product).Error)
	f.tier = model.PriceTier{ProductID: f.product.ID, Label: "3.5g", UnitAmount: 3.5, Price: 10}
	require.NoError(t, testDB.Create(&f.tier).Error)
	f.record = model.InventoryRecord{StoreID: f.store.ID, LocationID: f.location.ID, ProductID: f.product.ID}
	require.NoError(t, testDB.Create(&f.record).Error)
	require.NoError(t, testDB.Create(&model.InventoryDelta{
		InventoryRecordID: f.record.ID,
		Quantity:          50,
		Reason:            model.DeltaReasonReceived,
	}).Error)

	return f
}

func (f *settlementFixture) createOrder(t *testing.T, customerID *uint) *model.Order {
	t.Helper()
	cart := model.Cart{
		StoreID:    f.store.ID,
		LocationID: f.location.ID,
		CustomerID: customerID,
		DeviceKey:  "reg-1",
		Status:     model.CartStatusCompleted,
	}
	require.NoError(t, f.db.Create(&cart).Error)

	order := &model.Order{
		StoreID:         f.store.ID,
		LocationID:      f.location.ID,
		CustomerID:      customerID,
		CartID:          cart.ID,
		PaymentIntentID: "intent-test-1",
		Subtotal:        20,
		Tax:             2,
		Total:           22.5,
		Items: []model.OrderItem{{
			ProductID:         f.product.ID,
			PriceTierID:       f.tier.ID,
			InventoryRecordID: f.record.ID,
			Quantity:          2,
			TierQuantity:      7,
			UnitPrice:         10,
			LineTotal:         20,
		}},
	}
	require.NoError(t, f.db.Create(order).Error)
	return order
}

func TestSettlementService_Settle_WritesDeltaAndAward(t *testing.T) {
	f := setupSettlementServiceTest(t)
	order := f.createOrder(t, &f.customer.ID)

	var award *model.LoyaltyTransaction
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var serr error
		award, serr = f.svc.Settle(tx, order)
		return serr
	})
	require.NoError(t, err)

	var delta model.InventoryDelta
	require.NoError(t, f.db.Where("order_item_id = ?", order.Items[0].ID).First(&delta).Error)
	assert.Equal(t, model.DeltaReasonSale, delta.Reason)
	assert.InDelta(t, -7.0, delta.Quantity, 0.001)

	require.NotNil(t, award)
	assert.Equal(t, model.LoyaltyEarned, award.Type)
	assert.Equal(t, 22, award.Points) // floor(22.50)

	onHand, err := repository.OnHand(f.db, f.record.ID)
	require.NoError(t, err)
	assert.InDelta(t, 43.0, onHand, 0.001)
}

func TestSettlementService_Settle_AnonymousOrderEarnsNothing(t *testing.T) {
	f := setupSettlementServiceTest(t)
	order := f.createOrder(t, nil)

	var award *model.LoyaltyTransaction
	err := f.db.Transaction(func(tx *gorm.DB) error {
		var serr error
		award, serr = f.svc.Settle(tx, order)
		return serr
	})
	require.NoError(t, err)
	assert.Nil(t, award)

	var count int64
	f.db.Model(&model.LoyaltyTransaction{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestSettlementService_Settle_SecondRunConflicts(t *testing.T) {
	f := setupSettlementServiceTest(t)
	order := f.createOrder(t, &f.customer.ID)

	err := f.db.Transaction(func(tx *gorm.DB) error {
		_, serr := f.svc.Settle(tx, order)
		return serr
	})
	require.NoError(t, err)

	err = f.db.Transaction(func(tx *gorm.DB) error {
		_, serr := f.svc.Settle(tx, order)
		return serr
	})
	assert.ErrorIs(t, err, ErrSettlementConflict)

	// The conflicting run rolled back; exactly one delta remains.
	var count int64
	f.db.Model(&model.InventoryDelta{}).Where("order_id = ?", order.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSettlementService_ReconcileOrder_FillsMissingEffects(t *testing.T) {
	f := setupSettlementServiceTest(t)
	order := f.createOrder(t, &f.customer.ID)

	// Nothing settled yet; reconcile writes both effects.
	require.NoError(t, f.svc.ReconcileOrder(order.ID))

	var deltaCount int64
	f.db.Model(&model.InventoryDelta{}).Where("order_id = ?", order.ID).Count(&deltaCount)
	assert.Equal(t, int64(1), deltaCount)
	var awardCount int64
	f.db.Model(&model.LoyaltyTransaction{}).Where("order_id = ?", order.ID).Count(&awardCount)
	assert.Equal(t, int64(1), awardCount)

	// Reconciling again changes nothing.
	require.NoError(t, f.svc.ReconcileOrder(order.ID))
	f.db.Model(&model.InventoryDelta{}).Where("order_id = ?", order.ID).Count(&deltaCount)
	assert.Equal(t, int64(1), deltaCount)
	f.db.Model(&model.LoyaltyTransaction{}).Where("order_id = ?", order.ID).Count(&awardCount)
	assert.Equal(t, int64(1), awardCount)
}

func TestSettlementService_ReconcileOrder_KeepsExistingDelta(t *testing.T) {
	f := setupSettlementServiceTest(t)
	order := f.createOrder(t, &f.customer.ID)

	// The sale delta landed but the loyalty award did not.
	require.NoError(t, f.db.Create(&model.InventoryDelta{
		InventoryRecordID: f.record.ID,
		Quantity:          -7,
		Reason:            model.DeltaReasonSale,
		OrderID:           &order.ID,
		OrderItemID:       &order.Items[0].ID,
	}).Error)

	require.NoError(t, f.svc.ReconcileOrder(order.ID))

	var deltaCount int64
	f.db.Model(&model.InventoryDelta{}).Where("order_id = ?", order.ID).Count(&deltaCount)
	assert.Equal(t, int64(1), deltaCount)

	var award model.LoyaltyTransaction
	require.NoError(t, f.db.Where("order_id = ?", order.ID).First(&award).Error)
	assert.Equal(t, 22, award.Points)
}
