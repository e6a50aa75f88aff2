package service

import (
	"sync"
	"testing"
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/app/repository"
	"github.com/mlee/checkline-backend/internal/db"
	"github.com/mlee/checkline-backend/internal/feed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// capturePublisher records events so tests can assert on post-commit fan-out.
type capturePublisher struct {
	mu     sync.Mutex
	events []feed.Event
}

func (p *capturePublisher) Publish(event feed.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturePublisher) byEntity(entity string) []feed.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []feed.Event
	for _, e := range p.events {
		if e.Entity == entity {
			out = append(out, e)
		}
	}
	return out
}

type cartFixture struct {
	db        *gorm.DB
	svc       CartService
	publisher *capturePublisher
	store     model.Store
	locA      model.Location
	locB      model.Location
	customer  model.Customer
	product   model.Product
	tier      model.PriceTier
	record    model.InventoryRecord
}

func setupCartServiceTest(t *testing.T) *cartFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &cartFixture{db: testDB, publisher: &capturePublisher{}}

	f.store = model.Store{Name: "Test Store", Currency: "USD", TaxRate: 0.1}
	require.NoError(t, testDB.Create(&f.store).Error)

	f.locA = model.Location{StoreID: f.store.ID, Name: "Counter", Latitude: 37.77, Longitude: -122.41}
	require.NoError(t, testDB.Create(&f.locA).Error)
	f.locB = model.Location{StoreID: f.store.ID, Name: "Annex", Latitude: 37.80, Longitude: -122.40}
	require.NoError(t, testDB.Create(&f.locB).Error)

	f.customer = model.Customer{StoreID: f.store.ID, Name: "Test Customer"}
	require.NoError(t, testDB.Create(&f.customer).Error)

	f.product = model.Product{StoreID: f.store.ID, Name: "Test Product", Unit: "grams"}
	require.NoError(t, testDB.Create(&f.product).Error)

	f.tier = model.PriceTier{ProductID: f.product.ID, Label: "3.5g", UnitAmount: 3.5, Price: 10}
	require.NoError(t, testDB.Create(&f.tier).Error)

	f.record = model.InventoryRecord{StoreID: f.store.ID, LocationID: f.locA.ID, ProductID: f.product.ID}
	require.NoError(t, testDB.Create(&f.record).Error)
	require.NoError(t, testDB.Create(&model.InventoryDelta{
		InventoryRecordID: f.record.ID,
		Quantity:          100,
		Reason:            model.DeltaReasonReceived,
	}).Error)

	cartRepo := repository.NewCartRepository(testDB)
	f.svc = NewCartService(cartRepo, f.publisher, 4*time.Hour, testDB)

	return f
}

func (f *cartFixture) customerScope() CartScope {
	return CartScope{
		StoreID:    f.store.ID,
		LocationID: f.locA.ID,
		CustomerID: &f.customer.ID,
	}
}

func TestCartService_GetOrCreateCart_CreatesOnce(t *testing.T) {
	f := setupCartServiceTest(t)

	first, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusActive, first.Status)

	second, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	f.db.Model(&model.Cart{}).Where("status = ?", model.CartStatusActive).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCartService_GetOrCreateCart_ScopeMissing(t *testing.T) {
	f := setupCartServiceTest(t)

	_, err := f.svc.GetOrCreateCart(CartScope{StoreID: f.store.ID, LocationID: f.locA.ID}, false)
	assert.ErrorIs(t, err, ErrCartScopeMissing)
}

func TestCartService_GetOrCreateCart_ResolvesExistingRow(t *testing.T) {
	f := setupCartServiceTest(t)

	// A row created behind the service's back still resolves through the
	// conflict path instead of producing a second active cart.
	existing := model.Cart{
		StoreID:    f.store.ID,
		LocationID: f.locA.ID,
		CustomerID: &f.customer.ID,
		Status:     model.CartStatusActive,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
	require.NoError(t, f.db.Create(&existing).Error)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	assert.Equal(t, existing.ID, cart.ID)
}

func TestCartService_GetOrCreateCart_FreshStartClearsItems(t *testing.T) {
	f := setupCartServiceTest(t)

	first, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	_, err = f.svc.AddItem(first.ID, f.product.ID, f.tier.ID, 2)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&model.QueueEntry{LocationID: f.locA.ID, CartID: first.ID, Position: 1}).Error)

	// The same cart survives a fresh start; only its lines are gone.
	second, err := f.svc.GetOrCreateCart(f.customerScope(), true)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, model.CartStatusActive, second.Status)
	assert.Len(t, second.Items, 0)
	assert.InDelta(t, 0.0, second.Total, 0.001)

	var itemCount int64
	f.db.Model(&model.CartItem{}).Where("cart_id = ?", first.ID).Count(&itemCount)
	assert.Equal(t, int64(0), itemCount)

	// The queue position survives a fresh start.
	var queueCount int64
	f.db.Model(&model.QueueEntry{}).Where("cart_id = ?", first.ID).Count(&queueCount)
	assert.Equal(t, int64(1), queueCount)
}

func TestCartService_GetOrCreateCart_DeviceScope(t *testing.T) {
	f := setupCartServiceTest(t)

	scope := CartScope{StoreID: f.store.ID, LocationID: f.locA.ID, DeviceKey: "reg-1"}
	first, err := f.svc.GetOrCreateCart(scope, false)
	require.NoError(t, err)
	assert.Nil(t, first.CustomerID)

	second, err := f.svc.GetOrCreateCart(scope, false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// A different device at the same location gets its own cart.
	other, err := f.svc.GetOrCreateCart(CartScope{StoreID: f.store.ID, LocationID: f.locA.ID, DeviceKey: "reg-2"}, false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestCartService_AddItem_ComputesTotals(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)

	updated, err := f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 2)
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	item := updated.Items[0]
	assert.Equal(t, 2, item.Quantity)
	assert.InDelta(t, 7.0, item.TierQuantity, 0.001) // 2 * 3.5
	assert.InDelta(t, 20.0, item.LineTotal, 0.001)
	assert.Equal(t, f.record.ID, item.InventoryRecordID)

	assert.InDelta(t, 20.0, updated.Subtotal, 0.001)
	assert.InDelta(t, 2.0, updated.Tax, 0.001)
	assert.InDelta(t, 22.0, updated.Total, 0.001)
}

func TestCartService_AddItem_MergesSameTier(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)

	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 1)
	require.NoError(t, err)
	updated, err := f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 2)
	require.NoError(t, err)

	require.Len(t, updated.Items, 1)
	assert.Equal(t, 3, updated.Items[0].Quantity)
	assert.InDelta(t, 10.5, updated.Items[0].TierQuantity, 0.001)
}

func TestCartService_AddItem_OutOfStock(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)

	// 100 grams on hand; 29 tiers of 3.5g need 101.5.
	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 29)
	assert.ErrorIs(t, err, ErrOutOfStock)

	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 28)
	assert.NoError(t, err)
}

func TestCartService_AddItem_ReservationsCountAgainstAvailability(t *testing.T) {
	f := setupCartServiceTest(t)

	// A second customer's active cart reserves most of the stock.
	other := model.Customer{StoreID: f.store.ID, Name: "Other"}
	require.NoError(t, f.db.Create(&other).Error)
	otherCart, err := f.svc.GetOrCreateCart(CartScope{
		StoreID: f.store.ID, LocationID: f.locA.ID, CustomerID: &other.ID,
	}, false)
	require.NoError(t, err)
	_, err = f.svc.AddItem(otherCart.ID, f.product.ID, f.tier.ID, 28) // 98 of 100 grams
	require.NoError(t, err)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 1) // needs 3.5, only 2 left
	assert.ErrorIs(t, err, ErrOutOfStock)
}

func TestCartService_AddItem_TierMismatch(t *testing.T) {
	f := setupCartServiceTest(t)

	otherProduct := model.Product{StoreID: f.store.ID, Name: "Other Product", Unit: "count"}
	require.NoError(t, f.db.Create(&otherProduct).Error)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)

	_, err = f.svc.AddItem(cart.ID, otherProduct.ID, f.tier.ID, 1)
	assert.ErrorIs(t, err, ErrTierMismatch)
}

func TestCartService_UpdateItemQuantity(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	withItem, err := f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 2)
	require.NoError(t, err)
	itemID := withItem.Items[0].ID

	updated, err := f.svc.UpdateItemQuantity(cart.ID, itemID, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Items[0].Quantity)
	assert.InDelta(t, 50.0, updated.Subtotal, 0.001)

	// Zero removes the line.
	cleared, err := f.svc.UpdateItemQuantity(cart.ID, itemID, 0)
	require.NoError(t, err)
	assert.Len(t, cleared.Items, 0)
	assert.InDelta(t, 0.0, cleared.Total, 0.001)
}

func TestCartService_RemoveItem_NotFound(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)

	_, err = f.svc.RemoveItem(cart.ID, 9999)
	assert.ErrorIs(t, err, ErrCartItemNotFound)
}

func TestCartService_ClearCart(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 2)
	require.NoError(t, err)

	cleared, err := f.svc.ClearCart(cart.ID)
	require.NoError(t, err)
	assert.Len(t, cleared.Items, 0)
	assert.InDelta(t, 0.0, cleared.Subtotal, 0.001)
}

func TestCartService_AbandonCart_RemovesQueueEntryAndCompacts(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	require.NoError(t, f.db.Create(&model.QueueEntry{LocationID: f.locA.ID, CartID: cart.ID, Position: 1}).Error)

	behind := model.Cart{StoreID: f.store.ID, LocationID: f.locA.ID, DeviceKey: "reg-9", Status: model.CartStatusActive, ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, f.db.Create(&behind).Error)
	require.NoError(t, f.db.Create(&model.QueueEntry{LocationID: f.locA.ID, CartID: behind.ID, Position: 2}).Error)

	require.NoError(t, f.svc.AbandonCart(cart.ID))

	var abandoned model.Cart
	require.NoError(t, f.db.First(&abandoned, cart.ID).Error)
	assert.Equal(t, model.CartStatusAbandoned, abandoned.Status)

	var entries []model.QueueEntry
	require.NoError(t, f.db.Where("location_id = ?", f.locA.ID).Order("position").Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, behind.ID, entries[0].CartID)
	assert.Equal(t, 1, entries[0].Position)

	// Abandoning again is a no-op.
	assert.NoError(t, f.svc.AbandonCart(cart.ID))
}

func TestCartService_MutationsRefuseInactiveCart(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	require.NoError(t, f.svc.AbandonCart(cart.ID))

	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 1)
	assert.ErrorIs(t, err, ErrCartNotActive)
}

func TestCartService_PublishesAfterCommit(t *testing.T) {
	f := setupCartServiceTest(t)

	cart, err := f.svc.GetOrCreateCart(f.customerScope(), false)
	require.NoError(t, err)
	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 1)
	require.NoError(t, err)

	cartEvents := f.publisher.byEntity(feed.EntityCart)
	require.NotEmpty(t, cartEvents)
	assert.Equal(t, feed.OpInsert, cartEvents[0].Op)
	assert.Equal(t, f.store.ID, cartEvents[0].Meta.StoreID)
	assert.Equal(t, f.locA.ID, cartEvents[0].Meta.LocationID)

	itemEvents := f.publisher.byEntity(feed.EntityCartItem)
	require.Len(t, itemEvents, 1)
	assert.Equal(t, feed.OpInsert, itemEvents[0].Op)

	// A failed mutation publishes nothing.
	before := len(f.publisher.byEntity(feed.EntityCartItem))
	_, err = f.svc.AddItem(cart.ID, f.product.ID, f.tier.ID, 1000)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, before, len(f.publisher.byEntity(feed.EntityCartItem)))
}
