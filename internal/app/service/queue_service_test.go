package service

import (
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

type queueFixture struct {
	db        *gorm.DB
	svc       QueueService
	cartSvc   CartService
	publisher *capturePublisher
	store     model.Store
	location  model.Location
	customers []model.Customer
}

func setupQueueServiceTest(t *testing.T) *queueFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &queueFixture{db: testDB, publisher: &capturePublisher{}}

	f.store = model.Store{Name: "Test Store", Currency: "USD", TaxRate: 0.1}
	require.NoError(t, testDB.Create(&f.store).Error)
	f.location = model.Location{StoreID: f.store.ID, Name: "Counter"}
	require.NoError(t, testDB.Create(&f.location).Error)

	for _, name := range []string{"First", "Second", "Third"} {
		customer := model.Customer{StoreID: f.store.ID, Name: name}
		require.NoError(t, testDB.Create(&customer).Error)
		f.customers = append(f.customers, customer)
	}

	cartRepo := repository.NewCartRepository(testDB)
	queueRepo := repository.NewQueueRepository(testDB)

	f.cartSvc = NewCartService(cartRepo, f.publisher, 4*time.Hour, testDB)
	f.svc = NewQueueService(queueRepo, f.cartSvc, f.publisher, testDB)

	return f
}

func (f *queueFixture) scopeFor(i int) CartScope {
	return CartScope{
		StoreID:    f.store.ID,
		LocationID: f.location.ID,
		CustomerID: &f.customers[i].ID,
	}
}

func TestQueueService_Enqueue_AssignsDensePositions(t *testing.T) {
	f := setupQueueServiceTest(t)

	for i := 0; i < 3; i++ {
		entry, err := f.svc.Enqueue(f.scopeFor(i))
		require.NoError(t, err)
		assert.Equal(t, i+1, entry.Position)
	}

	entries, err := f.svc.ListQueue(f.location.ID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	for i, entry := range entries {
		assert.Equal(t, i+1, entry.Position)
	}
}

func TestQueueService_Enqueue_Idempotent(t *testing.T) {
	f := setupQueueServiceTest(t)

	first, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)

	again, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.Position, again.Position)

	var count int64
	f.db.Model(&model.QueueEntry{}).Where("location_id = ?", f.location.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestQueueService_Enqueue_CreatesCartWhenMissing(t *testing.T) {
	f := setupQueueServiceTest(t)

	entry, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)

	cart, err := f.cartSvc.GetCart(entry.CartID)
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusActive, cart.Status)
	assert.Equal(t, f.customers[0].ID, *cart.CustomerID)
}

func TestQueueService_Dequeue_ClosesGap(t *testing.T) {
	f := setupQueueServiceTest(t)

	var entries []*model.QueueEntry
	for i := 0; i < 3; i++ {
		entry, err := f.svc.Enqueue(f.scopeFor(i))
		require.NoError(t, err)
		entries = append(entries, entry)
	}

	// Remove the middle entry; the one behind it moves up.
	require.NoError(t, f.svc.Dequeue(entries[1].CartID))

	remaining, err := f.svc.ListQueue(f.location.ID)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, entries[0].CartID, remaining[0].CartID)
	assert.Equal(t, 1, remaining[0].Position)
	assert.Equal(t, entries[2].CartID, remaining[1].CartID)
	assert.Equal(t, 2, remaining[1].Position)

	// The dequeued cart stays active; only its queue entry is gone.
	cart, err := f.cartSvc.GetCart(entries[1].CartID)
	require.NoError(t, err)
	assert.Equal(t, model.CartStatusActive, cart.Status)
}

func TestQueueService_Dequeue_NotEnqueued(t *testing.T) {
	f := setupQueueServiceTest(t)

	cart, err := f.cartSvc.GetOrCreateCart(f.scopeFor(0), false)
	require.NoError(t, err)

	err = f.svc.Dequeue(cart.ID)
	assert.ErrorIs(t, err, ErrQueueEntryNotFound)
}

func TestQueueService_GetEntryByCart(t *testing.T) {
	f := setupQueueServiceTest(t)

	entry, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)

	found, err := f.svc.GetEntryByCart(entry.CartID)
	require.NoError(t, err)
	assert.Equal(t, entry.ID, found.ID)

	_, err = f.svc.GetEntryByCart(99999)
	assert.ErrorIs(t, err, ErrQueueEntryNotFound)
}

func TestQueueService_ReEnqueueAfterDequeueJoinsTail(t *testing.T) {
	f := setupQueueServiceTest(t)

	first, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)
	_, err = f.svc.Enqueue(f.scopeFor(1))
	require.NoError(t, err)

	require.NoError(t, f.svc.Dequeue(first.CartID))

	back, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)
	assert.Equal(t, 2, back.Position)
}

func TestQueueService_PublishesQueueEvents(t *testing.T) {
	f := setupQueueServiceTest(t)

	entry, err := f.svc.Enqueue(f.scopeFor(0))
	require.NoError(t, err)
	require.NoError(t, f.svc.Dequeue(entry.CartID))

	events := f.publisher.byEntity(feed.EntityQueueEntry)
	require.Len(t, events, 2)
	assert.Equal(t, feed.OpInsert, events[0].Op)
	assert.Equal(t, feed.OpDelete, events[1].Op)
	assert.Equal(t, f.location.ID, events[0].Meta.LocationID)
}
