package repository

import (
	"testing"
	"time"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/mlee/checkline-backend/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartRepository_FindExpired_SkipsCartsMidCheckout(t *testing.T) {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})
	repo := NewCartRepository(testDB)

	store := model.Store{Name: "Test Store", Currency: "USD"}
	require.NoError(t, testDB.Create(&store).Error)
	location := model.Location{StoreID: store.ID, Name: "Counter"}
	require.NoError(t, testDB.Create(&location).Error)

	past := time.Now().Add(-time.Hour)
	makeCart := func(deviceKey string) model.Cart {
		cart := model.Cart{
			StoreID:    store.ID,
			LocationID: location.ID,
			DeviceKey:  deviceKey,
			Status:     model.CartStatusActive,
			ExpiresAt:  past,
		}
		require.NoError(t, testDB.Create(&cart).Error)
		return cart
	}

	idle := makeCart("reg-1")
	inCheckout := makeCart("reg-2")
	declined := makeCart("reg-3")

	require.NoError(t, testDB.Create(&model.PaymentIntent{
		ID:         "intent-processing",
		StoreID:    store.ID,
		LocationID: location.ID,
		CartID:     inCheckout.ID,
		Amount:     10,
		Method:     model.PaymentMethodCard,
		State:      model.IntentStateProcessing,
	}).Error)
	require.NoError(t, testDB.Create(&model.PaymentIntent{
		ID:         "intent-failed",
		StoreID:    store.ID,
		LocationID: location.ID,
		CartID:     declined.ID,
		Amount:     10,
		Method:     model.PaymentMethodCard,
		State:      model.IntentStateFailed,
	}).Error)

	expired, err := repo.FindExpired(time.Now(), 10)
	require.NoError(t, err)

	var ids []uint
	for _, cart := range expired {
		ids = append(ids, cart.ID)
	}
	assert.Contains(t, ids, idle.ID)
	assert.Contains(t, ids, declined.ID)
	assert.NotContains(t, ids, inCheckout.ID)
}
