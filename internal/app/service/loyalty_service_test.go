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

type loyaltyFixture struct {
	db       *gorm.DB
	svc      LoyaltyService
	store    model.Store
	customer model.Customer
}

func setupLoyaltyServiceTest(t *testing.T) *loyaltyFixture {
	testDB, err := db.SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		db.CleanupTestDB(testDB)
	})

	f := &loyaltyFixture{db: testDB}

	f.store = model.Store{Name: "Test Store", Currency: "USD"}
	require.NoError(t, testDB.Create(&f.store).Error)
	f.customer = model.Customer{StoreID: f.store.ID, Name: "Test Customer"}
	require.NoError(t, testDB.Create(&f.customer).Error)

	loyaltyRepo := repository.NewLoyaltyRepository(testDB)
	storeRepo := repository.NewStoreRepository(testDB)
	f.svc = NewLoyaltyService(loyaltyRepo, storeRepo, testDB)

	return f
}

func (f *loyaltyFixture) earn(t *testing.T, points int) {
	t.Helper()
	require.NoError(t, f.db.Create(&model.LoyaltyTransaction{
		StoreID:    f.store.ID,
		CustomerID: f.customer.ID,
		Type:       model.LoyaltyEarned,
		Points:     points,
	}).Error)
}

func TestLoyaltyService_GetBalance_SumsTransactions(t *testing.T) {
	f := setupLoyaltyServiceTest(t)

	balance, err := f.svc.GetBalance(f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, balance)

	f.earn(t, 30)
	f.earn(t, 12)
	require.NoError(t, f.db.Create(&model.LoyaltyTransaction{
		StoreID:    f.store.ID,
		CustomerID: f.customer.ID,
		Type:       model.LoyaltyRedeemed,
		Points:     -10,
	}).Error)

	balance, err = f.svc.GetBalance(f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 32, balance)
}

func TestLoyaltyService_GetBalance_CustomerNotFound(t *testing.T) {
	f := setupLoyaltyServiceTest(t)

	_, err := f.svc.GetBalance(99999)
	assert.ErrorIs(t, err, ErrCustomerNotFound)
}

func TestLoyaltyService_Redeem_Success(t *testing.T) {
	f := setupLoyaltyServiceTest(t)
	f.earn(t, 50)

	redemption, err := f.svc.Redeem(f.customer.ID, f.store.ID, 20)
	require.NoError(t, err)
	assert.Equal(t, model.LoyaltyRedeemed, redemption.Type)
	assert.Equal(t, -20, redemption.Points)

	balance, err := f.svc.GetBalance(f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, balance)
}

func TestLoyaltyService_Redeem_InsufficientBalance(t *testing.T) {
	f := setupLoyaltyServiceTest(t)
	f.earn(t, 10)

	_, err := f.svc.Redeem(f.customer.ID, f.store.ID, 20)
	assert.ErrorIs(t, err, ErrInsufficientPoints)

	// The refused redemption wrote nothing.
	balance, err := f.svc.GetBalance(f.customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, balance)
}

func TestLoyaltyService_Redeem_InvalidQuantity(t *testing.T) {
	f := setupLoyaltyServiceTest(t)

	_, err := f.svc.Redeem(f.customer.ID, f.store.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidRedeemQuantity)
	_, err = f.svc.Redeem(f.customer.ID, f.store.ID, -5)
	assert.ErrorIs(t, err, ErrInvalidRedeemQuantity)
}

func TestLoyaltyService_GetHistory(t *testing.T) {
	f := setupLoyaltyServiceTest(t)
	f.earn(t, 15)
	_, err := f.svc.Redeem(f.customer.ID, f.store.ID, 5)
	require.NoError(t, err)

	history, err := f.svc.GetHistory(f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
