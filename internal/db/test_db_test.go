package db

import (
	"testing"

	"github.com/mlee/checkline-backend/internal/app/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTestDB_SchemaVisibleAcrossConnections(t *testing.T) {
	testDB, err := SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		CleanupTestDB(testDB)
	})

	require.NoError(t, testDB.Create(&model.Store{Name: "Test Store", Currency: "USD"}).Error)

	// Holding an open transaction pins one pooled connection; the query on
	// the base handle runs on a second connection and must still see the
	// migrated tables.
	tx := testDB.Begin()
	require.NoError(t, tx.Error)
	defer tx.Rollback()

	var count int64
	require.NoError(t, testDB.Model(&model.Store{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestSetupTestDB_DatabasesAreIsolated(t *testing.T) {
	first, err := SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		CleanupTestDB(first)
	})
	second, err := SetupTestDB()
	require.NoError(t, err)
	t.Cleanup(func() {
		CleanupTestDB(second)
	})

	require.NoError(t, first.Create(&model.Store{Name: "Test Store", Currency: "USD"}).Error)

	var count int64
	require.NoError(t, second.Model(&model.Store{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}
