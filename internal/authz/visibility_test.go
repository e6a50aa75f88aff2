package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanRead_StoreWideScope(t *testing.T) {
	scope := Scope{StoreID: 1}

	assert.True(t, CanRead(scope, RowMeta{StoreID: 1, LocationID: 5}))
	assert.True(t, CanRead(scope, RowMeta{StoreID: 1, LocationID: 6}))
	assert.False(t, CanRead(scope, RowMeta{StoreID: 2, LocationID: 5}))
}

func TestCanRead_LocationPinnedScope(t *testing.T) {
	locationID := uint(5)
	scope := Scope{StoreID: 1, LocationID: &locationID}

	assert.True(t, CanRead(scope, RowMeta{StoreID: 1, LocationID: 5}))
	assert.False(t, CanRead(scope, RowMeta{StoreID: 1, LocationID: 6}))
	assert.False(t, CanRead(scope, RowMeta{StoreID: 2, LocationID: 5}))
}
