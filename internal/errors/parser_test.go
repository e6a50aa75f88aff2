package errors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestIsUniqueViolation(t *testing.T) {
	// Postgres wording.
	assert.True(t, IsUniqueViolation(errors.New(`ERROR: duplicate key value violates unique constraint "uidx_carts_active_customer" (SQLSTATE 23505)`)))
	// SQLite wording.
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: queue_entries.cart_id")))

	assert.False(t, IsUniqueViolation(nil))
	assert.False(t, IsUniqueViolation(errors.New("connection refused")))
	assert.False(t, IsUniqueViolation(gorm.ErrRecordNotFound))
}

func TestParseError_RecordNotFound(t *testing.T) {
	info := ParseError(gorm.ErrRecordNotFound, "cart")
	assert.Equal(t, ResourceNotFound, info.Code)
	assert.Equal(t, "Cart not found", info.Message)

	info = ParseError(gorm.ErrRecordNotFound, "something_else")
	assert.Equal(t, ResourceNotFound, info.Code)
	assert.Equal(t, "The requested record was not found", info.Message)
}

func TestParseError_DuplicateKeyByIndex(t *testing.T) {
	cases := []struct {
		err  string
		code string
	}{
		{`duplicate key value violates unique constraint "uidx_carts_active_customer"`, ResourceConflict},
		{`duplicate key value violates unique constraint "uidx_loyalty_earned_order"`, ResourceAlreadyExists},
		{`duplicate key value violates unique constraint "uidx_inventory_deltas_sale"`, ResourceAlreadyExists},
		{`duplicate key value violates unique constraint "uidx_orders_intent"`, ResourceAlreadyExists},
		{"UNIQUE constraint failed: queue_entries.cart_id", QueueCartEnqueued},
		{"duplicate key value violates unique constraint \"some_other_index\"", ResourceAlreadyExists},
	}
	for _, tc := range cases {
		info := ParseError(errors.New(tc.err), "")
		assert.Equal(t, tc.code, info.Code, tc.err)
	}
}

func TestParseError_InfrastructureErrors(t *testing.T) {
	info := ParseError(errors.New(`insert or update on table "cart_items" violates foreign key constraint`), "")
	assert.Equal(t, ValidationInvalidID, info.Code)

	info = ParseError(errors.New(`null value in column "store_id" violates not-null constraint`), "")
	assert.Equal(t, ValidationRequired, info.Code)

	info = ParseError(errors.New("dial tcp 10.0.0.1:5432: connection refused"), "")
	assert.Equal(t, InternalExternalAPI, info.Code)

	info = ParseError(errors.New("something unexpected"), "")
	assert.Equal(t, InternalServerError, info.Code)
}
