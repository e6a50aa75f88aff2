package feed

import (
	"time"

	"github.com/mlee/checkline-backend/internal/authz"
)

type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Entity names on the wire.
const (
	EntityCart       = "cart"
	EntityCartItem   = "cart_item"
	EntityQueueEntry = "queue_entry"
	EntityOrder      = "order"
	EntityLoyalty    = "loyalty_transaction"
)

// Event is one committed row change. Row carries the full row image, but
// without server-computed joins; subscribers treat the event as a change
// signal and refetch current state rather than applying it as a delta.
// Delivery is at-least-once; clients de-duplicate by (entity id, timestamp).
type Event struct {
	Entity    string        `json:"entity"`
	Op        Operation     `json:"op"`
	EntityID  uint          `json:"entity_id"`
	Meta      authz.RowMeta `json:"meta"`
	Row       interface{}   `json:"row,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// Publisher delivers committed change events to subscribers. Services call
// Publish after their transaction commits, never before.
type Publisher interface {
	Publish(event Event)
}
