package feed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mlee/checkline-backend/internal/authz"
	"github.com/mlee/checkline-backend/pkg/logger"
)

// Subscriber is one connected device. A device may hold several
// subscriptions at once (register UI plus a customer-facing display).
type Subscriber struct {
	Hub       *Hub
	Conn      *Conn
	DeviceKey string
	Scope     authz.Scope
	Send      chan []byte

	// Rate limiting for inbound frames
	MessageCount  int
	LastResetTime time.Time
	RateMu        sync.Mutex
}

// Hub fans committed change events out to every subscriber whose scope
// passes the shared visibility predicate. The predicate is authz.CanRead,
// the same function the read path uses; the hub never filters on anything
// else.
type Hub struct {
	subscribers map[*Subscriber]bool

	register   chan *Subscriber
	unregister chan *Subscriber
	events     chan Event

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		register:    make(chan *Subscriber, 256),
		unregister:  make(chan *Subscriber, 256),
		events:      make(chan Event, 1024),
	}
}

// Run processes registrations and event delivery until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case sub := <-h.register:
			h.mu.Lock()
			h.subscribers[sub] = true
			h.mu.Unlock()
			logger.Info("Feed subscriber registered", map[string]interface{}{
				"device_key": sub.DeviceKey,
				"store_id":   sub.Scope.StoreID,
				"location":   sub.Scope.LocationID,
			})

		case sub := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.Send)
			}
			h.mu.Unlock()
			logger.Info("Feed subscriber unregistered", map[string]interface{}{
				"device_key": sub.DeviceKey,
			})

		case event := <-h.events:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		logger.Error("Failed to marshal feed event", err, map[string]interface{}{
			"entity":    event.Entity,
			"entity_id": event.EntityID,
		})
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		if !authz.CanRead(sub.Scope, event.Meta) {
			continue
		}
		select {
		case sub.Send <- data:
		default:
			// Send buffer full; drop the subscriber rather than block the
			// event loop. The client reconnects and refetches.
			go h.Unregister(sub)
			logger.Warn("Subscriber send buffer full, disconnecting", map[string]interface{}{
				"device_key": sub.DeviceKey,
			})
		}
	}
}

// Publish enqueues a committed event for fan-out. Implements Publisher.
func (h *Hub) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case h.events <- event:
	default:
		// The feed is a change signal, not the source of truth; a dropped
		// event is recovered by the next refetch or the next event.
		logger.Warn("Feed event channel full, event dropped", map[string]interface{}{
			"entity":    event.Entity,
			"entity_id": event.EntityID,
		})
	}
}

// Register adds a subscriber.
func (h *Hub) Register(sub *Subscriber) {
	h.register <- sub
}

// Unregister removes a subscriber.
func (h *Hub) Unregister(sub *Subscriber) {
	h.unregister <- sub
}

// SubscriberCount reports connected subscribers, for health reporting.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
