package feed

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/mlee/checkline-backend/internal/authz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSubscriber(hub *Hub, deviceKey string, scope authz.Scope) *Subscriber {
	return &Subscriber{
		Hub:           hub,
		DeviceKey:     deviceKey,
		Scope:         scope,
		Send:          make(chan []byte, 16),
		LastResetTime: time.Now(),
	}
}

func recvEvent(t *testing.T, sub *Subscriber) *Event {
	t.Helper()
	select {
	case data := <-sub.Send:
		var event Event
		require.NoError(t, json.Unmarshal(data, &event))
		return &event
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func assertNoEvent(t *testing.T, sub *Subscriber) {
	t.Helper()
	select {
	case data := <-sub.Send:
		t.Fatalf("unexpected event delivered: %s", data)
	case <-time.After(100 * time.Millisecond):
	}
}

func waitForSubscribers(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d", want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversByVisibility(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	locationA := uint(1)
	locationB := uint(2)
	atA := newTestSubscriber(hub, "reg-a", authz.Scope{StoreID: 1, LocationID: &locationA})
	atB := newTestSubscriber(hub, "reg-b", authz.Scope{StoreID: 1, LocationID: &locationB})
	manager := newTestSubscriber(hub, "tablet-m", authz.Scope{StoreID: 1})
	otherStore := newTestSubscriber(hub, "reg-x", authz.Scope{StoreID: 2})

	hub.Register(atA)
	hub.Register(atB)
	hub.Register(manager)
	hub.Register(otherStore)
	waitForSubscribers(t, hub, 4)

	hub.Publish(Event{
		Entity:   EntityCart,
		Op:       OpUpdate,
		EntityID: 42,
		Meta:     authz.RowMeta{StoreID: 1, LocationID: locationA},
	})

	got := recvEvent(t, atA)
	assert.Equal(t, EntityCart, got.Entity)
	assert.Equal(t, uint(42), got.EntityID)

	managerGot := recvEvent(t, manager)
	assert.Equal(t, uint(42), managerGot.EntityID)

	assertNoEvent(t, atB)
	assertNoEvent(t, otherStore)
}

func TestHub_PublishFillsTimestamp(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	sub := newTestSubscriber(hub, "reg-a", authz.Scope{StoreID: 1})
	hub.Register(sub)
	waitForSubscribers(t, hub, 1)

	hub.Publish(Event{
		Entity: EntityQueueEntry,
		Op:     OpInsert,
		Meta:   authz.RowMeta{StoreID: 1, LocationID: 1},
	})

	got := recvEvent(t, sub)
	assert.False(t, got.Timestamp.IsZero())
}

func TestHub_UnregisterClosesSend(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	sub := newTestSubscriber(hub, "reg-a", authz.Scope{StoreID: 1})
	hub.Register(sub)
	waitForSubscribers(t, hub, 1)

	hub.Unregister(sub)
	waitForSubscribers(t, hub, 0)

	select {
	case _, open := <-sub.Send:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("send channel was not closed")
	}
}
