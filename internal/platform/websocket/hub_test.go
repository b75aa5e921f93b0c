package websocket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/medbook/medbook/internal/platform/events"
)

func newTestClient(buffer int) *Client {
	return &Client{ID: "test-client", Send: make(chan []byte, buffer)}
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.Send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("invalid event payload: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestHubBroadcastReachesAllClients(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	a := newTestClient(8)
	b := newTestClient(8)
	hub.Register(a)
	hub.Register(b)

	hub.Broadcast(Event{Kind: "appointment.created", Timestamp: time.Now()})

	for _, c := range []*Client{a, b} {
		evt := receive(t, c)
		if evt.Kind != "appointment.created" {
			t.Errorf("expected appointment.created, got %s", evt.Kind)
		}
	}
}

func TestHubUnregisteredClientMissesEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(8)
	hub.Register(c)
	hub.Unregister(c)

	hub.Broadcast(Event{Kind: "appointment.created"})

	if _, ok := <-c.Send; ok {
		t.Error("closed client should not receive events")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHubNarrowFiltersByKind(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(8)
	hub.Register(c)
	hub.Narrow(c, []string{"appointment.cancelled"})

	hub.Broadcast(Event{Kind: "appointment.created"})
	hub.Broadcast(Event{Kind: "appointment.cancelled"})

	evt := receive(t, c)
	if evt.Kind != "appointment.cancelled" {
		t.Fatalf("expected only the subscribed kind, got %s", evt.Kind)
	}
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected extra event: %s", data)
	default:
	}
}

func TestHubWidenRestoresFirehose(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(8)
	hub.Register(c)
	hub.Narrow(c, []string{"appointment.cancelled"})
	hub.Widen(c, []string{"appointment.cancelled"})

	hub.Broadcast(Event{Kind: "appointment.created"})

	evt := receive(t, c)
	if evt.Kind != "appointment.created" {
		t.Errorf("widened client should receive everything, got %s", evt.Kind)
	}
}

func TestHubFullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(1)
	hub.Register(c)

	hub.Broadcast(Event{Kind: "first"})
	done := make(chan struct{})
	go func() {
		hub.Broadcast(Event{Kind: "second"}) // Buffer full: must not block.
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}

	evt := receive(t, c)
	if evt.Kind != "first" {
		t.Errorf("expected buffered first event, got %s", evt.Kind)
	}
}

func TestNotifierForwardsBusEvents(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	c := newTestClient(8)
	hub.Register(c)

	bus := events.NewBus(zerolog.Nop())
	notifier := NewNotifier(hub)
	if _, err := bus.Subscribe(notifier.HandleEvent); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bus.Publish("appointment.deleted", map[string]string{"id": "abc"})

	evt := receive(t, c)
	if evt.Kind != "appointment.deleted" {
		t.Errorf("expected appointment.deleted, got %s", evt.Kind)
	}
	if evt.Timestamp.IsZero() {
		t.Error("expected a timestamp on forwarded events")
	}
	data, ok := evt.Data.(map[string]any)
	if !ok || data["id"] != "abc" {
		t.Errorf("expected payload to survive the round trip, got %v", evt.Data)
	}
}
