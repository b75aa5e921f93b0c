// Package events provides a minimal synchronous publish/subscribe bus.
// Components that mutate state own a Bus and publish domain events on it;
// subscribers receive events in registration order. Delivery is
// fire-and-forget: events are not persisted and there is no replay.
package events

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives a published event. The payload type depends on the kind.
type Handler func(kind string, payload any)

// ErrInvalidSubscriber is returned by Subscribe when the handler is nil.
var ErrInvalidSubscriber = errors.New("events: subscriber must be a non-nil handler")

// Subscription identifies one registered handler. Go function values have no
// usable identity (method values of different receivers share a code
// pointer), so removal goes through the token handed out at registration.
type Subscription struct {
	id uint64
}

type subscriber struct {
	id uint64
	h  Handler
}

// Bus delivers events synchronously to its subscribers. Each publishing
// component owns its own Bus; there is no ambient registry.
type Bus struct {
	mu     sync.Mutex
	nextID uint64
	subs   []subscriber
	log    zerolog.Logger
}

// NewBus creates an empty Bus that logs handler failures to logger.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{log: logger}
}

// Subscribe registers a handler and returns the token that removes it.
// Handlers are invoked in registration order.
func (b *Bus) Subscribe(h Handler) (Subscription, error) {
	if h == nil {
		return Subscription{}, ErrInvalidSubscriber
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	b.subs = append(b.subs, subscriber{id: b.nextID, h: h})
	return Subscription{id: b.nextID}, nil
}

// Unsubscribe removes the handler registered under s. A zero or already
// removed token is a no-op.
func (b *Bus) Unsubscribe(s Subscription) {
	if s.id == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == s.id {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every subscriber with the event, in registration order.
// A panicking handler is logged and skipped; it never prevents delivery to
// the remaining subscribers and never propagates back to the publisher.
// Notification delivery is a side channel, so its failure must not fail the
// mutation that triggered the event.
func (b *Bus) Publish(kind string, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.subs))
	for i, sub := range b.subs {
		handlers[i] = sub.h
	}
	b.mu.Unlock()

	for _, h := range handlers {
		b.invoke(h, kind, payload)
	}
}

func (b *Bus) invoke(h Handler, kind string, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error().
				Str("event", kind).
				Interface("panic", r).
				Msg("event subscriber failed")
		}
	}()
	h(kind, payload)
}

// Len returns the number of registered subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
