// Package bus fans the single event stream of a realtime client out to any
// number of handlers.
package bus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// Handler consumes one event. It runs on the bus goroutine, so it must not
// block for long; an error is logged and does not stop the bus.
type Handler func(ctx context.Context, ev events.Event) error

// EventBus broadcasts events to registered handlers in registration order.
type EventBus struct {
	mu          sync.RWMutex
	order       []string
	subscribers map[string]Handler

	dedupe *DedupeCache
}

// Option configures an EventBus.
type Option func(*EventBus)

// WithDedupe drops events already seen within the cache window.
func WithDedupe(cache *DedupeCache) Option {
	return func(b *EventBus) { b.dedupe = cache }
}

func New(opts ...Option) *EventBus {
	b := &EventBus{subscribers: make(map[string]Handler)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers handler under id, replacing any handler with that id.
func (b *EventBus) Subscribe(id string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subscribers[id]; !exists {
		b.order = append(b.order, id)
	}
	b.subscribers[id] = handler
}

// Unsubscribe removes a handler.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.subscribers[id]; !exists {
		return
	}
	delete(b.subscribers, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// Publish hands ev to every handler. It reports false when ev was dropped
// as a duplicate.
func (b *EventBus) Publish(ctx context.Context, ev events.Event) bool {
	if b.dedupe != nil && b.dedupe.IsDuplicate(ev) {
		return false
	}

	b.mu.RLock()
	ids := append([]string(nil), b.order...)
	handlers := make([]Handler, len(ids))
	for i, id := range ids {
		handlers[i] = b.subscribers[id]
	}
	b.mu.RUnlock()

	for i, h := range handlers {
		if err := h(ctx, ev); err != nil {
			slog.Warn("bus: handler failed", "handler", ids[i], "event", ev.EventName(), "error", err)
		}
	}
	return true
}

// Run publishes everything received on src until src is closed or ctx ends.
func (b *EventBus) Run(ctx context.Context, src <-chan events.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-src:
			if !ok {
				return nil
			}
			b.Publish(ctx, ev)
		}
	}
}
