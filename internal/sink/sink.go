// Package sink writes events from the bus to external destinations.
package sink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nextlevelbuilder/auraxis/internal/bus"
	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// Sink is one event destination.
type Sink interface {
	Name() string
	Write(ctx context.Context, ev events.Event) error
	Close() error
}

// Attach subscribes s to b under its name.
func Attach(b *bus.EventBus, s Sink) {
	b.Subscribe(s.Name(), s.Write)
}

// Record is the envelope every sink serializes.
type Record struct {
	Event      events.Name     `json:"event"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// NewRecord wraps ev with its name and receive time.
func NewRecord(ev events.Event, now time.Time) (Record, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return Record{}, err
	}
	return Record{Event: ev.EventName(), ReceivedAt: now.UTC(), Data: data}, nil
}
