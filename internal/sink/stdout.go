package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/nextlevelbuilder/auraxis/pkg/events"
)

// JSONLines writes one Record per line.
type JSONLines struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{enc: json.NewEncoder(w), now: time.Now}
}

func (j *JSONLines) Name() string { return "stdout" }

func (j *JSONLines) Write(_ context.Context, ev events.Event) error {
	rec, err := NewRecord(ev, j.now())
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.enc.Encode(rec)
}

func (j *JSONLines) Close() error { return nil }
