package memory

import (
	"context"
	"sync"

	"github.com/aretw0/flux/pkg/domain"
)

// Recorder is an EventSink that keeps every event in memory.
// Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []domain.Event
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Emit records the event.
func (r *Recorder) Emit(ctx context.Context, ev domain.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events, optionally filtered by type.
func (r *Recorder) Events(types ...domain.EventType) []domain.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(types) == 0 {
		return append([]domain.Event(nil), r.events...)
	}
	want := make(map[domain.EventType]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	var out []domain.Event
	for _, ev := range r.events {
		if want[ev.Type] {
			out = append(out, ev)
		}
	}
	return out
}

// Reset drops the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
