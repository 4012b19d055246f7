package events

import (
	"context"
	"sync"

	"github.com/stemsi/examcore/internal/model"
)

// Recorder keeps published events in memory. Tests use it to assert what
// monitors would have seen.
type Recorder struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

// Publish stores ev.
func (r *Recorder) Publish(_ context.Context, ev model.MonitorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []model.MonitorEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.MonitorEvent(nil), r.events...)
}

// Count returns how many events of typ were published.
func (r *Recorder) Count(typ model.MonitorEventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}
