// Package events carries structured progress notifications out of the
// fetcher. The core never logs; callers plug in sinks.
package events

import (
	"sync"
	"time"

	"github.com/glorpus-work/bagfetch/pkg/errors"
)

// Phase is the step an event reports.
type Phase string

// Event phases.
const (
	PhaseQueued     Phase = "queued"
	PhaseRequesting Phase = "requesting"
	PhaseStreaming  Phase = "streaming"
	PhaseVerifying  Phase = "verifying"
	PhaseRetrying   Phase = "retrying"
	PhaseDone       Phase = "done"
	PhaseSkipped    Phase = "skipped"
	PhaseFailed     Phase = "failed"
)

// Terminal reports whether p ends an entry.
func (p Phase) Terminal() bool {
	return p == PhaseDone || p == PhaseSkipped || p == PhaseFailed
}

// Event is one notification about one manifest entry.
type Event struct {
	EntryID string
	URL     string
	Phase   Phase
	Attempt int
	Bytes   int64
	// Total is the expected size, or -1.
	Total   int64
	Elapsed time.Duration
	// Delay is the wait before the next attempt for PhaseRetrying.
	Delay time.Duration
	// Kind and Err describe the failure for PhaseRetrying and PhaseFailed.
	Kind errors.Kind
	Err  error
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Emit calls f.
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

type multi []Sink

func (m multi) Emit(e Event) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans events out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit stores e.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// For returns the recorded events of one entry.
func (r *Recorder) For(entryID string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.EntryID == entryID {
			out = append(out, e)
		}
	}
	return out
}

// Phases returns the phases recorded for one entry, in order.
func (r *Recorder) Phases(entryID string) []Phase {
	var out []Phase
	for _, e := range r.For(entryID) {
		out = append(out, e.Phase)
	}
	return out
}
