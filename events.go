package pdfjobs

import (
	"context"
	"sync"
)

// Event is the terminal notification published once per async request.
type Event struct {
	RequestID string    `json:"requestId"`
	Operation Operation `json:"operation"`
	Result
}

// EventSink receives terminal events. Emit must be safe for concurrent use
// and must not block for long: it runs on the worker that finished the job.
type EventSink interface {
	Emit(ctx context.Context, evt Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, evt Event)

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, evt Event) {
	f(ctx, evt)
}

// MultiSink fans an event out to several sinks in order.
type MultiSink []EventSink

// Emit forwards evt to every sink.
func (m MultiSink) Emit(ctx context.Context, evt Event) {
	for _, s := range m {
		s.Emit(ctx, evt)
	}
}

// discardSink drops events.
type discardSink struct{}

func (discardSink) Emit(context.Context, Event) {}

// EventRecorder keeps every event in memory. Useful for CLIs and tests.
type EventRecorder struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
}

// NewEventRecorder creates an empty recorder.
func NewEventRecorder() *EventRecorder {
	return &EventRecorder{notify: make(chan struct{}, 1)}
}

// Emit stores evt.
func (r *EventRecorder) Emit(_ context.Context, evt Event) {
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Events returns a copy of the recorded events.
func (r *EventRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Wait blocks until at least n events are recorded or ctx is done.
func (r *EventRecorder) Wait(ctx context.Context, n int) ([]Event, error) {
	for {
		if evts := r.Events(); len(evts) >= n {
			return evts, nil
		}
		select {
		case <-r.notify:
		case <-ctx.Done():
			return r.Events(), ctx.Err()
		}
	}
}
