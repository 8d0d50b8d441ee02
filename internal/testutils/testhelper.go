package testutils

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/events"
)

// DefaultEventTimeout bounds how long helpers wait for an event
const DefaultEventTimeout = 2 * time.Second

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper with a debug-level logger.
func NewTestHelper(t *testing.T) *TestHelper {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
	}
}

// EventRecorder reads a monitor event channel and keeps everything it consumed.
type EventRecorder struct {
	t    testing.TB
	ch   <-chan events.Event
	seen []events.Event
}

// NewEventRecorder wraps an event channel
func NewEventRecorder(t testing.TB, ch <-chan events.Event) *EventRecorder {
	return &EventRecorder{t: t, ch: ch}
}

// Next returns the next event, or false on timeout or closed channel.
func (r *EventRecorder) Next(timeout time.Duration) (events.Event, bool) {
	select {
	case e, ok := <-r.ch:
		if !ok {
			return nil, false
		}
		r.seen = append(r.seen, e)
		return e, true
	case <-time.After(timeout):
		return nil, false
	}
}

// Drain consumes events until none arrives for quiet, and returns them.
func (r *EventRecorder) Drain(quiet time.Duration) []events.Event {
	var out []events.Event
	for {
		e, ok := r.Next(quiet)
		if !ok {
			return out
		}
		out = append(out, e)
	}
}

// Seen returns every event consumed so far
func (r *EventRecorder) Seen() []events.Event {
	return append([]events.Event(nil), r.seen...)
}

// WaitFor consumes events until one of type T arrives and returns it. The test fails on timeout.
func WaitFor[T events.Event](r *EventRecorder, timeout time.Duration) T {
	r.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		e, ok := r.Next(remaining)
		if !ok {
			break
		}
		if v, ok := e.(T); ok {
			return v
		}
	}
	var zero T
	r.t.Fatalf("timed out waiting for %T; seen: %v", zero, kinds(r.seen))
	return zero
}

// Filter returns the events of type T in order
func Filter[T events.Event](evs []events.Event) []T {
	var out []T
	for _, e := range evs {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func kinds(evs []events.Event) []string {
	out := make([]string, 0, len(evs))
	for _, e := range evs {
		out = append(out, e.Kind())
	}
	return out
}
