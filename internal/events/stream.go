package events

import (
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// DefaultStreamCapacity is the buffer size used when a non-positive capacity is given.
const DefaultStreamCapacity = 64

const dropLogEvery = 100

// Stream is a bounded event channel with overwrite-oldest semantics.
//
// Producers never block: when the buffer is full the oldest buffered event is
// discarded to make room. Consumers range over C() until Close; events accepted
// before Close stay readable after it.
type Stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool

	logger  *logrus.Logger
	onDrop  func(Event)
	metrics Metrics
}

// Metrics is a lock-free snapshot of stream counters
type Metrics struct {
	Written int64
	Dropped int64
	// Rejected counts events sent after Close.
	Rejected int64
}

// StreamOption configures a Stream
type StreamOption func(*Stream)

// WithDropHandler registers a hook called, under the stream lock, for every discarded event.
func WithDropHandler(fn func(Event)) StreamOption {
	return func(s *Stream) { s.onDrop = fn }
}

// NewStream creates a stream with the given capacity.
func NewStream(capacity int, logger *logrus.Logger, opts ...StreamOption) *Stream {
	if capacity <= 0 {
		capacity = DefaultStreamCapacity
	}
	if logger == nil {
		logger = logrus.New()
	}
	s := &Stream{
		ch:     make(chan Event, capacity),
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// C returns the receive side. It is closed by Close.
func (s *Stream) C() <-chan Event {
	return s.ch
}

// Send enqueues e, discarding the oldest buffered event if the buffer is full.
// It returns false only when the stream is closed.
func (s *Stream) Send(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		atomic.AddInt64(&s.metrics.Rejected, 1)
		s.logger.WithField("kind", e.Kind()).Debug("Event sent after stream close, ignored")
		return false
	}

	select {
	case s.ch <- e:
	default:
		// Senders are serialized by mu, so after taking one slot the send below cannot block.
		select {
		case old := <-s.ch:
			s.dropped(old)
		default:
		}
		s.ch <- e
	}
	atomic.AddInt64(&s.metrics.Written, 1)
	return true
}

func (s *Stream) dropped(e Event) {
	count := atomic.AddInt64(&s.metrics.Dropped, 1)
	if s.onDrop != nil {
		s.onDrop(e)
	}
	if count == 1 || count%dropLogEvery == 0 {
		s.logger.WithFields(logrus.Fields{
			"kind":    e.Kind(),
			"dropped": count,
		}).Warn("Event stream full, dropped oldest event")
	}
}

// Close stops accepting events and closes the channel. It is safe to call more than once.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Len returns the number of buffered events
func (s *Stream) Len() int {
	return len(s.ch)
}

// Cap returns the buffer capacity
func (s *Stream) Cap() int {
	return cap(s.ch)
}

// GetMetrics returns a snapshot of the stream counters.
func (s *Stream) GetMetrics() Metrics {
	return Metrics{
		Written:  atomic.LoadInt64(&s.metrics.Written),
		Dropped:  atomic.LoadInt64(&s.metrics.Dropped),
		Rejected: atomic.LoadInt64(&s.metrics.Rejected),
	}
}
