package monitor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/metrics"
)

const (
	DefaultScanTimeout     = 10 * time.Second
	DefaultDisconnectGrace = 200 * time.Millisecond
)

// Interpreter turns values of characteristics the monitor does not know into events.
type Interpreter interface {
	// InterpretValue is called for reads and notifications of characteristics other than
	// the six Device Information ones. Returning nil produces an Unknown event.
	InterpretValue(id uuid.UUID, value []byte) events.Event

	// InterpretWrite is called when a characteristic write completes (err == nil) or
	// fails. Returning nil emits nothing beyond the generic failure event.
	InterpretWrite(id uuid.UUID, err error) events.Event
}

// Options configures a Monitor. Zero values select the defaults.
type Options struct {
	ScanTimeout     time.Duration
	DisconnectGrace time.Duration
	EventBuffer     int
	Interpreter     Interpreter
	Logger          *logrus.Logger
}

// Monitor drives one peripheral through scan, connect, service discovery and
// characteristic access, reporting everything on a single event stream.
//
// Work is split into four sections (scan, connection, services, characteristic),
// each served by its own serial executor. All public methods return immediately.
type Monitor struct {
	adapter     device.Adapter
	interpreter Interpreter
	logger      *logrus.Logger

	scanTimeout     time.Duration
	disconnectGrace time.Duration

	stream     *events.Stream
	aggregator *DeviceInfoAggregator

	scanSection    *executor
	connSection    *executor
	serviceSection *executor
	charSection    *executor

	// peripheral is written in the scan section, gatt in the connection section.
	handleMu   sync.RWMutex
	peripheral device.Peripheral
	gatt       device.Gatt

	// scan section state
	session uint64
	scan    *scanSession

	// connection section state
	generation uint64
	lastState  device.ConnectionState

	closeOnce sync.Once
}

// New creates a monitor over adapter. Call Close to release its goroutines.
func New(adapter device.Adapter, opts Options) *Monitor {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	interpreter := opts.Interpreter
	if interpreter == nil {
		interpreter = nopInterpreter{}
	}

	m := &Monitor{
		adapter:         adapter,
		interpreter:     interpreter,
		logger:          logger,
		scanTimeout:     orDefault(opts.ScanTimeout, DefaultScanTimeout),
		disconnectGrace: orDefault(opts.DisconnectGrace, DefaultDisconnectGrace),
		aggregator:      NewDeviceInfoAggregator(),
		lastState:       device.StateDisconnected,
	}
	m.stream = events.NewStream(opts.EventBuffer, logger, events.WithDropHandler(func(e events.Event) {
		metrics.IncEventDropped(e.Kind())
	}))

	m.scanSection = newExecutor("scan", logger)
	m.connSection = newExecutor("connection", logger)
	m.serviceSection = newExecutor("services", logger)
	m.charSection = newExecutor("characteristic", logger)

	return m
}

// Events returns the monitor's event stream. It is closed by Close.
func (m *Monitor) Events() <-chan events.Event {
	return m.stream.C()
}

// StreamMetrics returns the event stream counters.
func (m *Monitor) StreamMetrics() events.Metrics {
	return m.stream.GetMetrics()
}

// Close stops monitoring, tears down any connection, waits for the sections to
// drain and closes the event stream. It is safe to call more than once.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.logger.Info("Closing monitor")
		m.StopMonitoring()

		m.scanSection.Close()
		m.connSection.Close()
		m.serviceSection.Close()
		m.charSection.Close()

		m.stream.Close()
	})
	return nil
}

// emit is the single gate every producer path uses to publish an event.
func (m *Monitor) emit(e events.Event) {
	if !m.stream.Send(e) {
		return
	}
	metrics.IncEventEmitted(e.Kind())
	m.logger.WithField("kind", e.Kind()).Debug(events.Describe(e))
}

func (m *Monitor) currentGatt() device.Gatt {
	m.handleMu.RLock()
	defer m.handleMu.RUnlock()
	return m.gatt
}

func (m *Monitor) setGatt(g device.Gatt) {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()
	m.gatt = g
}

func (m *Monitor) discoveredPeripheral() device.Peripheral {
	m.handleMu.RLock()
	defer m.handleMu.RUnlock()
	return m.peripheral
}

func (m *Monitor) setPeripheral(p device.Peripheral) {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()
	m.peripheral = p
}

// submit queues task on a section, logging when the monitor is already closed.
func (m *Monitor) submit(section *executor, op string, task func()) {
	if !section.Submit(task) {
		m.logger.WithFields(logrus.Fields{
			"section":   section.name,
			"operation": op,
		}).Debug("Monitor closed, operation ignored")
	}
}

type nopInterpreter struct{}

func (nopInterpreter) InterpretValue(uuid.UUID, []byte) events.Event { return nil }
func (nopInterpreter) InterpretWrite(uuid.UUID, error) events.Event  { return nil }

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
