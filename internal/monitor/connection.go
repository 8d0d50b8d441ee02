package monitor

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/metrics"
)

const serviceDiscoveryFailedMessage = "service discovery failed"

// ConnectToPeripheral connects to the peripheral found by the last scan. Without
// one, ConnectFailed is emitted.
func (m *Monitor) ConnectToPeripheral(autoConnect bool) {
	m.submit(m.connSection, "connect", func() {
		m.connect(autoConnect)
	})
}

// DisconnectFromPeripheral tears down the connection. Without a connection it does nothing.
func (m *Monitor) DisconnectFromPeripheral() {
	m.submit(m.connSection, "disconnect", func() {
		m.disconnect("requested")
	})
}

func (m *Monitor) connect(autoConnect bool) {
	p := m.discoveredPeripheral()
	if p == nil {
		m.logger.Warn("Connect requested without a discovered peripheral")
		m.emit(events.ConnectFailed{})
		return
	}
	if m.currentGatt() != nil {
		m.logger.WithField("address", p.Address()).Warn("Connect requested while a connection exists")
		m.emit(events.ConnectFailed{Message: events.Ptr(device.ErrAlreadyConnected.Error())})
		return
	}

	m.generation++
	gatt, err := m.adapter.Connect(p, autoConnect, &gattListener{m: m, generation: m.generation})
	if err != nil {
		m.logger.WithError(err).WithField("address", p.Address()).Error("Failed to initiate connection")
		m.emit(events.ConnectFailed{Message: events.Ptr(err.Error())})
		return
	}
	m.setGatt(gatt)

	m.logger.WithFields(logrus.Fields{
		"address":      p.Address(),
		"auto_connect": autoConnect,
	}).Debug("Connection initiated to peripheral")
}

// disconnect runs the graceful teardown and reports the disconnect itself, so the
// late Disconnected callback from the adapter finds nothing to do.
func (m *Monitor) disconnect(reason string) {
	if !m.teardown() {
		m.logger.WithField("reason", reason).Debug("Disconnect with no connection, nothing to do")
		return
	}
	m.logger.WithField("reason", reason).Info("Disconnected from peripheral and released resources")
	if m.lastState != device.StateDisconnected {
		m.lastState = device.StateDisconnected
		m.emit(events.ConnectionStateChanged{State: device.StateDisconnected})
	}
}

// teardown disconnects, waits the grace delay for the radio stack to settle and
// releases the handle. It reports whether there was a handle to release.
func (m *Monitor) teardown() bool {
	g := m.currentGatt()
	if g == nil {
		return false
	}

	if err := g.Disconnect(); err != nil {
		m.logger.WithError(err).Debug("Disconnect returned an error")
	}
	time.Sleep(m.disconnectGrace)
	if err := g.Close(); err != nil {
		m.logger.WithError(err).Warn("Failed to close peripheral handle")
	}

	m.setGatt(nil)
	m.aggregator.Reset()
	return true
}

func (m *Monitor) onConnectionStateChange(generation uint64, status int, state device.ConnectionState) {
	log := m.logger.WithFields(logrus.Fields{
		"state":  state.String(),
		"status": status,
	})
	if generation != m.generation {
		log.Debug("Connection state change from a previous connection ignored")
		return
	}

	switch state {
	case device.StateConnecting:
		m.lastState = state
		log.Info("Connecting")
		m.emit(events.ConnectionStateChanged{State: state})

	case device.StateConnected:
		m.lastState = state
		g := m.currentGatt()
		if g != nil {
			m.submit(m.serviceSection, "discover services", func() {
				m.discoverServices(g)
			})
		}
		log.Info("Connected")
		m.emit(events.ConnectionStateChanged{State: state})

	case device.StateDisconnected:
		if m.currentGatt() == nil && m.lastState == device.StateDisconnected {
			log.Warn("Disconnected callback while already disconnected, ignored")
			return
		}
		m.teardown()
		m.lastState = state
		log.Info("Disconnected")
		m.emit(events.ConnectionStateChanged{State: state})

	default:
		log.Warn("Unknown connection state ignored")
		return
	}
	metrics.IncConnectionState(state.String())
}

func (m *Monitor) discoverServices(g device.Gatt) {
	if g.DiscoverServices() {
		m.logger.Debug("Service discovery started")
		return
	}
	m.logger.Error("Adapter refused to start service discovery")
	m.emit(events.ServiceDiscoveryFailed{Message: serviceDiscoveryFailedMessage, Code: device.StatusFailure})
}

func (m *Monitor) onServicesDiscovered(status int) {
	if status == device.StatusSuccess {
		m.logger.Info("Services discovered")
		m.emit(events.ServiceDiscovered{Code: status})
		return
	}
	m.logger.WithField("status", status).Error("Service discovery failed")
	m.emit(events.ServiceDiscoveryFailed{Message: serviceDiscoveryFailedMessage, Code: status})
}

// gattListener forwards adapter GATT callbacks into the matching section.
type gattListener struct {
	m          *Monitor
	generation uint64
}

func (l *gattListener) OnConnectionStateChange(status int, state device.ConnectionState) {
	l.m.submit(l.m.connSection, "connection state change", func() {
		l.m.onConnectionStateChange(l.generation, status, state)
	})
}

func (l *gattListener) OnServicesDiscovered(status int) {
	l.m.submit(l.m.serviceSection, "services discovered", func() {
		l.m.onServicesDiscovered(status)
	})
}

func (l *gattListener) OnCharacteristicRead(c device.GattCharacteristic, value []byte, status int) {
	l.m.submit(l.m.charSection, "characteristic read", func() {
		l.m.onCharacteristicRead(c, value, status)
	})
}

func (l *gattListener) OnCharacteristicChanged(c device.GattCharacteristic, value []byte) {
	l.m.submit(l.m.charSection, "characteristic changed", func() {
		l.m.onCharacteristicValue(c, value)
	})
}

func (l *gattListener) OnCharacteristicWrite(c device.GattCharacteristic, status int) {
	l.m.submit(l.m.charSection, "characteristic write", func() {
		l.m.onCharacteristicWrite(c, status)
	})
}

func (l *gattListener) OnDescriptorWrite(d device.GattDescriptor, status int) {
	l.m.submit(l.m.charSection, "descriptor write", func() {
		l.m.onDescriptorWrite(d, status)
	})
}
