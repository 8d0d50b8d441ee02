package monitor

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
)

const (
	characteristicReadFailedMessage  = "characteristic read failed"
	characteristicWriteFailedMessage = "characteristic write failed"
	descriptorWriteFailedMessage     = "descriptor write failed"
)

// ReadCharacteristic requests a read; the value arrives as an event.
func (m *Monitor) ReadCharacteristic(service, characteristic uuid.UUID) {
	m.submit(m.charSection, "read", func() {
		m.guard(characteristic, func() { m.read(service, characteristic) })
	})
}

// WriteCharacteristic requests a write; failures and interpreted acknowledgements arrive as events.
func (m *Monitor) WriteCharacteristic(service, characteristic uuid.UUID, value []byte) {
	payload := append([]byte(nil), value...)
	m.submit(m.charSection, "write", func() {
		m.guard(characteristic, func() { m.write(service, characteristic, payload) })
	})
}

// ObserveCharacteristic enables (or disables) notifications by writing the
// Client Characteristic Configuration descriptor.
func (m *Monitor) ObserveCharacteristic(service, characteristic uuid.UUID, enabled bool) {
	m.submit(m.charSection, "observe", func() {
		m.guard(characteristic, func() { m.observe(service, characteristic, enabled) })
	})
}

// ReadDeviceInformation issues the six Device Information reads. A failure that
// leaves nothing to read from aborts the remaining reads with a single MonitoringFailed.
func (m *Monitor) ReadDeviceInformation() {
	m.submit(m.charSection, "read device information", func() {
		m.guard(device.DeviceInformationService, func() {
			g, svc, err := m.resolveService(device.DeviceInformationService)
			if err != nil {
				m.logger.WithError(err).Warn("Device information read aborted")
				m.emit(events.MonitoringFailed{Cause: err})
				return
			}
			for _, id := range DeviceInfoCharacteristics {
				m.readFrom(g, svc, id)
			}
		})
	})
}

// resolveService performs the first two resolution steps.
func (m *Monitor) resolveService(service uuid.UUID) (device.Gatt, device.GattService, error) {
	g := m.currentGatt()
	if g == nil {
		return nil, nil, ErrPeripheralNotConnected
	}
	svc, ok := g.Service(service)
	if !ok {
		return nil, nil, &ResolutionError{Resource: "service", UUID: service}
	}
	return g, svc, nil
}

func (m *Monitor) read(service, characteristic uuid.UUID) {
	g, svc, err := m.resolveService(service)
	if err != nil {
		m.emit(events.MonitoringFailed{Cause: err})
		return
	}
	m.readFrom(g, svc, characteristic)
}

func (m *Monitor) readFrom(g device.Gatt, svc device.GattService, characteristic uuid.UUID) {
	c, ok := svc.Characteristic(characteristic)
	if !ok {
		err := &ResolutionError{Resource: "characteristic", UUID: characteristic, Parents: []uuid.UUID{svc.UUID()}}
		m.emit(events.ReadFailed{Message: events.Ptr(err.Error())})
		return
	}
	if !g.ReadCharacteristic(c) {
		m.logger.WithField("characteristic", device.ShortenUUID(characteristic)).Warn("Radio refused read request")
		m.emit(events.ReadFailed{})
	}
}

func (m *Monitor) write(service, characteristic uuid.UUID, value []byte) {
	g, svc, err := m.resolveService(service)
	if err != nil {
		m.emit(events.MonitoringFailed{Cause: err})
		return
	}

	c, ok := svc.Characteristic(characteristic)
	if !ok {
		err := &ResolutionError{Resource: "characteristic", UUID: characteristic, Parents: []uuid.UUID{service}}
		m.emit(events.WriteFailed{Message: events.Ptr(err.Error())})
		m.emitWriteResult(characteristic, err)
		return
	}

	if status := g.WriteCharacteristic(c, value); status != device.StatusSuccess {
		m.logger.WithFields(logrus.Fields{
			"characteristic": device.ShortenUUID(characteristic),
			"status":         status,
		}).Warn("Radio refused write request")
		m.emit(events.WriteFailed{})
		m.emitWriteResult(characteristic, fmt.Errorf("write rejected with status %d", status))
	}
}

func (m *Monitor) observe(service, characteristic uuid.UUID, enabled bool) {
	g, svc, err := m.resolveService(service)
	if err != nil {
		m.emit(events.MonitoringFailed{Cause: err})
		return
	}

	c, ok := svc.Characteristic(characteristic)
	if !ok {
		err := &ResolutionError{Resource: "characteristic", UUID: characteristic, Parents: []uuid.UUID{service}}
		m.emit(events.WriteFailed{Message: events.Ptr(err.Error())})
		return
	}

	if !g.SetCharacteristicNotification(c, enabled) {
		m.logger.WithField("characteristic", device.ShortenUUID(characteristic)).Warn("Radio refused notification setup")
		m.emit(events.WriteFailed{})
		return
	}

	d, ok := c.Descriptor(device.ClientCharacteristicConfigDescriptor)
	if !ok {
		err := &ResolutionError{
			Resource: "descriptor",
			UUID:     device.ClientCharacteristicConfigDescriptor,
			Parents:  []uuid.UUID{service, characteristic},
		}
		m.emit(events.WriteFailed{Message: events.Ptr(err.Error())})
		return
	}

	value := device.EnableNotificationValue
	if !enabled {
		value = device.DisableNotificationValue
	}
	if status := g.WriteDescriptor(d, value); status != device.StatusSuccess {
		m.logger.WithFields(logrus.Fields{
			"characteristic": device.ShortenUUID(characteristic),
			"status":         status,
		}).Warn("Radio refused descriptor write")
		m.emit(events.WriteFailed{})
		return
	}

	m.logger.WithFields(logrus.Fields{
		"characteristic": device.ShortenUUID(characteristic),
		"enabled":        enabled,
	}).Debug("Notification configuration requested")
}

func (m *Monitor) onCharacteristicRead(c device.GattCharacteristic, value []byte, status int) {
	if status != device.StatusSuccess {
		m.logger.WithFields(logrus.Fields{
			"characteristic": device.ShortenUUID(c.UUID()),
			"status":         status,
		}).Warn("Characteristic read failed")
		m.emit(events.ReadFailed{Message: events.Ptr(characteristicReadFailedMessage), Code: events.Ptr(status)})
		return
	}
	m.onCharacteristicValue(c, value)
}

// onCharacteristicValue routes a read or notification value: Device Information
// values go to the aggregator, everything else to the interpreter.
func (m *Monitor) onCharacteristicValue(c device.GattCharacteristic, value []byte) {
	id := c.UUID()
	m.guard(id, func() {
		m.logger.WithFields(logrus.Fields{
			"characteristic": device.ShortenUUID(id),
			"value":          fmt.Sprintf("%x", value),
		}).Debug("Characteristic value")

		info, complete, known := m.aggregator.Accept(id, value)
		if known {
			if complete {
				m.emit(events.DeviceInformationReceived{Result: events.Ok(info)})
			}
			return
		}

		if e := m.interpreter.InterpretValue(id, value); e != nil {
			m.emit(e)
			return
		}
		m.emit(events.Unknown{Message: events.Ptr(id.String())})
	})
}

func (m *Monitor) onCharacteristicWrite(c device.GattCharacteristic, status int) {
	id := c.UUID()
	if status != device.StatusSuccess {
		m.logger.WithFields(logrus.Fields{
			"characteristic": device.ShortenUUID(id),
			"status":         status,
		}).Warn("Characteristic write failed")
		m.emit(events.WriteFailed{Message: events.Ptr(characteristicWriteFailedMessage), Code: events.Ptr(status)})
		m.guard(id, func() {
			m.emitWriteResult(id, fmt.Errorf("%s with status %d", characteristicWriteFailedMessage, status))
		})
		return
	}
	m.guard(id, func() { m.emitWriteResult(id, nil) })
}

func (m *Monitor) onDescriptorWrite(d device.GattDescriptor, status int) {
	if status != device.StatusSuccess {
		m.logger.WithFields(logrus.Fields{
			"descriptor": device.ShortenUUID(d.UUID()),
			"status":     status,
		}).Warn("Descriptor write failed")
		m.emit(events.WriteFailed{Message: events.Ptr(descriptorWriteFailedMessage), Code: events.Ptr(status)})
		return
	}
	m.logger.WithField("descriptor", device.ShortenUUID(d.UUID())).Debug("Descriptor written")
}

func (m *Monitor) emitWriteResult(id uuid.UUID, err error) {
	if e := m.interpreter.InterpretWrite(id, err); e != nil {
		m.emit(e)
	}
}

// guard turns a panic in fn into MonitoringFailed so the stream keeps going.
func (m *Monitor) guard(id uuid.UUID, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := &InterpretationError{UUID: id, Cause: recoveredError(r)}
			m.logger.WithError(err).Error("Recovered panic while handling characteristic")
			m.emit(events.MonitoringFailed{Cause: err})
		}
	}()
	fn()
}
