package tinygo

import (
	"bytes"
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// readBufferSize is the largest characteristic value read in one call
const readBufferSize = 512

// Gatt is a tinygo connection handle
type Gatt struct {
	peripheral peripheral
	cb         device.GattCallback
	logger     *logrus.Logger

	mu       sync.RWMutex
	dev      *bluetooth.Device
	services map[uuid.UUID]*service
	closed   bool
}

func newGatt(p peripheral, cb device.GattCallback, logger *logrus.Logger) *Gatt {
	return &Gatt{peripheral: p, cb: cb, logger: logger, services: make(map[uuid.UUID]*service)}
}

func (g *Gatt) Peripheral() device.Peripheral { return g.peripheral }

func (g *Gatt) deliver(fn func(cb device.GattCallback)) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if !closed {
		fn(g.cb)
	}
}

// setDevice records the connected device. It reports false when the handle was
// closed while the connect was pending; the caller drops the link.
func (g *Gatt) setDevice(dev bluetooth.Device) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return false
	}
	g.dev = &dev
	return true
}

func (g *Gatt) clearDevice() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dev = nil
}

func (g *Gatt) connected() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dev != nil
}

func (g *Gatt) device() *bluetooth.Device {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dev
}

func spawn(name string, fn func()) {
	groutine.Go(context.Background(), name, func(context.Context) { fn() })
}

// DiscoverServices discovers every service and its characteristics.
func (g *Gatt) DiscoverServices() bool {
	dev := g.device()
	if dev == nil {
		return false
	}

	spawn("tinygo-discover", func() {
		services, err := discover(dev)
		status := device.StatusSuccess
		if err != nil {
			g.logger.WithError(err).Error("Service discovery failed")
			status = device.StatusFailure
		} else {
			g.mu.Lock()
			g.services = services
			g.mu.Unlock()
			g.logger.WithField("services", len(services)).Debug("Services discovered")
		}
		g.deliver(func(cb device.GattCallback) { cb.OnServicesDiscovered(status) })
	})
	return true
}

func discover(dev *bluetooth.Device) (map[uuid.UUID]*service, error) {
	found, err := dev.DiscoverServices(nil)
	if err != nil {
		return nil, err
	}

	services := make(map[uuid.UUID]*service, len(found))
	for i := range found {
		bs := found[i]
		sid, err := toUUID(bs.UUID())
		if err != nil {
			continue
		}
		chars, err := bs.DiscoverCharacteristics(nil)
		if err != nil {
			return nil, err
		}

		svc := &service{id: sid, characteristics: make(map[uuid.UUID]*characteristic, len(chars))}
		for j := range chars {
			cid, err := toUUID(chars[j].UUID())
			if err != nil {
				continue
			}
			c := &characteristic{id: cid, service: sid, ch: chars[j]}
			c.cccd = &descriptor{id: device.ClientCharacteristicConfigDescriptor, char: c}
			svc.characteristics[cid] = c
		}
		services[sid] = svc
	}
	return services, nil
}

func (g *Gatt) Service(id uuid.UUID) (device.GattService, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	svc, ok := g.services[id]
	if !ok {
		return nil, false
	}
	return svc, true
}

func (g *Gatt) ReadCharacteristic(c device.GattCharacteristic) bool {
	ch, ok := c.(*characteristic)
	if !ok || !g.connected() {
		return false
	}

	spawn("tinygo-read", func() {
		buf := make([]byte, readBufferSize)
		n, err := ch.ch.Read(buf)
		status := device.StatusSuccess
		var value []byte
		if err != nil {
			g.logger.WithError(err).WithField("characteristic", device.ShortenUUID(ch.id)).Warn("Read failed")
			status = device.StatusFailure
		} else {
			value = buf[:n]
		}
		g.deliver(func(cb device.GattCallback) { cb.OnCharacteristicRead(ch, value, status) })
	})
	return true
}

// WriteCharacteristic writes without response, the only write the binding offers on
// every platform; completion is reported once the binding accepted the bytes.
func (g *Gatt) WriteCharacteristic(c device.GattCharacteristic, value []byte) int {
	ch, ok := c.(*characteristic)
	if !ok || !g.connected() {
		return device.StatusFailure
	}

	payload := append([]byte(nil), value...)
	spawn("tinygo-write", func() {
		status := device.StatusSuccess
		if _, err := ch.ch.WriteWithoutResponse(payload); err != nil {
			g.logger.WithError(err).WithField("characteristic", device.ShortenUUID(ch.id)).Warn("Write failed")
			status = device.StatusFailure
		}
		g.deliver(func(cb device.GattCallback) { cb.OnCharacteristicWrite(ch, status) })
	})
	return device.StatusSuccess
}

func (g *Gatt) SetCharacteristicNotification(c device.GattCharacteristic, _ bool) bool {
	_, ok := c.(*characteristic)
	return ok && g.connected()
}

// WriteDescriptor only supports the synthesized CCCD: the binding writes the real
// descriptor itself when notifications are enabled.
func (g *Gatt) WriteDescriptor(d device.GattDescriptor, value []byte) int {
	desc, ok := d.(*descriptor)
	if !ok || !g.connected() || desc.id != device.ClientCharacteristicConfigDescriptor {
		return device.StatusFailure
	}

	ch := desc.char
	enable := !bytes.Equal(value, device.DisableNotificationValue)
	spawn("tinygo-cccd", func() {
		var handler func([]byte)
		if enable {
			handler = func(buf []byte) {
				payload := append([]byte(nil), buf...)
				g.deliver(func(cb device.GattCallback) { cb.OnCharacteristicChanged(ch, payload) })
			}
		}
		status := device.StatusSuccess
		if err := ch.ch.EnableNotifications(handler); err != nil {
			g.logger.WithError(err).WithField("characteristic", device.ShortenUUID(ch.id)).Warn("Notification setup failed")
			status = device.StatusFailure
		}
		g.deliver(func(cb device.GattCallback) { cb.OnDescriptorWrite(desc, status) })
	})
	return device.StatusSuccess
}

// Disconnect asks the binding to drop the link; the adapter's connect handler reports it.
func (g *Gatt) Disconnect() error {
	dev := g.device()
	if dev == nil {
		return nil
	}
	return dev.Disconnect()
}

func (g *Gatt) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}

type service struct {
	id              uuid.UUID
	characteristics map[uuid.UUID]*characteristic
}

func (s *service) UUID() uuid.UUID { return s.id }

func (s *service) Characteristic(id uuid.UUID) (device.GattCharacteristic, bool) {
	c, ok := s.characteristics[id]
	if !ok {
		return nil, false
	}
	return c, true
}

type characteristic struct {
	id      uuid.UUID
	service uuid.UUID
	ch      bluetooth.DeviceCharacteristic
	cccd    *descriptor
}

func (c *characteristic) UUID() uuid.UUID    { return c.id }
func (c *characteristic) Service() uuid.UUID { return c.service }

func (c *characteristic) Descriptor(id uuid.UUID) (device.GattDescriptor, bool) {
	if id == device.ClientCharacteristicConfigDescriptor {
		return c.cccd, true
	}
	return nil, false
}

type descriptor struct {
	id   uuid.UUID
	char *characteristic
}

func (d *descriptor) UUID() uuid.UUID                            { return d.id }
func (d *descriptor) Characteristic() device.GattCharacteristic { return d.char }
