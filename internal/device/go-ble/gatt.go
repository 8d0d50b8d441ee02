package goble

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/groutine"
)

// Gatt is a go-ble connection handle. Every radio operation runs on its own
// goroutine and reports through the GattCallback; nothing is delivered after Close.
type Gatt struct {
	peripheral device.Peripheral
	cb         device.GattCallback
	logger     *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	client   ble.Client
	services map[uuid.UUID]*service
	closed   bool

	subs *subscriptions
}

func newGatt(p device.Peripheral, cb device.GattCallback, logger *logrus.Logger) *Gatt {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gatt{
		peripheral: p,
		cb:         cb,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		services:   make(map[uuid.UUID]*service),
		subs:       newSubscriptions(logger),
	}
}

func (g *Gatt) Peripheral() device.Peripheral { return g.peripheral }

// deliver runs fn with the callback unless the handle is closed
func (g *Gatt) deliver(fn func(cb device.GattCallback)) {
	g.mu.RLock()
	closed := g.closed
	g.mu.RUnlock()
	if !closed {
		fn(g.cb)
	}
}

func (g *Gatt) currentClient() ble.Client {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.client
}

func (g *Gatt) spawn(name string, fn func()) {
	groutine.Go(g.ctx, name, func(context.Context) { fn() })
}

func (g *Gatt) dial(ctx context.Context, dev ble.Device, timeout time.Duration) {
	address := g.peripheral.Address()
	g.deliver(func(cb device.GattCallback) {
		cb.OnConnectionStateChange(device.StatusSuccess, device.StateConnecting)
	})

	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	g.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": timeout,
	}).Debug("Dialing BLE device...")
	client, err := dev.Dial(dialCtx, ble.NewAddr(address))
	if err != nil {
		g.logger.WithError(NormalizeError(err)).WithField("address", address).Error("Failed to dial BLE device")
		g.deliver(func(cb device.GattCallback) {
			cb.OnConnectionStateChange(device.StatusFailure, device.StateDisconnected)
		})
		return
	}

	g.mu.Lock()
	g.client = client
	g.mu.Unlock()

	g.logger.WithField("address", address).Info("BLE device connected")
	g.deliver(func(cb device.GattCallback) {
		cb.OnConnectionStateChange(device.StatusSuccess, device.StateConnected)
	})

	// Disconnected() is not part of every go-ble client implementation
	watcher, ok := client.(interface{ Disconnected() <-chan struct{} })
	if !ok {
		g.logger.Debug("Client does not report disconnections")
		<-ctx.Done()
		return
	}

	select {
	case <-watcher.Disconnected():
		g.logger.WithField("address", address).Warn("Radio stack reported disconnection")
		g.mu.Lock()
		g.client = nil
		g.mu.Unlock()
		g.deliver(func(cb device.GattCallback) {
			cb.OnConnectionStateChange(device.StatusSuccess, device.StateDisconnected)
		})
	case <-ctx.Done():
	}
}

// DiscoverServices discovers the full profile, descriptors included.
func (g *Gatt) DiscoverServices() bool {
	client := g.currentClient()
	if client == nil {
		return false
	}

	g.spawn("goble-discover", func() {
		profile, err := client.DiscoverProfile(true)
		if err != nil {
			g.logger.WithError(NormalizeError(err)).Error("Failed to discover profile")
			g.deliver(func(cb device.GattCallback) { cb.OnServicesDiscovered(device.StatusFailure) })
			return
		}

		services := convertProfile(profile, g.logger)
		g.mu.Lock()
		g.services = services
		g.mu.Unlock()

		g.logger.WithField("services", len(services)).Debug("Profile discovered successfully")
		g.deliver(func(cb device.GattCallback) { cb.OnServicesDiscovered(device.StatusSuccess) })
	})
	return true
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
	client := g.currentClient()
	ch, ok := c.(*characteristic)
	if client == nil || !ok {
		return false
	}

	g.spawn("goble-read", func() {
		value, err := client.ReadCharacteristic(ch.ble)
		status := device.StatusSuccess
		if err != nil {
			g.logger.WithError(NormalizeError(err)).WithField("characteristic", device.ShortenUUID(ch.id)).Warn("Read failed")
			status = device.StatusFailure
			value = nil
		}
		g.deliver(func(cb device.GattCallback) { cb.OnCharacteristicRead(ch, value, status) })
	})
	return true
}

func (g *Gatt) WriteCharacteristic(c device.GattCharacteristic, value []byte) int {
	client := g.currentClient()
	ch, ok := c.(*characteristic)
	if client == nil || !ok {
		return device.StatusFailure
	}

	payload := append([]byte(nil), value...)
	g.spawn("goble-write", func() {
		status := device.StatusSuccess
		if err := client.WriteCharacteristic(ch.ble, payload, false); err != nil {
			g.logger.WithError(NormalizeError(err)).WithField("characteristic", device.ShortenUUID(ch.id)).Warn("Write failed")
			status = device.StatusFailure
		}
		g.deliver(func(cb device.GattCallback) { cb.OnCharacteristicWrite(ch, status) })
	})
	return device.StatusSuccess
}

// SetCharacteristicNotification only validates the request; go-ble subscribes when
// the CCCD is written.
func (g *Gatt) SetCharacteristicNotification(c device.GattCharacteristic, enabled bool) bool {
	ch, ok := c.(*characteristic)
	if g.currentClient() == nil || !ok {
		return false
	}
	return !enabled || ch.canNotify()
}

// WriteDescriptor writes a descriptor. Writing the CCCD subscribes or unsubscribes
// through go-ble so notifications reach OnCharacteristicChanged.
func (g *Gatt) WriteDescriptor(d device.GattDescriptor, value []byte) int {
	client := g.currentClient()
	desc, ok := d.(*descriptor)
	if client == nil || !ok {
		return device.StatusFailure
	}

	if desc.id == device.ClientCharacteristicConfigDescriptor {
		g.spawn("goble-cccd", func() { g.writeCCCD(client, desc, value) })
		return device.StatusSuccess
	}

	if desc.ble == nil {
		return device.StatusFailure
	}
	payload := append([]byte(nil), value...)
	g.spawn("goble-write-descriptor", func() {
		status := device.StatusSuccess
		if err := client.WriteDescriptor(desc.ble, payload); err != nil {
			g.logger.WithError(NormalizeError(err)).WithField("descriptor", device.ShortenUUID(desc.id)).Warn("Descriptor write failed")
			status = device.StatusFailure
		}
		g.deliver(func(cb device.GattCallback) { cb.OnDescriptorWrite(desc, status) })
	})
	return device.StatusSuccess
}

func (g *Gatt) writeCCCD(client ble.Client, desc *descriptor, value []byte) {
	ch := desc.char
	indicate := bytes.Equal(value, device.EnableIndicationValue)

	var err error
	if bytes.Equal(value, device.DisableNotificationValue) {
		err = g.subs.remove(client, ch)
	} else {
		err = g.subs.add(client, ch, indicate, func(data []byte) {
			payload := append([]byte(nil), data...)
			g.deliver(func(cb device.GattCallback) { cb.OnCharacteristicChanged(ch, payload) })
		})
	}

	status := device.StatusSuccess
	if err != nil {
		g.logger.WithError(NormalizeError(err)).WithField("characteristic", device.ShortenUUID(ch.id)).Warn("Notification setup failed")
		status = device.StatusFailure
	}
	g.deliver(func(cb device.GattCallback) { cb.OnDescriptorWrite(desc, status) })
}

// Disconnect unsubscribes everything and cancels the connection. The Disconnected
// callback follows when the radio stack confirms.
func (g *Gatt) Disconnect() error {
	client := g.currentClient()
	if client == nil {
		return nil
	}
	g.subs.removeAll(client)
	return NormalizeError(client.CancelConnection())
}

// Close releases the handle; no callbacks are delivered afterwards.
func (g *Gatt) Close() error {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()
	g.cancel()
	return nil
}
