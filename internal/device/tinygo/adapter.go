// Package tinygo adapts tinygo.org/x/bluetooth to the device.Adapter contract.
package tinygo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/groutine"
	"tinygo.org/x/bluetooth"
)

// Name is the adapter name used for selection
const Name = "tinygo"

var ErrScanInProgress = errors.New("scan already in progress")

// radio is the part of *bluetooth.Adapter the adapter uses.
type radio interface {
	Enable() error
	Scan(callback func(*bluetooth.Adapter, bluetooth.ScanResult)) error
	StopScan() error
	Connect(address bluetooth.Address, params bluetooth.ConnectionParams) (bluetooth.Device, error)
	SetConnectHandler(c func(device bluetooth.Device, connected bool))
}

// Adapter implements device.Adapter with the tinygo bluetooth binding.
// The binding reports disconnects through one adapter-wide handler, so only one
// connection is tracked at a time.
type Adapter struct {
	radio  radio
	logger *logrus.Logger

	enableOnce sync.Once
	enableErr  error

	mu       sync.Mutex
	scanDone chan struct{}
	current  *Gatt
}

// NewAdapter creates an adapter over bluetooth.DefaultAdapter
func NewAdapter(logger *logrus.Logger) *Adapter {
	return newAdapter(bluetooth.DefaultAdapter, logger)
}

func newAdapter(r radio, logger *logrus.Logger) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{radio: r, logger: logger}
}

func (a *Adapter) Name() string { return Name }

// Enabled enables the binding once; the result is remembered.
func (a *Adapter) Enabled() error {
	a.enableOnce.Do(func() {
		if err := a.radio.Enable(); err != nil {
			a.enableErr = fmt.Errorf("%w: %v", device.ErrBluetoothOff, err)
			return
		}
		a.radio.SetConnectHandler(a.onConnectChange)
	})
	return a.enableErr
}

// StartScan runs the blocking binding scan on its own goroutine until StopScan.
// The binding has no batching, so ScanSettings.ReportDelay is ignored.
func (a *Adapter) StartScan(filters []device.ScanFilter, settings device.ScanSettings, cb device.ScanCallback) error {
	if err := a.Enabled(); err != nil {
		return err
	}

	a.mu.Lock()
	if a.scanDone != nil {
		a.mu.Unlock()
		return ErrScanInProgress
	}
	done := make(chan struct{})
	a.scanDone = done
	a.mu.Unlock()

	wanted := filterServices(filters)
	seen := make(map[string]bool)

	a.logger.WithFields(logrus.Fields{
		"filters":          len(filters),
		"allow_duplicates": settings.AllowDuplicates,
	}).Debug("Starting tinygo scan")

	groutine.Go(context.Background(), "tinygo-scan", func(context.Context) {
		defer close(done)

		err := a.radio.Scan(func(_ *bluetooth.Adapter, sr bluetooth.ScanResult) {
			r := toScanResult(sr, wanted)
			if !device.MatchesFilters(r, filters) {
				return
			}
			if !settings.AllowDuplicates {
				address := r.Peripheral.Address()
				if seen[address] {
					return
				}
				seen[address] = true
			}
			cb.OnScanResult(r)
		})
		if err != nil {
			a.logger.WithError(err).Error("Scan failed")
			cb.OnScanFailed(device.ScanFailedInternalError)
		}
	})
	return nil
}

// StopScan stops the binding scan and waits for the scan goroutine to exit.
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	done := a.scanDone
	a.scanDone = nil
	a.mu.Unlock()

	if done == nil {
		return nil
	}
	err := a.radio.StopScan()
	<-done
	return err
}

// Connect dials in the background. The binding's connect call cannot be cancelled,
// so autoConnect only changes logging.
func (a *Adapter) Connect(p device.Peripheral, autoConnect bool, cb device.GattCallback) (device.Gatt, error) {
	if err := a.Enabled(); err != nil {
		return nil, err
	}
	tp, ok := p.(peripheral)
	if !ok {
		return nil, fmt.Errorf("peripheral %s was not discovered by the %s adapter", p.Address(), Name)
	}

	g := newGatt(tp, cb, a.logger)
	a.mu.Lock()
	a.current = g
	a.mu.Unlock()

	groutine.Go(context.Background(), "tinygo-connect", func(context.Context) {
		g.deliver(func(cb device.GattCallback) {
			cb.OnConnectionStateChange(device.StatusSuccess, device.StateConnecting)
		})
		a.logger.WithFields(logrus.Fields{
			"address":      tp.Address(),
			"auto_connect": autoConnect,
		}).Debug("Connecting")

		dev, err := a.radio.Connect(tp.address, bluetooth.ConnectionParams{})
		if err != nil {
			a.logger.WithError(err).WithField("address", tp.Address()).Error("Failed to connect")
			g.deliver(func(cb device.GattCallback) {
				cb.OnConnectionStateChange(device.StatusFailure, device.StateDisconnected)
			})
			return
		}
		if !g.setDevice(dev) {
			a.logger.WithField("address", tp.Address()).Debug("Connect completed after close, dropping link")
			if err := dev.Disconnect(); err != nil {
				a.logger.WithError(err).Debug("Failed to drop late connection")
			}
			return
		}
		g.deliver(func(cb device.GattCallback) {
			cb.OnConnectionStateChange(device.StatusSuccess, device.StateConnected)
		})
	})
	return g, nil
}

// onConnectChange receives the binding's adapter-wide connect handler calls.
func (a *Adapter) onConnectChange(_ bluetooth.Device, connected bool) {
	if connected {
		return
	}
	a.mu.Lock()
	g := a.current
	a.mu.Unlock()
	if g == nil || !g.connected() {
		return
	}
	g.clearDevice()
	g.deliver(func(cb device.GattCallback) {
		cb.OnConnectionStateChange(device.StatusSuccess, device.StateDisconnected)
	})
}

// peripheral keeps the binding address so a scanned peer can be dialled.
type peripheral struct {
	name    string
	address bluetooth.Address
}

func (p peripheral) Name() string    { return p.name }
func (p peripheral) Address() string { return p.address.String() }

func filterServices(filters []device.ScanFilter) []uuid.UUID {
	var ids []uuid.UUID
	for _, f := range filters {
		if f.Service != uuid.Nil {
			ids = append(ids, f.Service)
		}
	}
	return ids
}

// toScanResult converts a binding result. The binding only answers membership
// questions about advertised services, so Services lists the wanted ones present.
func toScanResult(sr bluetooth.ScanResult, wanted []uuid.UUID) device.ScanResult {
	var services []uuid.UUID
	for _, id := range wanted {
		if u, err := fromUUID(id); err == nil && sr.HasServiceUUID(u) {
			services = append(services, id)
		}
	}
	return device.ScanResult{
		Peripheral: peripheral{name: sr.LocalName(), address: sr.Address},
		RSSI:       int(sr.RSSI),
		Services:   services,
		Timestamp:  time.Now(),
	}
}

func toUUID(u bluetooth.UUID) (uuid.UUID, error) {
	return uuid.Parse(u.String())
}

func fromUUID(id uuid.UUID) (bluetooth.UUID, error) {
	return bluetooth.ParseUUID(id.String())
}
