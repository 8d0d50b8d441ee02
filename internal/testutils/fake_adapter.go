package testutils

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
)

// FakePeripheral is a scanned peripheral with a fixed name and address
type FakePeripheral struct {
	PeripheralName    string
	PeripheralAddress string
}

func (p FakePeripheral) Name() string    { return p.PeripheralName }
func (p FakePeripheral) Address() string { return p.PeripheralAddress }

// NewScanResult builds a scan result for a fake peripheral.
func NewScanResult(name, address string, rssi int, services ...string) device.ScanResult {
	ids := make([]uuid.UUID, 0, len(services))
	for _, s := range services {
		ids = append(ids, mustUUID(s))
	}
	return device.ScanResult{
		Peripheral: FakePeripheral{PeripheralName: name, PeripheralAddress: address},
		RSSI:       rssi,
		Services:   ids,
	}
}

// ErrFakeScanInProgress is returned by StartScan until StopScan is called,
// as the real adapters do.
var ErrFakeScanInProgress = errors.New("scan already in progress")

// FakeAdapter is an in-memory device.Adapter. Tests drive scan callbacks explicitly;
// GATT operations respond synchronously from the Profile unless configured otherwise.
type FakeAdapter struct {
	mu sync.Mutex

	EnabledErr   error
	StartScanErr error
	ConnectErr   error
	// SkipConnectCallbacks stops Connect from reporting Connecting and Connected.
	SkipConnectCallbacks bool
	// ConfigureGatt, when set, is applied to every new connection handle before callbacks fire.
	ConfigureGatt func(g *FakeGatt)

	profile  *Profile
	scanCB   device.ScanCallback
	scanning bool
	gatts    []*FakeGatt
	calls    map[string]int
}

// NewFakeAdapter creates an enabled adapter whose connections expose profile.
func NewFakeAdapter(profile *Profile) *FakeAdapter {
	if profile == nil {
		profile = NewProfileBuilder().Build()
	}
	return &FakeAdapter{profile: profile, calls: make(map[string]int)}
}

func (a *FakeAdapter) record(op string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls[op]++
}

// CallCount returns how many times op was invoked
func (a *FakeAdapter) CallCount(op string) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls[op]
}

// Profile returns the GATT layout shared by all connections
func (a *FakeAdapter) Profile() *Profile { return a.profile }

func (a *FakeAdapter) Name() string { return "fake" }

func (a *FakeAdapter) Enabled() error {
	a.record("enabled")
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.EnabledErr
}

func (a *FakeAdapter) StartScan(_ []device.ScanFilter, _ device.ScanSettings, cb device.ScanCallback) error {
	a.record("start_scan")
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.StartScanErr != nil {
		return a.StartScanErr
	}
	if a.scanning {
		return ErrFakeScanInProgress
	}
	a.scanCB = cb
	a.scanning = true
	return nil
}

func (a *FakeAdapter) StopScan() error {
	a.record("stop_scan")
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scanning = false
	return nil
}

// Scanning reports whether a scan is running
func (a *FakeAdapter) Scanning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanning
}

func (a *FakeAdapter) scanCallback() device.ScanCallback {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scanCB
}

// EmitScanResult delivers a result to the last scan callback, even after StopScan,
// the way a radio stack may deliver results still in flight.
func (a *FakeAdapter) EmitScanResult(r device.ScanResult) {
	if cb := a.scanCallback(); cb != nil {
		cb.OnScanResult(r)
	}
}

// EmitBatchScanResults delivers a batch to the last scan callback
func (a *FakeAdapter) EmitBatchScanResults(rs ...device.ScanResult) {
	if cb := a.scanCallback(); cb != nil {
		cb.OnBatchScanResults(rs)
	}
}

// FailScan reports a scan failure with code
func (a *FakeAdapter) FailScan(code int) {
	if cb := a.scanCallback(); cb != nil {
		cb.OnScanFailed(code)
	}
}

func (a *FakeAdapter) Connect(p device.Peripheral, _ bool, cb device.GattCallback) (device.Gatt, error) {
	a.record("connect")
	a.mu.Lock()
	if a.ConnectErr != nil {
		err := a.ConnectErr
		a.mu.Unlock()
		return nil, err
	}
	g := newFakeGatt(p, a.profile, cb)
	if a.ConfigureGatt != nil {
		a.ConfigureGatt(g)
	}
	a.gatts = append(a.gatts, g)
	skip := a.SkipConnectCallbacks
	a.mu.Unlock()

	if !skip {
		cb.OnConnectionStateChange(device.StatusSuccess, device.StateConnecting)
		cb.OnConnectionStateChange(device.StatusSuccess, device.StateConnected)
	}
	return g, nil
}

// Gatt returns the most recent connection handle, or nil
func (a *FakeAdapter) Gatt() *FakeGatt {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.gatts) == 0 {
		return nil
	}
	return a.gatts[len(a.gatts)-1]
}

// Write is a recorded characteristic or descriptor write
type Write struct {
	UUID  uuid.UUID
	Value []byte
}

// FakeGatt is the connection handle returned by FakeAdapter.Connect.
type FakeGatt struct {
	mu sync.Mutex

	peripheral device.Peripheral
	profile    *Profile
	cb         device.GattCallback

	// Request outcomes. Refuse* make the request fail synchronously.
	RefuseDiscovery    bool
	RefuseRead         bool
	RefuseNotification bool
	WriteStatus        int
	DescriptorStatus   int

	// Completion statuses reported through the callback.
	DiscoveryStatus       int
	ReadStatus            int
	WriteCompletionStatus int
	// Silent suppresses every completion callback.
	Silent bool

	closed bool
	calls  map[string]int
	writes []Write
}

func newFakeGatt(p device.Peripheral, profile *Profile, cb device.GattCallback) *FakeGatt {
	return &FakeGatt{peripheral: p, profile: profile, cb: cb, calls: make(map[string]int)}
}

// Configure applies fn under the handle's lock
func (g *FakeGatt) Configure(fn func(g *FakeGatt)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(g)
}

// callback returns the callback when completions should be delivered
func (g *FakeGatt) callback(op string) device.GattCallback {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[op]++
	if g.closed || g.Silent {
		return nil
	}
	return g.cb
}

// CallCount returns how many times op was invoked on this handle
func (g *FakeGatt) CallCount(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

// Writes returns the recorded characteristic and descriptor writes
func (g *FakeGatt) Writes() []Write {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Write(nil), g.writes...)
}

// Closed reports whether Close was called
func (g *FakeGatt) Closed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

func (g *FakeGatt) Peripheral() device.Peripheral { return g.peripheral }

func (g *FakeGatt) DiscoverServices() bool {
	cb := g.callback("discover_services")
	g.mu.Lock()
	refuse, status := g.RefuseDiscovery, g.DiscoveryStatus
	g.mu.Unlock()
	if refuse {
		return false
	}
	if cb != nil {
		cb.OnServicesDiscovered(status)
	}
	return true
}

func (g *FakeGatt) Service(id uuid.UUID) (device.GattService, bool) {
	svc, ok := g.profile.service(id)
	if !ok {
		return nil, false
	}
	return svc, true
}

func (g *FakeGatt) ReadCharacteristic(c device.GattCharacteristic) bool {
	cb := g.callback("read")
	g.mu.Lock()
	refuse, status := g.RefuseRead, g.ReadStatus
	g.mu.Unlock()
	if refuse {
		return false
	}
	if cb != nil {
		var value []byte
		if fc, ok := c.(*fakeCharacteristic); ok && status == device.StatusSuccess {
			value = fc.currentValue()
		}
		cb.OnCharacteristicRead(c, value, status)
	}
	return true
}

func (g *FakeGatt) WriteCharacteristic(c device.GattCharacteristic, value []byte) int {
	cb := g.callback("write")
	g.mu.Lock()
	g.writes = append(g.writes, Write{UUID: c.UUID(), Value: append([]byte(nil), value...)})
	status, completion := g.WriteStatus, g.WriteCompletionStatus
	g.mu.Unlock()
	if status != device.StatusSuccess {
		return status
	}
	if cb != nil {
		cb.OnCharacteristicWrite(c, completion)
	}
	return device.StatusSuccess
}

func (g *FakeGatt) SetCharacteristicNotification(_ device.GattCharacteristic, _ bool) bool {
	g.callback("set_notification")
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.RefuseNotification
}

func (g *FakeGatt) WriteDescriptor(d device.GattDescriptor, value []byte) int {
	cb := g.callback("write_descriptor")
	g.mu.Lock()
	g.writes = append(g.writes, Write{UUID: d.UUID(), Value: append([]byte(nil), value...)})
	status := g.DescriptorStatus
	g.mu.Unlock()
	if status != device.StatusSuccess {
		return status
	}
	if cb != nil {
		cb.OnDescriptorWrite(d, device.StatusSuccess)
	}
	return device.StatusSuccess
}

// Disconnect reports Disconnected through the callback unless the handle is closed
func (g *FakeGatt) Disconnect() error {
	if cb := g.callback("disconnect"); cb != nil {
		cb.OnConnectionStateChange(device.StatusSuccess, device.StateDisconnected)
	}
	return nil
}

func (g *FakeGatt) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls["close"]++
	g.closed = true
	return nil
}

// Notify pushes a value for a characteristic, as a peripheral notification would.
func (g *FakeGatt) Notify(characteristic string, value []byte) {
	c := g.profile.characteristic(mustUUID(characteristic))
	if c == nil {
		panic("characteristic " + characteristic + " not in profile")
	}
	g.mu.Lock()
	cb := g.cb
	closed := g.closed
	g.mu.Unlock()
	if !closed {
		cb.OnCharacteristicChanged(c, value)
	}
}

// DropConnection reports a remote disconnect without a local Disconnect call.
func (g *FakeGatt) DropConnection(status int) {
	g.mu.Lock()
	cb := g.cb
	closed := g.closed
	g.mu.Unlock()
	if !closed {
		cb.OnConnectionStateChange(status, device.StateDisconnected)
	}
}
