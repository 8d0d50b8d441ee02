package goble

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/monitor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/goleak"
)

// MockAdvertisement implements ble.Advertisement
type MockAdvertisement struct {
	mock.Mock
}

func (m *MockAdvertisement) LocalName() string { return m.Called().String(0) }
func (m *MockAdvertisement) ManufacturerData() []byte {
	return m.Called().Get(0).([]byte)
}
func (m *MockAdvertisement) ServiceData() []ble.ServiceData {
	return m.Called().Get(0).([]ble.ServiceData)
}
func (m *MockAdvertisement) Services() []ble.UUID { return m.Called().Get(0).([]ble.UUID) }
func (m *MockAdvertisement) OverflowService() []ble.UUID {
	return m.Called().Get(0).([]ble.UUID)
}
func (m *MockAdvertisement) TxPowerLevel() int { return m.Called().Int(0) }
func (m *MockAdvertisement) Connectable() bool { return m.Called().Bool(0) }
func (m *MockAdvertisement) SolicitedService() []ble.UUID {
	return m.Called().Get(0).([]ble.UUID)
}
func (m *MockAdvertisement) RSSI() int     { return m.Called().Int(0) }
func (m *MockAdvertisement) Addr() ble.Addr { return m.Called().Get(0).(ble.Addr) }

type fakeAddr string

func (a fakeAddr) String() string { return string(a) }

func newAdvertisement(name, address string, rssi int, services ...ble.UUID) *MockAdvertisement {
	adv := &MockAdvertisement{}
	adv.On("LocalName").Return(name)
	adv.On("Addr").Return(fakeAddr(address))
	adv.On("RSSI").Return(rssi)
	adv.On("Services").Return(services)
	return adv
}

// fakeDevice implements ble.Device; Scan replays advertisements and blocks until cancelled.
type fakeDevice struct {
	advs    []ble.Advertisement
	scanErr error
	dialErr error
}

func (d *fakeDevice) AddService(*ble.Service) error                          { return nil }
func (d *fakeDevice) RemoveAllServices() error                               { return nil }
func (d *fakeDevice) SetServices([]*ble.Service) error                       { return nil }
func (d *fakeDevice) Stop() error                                            { return nil }
func (d *fakeDevice) Advertise(context.Context, ble.Advertisement) error     { return nil }
func (d *fakeDevice) AdvertiseNameAndServices(context.Context, string, ...ble.UUID) error {
	return nil
}
func (d *fakeDevice) AdvertiseIBeacon(context.Context, ble.UUID, uint16, uint16, int8) error {
	return nil
}
func (d *fakeDevice) AdvertiseIBeaconData(context.Context, []byte) error        { return nil }
func (d *fakeDevice) AdvertiseMfgData(context.Context, uint16, []byte) error    { return nil }
func (d *fakeDevice) AdvertiseServiceData16(context.Context, uint16, []byte) error {
	return nil
}

func (d *fakeDevice) Scan(ctx context.Context, _ bool, h ble.AdvHandler) error {
	if d.scanErr != nil {
		return d.scanErr
	}
	for _, adv := range d.advs {
		h(adv)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDevice) Dial(ctx context.Context, _ ble.Addr) (ble.Client, error) {
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// scanRecorder implements device.ScanCallback
type scanRecorder struct {
	mu       sync.Mutex
	results  []device.ScanResult
	batches  [][]device.ScanResult
	failures []int
}

func (r *scanRecorder) OnScanResult(result device.ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
}

func (r *scanRecorder) OnBatchScanResults(results []device.ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, results)
}

func (r *scanRecorder) OnScanFailed(code int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, code)
}

func (r *scanRecorder) snapshot() ([]device.ScanResult, [][]device.ScanResult, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.ScanResult(nil), r.results...), append([][]device.ScanResult(nil), r.batches...), append([]int(nil), r.failures...)
}

// stateRecorder implements device.GattCallback, recording connection states only
type stateRecorder struct {
	mu     sync.Mutex
	states []device.ConnectionState
	status []int
}

func (r *stateRecorder) OnConnectionStateChange(status int, state device.ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
	r.status = append(r.status, status)
}
func (r *stateRecorder) OnServicesDiscovered(int)                                     {}
func (r *stateRecorder) OnCharacteristicRead(device.GattCharacteristic, []byte, int)  {}
func (r *stateRecorder) OnCharacteristicChanged(device.GattCharacteristic, []byte)    {}
func (r *stateRecorder) OnCharacteristicWrite(device.GattCharacteristic, int)         {}
func (r *stateRecorder) OnDescriptorWrite(device.GattDescriptor, int)                 {}

func (r *stateRecorder) snapshot() ([]device.ConnectionState, []int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]device.ConnectionState(nil), r.states...), append([]int(nil), r.status...)
}

type AdapterTestSuite struct {
	suite.Suite

	leakOpt goleak.Option

	originalFactory func() (ble.Device, error)
	dev             *fakeDevice
	adapter         *Adapter
}

func (s *AdapterTestSuite) SetupTest() {
	s.leakOpt = goleak.IgnoreCurrent()
	s.originalFactory = DeviceFactory
	s.dev = &fakeDevice{}
	DeviceFactory = func() (ble.Device, error) { return s.dev, nil }

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	s.adapter = NewAdapter(logger, Options{ConnectTimeout: 50 * time.Millisecond})
}

func (s *AdapterTestSuite) TearDownTest() {
	DeviceFactory = s.originalFactory
	goleak.VerifyNone(s.T(), s.leakOpt)
}

func (s *AdapterTestSuite) TestEnabledNormalizesBluetoothOff() {
	DeviceFactory = func() (ble.Device, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}
	err := s.adapter.Enabled()
	s.Require().Error(err)
	s.ErrorIs(err, device.ErrBluetoothOff, "radio-off errors MUST be normalized")
}

func (s *AdapterTestSuite) TestScanAppliesFilters() {
	// GOAL: Verify advertisements are converted and filtered before delivery
	//
	// TEST SCENARIO: Two advertisements, filter on the heart rate service → one result delivered, scan stops cleanly
	s.dev.advs = []ble.Advertisement{
		newAdvertisement("Band", "01:02:03:04:05:06", -40),
		newAdvertisement("H10", "AA:BB:CC:DD:EE:FF", -61, ble.UUID16(0x180D)),
	}
	rec := &scanRecorder{}

	err := s.adapter.StartScan([]device.ScanFilter{{Service: device.HeartRateService}}, device.ScanSettings{}, rec)
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		results, _, _ := rec.snapshot()
		return len(results) == 1
	}, time.Second, 5*time.Millisecond)

	s.ErrorIs(s.adapter.StartScan(nil, device.ScanSettings{}, rec), ErrScanInProgress)
	s.Require().NoError(s.adapter.StopScan())
	s.Require().NoError(s.adapter.StopScan(), "StopScan MUST be idempotent")

	results, _, failures := rec.snapshot()
	s.Equal("H10", results[0].Peripheral.Name())
	s.Equal("AA:BB:CC:DD:EE:FF", results[0].Peripheral.Address())
	s.Equal(-61, results[0].RSSI)
	s.Equal([]uuid.UUID{device.HeartRateService}, results[0].Services)
	s.Empty(failures)
}

func (s *AdapterTestSuite) TestScanBatchesWithReportDelay() {
	s.dev.advs = []ble.Advertisement{
		newAdvertisement("A", "00:00:00:00:00:01", -40),
		newAdvertisement("B", "00:00:00:00:00:02", -50),
	}
	rec := &scanRecorder{}

	s.Require().NoError(s.adapter.StartScan(nil, device.ScanSettings{ReportDelay: 10 * time.Millisecond}, rec))
	s.Require().Eventually(func() bool {
		_, batches, _ := rec.snapshot()
		return len(batches) > 0
	}, time.Second, 5*time.Millisecond)
	s.Require().NoError(s.adapter.StopScan())

	results, batches, _ := rec.snapshot()
	s.Empty(results, "batched scans MUST NOT deliver single results")
	s.Len(batches[0], 2)
}

func (s *AdapterTestSuite) TestScanFailure() {
	s.dev.scanErr = errors.New("hci: command disallowed")
	rec := &scanRecorder{}

	s.Require().NoError(s.adapter.StartScan(nil, device.ScanSettings{}, rec))
	s.Require().Eventually(func() bool {
		_, _, failures := rec.snapshot()
		return len(failures) == 1
	}, time.Second, 5*time.Millisecond)
	s.Require().NoError(s.adapter.StopScan())

	_, _, failures := rec.snapshot()
	s.Equal([]int{device.ScanFailedInternalError}, failures)
}

func (s *AdapterTestSuite) TestConnectFailureReportsDisconnected() {
	s.dev.dialErr = errors.New("connection refused")
	rec := &stateRecorder{}

	g, err := s.adapter.Connect(peripheral{name: "H10", address: "AA:BB:CC:DD:EE:FF"}, false, rec)
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		states, _ := rec.snapshot()
		return len(states) == 2
	}, time.Second, 5*time.Millisecond)

	states, status := rec.snapshot()
	s.Equal([]device.ConnectionState{device.StateConnecting, device.StateDisconnected}, states)
	s.Equal(device.StatusFailure, status[1])
	s.False(g.DiscoverServices(), "operations without a link MUST be refused")
	s.Equal(device.StatusFailure, g.WriteCharacteristic(nil, []byte{1}))
	s.NoError(g.Disconnect())
	s.NoError(g.Close())
}

func (s *AdapterTestSuite) TestConnectTimeout() {
	rec := &stateRecorder{}

	g, err := s.adapter.Connect(peripheral{address: "AA:BB:CC:DD:EE:FF"}, false, rec)
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		states, _ := rec.snapshot()
		return len(states) == 2
	}, time.Second, 5*time.Millisecond, "direct connect MUST be bounded by the connect timeout")
	s.NoError(g.Close())
}

func (s *AdapterTestSuite) TestCloseSuppressesCallbacks() {
	rec := &stateRecorder{}

	g, err := s.adapter.Connect(peripheral{address: "AA:BB:CC:DD:EE:FF"}, true, rec)
	s.Require().NoError(err)
	s.Require().Eventually(func() bool {
		states, _ := rec.snapshot()
		return len(states) == 1
	}, time.Second, 5*time.Millisecond)

	s.Require().NoError(g.Close())
	time.Sleep(20 * time.Millisecond)
	states, _ := rec.snapshot()
	s.Equal([]device.ConnectionState{device.StateConnecting}, states, "no callback MUST follow Close")
}

func (s *AdapterTestSuite) TestMonitorRestartsAfterScanFailure() {
	// GOAL: Verify a scan that fails on the radio leaves the adapter ready for the next scan
	//
	// TEST SCENARIO: Radio scan errors → monitor reports ScanFailed → radio recovers → StartMonitoring again → DeviceFound
	s.dev.scanErr = errors.New("hci: command disallowed")
	m := monitor.New(s.adapter, monitor.Options{
		ScanTimeout:     time.Second,
		DisconnectGrace: time.Millisecond,
		Logger:          logrus.New(),
	})
	defer func() { s.NoError(m.Close()) }()

	m.StartMonitoring(nil, device.ScanSettings{})
	failed, ok := nextEvent(m.Events()).(events.ScanFailed)
	s.Require().True(ok, "first event MUST be ScanFailed")
	s.Equal(device.ScanFailedInternalError, failed.Code)

	s.dev.scanErr = nil
	s.dev.advs = []ble.Advertisement{newAdvertisement("H10", "AA:BB:CC:DD:EE:FF", -58, ble.UUID16(0x180D))}
	m.StartMonitoring(nil, device.ScanSettings{})

	found, ok := nextEvent(m.Events()).(events.DeviceFound)
	s.Require().True(ok, "second scan MUST find the device instead of failing with a scan in progress")
	s.Equal("H10", found.Name)
}

func nextEvent(ch <-chan events.Event) events.Event {
	select {
	case e := <-ch:
		return e
	case <-time.After(2 * time.Second):
		return nil
	}
}

func TestAdapterTestSuite(t *testing.T) {
	suite.Run(t, new(AdapterTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		msg    string
		target error
	}{
		{"central manager has invalid state: have=4 want=5: is Bluetooth turned on?", device.ErrBluetoothOff},
		{"Bluetooth is turned off", device.ErrBluetoothOff},
		{"can't init hci: no devices available", device.ErrBluetoothOff},
		{"device not connected", device.ErrNotConnected},
		{"peripheral disconnected", device.ErrNotConnected},
		{"device already connected", device.ErrAlreadyConnected},
		{"connection is not initialized", device.ErrNotInitialized},
		{"context deadline exceeded", device.ErrTimeout},
	}
	for _, tt := range tests {
		err := NormalizeError(errors.New(tt.msg))
		assert.ErrorIs(t, err, tt.target, "%q MUST normalize to %v", tt.msg, tt.target)
		assert.Contains(t, err.Error(), tt.msg, "original message MUST be preserved")
	}

	assert.NoError(t, NormalizeError(nil))
	other := errors.New("something else")
	assert.Same(t, other, NormalizeError(other))
}

func TestUUIDConversion(t *testing.T) {
	id, err := toUUID(ble.UUID16(0x2A37))
	require.NoError(t, err)
	assert.Equal(t, device.HeartRateMeasurementCharacteristic, id)

	custom := uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	back, err := toUUID(fromUUID(custom))
	require.NoError(t, err)
	assert.Equal(t, custom, back)

	assert.True(t, fromUUID(device.HeartRateService).Equal(ble.UUID16(0x180D)), "SIG UUIDs MUST use the 16-bit alias")
}

func TestConvertProfile(t *testing.T) {
	logger := logrus.New()
	hrm := &ble.Characteristic{UUID: ble.UUID16(0x2A37), Property: ble.CharNotify}
	location := &ble.Characteristic{UUID: ble.UUID16(0x2A38), Property: ble.CharRead}
	profile := &ble.Profile{Services: []*ble.Service{{
		UUID:            ble.UUID16(0x180D),
		Characteristics: []*ble.Characteristic{hrm, location},
	}}}

	services := convertProfile(profile, logger)
	require.Contains(t, services, device.HeartRateService)
	svc := services[device.HeartRateService]

	c, ok := svc.Characteristic(device.HeartRateMeasurementCharacteristic)
	require.True(t, ok)
	_, ok = c.Descriptor(device.ClientCharacteristicConfigDescriptor)
	assert.True(t, ok, "notifying characteristics MUST expose a CCCD")

	c, ok = svc.Characteristic(device.BodySensorLocationCharacteristic)
	require.True(t, ok)
	_, ok = c.Descriptor(device.ClientCharacteristicConfigDescriptor)
	assert.False(t, ok)

	assert.Empty(t, convertProfile(nil, logger))
}

func TestPropertyNames(t *testing.T) {
	assert.Equal(t, []string{"Read", "Notify"}, PropertyNames(ble.CharRead|ble.CharNotify))
	assert.Empty(t, PropertyNames(0))
}

func TestToScanResult(t *testing.T) {
	adv := newAdvertisement("", "AA:BB", -70, ble.UUID16(0x180F))
	r := toScanResult(adv)
	assert.Equal(t, "", r.Peripheral.Name())
	assert.Equal(t, "AA:BB", r.Peripheral.Address())
	assert.Equal(t, []uuid.UUID{device.BatteryService}, r.Services)
	adv.AssertExpectations(t)
}
