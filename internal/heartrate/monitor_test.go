package heartrate

import (
	"testing"
	"time"

	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/monitor"
	"github.com/srg/bletower/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type HeartRateMonitorTestSuite struct {
	testutils.FakeAdapterSuite

	monitor *Monitor
	rec     *testutils.EventRecorder
}

func (s *HeartRateMonitorTestSuite) SetupTest() {
	s.FakeAdapterSuite.SetupTest()
	s.monitor = New(s.Adapter, monitor.Options{
		Logger:          s.Logger,
		DisconnectGrace: time.Millisecond,
	})
	s.rec = testutils.NewEventRecorder(s.T(), s.monitor.Events())
}

func (s *HeartRateMonitorTestSuite) TearDownTest() {
	s.Require().NoError(s.monitor.Close())
	s.FakeAdapterSuite.TearDownTest()
}

func (s *HeartRateMonitorTestSuite) connect() *testutils.FakeGatt {
	s.monitor.StartMonitoring([]device.ScanFilter{{Service: device.HeartRateService}}, device.ScanSettings{})
	s.Require().Eventually(s.Adapter.Scanning, testutils.DefaultEventTimeout, 5*time.Millisecond, "scan MUST start")

	s.Adapter.EmitScanResult(testutils.NewScanResult("Band", "01:02:03:04:05:06", -48)) // no heart rate service
	s.Adapter.EmitScanResult(testutils.NewScanResult("H10", "AA:BB:CC:DD:EE:FF", -61, "180D"))
	found := testutils.WaitFor[events.DeviceFound](s.rec, testutils.DefaultEventTimeout)
	s.Require().Equal("H10", found.Name, "filter on the heart rate service MUST skip other peripherals")

	s.monitor.ConnectToPeripheral(false)
	testutils.WaitFor[events.ServiceDiscovered](s.rec, testutils.DefaultEventTimeout)

	g := s.Adapter.Gatt()
	s.Require().NotNil(g)
	return g
}

func (s *HeartRateMonitorTestSuite) TestReadMeasurement() {
	s.connect()

	s.monitor.ReadMeasurement()
	hr := testutils.WaitFor[events.HeartRateRead](s.rec, testutils.DefaultEventTimeout)
	s.Equal(100, hr.Result.Get(), "[0x64] MUST read as 100 bpm")
}

func (s *HeartRateMonitorTestSuite) TestReadBatteryAndLocation() {
	s.connect()

	s.monitor.ReadBatteryLevel()
	battery := testutils.WaitFor[events.BatteryLevelRead](s.rec, testutils.DefaultEventTimeout)
	s.Equal(85, battery.Result.Get())

	s.monitor.ReadSensorLocation()
	location := testutils.WaitFor[events.SensorLocationRead](s.rec, testutils.DefaultEventTimeout)
	s.Equal("Chest", location.Result.Get())

	s.Adapter.Profile().SetValue("2A38", []byte{0x0A})
	s.monitor.ReadSensorLocation()
	location = testutils.WaitFor[events.SensorLocationRead](s.rec, testutils.DefaultEventTimeout)
	s.True(location.Result.IsOk())
	s.Equal("Unknown", location.Result.Get())
}

func (s *HeartRateMonitorTestSuite) TestEmptyMeasurementIsFailure() {
	s.Adapter.Profile().SetValue("2A37", []byte{})
	s.connect()

	s.monitor.ReadMeasurement()
	hr := testutils.WaitFor[events.HeartRateRead](s.rec, testutils.DefaultEventTimeout)
	s.ErrorIs(hr.Result.Err(), monitor.ErrInvalidData)
}

func (s *HeartRateMonitorTestSuite) TestReadDeviceInformation() {
	s.connect()

	s.monitor.ReadDeviceInformation()
	info := testutils.WaitFor[events.DeviceInformationReceived](s.rec, testutils.DefaultEventTimeout)
	s.Equal("Acme", info.Result.Get().ManufacturerName)
	s.Equal("3.2", info.Result.Get().SoftwareRevision)
}

func (s *HeartRateMonitorTestSuite) TestResetEnergyExpended() {
	// GOAL: Verify the reset command writes 0x01 to the control point and reports the acknowledgement
	//
	// TEST SCENARIO: Connect → ResetEnergyExpended → write recorded, EnergyExpendedReset{true}
	g := s.connect()

	s.monitor.ResetEnergyExpended()
	reset := testutils.WaitFor[events.EnergyExpendedReset](s.rec, testutils.DefaultEventTimeout)
	s.True(reset.Result.Get())

	writes := g.Writes()
	s.Require().Len(writes, 1)
	s.Equal(device.HeartRateControlPointCharacteristic, writes[0].UUID)
	s.Equal([]byte{0x01}, writes[0].Value)
}

func (s *HeartRateMonitorTestSuite) TestResetEnergyExpendedFailure() {
	// GOAL: Verify a failed control point write yields both the generic and the domain failure
	//
	// TEST SCENARIO: Write completes with status 128 → WriteFailed{128} and EnergyExpendedReset failure
	g := s.connect()
	g.Configure(func(g *testutils.FakeGatt) { g.WriteCompletionStatus = 128 })

	s.monitor.ResetEnergyExpended()
	failed := testutils.WaitFor[events.WriteFailed](s.rec, testutils.DefaultEventTimeout)
	s.Require().NotNil(failed.Code)
	s.Equal(128, *failed.Code)

	reset := testutils.WaitFor[events.EnergyExpendedReset](s.rec, testutils.DefaultEventTimeout)
	s.False(reset.Result.IsOk(), "reset MUST report the failed write")
}

func (s *HeartRateMonitorTestSuite) TestObservingMeasurementAndBattery() {
	// GOAL: Verify notifications are enabled and pushed values are interpreted like reads
	//
	// TEST SCENARIO: Observe both → CCCD written twice → pushes yield HeartRateRead and BatteryLevelRead
	g := s.connect()

	s.monitor.StartObservingMeasurement()
	s.monitor.StartObservingBattery()
	s.Require().Eventually(func() bool { return len(g.Writes()) == 2 }, testutils.DefaultEventTimeout, 5*time.Millisecond)
	for _, w := range g.Writes() {
		s.Equal(device.ClientCharacteristicConfigDescriptor, w.UUID)
		s.Equal(device.EnableNotificationValue, w.Value)
	}

	g.Notify("2A37", []byte{0x48, 0x01})
	hr := testutils.WaitFor[events.HeartRateRead](s.rec, testutils.DefaultEventTimeout)
	s.Equal(72, hr.Result.Get(), "pushed measurement MUST read as its first byte")

	g.Notify("2A19", []byte{77})
	battery := testutils.WaitFor[events.BatteryLevelRead](s.rec, testutils.DefaultEventTimeout)
	s.Equal(77, battery.Result.Get())
}

func (s *HeartRateMonitorTestSuite) TestFlagDecodingInterpreter() {
	// GOAL: Verify a flags-aware interpreter passed in the options is kept
	//
	// TEST SCENARIO: Monitor built with Interpreter{DecodeFlags} → uint16 measurement pushed → 300 bpm
	s.Require().NoError(s.monitor.Close())
	s.monitor = New(s.Adapter, monitor.Options{
		Logger:          s.Logger,
		DisconnectGrace: time.Millisecond,
		Interpreter:     Interpreter{DecodeFlags: true},
	})
	s.rec = testutils.NewEventRecorder(s.T(), s.monitor.Events())
	g := s.connect()

	g.Notify("2A37", []byte{0x01, 0x2C, 0x01})
	hr := testutils.WaitFor[events.HeartRateRead](s.rec, testutils.DefaultEventTimeout)
	s.Equal(300, hr.Result.Get())
}

func (s *HeartRateMonitorTestSuite) TestCommandsWithoutConnection() {
	s.monitor.ReadMeasurement()
	failed := testutils.WaitFor[events.MonitoringFailed](s.rec, testutils.DefaultEventTimeout)
	s.ErrorIs(failed.Cause, monitor.ErrPeripheralNotConnected)
}

func (s *HeartRateMonitorTestSuite) TestStopMonitoringDisconnects() {
	g := s.connect()

	s.monitor.StopMonitoring()
	for {
		e := testutils.WaitFor[events.ConnectionStateChanged](s.rec, testutils.DefaultEventTimeout)
		if e.State == device.StateDisconnected {
			break
		}
	}
	s.Eventually(g.Closed, testutils.DefaultEventTimeout, 5*time.Millisecond)
}

func TestHeartRateMonitorTestSuite(t *testing.T) {
	suite.Run(t, new(HeartRateMonitorTestSuite))
}
