package heartrate

import (
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/monitor"
)

// resetEnergyExpendedCommand is the Heart Rate Control Point opcode that resets
// the accumulated energy expended.
const resetEnergyExpendedCommand = 0x01

// Monitor is a heart rate sensor monitor. Commands return immediately; results
// arrive on Events.
type Monitor struct {
	base *monitor.Monitor
}

// New creates a heart rate monitor over adapter. opts.Interpreter is kept only
// when it is an Interpreter; anything else is replaced by the default one.
func New(adapter device.Adapter, opts monitor.Options) *Monitor {
	if _, ok := opts.Interpreter.(Interpreter); !ok {
		opts.Interpreter = Interpreter{}
	}
	return &Monitor{base: monitor.New(adapter, opts)}
}

// Events returns the event stream, closed by Close.
func (m *Monitor) Events() <-chan events.Event { return m.base.Events() }

// StreamMetrics returns the event stream counters
func (m *Monitor) StreamMetrics() events.Metrics { return m.base.StreamMetrics() }

// StartMonitoring scans for a peripheral matching filters.
func (m *Monitor) StartMonitoring(filters []device.ScanFilter, settings device.ScanSettings) {
	m.base.StartMonitoring(filters, settings)
}

func (m *Monitor) StopMonitoring() { m.base.StopMonitoring() }

func (m *Monitor) ConnectToPeripheral(autoConnect bool) { m.base.ConnectToPeripheral(autoConnect) }

func (m *Monitor) DisconnectFromPeripheral() { m.base.DisconnectFromPeripheral() }

func (m *Monitor) ReadDeviceInformation() { m.base.ReadDeviceInformation() }

// ReadMeasurement reads the Heart Rate Measurement characteristic once.
func (m *Monitor) ReadMeasurement() {
	m.base.ReadCharacteristic(device.HeartRateService, device.HeartRateMeasurementCharacteristic)
}

func (m *Monitor) ReadBatteryLevel() {
	m.base.ReadCharacteristic(device.BatteryService, device.BatteryLevelCharacteristic)
}

func (m *Monitor) ReadSensorLocation() {
	m.base.ReadCharacteristic(device.HeartRateService, device.BodySensorLocationCharacteristic)
}

// ResetEnergyExpended writes the reset opcode to the Heart Rate Control Point.
// The outcome arrives as EnergyExpendedReset.
func (m *Monitor) ResetEnergyExpended() {
	m.base.WriteCharacteristic(device.HeartRateService, device.HeartRateControlPointCharacteristic, []byte{resetEnergyExpendedCommand})
}

// StartObservingMeasurement enables Heart Rate Measurement notifications.
func (m *Monitor) StartObservingMeasurement() {
	m.base.ObserveCharacteristic(device.HeartRateService, device.HeartRateMeasurementCharacteristic, true)
}

// StartObservingBattery enables Battery Level notifications.
func (m *Monitor) StartObservingBattery() {
	m.base.ObserveCharacteristic(device.BatteryService, device.BatteryLevelCharacteristic, true)
}

// Close stops monitoring and releases every resource. Safe to call more than once.
func (m *Monitor) Close() error { return m.base.Close() }
