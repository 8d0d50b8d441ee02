package events

import (
	"fmt"

	"github.com/srg/bletower/internal/device"
)

// Event is an observable occurrence on the monitor stream. The set of variants is
// closed: only types in this package implement it.
type Event interface {
	// Kind is a stable snake_case name used for logging, metrics and JSON output.
	Kind() string
	isEvent()
}

// DeviceInformation is a completed Device Information record
type DeviceInformation struct {
	ManufacturerName string
	ModelNumber      string
	SerialNumber     string
	HardwareRevision string
	FirmwareRevision string
	SoftwareRevision string
}

// MonitoringFailed reports configuration, resolution and timeout failures.
type MonitoringFailed struct {
	Cause error
}

// ScanFailed reports an adapter-side scan failure
type ScanFailed struct {
	Message string
	Code    int
}

// DeviceFound reports the first peripheral that matched the scan.
type DeviceFound struct {
	Name    string
	Address string
	RSSI    int
}

type ConnectionStateChanged struct {
	State device.ConnectionState
}

type ServiceDiscovered struct {
	Code int
}

type ServiceDiscoveryFailed struct {
	Message string
	Code    int
}

// ReadFailed reports a characteristic read failure. Message and Code are nil when
// the radio refused the request without detail.
type ReadFailed struct {
	Message *string
	Code    *int
}

// WriteFailed reports a characteristic or descriptor write failure. Message and Code
// are nil when the radio refused the request without detail.
type WriteFailed struct {
	Message *string
	Code    *int
}

type ConnectFailed struct {
	Message *string
}

type DeviceInformationReceived struct {
	Result Result[DeviceInformation]
}

// Unknown carries pushes and reads nobody interprets.
type Unknown struct {
	Message *string
}

// Heart rate variants

type HeartRateRead struct {
	Result Result[int]
}

type BatteryLevelRead struct {
	Result Result[int]
}

type SensorLocationRead struct {
	Result Result[string]
}

type EnergyExpendedReset struct {
	Result Result[bool]
}

func (MonitoringFailed) Kind() string          { return "monitoring_failed" }
func (ScanFailed) Kind() string                { return "scan_failed" }
func (DeviceFound) Kind() string               { return "device_found" }
func (ConnectionStateChanged) Kind() string    { return "connection_state_changed" }
func (ServiceDiscovered) Kind() string         { return "service_discovered" }
func (ServiceDiscoveryFailed) Kind() string    { return "service_discovery_failed" }
func (ReadFailed) Kind() string                { return "read_failed" }
func (WriteFailed) Kind() string               { return "write_failed" }
func (ConnectFailed) Kind() string             { return "connect_failed" }
func (DeviceInformationReceived) Kind() string { return "device_information_received" }
func (Unknown) Kind() string                   { return "unknown" }
func (HeartRateRead) Kind() string             { return "heart_rate_read" }
func (BatteryLevelRead) Kind() string          { return "battery_level_read" }
func (SensorLocationRead) Kind() string        { return "sensor_location_read" }
func (EnergyExpendedReset) Kind() string       { return "energy_expended_reset" }

func (MonitoringFailed) isEvent()          {}
func (ScanFailed) isEvent()                {}
func (DeviceFound) isEvent()               {}
func (ConnectionStateChanged) isEvent()    {}
func (ServiceDiscovered) isEvent()         {}
func (ServiceDiscoveryFailed) isEvent()    {}
func (ReadFailed) isEvent()                {}
func (WriteFailed) isEvent()               {}
func (ConnectFailed) isEvent()             {}
func (DeviceInformationReceived) isEvent() {}
func (Unknown) isEvent()                   {}
func (HeartRateRead) isEvent()             {}
func (BatteryLevelRead) isEvent()          {}
func (SensorLocationRead) isEvent()        {}
func (EnergyExpendedReset) isEvent()       {}

// Ptr returns a pointer to v, for the optional fields of failure events.
func Ptr[T any](v T) *T {
	return &v
}

// Describe renders an event as a single human-readable line.
func Describe(e Event) string {
	switch ev := e.(type) {
	case MonitoringFailed:
		return fmt.Sprintf("monitoring failed: %v", ev.Cause)
	case ScanFailed:
		return fmt.Sprintf("%s (code %d)", ev.Message, ev.Code)
	case DeviceFound:
		return fmt.Sprintf("found %s [%s] rssi=%d", ev.Name, ev.Address, ev.RSSI)
	case ConnectionStateChanged:
		return "connection " + ev.State.String()
	case ServiceDiscovered:
		return fmt.Sprintf("services discovered (status %d)", ev.Code)
	case ServiceDiscoveryFailed:
		return fmt.Sprintf("%s (status %d)", ev.Message, ev.Code)
	case ReadFailed:
		return "read failed" + optionalDetail(ev.Message, ev.Code)
	case WriteFailed:
		return "write failed" + optionalDetail(ev.Message, ev.Code)
	case ConnectFailed:
		return "connect failed" + optionalDetail(ev.Message, nil)
	case DeviceInformationReceived:
		info, err := ev.Result.Value()
		if err != nil {
			return "device information: " + err.Error()
		}
		return fmt.Sprintf("device information: manufacturer=%q model=%q serial=%q hardware=%q firmware=%q software=%q",
			info.ManufacturerName, info.ModelNumber, info.SerialNumber,
			info.HardwareRevision, info.FirmwareRevision, info.SoftwareRevision)
	case Unknown:
		return "unknown" + optionalDetail(ev.Message, nil)
	case HeartRateRead:
		return "heart rate: " + ev.Result.String()
	case BatteryLevelRead:
		return "battery level: " + ev.Result.String()
	case SensorLocationRead:
		return "sensor location: " + ev.Result.String()
	case EnergyExpendedReset:
		return "energy expended reset: " + ev.Result.String()
	default:
		return e.Kind()
	}
}

func optionalDetail(msg *string, code *int) string {
	switch {
	case msg != nil && code != nil:
		return fmt.Sprintf(": %s (status %d)", *msg, *code)
	case msg != nil:
		return ": " + *msg
	case code != nil:
		return fmt.Sprintf(" (status %d)", *code)
	default:
		return ""
	}
}
