package monitor

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
)

// deviceInfoFields maps the six Device Information characteristics to record fields.
var deviceInfoFields = map[uuid.UUID]func(*events.DeviceInformation) *string{
	device.ManufacturerNameCharacteristic: func(d *events.DeviceInformation) *string { return &d.ManufacturerName },
	device.ModelNumberCharacteristic:      func(d *events.DeviceInformation) *string { return &d.ModelNumber },
	device.SerialNumberCharacteristic:     func(d *events.DeviceInformation) *string { return &d.SerialNumber },
	device.HardwareRevisionCharacteristic: func(d *events.DeviceInformation) *string { return &d.HardwareRevision },
	device.FirmwareRevisionCharacteristic: func(d *events.DeviceInformation) *string { return &d.FirmwareRevision },
	device.SoftwareRevisionCharacteristic: func(d *events.DeviceInformation) *string { return &d.SoftwareRevision },
}

// DeviceInfoCharacteristics lists the six characteristics read by ReadDeviceInformation, in read order.
var DeviceInfoCharacteristics = []uuid.UUID{
	device.ManufacturerNameCharacteristic,
	device.ModelNumberCharacteristic,
	device.SerialNumberCharacteristic,
	device.HardwareRevisionCharacteristic,
	device.FirmwareRevisionCharacteristic,
	device.SoftwareRevisionCharacteristic,
}

// IsDeviceInfoCharacteristic reports whether id is one of the six Device Information characteristics.
func IsDeviceInfoCharacteristic(id uuid.UUID) bool {
	_, ok := deviceInfoFields[id]
	return ok
}

// DeviceInfoAggregator accumulates Device Information values until all six are present.
// The partial record is never exposed.
type DeviceInfoAggregator struct {
	mu      sync.Mutex
	pending events.DeviceInformation
}

// NewDeviceInfoAggregator returns an empty aggregator
func NewDeviceInfoAggregator() *DeviceInfoAggregator {
	return &DeviceInfoAggregator{}
}

// Accept stores value for id. known is false when id is not a Device Information
// characteristic; in that case nothing is stored. When the sixth distinct value
// arrives the completed record is returned with complete set, and the aggregator is reset.
func (a *DeviceInfoAggregator) Accept(id uuid.UUID, value []byte) (info events.DeviceInformation, complete bool, known bool) {
	field, ok := deviceInfoFields[id]
	if !ok {
		return events.DeviceInformation{}, false, false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	*field(&a.pending) = decodeString(value)
	if !isComplete(a.pending) {
		return events.DeviceInformation{}, false, true
	}

	info = a.pending
	a.pending = events.DeviceInformation{}
	return info, true, true
}

// Reset discards any partially collected values.
func (a *DeviceInfoAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending = events.DeviceInformation{}
}

// isEmpty is used by tests to check the reset invariant
func (a *DeviceInfoAggregator) isEmpty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending == events.DeviceInformation{}
}

func isComplete(d events.DeviceInformation) bool {
	return d.ManufacturerName != "" && d.ModelNumber != "" && d.SerialNumber != "" &&
		d.HardwareRevision != "" && d.FirmwareRevision != "" && d.SoftwareRevision != ""
}

// decodeString turns a UTF-8 characteristic value into a string, dropping the NUL
// padding some peripherals append.
func decodeString(value []byte) string {
	return strings.TrimRight(string(value), "\x00")
}
