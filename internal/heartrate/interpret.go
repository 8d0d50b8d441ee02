package heartrate

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/monitor"
)

const (
	measurementFormatUint16 = 0x01

	UnknownSensorLocation = "Unknown"
)

var sensorLocations = map[byte]string{
	0: "Other",
	1: "Chest",
	2: "Wrist",
	3: "Finger",
	4: "Hand",
	5: "Ear Lobe",
	6: "Foot",
}

// Interpreter maps heart rate profile values to events. It implements monitor.Interpreter.
//
// Measurements are read as their first byte. DecodeFlags switches to the full
// Heart Rate Measurement layout (flags byte, then a uint8 or uint16 value) for
// sensors that send it.
type Interpreter struct {
	DecodeFlags bool
}

var _ monitor.Interpreter = Interpreter{}

func (in Interpreter) InterpretValue(id uuid.UUID, value []byte) events.Event {
	switch id {
	case device.HeartRateMeasurementCharacteristic:
		parse := ParseMeasurement
		if in.DecodeFlags {
			parse = ParseFlaggedMeasurement
		}
		bpm, err := parse(value)
		if err != nil {
			return events.HeartRateRead{Result: events.Fail[int](err)}
		}
		return events.HeartRateRead{Result: events.Ok(bpm)}

	case device.BatteryLevelCharacteristic:
		percent, err := ParseBatteryLevel(value)
		if err != nil {
			return events.BatteryLevelRead{Result: events.Fail[int](err)}
		}
		return events.BatteryLevelRead{Result: events.Ok(percent)}

	case device.BodySensorLocationCharacteristic:
		return events.SensorLocationRead{Result: events.Ok(SensorLocation(value))}
	}
	return nil
}

func (Interpreter) InterpretWrite(id uuid.UUID, err error) events.Event {
	if id != device.HeartRateControlPointCharacteristic {
		return nil
	}
	if err != nil {
		return events.EnergyExpendedReset{Result: events.Fail[bool](err)}
	}
	return events.EnergyExpendedReset{Result: events.Ok(true)}
}

// ParseMeasurement reads beats per minute as the first byte of the value,
// unsigned. Any further bytes are ignored.
func ParseMeasurement(value []byte) (int, error) {
	if len(value) == 0 {
		return 0, monitor.ErrInvalidData
	}
	return int(value[0] & 0xFF), nil
}

// ParseFlaggedMeasurement decodes a Heart Rate Measurement that starts with the
// flags byte, whose bit 0 selects a little-endian uint16 value. A single byte
// carries no flags and is the value itself.
func ParseFlaggedMeasurement(value []byte) (int, error) {
	switch {
	case len(value) == 0:
		return 0, monitor.ErrInvalidData
	case len(value) == 1:
		return int(value[0]), nil
	}

	flags := value[0]
	if flags&measurementFormatUint16 == 0 {
		return int(value[1]), nil
	}
	if len(value) < 3 {
		return 0, fmt.Errorf("%w: uint16 heart rate needs 3 bytes, got %d", monitor.ErrInvalidData, len(value))
	}
	return int(binary.LittleEndian.Uint16(value[1:3])), nil
}

// ParseBatteryLevel decodes a Battery Level value as a percentage
func ParseBatteryLevel(value []byte) (int, error) {
	if len(value) == 0 {
		return 0, monitor.ErrInvalidData
	}
	return int(value[0] & 0xFF), nil
}

// SensorLocation names a Body Sensor Location value. Empty or unlisted values
// read as UnknownSensorLocation.
func SensorLocation(value []byte) string {
	if len(value) == 0 {
		return UnknownSensorLocation
	}
	if name, ok := sensorLocations[value[0]]; ok {
		return name
	}
	return UnknownSensorLocation
}
