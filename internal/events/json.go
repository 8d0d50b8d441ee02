package events

import (
	"encoding/json"

	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Fields returns the event's payload as an ordered map, "kind" first and the
// variant fields in declaration order.
func Fields(e Event) *orderedmap.OrderedMap[string, any] {
	m := orderedmap.New[string, any]()
	m.Set("kind", e.Kind())

	switch ev := e.(type) {
	case MonitoringFailed:
		m.Set("error", errString(ev.Cause))
	case ScanFailed:
		m.Set("message", ev.Message)
		m.Set("code", ev.Code)
	case DeviceFound:
		m.Set("name", ev.Name)
		m.Set("address", ev.Address)
		m.Set("rssi", ev.RSSI)
	case ConnectionStateChanged:
		m.Set("state", ev.State.String())
	case ServiceDiscovered:
		m.Set("code", ev.Code)
	case ServiceDiscoveryFailed:
		m.Set("message", ev.Message)
		m.Set("code", ev.Code)
	case ReadFailed:
		setOptional(m, ev.Message, ev.Code)
	case WriteFailed:
		setOptional(m, ev.Message, ev.Code)
	case ConnectFailed:
		setOptional(m, ev.Message, nil)
	case Unknown:
		setOptional(m, ev.Message, nil)
	case DeviceInformationReceived:
		info, err := ev.Result.Value()
		if err != nil {
			m.Set("error", err.Error())
			break
		}
		m.Set("manufacturer_name", info.ManufacturerName)
		m.Set("model_number", info.ModelNumber)
		m.Set("serial_number", info.SerialNumber)
		m.Set("hardware_revision", info.HardwareRevision)
		m.Set("firmware_revision", info.FirmwareRevision)
		m.Set("software_revision", info.SoftwareRevision)
	case HeartRateRead:
		setResult(m, "bpm", ev.Result)
	case BatteryLevelRead:
		setResult(m, "percent", ev.Result)
	case SensorLocationRead:
		setResult(m, "location", ev.Result)
	case EnergyExpendedReset:
		setResult(m, "reset", ev.Result)
	}
	return m
}

// MarshalJSON encodes an event as a single JSON object with stable key order.
func MarshalJSON(e Event) ([]byte, error) {
	return json.Marshal(Fields(e))
}

func setOptional(m *orderedmap.OrderedMap[string, any], msg *string, code *int) {
	if msg != nil {
		m.Set("message", *msg)
	}
	if code != nil {
		m.Set("code", *code)
	}
}

func setResult[T any](m *orderedmap.OrderedMap[string, any], key string, r Result[T]) {
	v, err := r.Value()
	if err != nil {
		m.Set("error", err.Error())
		return
	}
	m.Set(key, v)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
