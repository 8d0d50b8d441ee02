package main

import (
	"errors"
	"fmt"

	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/monitor"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the link dropped while the session still needed it.
	// A disconnect the session asked for is not reported.
	ErrConnectionLost = errors.New("connection lost")

	// ErrDeviceInfoIncomplete means a Device Information read failed, so the record can never complete.
	ErrDeviceInfoIncomplete = errors.New("device information incomplete")
)

// FatalEventError wraps the failure event that ended a monitoring session.
type FatalEventError struct {
	Kind  string
	Cause error
}

func (e *FatalEventError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *FatalEventError) Unwrap() error { return e.Cause }

// FormatUserError turns an error into a message with a hint for the common cases.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return fmt.Sprintf("%v (turn Bluetooth on and retry)", err)
	case errors.Is(err, device.ErrUnsupported):
		return fmt.Sprintf("%v (pick another --adapter)", err)
	case errors.Is(err, monitor.ErrMonitoringTimeout):
		return fmt.Sprintf("%v (is the sensor advertising? try a longer scan_timeout)", err)
	case errors.Is(err, ErrConnectionLost):
		return fmt.Sprintf("%v (the sensor went out of range or was switched off)", err)
	case errors.Is(err, ErrDeviceInfoIncomplete):
		return fmt.Sprintf("%v (the sensor does not expose every Device Information value)", err)
	default:
		return err.Error()
	}
}
