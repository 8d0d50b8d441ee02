package monitor

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
)

var (
	// ErrPeripheralNotConnected is reported when an operation needs a connected peripheral and none exists.
	ErrPeripheralNotConnected error = &sentinel{msg: "peripheral not connected", cause: device.ErrNotConnected}

	// ErrMonitoringTimeout is reported when a scan ends without a match.
	ErrMonitoringTimeout error = &sentinel{msg: "monitoring timeout", cause: device.ErrTimeout}

	ErrInvalidData = errors.New("invalid data")
)

// sentinel keeps its own message while matching a device-level error with errors.Is.
type sentinel struct {
	msg   string
	cause error
}

func (e *sentinel) Error() string { return e.msg }
func (e *sentinel) Unwrap() error { return e.cause }

// ResolutionError reports a service, characteristic or descriptor missing on the connected peripheral.
type ResolutionError struct {
	Resource string // "service", "characteristic", "descriptor"
	UUID     uuid.UUID
	Parents  []uuid.UUID
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("%s not available: %s", e.Resource, e.UUID)
}

// Unwrap exposes the device-level NotFoundError so callers can match with errors.As.
func (e *ResolutionError) Unwrap() error {
	ids := make([]string, 0, len(e.Parents)+1)
	for _, p := range e.Parents {
		ids = append(ids, p.String())
	}
	return &device.NotFoundError{Resource: e.Resource, UUIDs: append(ids, e.UUID.String())}
}

// InterpretationError wraps a failure raised while turning a payload into an event.
type InterpretationError struct {
	UUID  uuid.UUID
	Cause error
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("interpreting %s: %v", device.ShortenUUID(e.UUID), e.Cause)
}

func (e *InterpretationError) Unwrap() error {
	return e.Cause
}

func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("%v", r)
}
