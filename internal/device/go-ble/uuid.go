package goble

import (
	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
)

// toUUID converts a go-ble UUID (little-endian bytes) to its canonical 128-bit form.
func toUUID(u ble.UUID) (uuid.UUID, error) {
	return device.ParseUUID(u.String())
}

// fromUUID converts a 128-bit UUID to go-ble form, using the 16-bit alias for SIG-base UUIDs
// so it compares equal to what the radio stack reports.
func fromUUID(id uuid.UUID) ble.UUID {
	if device.IsSIGBase(id) {
		return ble.MustParse(device.ShortenUUID(id))
	}
	return ble.MustParse(id.String())
}
