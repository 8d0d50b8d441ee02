package device

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// bluetoothBaseUUID is the Bluetooth SIG base UUID: 0000xxxx-0000-1000-8000-00805f9b34fb
var bluetoothBaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// ShortUUID expands a 16- or 32-bit assigned number into a full 128-bit SIG-base UUID.
func ShortUUID(v uint32) uuid.UUID {
	u := bluetoothBaseUUID
	u[0] = byte(v >> 24)
	u[1] = byte(v >> 16)
	u[2] = byte(v >> 8)
	u[3] = byte(v)
	return u
}

// ParseUUID accepts a full 128-bit UUID (with or without dashes) or a 16/32-bit
// short form ("180d", "0x180D", "0000180d") and returns the 128-bit value.
func ParseUUID(s string) (uuid.UUID, error) {
	str := strings.TrimSpace(s)
	str = strings.TrimPrefix(strings.TrimPrefix(str, "0x"), "0X")
	switch len(str) {
	case 4, 8:
		v, err := strconv.ParseUint(str, 16, 32)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return ShortUUID(uint32(v)), nil
	default:
		u, err := uuid.Parse(str)
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid UUID %q: %w", s, err)
		}
		return u, nil
	}
}

// ParseUUIDs parses a list of UUID strings, failing on the first bad entry
func ParseUUIDs(ss ...string) ([]uuid.UUID, error) {
	result := make([]uuid.UUID, 0, len(ss))
	for i, s := range ss {
		if s == "" {
			return nil, fmt.Errorf("UUID at index %d cannot be empty", i)
		}
		u, err := ParseUUID(s)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, nil
}

// IsSIGBase reports whether u lies on the Bluetooth SIG base and can be shown in short form.
func IsSIGBase(u uuid.UUID) bool {
	return u[0] == 0 && u[1] == 0 && string(u[4:]) == string(bluetoothBaseUUID[4:])
}

// ShortenUUID returns the 16-bit form for SIG-base UUIDs ("180d") and the full string otherwise.
func ShortenUUID(u uuid.UUID) string {
	if IsSIGBase(u) {
		return fmt.Sprintf("%02x%02x", u[2], u[3])
	}
	return u.String()
}
