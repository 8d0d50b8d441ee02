package device

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		wantErr  bool
	}{
		{name: "16-bit lowercase", input: "2902", expected: "00002902-0000-1000-8000-00805f9b34fb"},
		{name: "16-bit uppercase", input: "180D", expected: "0000180d-0000-1000-8000-00805f9b34fb"},
		{name: "16-bit with 0x prefix", input: "0x2a37", expected: "00002a37-0000-1000-8000-00805f9b34fb"},
		{name: "16-bit with 0X prefix", input: "0X2A19", expected: "00002a19-0000-1000-8000-00805f9b34fb"},
		{name: "32-bit form", input: "0000180a", expected: "0000180a-0000-1000-8000-00805f9b34fb"},
		{name: "full SIG UUID uppercase", input: "0000180A-0000-1000-8000-00805F9B34FB", expected: "0000180a-0000-1000-8000-00805f9b34fb"},
		{name: "full SIG UUID without dashes", input: "0000290200001000800000805f9b34fb", expected: "00002902-0000-1000-8000-00805f9b34fb"},
		{name: "custom 128-bit UUID", input: "6E400001-B5A3-F393-E0A9-E50E24DCCA9E", expected: "6e400001-b5a3-f393-e0a9-e50e24dcca9e"},
		{name: "surrounding whitespace", input: "  2a29 ", expected: "00002a29-0000-1000-8000-00805f9b34fb"},
		{name: "not hex", input: "zzzz", wantErr: true},
		{name: "wrong length", input: "12345", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUUID(tt.input)
			if tt.wantErr {
				assert.Error(t, err, "MUST reject %q", tt.input)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got.String())
		})
	}
}

func TestParseUUIDs(t *testing.T) {
	t.Run("all valid", func(t *testing.T) {
		got, err := ParseUUIDs("180d", "2a37")
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{HeartRateService, HeartRateMeasurementCharacteristic}, got)
	})

	t.Run("empty entry", func(t *testing.T) {
		_, err := ParseUUIDs("180d", "")
		assert.ErrorContains(t, err, "index 1")
	})
}

func TestShortenUUID(t *testing.T) {
	assert.Equal(t, "180d", ShortenUUID(HeartRateService))
	assert.Equal(t, "2902", ShortenUUID(ClientCharacteristicConfigDescriptor))

	custom := uuid.MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	assert.False(t, IsSIGBase(custom), "custom UUID MUST NOT be treated as SIG base")
	assert.Equal(t, custom.String(), ShortenUUID(custom))
}

func TestFixedIdentifiers(t *testing.T) {
	tests := map[string]uuid.UUID{
		"0000180a-0000-1000-8000-00805f9b34fb": DeviceInformationService,
		"00002a29-0000-1000-8000-00805f9b34fb": ManufacturerNameCharacteristic,
		"00002a24-0000-1000-8000-00805f9b34fb": ModelNumberCharacteristic,
		"00002a25-0000-1000-8000-00805f9b34fb": SerialNumberCharacteristic,
		"00002a27-0000-1000-8000-00805f9b34fb": HardwareRevisionCharacteristic,
		"00002a26-0000-1000-8000-00805f9b34fb": FirmwareRevisionCharacteristic,
		"00002a28-0000-1000-8000-00805f9b34fb": SoftwareRevisionCharacteristic,
		"0000180d-0000-1000-8000-00805f9b34fb": HeartRateService,
		"00002a37-0000-1000-8000-00805f9b34fb": HeartRateMeasurementCharacteristic,
		"00002a39-0000-1000-8000-00805f9b34fb": HeartRateControlPointCharacteristic,
		"00002a38-0000-1000-8000-00805f9b34fb": BodySensorLocationCharacteristic,
		"0000180f-0000-1000-8000-00805f9b34fb": BatteryService,
		"00002a19-0000-1000-8000-00805f9b34fb": BatteryLevelCharacteristic,
		"00002902-0000-1000-8000-00805f9b34fb": ClientCharacteristicConfigDescriptor,
	}
	for expected, got := range tests {
		assert.Equal(t, expected, got.String(), "identifier MUST match the assigned number")
	}
}
