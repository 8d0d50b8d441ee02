package device

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ConnectionState is the link state of a peripheral handle.
// Values match the platform profile constants so adapters can pass them through.
type ConnectionState int

const (
	StateDisconnected ConnectionState = 0
	StateConnecting   ConnectionState = 1
	StateConnected    ConnectionState = 2
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// GATT status codes reported by adapters. Anything other than StatusSuccess is a failure;
// adapters may report their own platform codes.
const (
	StatusSuccess = 0
	StatusFailure = 257
)

// Scan failure codes reported through ScanCallback.OnScanFailed.
const (
	ScanFailedAlreadyStarted                = 1
	ScanFailedApplicationRegistrationFailed = 2
	ScanFailedInternalError                 = 3
	ScanFailedFeatureUnsupported            = 4
)

// Peripheral is a discovered, not necessarily connected, radio peer.
type Peripheral interface {
	Name() string
	Address() string
}

// ScanResult is a single advertisement delivered during a scan
type ScanResult struct {
	Peripheral Peripheral
	RSSI       int
	Services   []uuid.UUID
	Timestamp  time.Time
}

// ScanFilter narrows scan results. Empty fields match everything;
// a result must match at least one filter when filters are given.
type ScanFilter struct {
	Name    string
	Address string
	Service uuid.UUID
}

// ScanSettings tunes how an adapter scans.
type ScanSettings struct {
	// AllowDuplicates reports every advertisement instead of the first one per address.
	AllowDuplicates bool
	// ReportDelay batches results; zero delivers results one by one.
	ReportDelay time.Duration
}

// ScanCallback receives scan results from an adapter, on adapter-owned goroutines.
type ScanCallback interface {
	OnScanResult(result ScanResult)
	OnBatchScanResults(results []ScanResult)
	OnScanFailed(code int)
}

// GattCallback receives asynchronous completions for one connection, on adapter-owned goroutines.
type GattCallback interface {
	OnConnectionStateChange(status int, state ConnectionState)
	OnServicesDiscovered(status int)
	OnCharacteristicRead(c GattCharacteristic, value []byte, status int)
	OnCharacteristicChanged(c GattCharacteristic, value []byte)
	OnCharacteristicWrite(c GattCharacteristic, status int)
	OnDescriptorWrite(d GattDescriptor, status int)
}

// GattService is a discovered service on a connected peripheral
type GattService interface {
	UUID() uuid.UUID
	Characteristic(id uuid.UUID) (GattCharacteristic, bool)
}

// GattCharacteristic is a discovered characteristic
type GattCharacteristic interface {
	UUID() uuid.UUID
	Service() uuid.UUID
	Descriptor(id uuid.UUID) (GattDescriptor, bool)
}

// GattDescriptor is a discovered descriptor
type GattDescriptor interface {
	UUID() uuid.UUID
	Characteristic() GattCharacteristic
}

// Gatt is the handle to a connection attempt. It is returned by Adapter.Connect
// before the link is established; state changes arrive on the GattCallback.
//
// Operations that start radio work return false (or a non-success status) when the
// request could not be issued; the result of an issued request arrives on the callback.
type Gatt interface {
	Peripheral() Peripheral

	DiscoverServices() bool
	Service(id uuid.UUID) (GattService, bool)

	ReadCharacteristic(c GattCharacteristic) bool
	WriteCharacteristic(c GattCharacteristic, value []byte) int
	SetCharacteristicNotification(c GattCharacteristic, enabled bool) bool
	WriteDescriptor(d GattDescriptor, value []byte) int

	// Disconnect asks the radio to drop the link. Close releases the handle;
	// no callbacks are delivered after Close.
	Disconnect() error
	Close() error
}

// Adapter is the capability set the monitor needs from a radio stack.
type Adapter interface {
	Name() string

	// Enabled returns nil when the radio is powered and usable.
	Enabled() error

	StartScan(filters []ScanFilter, settings ScanSettings, cb ScanCallback) error
	StopScan() error

	Connect(p Peripheral, autoConnect bool, cb GattCallback) (Gatt, error)
}

// Descriptor values written to the Client Characteristic Configuration descriptor.
var (
	EnableNotificationValue  = []byte{0x01, 0x00}
	EnableIndicationValue    = []byte{0x02, 0x00}
	DisableNotificationValue = []byte{0x00, 0x00}
)

// MatchesFilters reports whether a scan result passes the filter list
func MatchesFilters(r ScanResult, filters []ScanFilter) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		if f.matches(r) {
			return true
		}
	}
	return false
}

func (f ScanFilter) matches(r ScanResult) bool {
	if r.Peripheral == nil {
		return false
	}
	if f.Name != "" && f.Name != r.Peripheral.Name() {
		return false
	}
	if f.Address != "" && !containsIgnoreCase(r.Peripheral.Address(), f.Address) {
		return false
	}
	if f.Service != uuid.Nil {
		found := false
		for _, s := range r.Services {
			if s == f.Service {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
