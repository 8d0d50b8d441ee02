// Package scanner collects advertising peripherals into a registry keyed by address.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
)

// ProgressCallback is called when the scan phase changes
type ProgressCallback func(phase string)

// Scan phases reported through ProgressCallback
const (
	PhaseScanning   = "Scanning"
	PhaseProcessing = "Processing results"
)

// ErrScanFailed is wrapped by errors reported by the adapter during a scan.
var ErrScanFailed = errors.New("scan failed")

// DeviceEntry is the latest advertisement seen from one address.
type DeviceEntry struct {
	Name     string
	Address  string
	RSSI     int
	Services []uuid.UUID
	LastSeen time.Time
	// Seen counts advertisements received from the address.
	Seen int
}

// ScanOptions configures scanning behavior
type ScanOptions struct {
	Duration        time.Duration
	DuplicateFilter bool
	ServiceUUIDs    []uuid.UUID
	AllowList       []string
	BlockList       []string
}

// DefaultScanOptions returns default scanning options
func DefaultScanOptions() *ScanOptions {
	return &ScanOptions{
		Duration:        10 * time.Second,
		DuplicateFilter: true,
	}
}

// Scanner handles peripheral discovery over a radio adapter
type Scanner struct {
	adapter device.Adapter
	logger  *logrus.Logger

	mu  sync.Mutex // serializes Scan
	now func() time.Time
}

// session is the scan callback for one Scan call. Results arriving after the
// call returned land in a registry nobody reads.
type session struct {
	logger  *logrus.Logger
	devices *hashmap.Map[string, DeviceEntry]
	opts    *ScanOptions
	now     func() time.Time
	failed  chan int
}

// NewScanner creates a new scanner over adapter
func NewScanner(adapter device.Adapter, logger *logrus.Logger) (*Scanner, error) {
	if adapter == nil {
		return nil, fmt.Errorf("scanner needs an adapter: %w", device.ErrNotInitialized)
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{
		adapter: adapter,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Scan runs until ctx is done, opts.Duration elapses or the adapter reports a failure,
// and returns the peripherals seen, keyed by address.
func (s *Scanner) Scan(ctx context.Context, opts *ScanOptions, progressCallback ProgressCallback) (map[string]DeviceEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opts == nil {
		opts = DefaultScanOptions()
	}
	if progressCallback == nil {
		progressCallback = func(string) {} // No-op callback
	}

	if err := s.adapter.Enabled(); err != nil {
		return nil, err
	}

	sess := &session{
		logger:  s.logger,
		devices: hashmap.New[string, DeviceEntry](),
		opts:    opts,
		now:     s.now,
		failed:  make(chan int, 1),
	}

	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	s.logger.WithField("duration", opts.Duration).Info("Starting BLE scan...")
	progressCallback(PhaseScanning)

	filters := make([]device.ScanFilter, 0, len(opts.ServiceUUIDs))
	for _, id := range opts.ServiceUUIDs {
		filters = append(filters, device.ScanFilter{Service: id})
	}
	settings := device.ScanSettings{AllowDuplicates: !opts.DuplicateFilter}
	if err := s.adapter.StartScan(filters, settings, sess); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScanFailed, err)
	}

	var scanErr error
	select {
	case <-ctx.Done():
	case code := <-sess.failed:
		scanErr = fmt.Errorf("%w: adapter reported code %d", ErrScanFailed, code)
	}

	if err := s.adapter.StopScan(); err != nil {
		s.logger.WithError(err).Warn("Failed to stop scan")
	}

	s.logger.WithField("device_count", sess.devices.Len()).Info("BLE scan completed")
	progressCallback(PhaseProcessing)

	devices := make(map[string]DeviceEntry, sess.devices.Len())
	sess.devices.Range(func(key string, value DeviceEntry) bool {
		devices[key] = value
		return true
	})
	return devices, scanErr
}

// OnScanResult implements device.ScanCallback.
func (s *session) OnScanResult(r device.ScanResult) {
	s.handleResult(r)
}

// OnBatchScanResults implements device.ScanCallback.
func (s *session) OnBatchScanResults(rs []device.ScanResult) {
	for _, r := range rs {
		s.handleResult(r)
	}
}

// OnScanFailed implements device.ScanCallback.
func (s *session) OnScanFailed(code int) {
	select {
	case s.failed <- code:
	default:
	}
}

// handleResult updates an existing entry or adds a new one
func (s *session) handleResult(r device.ScanResult) {
	if r.Peripheral == nil || !s.shouldInclude(r.Peripheral.Address()) {
		return
	}

	seenAt := r.Timestamp
	if seenAt.IsZero() {
		seenAt = s.now()
	}
	entry := DeviceEntry{
		Name:     r.Peripheral.Name(),
		Address:  r.Peripheral.Address(),
		RSSI:     r.RSSI,
		Services: r.Services,
		LastSeen: seenAt,
		Seen:     1,
	}

	prev, existing := s.devices.GetOrInsert(entry.Address, entry)
	if !existing {
		s.logger.WithFields(logrus.Fields{
			"device":  entry.Name,
			"address": entry.Address,
			"rssi":    entry.RSSI,
		}).Info("Discovered new device")
		return
	}

	entry.Seen = prev.Seen + 1
	if entry.Name == "" {
		entry.Name = prev.Name
	}
	if len(entry.Services) == 0 {
		entry.Services = prev.Services
	}
	s.devices.Set(entry.Address, entry)
}

// shouldInclude applies the allow and block lists
func (s *session) shouldInclude(addr string) bool {
	for _, blocked := range s.opts.BlockList {
		if strings.EqualFold(addr, blocked) {
			return false
		}
	}
	if len(s.opts.AllowList) == 0 {
		return true
	}
	for _, allowed := range s.opts.AllowList {
		if strings.EqualFold(addr, allowed) {
			return true
		}
	}
	return false
}
