package goble

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/groutine"
)

// Name is the adapter name used for selection
const Name = "go-ble"

// ErrScanInProgress is returned by StartScan while another scan runs.
var ErrScanInProgress = errors.New("scan already in progress")

// Options tunes the go-ble adapter
type Options struct {
	// ConnectTimeout bounds a direct (non auto-connect) dial. Zero means no bound.
	ConnectTimeout time.Duration
}

// Adapter implements device.Adapter on top of a go-ble device.
// The ble.Device is created lazily on first use with DeviceFactory.
type Adapter struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu   sync.Mutex
	dev  ble.Device
	scan *scanRun
}

type scanRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewAdapter creates a go-ble adapter
func NewAdapter(logger *logrus.Logger, opts Options) *Adapter {
	if logger == nil {
		logger = logrus.New()
	}
	return &Adapter{logger: logger, connectTimeout: opts.ConnectTimeout}
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) device() (ble.Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.dev != nil {
		return a.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		a.logger.WithError(err).Error("Failed to create BLE device")
		return nil, NormalizeError(err)
	}
	a.dev = dev
	return dev, nil
}

// Enabled creates the radio device if needed; creation fails when the radio is off.
func (a *Adapter) Enabled() error {
	_, err := a.device()
	return err
}

// StartScan scans until StopScan. Filters are applied here since go-ble scans unfiltered.
func (a *Adapter) StartScan(filters []device.ScanFilter, settings device.ScanSettings, cb device.ScanCallback) error {
	dev, err := a.device()
	if err != nil {
		return err
	}

	a.mu.Lock()
	if a.scan != nil {
		a.mu.Unlock()
		return ErrScanInProgress
	}
	ctx, cancel := context.WithCancel(context.Background())
	run := &scanRun{cancel: cancel, done: make(chan struct{})}
	a.scan = run
	a.mu.Unlock()

	var batch *batcher
	if settings.ReportDelay > 0 {
		batch = &batcher{}
	}

	handler := func(adv ble.Advertisement) {
		r := toScanResult(adv)
		if !device.MatchesFilters(r, filters) {
			return
		}
		if batch != nil {
			batch.add(r)
			return
		}
		cb.OnScanResult(r)
	}

	a.logger.WithFields(logrus.Fields{
		"filters":          len(filters),
		"allow_duplicates": settings.AllowDuplicates,
		"report_delay":     settings.ReportDelay,
	}).Debug("Starting go-ble scan")

	groutine.Go(ctx, "goble-scan", func(ctx context.Context) {
		defer close(run.done)

		var wg sync.WaitGroup
		if batch != nil {
			wg.Add(1)
			groutine.Go(ctx, "goble-scan-batch", func(ctx context.Context) {
				defer wg.Done()
				batch.run(ctx, settings.ReportDelay, cb)
			})
		}

		err := dev.Scan(ctx, settings.AllowDuplicates, handler)
		if err != nil && ctx.Err() == nil {
			a.logger.WithError(err).Error("Scan stopped unexpectedly")
			cb.OnScanFailed(device.ScanFailedInternalError)
			cancel()
		}
		wg.Wait()
	})
	return nil
}

// StopScan stops the running scan and waits for its goroutines to exit.
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	run := a.scan
	a.scan = nil
	a.mu.Unlock()

	if run == nil {
		return nil
	}
	run.cancel()
	<-run.done
	return nil
}

// Connect dials the peripheral in the background; the outcome arrives on cb.
// A direct connection is bounded by the connect timeout, an auto-connect one is not.
func (a *Adapter) Connect(p device.Peripheral, autoConnect bool, cb device.GattCallback) (device.Gatt, error) {
	dev, err := a.device()
	if err != nil {
		return nil, err
	}

	timeout := a.connectTimeout
	if autoConnect {
		timeout = 0
	}

	g := newGatt(p, cb, a.logger)
	groutine.Go(g.ctx, "goble-connect", func(ctx context.Context) {
		g.dial(ctx, dev, timeout)
	})
	return g, nil
}

// batcher collects scan results for delivery every report delay.
type batcher struct {
	mu      sync.Mutex
	pending []device.ScanResult
}

func (b *batcher) add(r device.ScanResult) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pending = append(b.pending, r)
}

func (b *batcher) take() []device.ScanResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

func (b *batcher) run(ctx context.Context, every time.Duration, cb device.ScanCallback) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if rs := b.take(); len(rs) > 0 {
				cb.OnBatchScanResults(rs)
			}
		}
	}
}
