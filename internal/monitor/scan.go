package monitor

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/metrics"
)

const scanFailedMessage = "scan failed with error"

// scanSession lives from StartMonitoring until the first match, the timeout,
// an adapter failure or StopMonitoring. It is only touched in the scan section.
type scanSession struct {
	id      uint64
	filters []device.ScanFilter
	timer   *time.Timer
	started time.Time
}

// StartMonitoring cancels any running scan session and starts a new one. The first
// result matching filters ends the session with DeviceFound; no match within the scan
// timeout ends it with MonitoringFailed.
func (m *Monitor) StartMonitoring(filters []device.ScanFilter, settings device.ScanSettings) {
	m.submit(m.scanSection, "start monitoring", func() {
		m.startScan(filters, settings)
	})
}

// StopMonitoring cancels the scan session and tears down any connection. It does not
// wait for the radio to confirm the disconnect.
func (m *Monitor) StopMonitoring() {
	m.submit(m.scanSection, "stop monitoring", func() {
		m.cancelScan("stop monitoring")
	})
	m.submit(m.connSection, "stop monitoring", func() {
		m.disconnect("stop monitoring")
	})
}

func (m *Monitor) startScan(filters []device.ScanFilter, settings device.ScanSettings) {
	m.cancelScan("restart")

	if err := m.adapter.Enabled(); err != nil {
		m.logger.WithError(err).WithField("adapter", m.adapter.Name()).Error("Radio is not available")
		m.emit(events.MonitoringFailed{Cause: fmt.Errorf("adapter %s: %w", m.adapter.Name(), err)})
		return
	}

	m.session++
	session := &scanSession{
		id:      m.session,
		filters: filters,
		started: time.Now(),
	}

	m.logger.WithFields(logrus.Fields{
		"session":          session.id,
		"filters":          len(filters),
		"allow_duplicates": settings.AllowDuplicates,
		"report_delay":     settings.ReportDelay,
		"timeout":          m.scanTimeout,
	}).Info("Starting scan")

	if err := m.adapter.StartScan(filters, settings, &scanListener{m: m, session: session.id}); err != nil {
		m.logger.WithError(err).Error("Failed to start scan")
		metrics.IncScan(metrics.ScanFailed)
		m.emit(events.MonitoringFailed{Cause: fmt.Errorf("start scan: %w", err)})
		return
	}

	id := session.id
	session.timer = time.AfterFunc(m.scanTimeout, func() {
		m.submit(m.scanSection, "scan timeout", func() {
			m.onScanTimeout(id)
		})
	})
	m.scan = session
	metrics.IncScan(metrics.ScanStarted)
}

// endScan stops the timer and the adapter scan of the active session.
func (m *Monitor) endScan() {
	if m.scan == nil {
		return
	}
	if m.scan.timer != nil {
		m.scan.timer.Stop()
	}
	if err := m.adapter.StopScan(); err != nil {
		m.logger.WithError(err).Warn("Failed to stop scan")
	}
	m.logger.WithFields(logrus.Fields{
		"session":  m.scan.id,
		"duration": time.Since(m.scan.started).Round(time.Millisecond),
	}).Debug("Stopped scanning")
	m.scan = nil
}

func (m *Monitor) cancelScan(reason string) {
	if m.scan == nil {
		return
	}
	m.logger.WithFields(logrus.Fields{
		"session": m.scan.id,
		"reason":  reason,
	}).Info("Cancelling scan session")
	m.endScan()
}

func (m *Monitor) isActive(session uint64) bool {
	return m.scan != nil && m.scan.id == session
}

func (m *Monitor) onScanResults(session uint64, results []device.ScanResult) {
	if !m.isActive(session) {
		m.logger.WithField("session", session).Debug("Scan result for inactive session ignored")
		return
	}

	for _, r := range results {
		if r.Peripheral == nil || !device.MatchesFilters(r, m.scan.filters) {
			continue
		}

		m.endScan()
		m.setPeripheral(r.Peripheral)

		name := r.Peripheral.Name()
		if name == "" {
			name = r.Peripheral.Address()
		}
		m.logger.WithFields(logrus.Fields{
			"name":    name,
			"address": r.Peripheral.Address(),
			"rssi":    r.RSSI,
		}).Info("Device found")

		metrics.IncScan(metrics.ScanMatched)
		m.emit(events.DeviceFound{Name: name, Address: r.Peripheral.Address(), RSSI: r.RSSI})
		return
	}
}

func (m *Monitor) onScanTimeout(session uint64) {
	if !m.isActive(session) {
		return
	}
	m.logger.WithField("timeout", m.scanTimeout).Warn("Stopping scan after timeout")
	m.endScan()
	metrics.IncScan(metrics.ScanTimedOut)
	m.emit(events.MonitoringFailed{Cause: ErrMonitoringTimeout})
}

func (m *Monitor) onScanFailed(session uint64, code int) {
	if !m.isActive(session) {
		m.logger.WithFields(logrus.Fields{"session": session, "code": code}).Debug("Scan failure for inactive session ignored")
		return
	}
	m.logger.WithField("code", code).Error("Scan failed")

	// adapters keep their scan marker until StopScan, even after a failure
	m.endScan()
	metrics.IncScan(metrics.ScanFailed)
	m.emit(events.ScanFailed{Message: scanFailedMessage, Code: code})
}

// scanListener forwards adapter scan callbacks into the scan section, tagged with their session.
type scanListener struct {
	m       *Monitor
	session uint64
}

func (l *scanListener) OnScanResult(result device.ScanResult) {
	l.m.submit(l.m.scanSection, "scan result", func() {
		l.m.onScanResults(l.session, []device.ScanResult{result})
	})
}

func (l *scanListener) OnBatchScanResults(results []device.ScanResult) {
	l.m.submit(l.m.scanSection, "batch scan results", func() {
		l.m.onScanResults(l.session, results)
	})
}

func (l *scanListener) OnScanFailed(code int) {
	l.m.submit(l.m.scanSection, "scan failed", func() {
		l.m.onScanFailed(l.session, code)
	})
}
