// Package metrics exposes Prometheus counters for the peripheral monitor.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsEmittedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bletower_events_emitted_total",
		Help: "Total number of events accepted by the monitor stream, by kind",
	}, []string{"kind"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bletower_events_dropped_total",
		Help: "Total number of buffered events discarded because the stream was full, by kind",
	}, []string{"kind"})

	ScansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bletower_scans_total",
		Help: "Total number of scan sessions by outcome",
	}, []string{"outcome"})

	ConnectionStateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bletower_connection_state_transitions_total",
		Help: "Total number of connection state callbacks handled, by new state",
	}, []string{"state"})
)

// Scan outcomes
const (
	ScanStarted  = "started"
	ScanMatched  = "matched"
	ScanTimedOut = "timeout"
	ScanFailed   = "failed"
)

// IncEventEmitted records an event accepted by the stream.
func IncEventEmitted(kind string) {
	EventsEmittedTotal.WithLabelValues(orUnknown(kind)).Inc()
}

// IncEventDropped records an event discarded by the stream.
func IncEventDropped(kind string) {
	EventsDroppedTotal.WithLabelValues(orUnknown(kind)).Inc()
}

// IncScan records a scan session outcome
func IncScan(outcome string) {
	ScansTotal.WithLabelValues(orUnknown(outcome)).Inc()
}

// IncConnectionState records a connection state transition
func IncConnectionState(state string) {
	ConnectionStateTransitionsTotal.WithLabelValues(orUnknown(state)).Inc()
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
