// Package monitor implements the peripheral monitoring engine: a time-bounded scan
// coordinator, the connection and service discovery state machine, the
// characteristic read/write/observe protocol and the Device Information aggregator.
//
// Radio callbacks are serialized per concern by four serial executors and every
// outcome is published as an events.Event on one bounded stream.
package monitor
