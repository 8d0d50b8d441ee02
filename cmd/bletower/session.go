package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/internal/heartrate"
	"github.com/srg/bletower/internal/monitor"
)

// sessionPlan says what a session does once the sensor's services are known.
type sessionPlan struct {
	autoConnect bool
	readInfo    bool
	readState   bool // battery level and sensor location
	observe     bool
	exitOnInfo  bool
}

// runSession prints events and drives the follow-up commands until ctx is done,
// the stream closes, or a failure ends the session.
func runSession(ctx context.Context, hr *heartrate.Monitor, printer *eventPrinter, plan sessionPlan, logger *logrus.Logger) error {
	connected := false
	for {
		select {
		case <-ctx.Done():
			logger.Debug("Session interrupted")
			return nil
		case e, ok := <-hr.Events():
			if !ok {
				return nil
			}
			if err := printer.Print(e); err != nil {
				return err
			}

			switch ev := e.(type) {
			case events.DeviceFound:
				logger.WithFields(logrus.Fields{"name": ev.Name, "address": ev.Address}).Info("Connecting to sensor")
				hr.ConnectToPeripheral(plan.autoConnect)

			case events.ConnectionStateChanged:
				switch ev.State {
				case device.StateConnected:
					connected = true
				case device.StateDisconnected:
					if connected {
						return ErrConnectionLost
					}
				}

			case events.ServiceDiscovered:
				if plan.readInfo {
					hr.ReadDeviceInformation()
				}
				if plan.readState {
					hr.ReadSensorLocation()
					hr.ReadBatteryLevel()
				}
				if plan.observe {
					hr.StartObservingMeasurement()
					hr.StartObservingBattery()
				}

			case events.DeviceInformationReceived:
				if plan.exitOnInfo {
					if err := ev.Result.Err(); err != nil {
						return &FatalEventError{Kind: ev.Kind(), Cause: err}
					}
					return nil
				}
			}

			if err := plan.fatalError(e); err != nil {
				return err
			}
		}
	}
}

// fatalError reports the events that end a session. Read and write failures do not,
// and neither does a characteristic the sensor lacks, unless the session exists
// only to read device information. Such a session issues no other reads, so any
// failed read leaves the record incomplete.
func (p sessionPlan) fatalError(e events.Event) error {
	switch ev := e.(type) {
	case events.MonitoringFailed:
		var resolution *monitor.ResolutionError
		var interpretation *monitor.InterpretationError
		switch {
		case errors.As(ev.Cause, &resolution) && !p.exitOnInfo:
			return nil
		case errors.As(ev.Cause, &interpretation):
			return nil
		}
		return &FatalEventError{Kind: ev.Kind(), Cause: ev.Cause}
	case events.ReadFailed:
		if !p.exitOnInfo || p.readState {
			return nil
		}
		msg := "read failed"
		if ev.Message != nil {
			msg = *ev.Message
		}
		return &FatalEventError{Kind: ev.Kind(), Cause: fmt.Errorf("%w: %s", ErrDeviceInfoIncomplete, msg)}
	case events.ScanFailed:
		return &FatalEventError{Kind: ev.Kind(), Cause: fmt.Errorf("%s (code %d)", ev.Message, ev.Code)}
	case events.ConnectFailed:
		msg := "connect failed"
		if ev.Message != nil {
			msg = *ev.Message
		}
		return &FatalEventError{Kind: ev.Kind(), Cause: errors.New(msg)}
	case events.ServiceDiscoveryFailed:
		return &FatalEventError{Kind: ev.Kind(), Cause: fmt.Errorf("%s (status %d)", ev.Message, ev.Code)}
	default:
		return nil
	}
}
