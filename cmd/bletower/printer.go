package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/srg/bletower/internal/events"
	"github.com/srg/bletower/pkg/config"
	"golang.org/x/term"
)

type severity int

const (
	severityPlain severity = iota
	severityNotice
	severityValue
	severityFailure
)

// eventPrinter writes one line per event, as colored text or as a JSON object.
type eventPrinter struct {
	out    io.Writer
	format string
	now    func() time.Time

	palette map[severity]*color.Color
}

func newEventPrinter(out io.Writer, format string) *eventPrinter {
	p := &eventPrinter{
		out:    out,
		format: format,
		now:    time.Now,
		palette: map[severity]*color.Color{
			severityPlain:   color.New(color.Reset),
			severityNotice:  color.New(color.FgCyan),
			severityValue:   color.New(color.FgGreen, color.Bold),
			severityFailure: color.New(color.FgRed),
		},
	}
	p.setColors(isTerminal(out))
	return p
}

// setColors overrides terminal detection
func (p *eventPrinter) setColors(enabled bool) {
	for _, c := range p.palette {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Print writes e as one line
func (p *eventPrinter) Print(e events.Event) error {
	if p.format == config.FormatJSON {
		data, err := events.MarshalJSON(e)
		if err != nil {
			return fmt.Errorf("failed to encode %s event: %w", e.Kind(), err)
		}
		_, err = fmt.Fprintln(p.out, string(data))
		return err
	}

	line := fmt.Sprintf("%s %-28s %s", p.now().Format("15:04:05.000"), e.Kind(), events.Describe(e))
	_, err := p.palette[severityOf(e)].Fprintln(p.out, line)
	return err
}

func severityOf(e events.Event) severity {
	switch ev := e.(type) {
	case events.MonitoringFailed, events.ScanFailed, events.ServiceDiscoveryFailed,
		events.ReadFailed, events.WriteFailed, events.ConnectFailed:
		return severityFailure
	case events.DeviceFound, events.ConnectionStateChanged, events.ServiceDiscovered:
		return severityNotice
	case events.DeviceInformationReceived:
		return resultSeverity(ev.Result.Err())
	case events.HeartRateRead:
		return resultSeverity(ev.Result.Err())
	case events.BatteryLevelRead:
		return resultSeverity(ev.Result.Err())
	case events.SensorLocationRead:
		return resultSeverity(ev.Result.Err())
	case events.EnergyExpendedReset:
		return resultSeverity(ev.Result.Err())
	default:
		return severityPlain
	}
}

func resultSeverity(err error) severity {
	if err != nil {
		return severityFailure
	}
	return severityValue
}
