package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/devicefactory"
	"github.com/srg/bletower/internal/heartrate"
	"github.com/srg/bletower/pkg/config"
)

// monitorFlags are the per-command overrides of the configuration file.
type monitorFlags struct {
	name        string
	address     string
	services    []string
	format      string
	metricsAddr string
	observe     bool
	readInfo    bool
	autoConnect bool
}

func (f *monitorFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "name", "n", "", "Only monitor the sensor advertising this name")
	cmd.Flags().StringVarP(&f.address, "address", "a", "", "Only monitor the sensor with this address")
	cmd.Flags().StringSliceVarP(&f.services, "service", "s", nil, "Advertised service UUIDs to match (default 180D)")
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Output format (text, json)")
	cmd.Flags().BoolVar(&f.autoConnect, "auto-connect", false, "Let the radio reconnect whenever the sensor is in range")
}

// apply overrides cfg with the flags the user actually set.
func (f *monitorFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("name") {
		cfg.Filter.Name = f.name
	}
	if cmd.Flags().Changed("address") {
		cfg.Filter.Address = f.address
	}
	if cmd.Flags().Changed("service") {
		cfg.Filter.Services = f.services
	}
	if cmd.Flags().Changed("format") {
		cfg.OutputFormat = f.format
	}
	if cmd.Flags().Changed("metrics-addr") {
		cfg.MetricsAddr = f.metricsAddr
	}
	if cmd.Flags().Changed("auto-connect") {
		cfg.AutoConnect = f.autoConnect
	}
}

func newMonitorCmd() *cobra.Command {
	f := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Monitor a heart rate sensor",
		Long: `Scan for a heart rate sensor, connect to it and print every event.

Once services are discovered the sensor location and battery level are read;
--observe streams heart rate and battery notifications and --read-info reads
the Device Information service. Runs until Ctrl+C or a fatal failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, f, sessionPlan{
				readInfo:  f.readInfo,
				readState: true,
				observe:   f.observe,
			})
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&f.observe, "observe", true, "Observe heart rate and battery notifications")
	cmd.Flags().BoolVar(&f.readInfo, "read-info", false, "Read the Device Information service after connecting")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	return cmd
}

func newInfoCmd() *cobra.Command {
	f := &monitorFlags{}
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print a heart rate sensor's device information",
		Long: `Scan for a heart rate sensor, connect to it, read the Device Information
service and exit once the record is complete.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd, f, sessionPlan{readInfo: true, exitOnInfo: true})
		},
	}
	f.register(cmd)
	return cmd
}

func runMonitor(cmd *cobra.Command, f *monitorFlags, plan sessionPlan) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	f.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	filters, err := cfg.ScanFilters()
	if err != nil {
		return err
	}
	if len(filters) == 0 {
		filters = []device.ScanFilter{{Service: device.HeartRateService}}
	}
	plan.autoConnect = cfg.AutoConnect

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, err := devicefactory.NewAdapter(cfg.Adapter, logger, cfg.AdapterOptions())
	if err != nil {
		return fmt.Errorf("failed to create %s adapter: %w", cfg.Adapter, err)
	}

	if cfg.MetricsAddr != "" {
		srv, err := startMetricsServer(cfg.MetricsAddr, logger)
		if err != nil {
			return err
		}
		defer srv.Close()
	}

	opts := cfg.MonitorOptions(logger)
	opts.Interpreter = heartrate.Interpreter{DecodeFlags: cfg.MeasurementFlags}
	hr := heartrate.New(adapter, opts)
	defer func() {
		if err := hr.Close(); err != nil {
			logger.WithError(err).Warn("Failed to close monitor")
		}
		logger.WithField("stream", hr.StreamMetrics()).Debug("Monitor closed")
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hr.StartMonitoring(filters, device.ScanSettings{})
	err = runSession(ctx, hr, newEventPrinter(cmd.OutOrStdout(), cfg.OutputFormat), plan, logger)
	hr.StopMonitoring()
	return err
}
