package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/devicefactory"
	"github.com/srg/bletower/pkg/config"
	"github.com/srg/bletower/scanner"
)

type scanFlags struct {
	duration     time.Duration
	format       string
	services     []string
	allowList    []string
	blockList    []string
	noDuplicates bool
}

func newScanCmd() *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan for BLE devices",
		Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Lists every advertising peripheral with its name, address, RSSI and
advertised services. Press Ctrl+C to stop early.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, f)
		},
	}
	cmd.Flags().DurationVarP(&f.duration, "duration", "d", 10*time.Second, "Scan duration (0 until Ctrl+C)")
	cmd.Flags().StringVarP(&f.format, "format", "f", config.FormatText, "Output format (text, json)")
	cmd.Flags().StringSliceVarP(&f.services, "service", "s", nil, "Filter by advertised service UUIDs")
	cmd.Flags().StringSliceVar(&f.allowList, "allow", nil, "Only show devices with these addresses")
	cmd.Flags().StringSliceVar(&f.blockList, "block", nil, "Hide devices with these addresses")
	cmd.Flags().BoolVar(&f.noDuplicates, "no-duplicates", true, "Filter duplicate advertisements")
	return cmd
}

func runScan(cmd *cobra.Command, f *scanFlags) error {
	validFormats := []string{config.FormatText, config.FormatJSON}
	if f.format != config.FormatText && f.format != config.FormatJSON {
		return fmt.Errorf("invalid format '%s': must be one of %v", f.format, validFormats)
	}
	services, err := device.ParseUUIDs(f.services...)
	if err != nil {
		return fmt.Errorf("invalid service UUID: %w", err)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	adapter, err := devicefactory.NewAdapter(cfg.Adapter, logger, cfg.AdapterOptions())
	if err != nil {
		return fmt.Errorf("failed to create %s adapter: %w", cfg.Adapter, err)
	}
	s, err := scanner.NewScanner(adapter, logger)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	devices, err := s.Scan(ctx, &scanner.ScanOptions{
		Duration:        f.duration,
		DuplicateFilter: f.noDuplicates,
		ServiceUUIDs:    services,
		AllowList:       f.allowList,
		BlockList:       f.blockList,
	}, nil)
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("scan failed")
		return err
	}
	return displayDevices(cmd.OutOrStdout(), devices, f.format)
}

// sortedEntries orders entries by descending RSSI, then address.
func sortedEntries(entries map[string]scanner.DeviceEntry) []scanner.DeviceEntry {
	list := make([]scanner.DeviceEntry, 0, len(entries))
	for _, e := range entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].RSSI != list[j].RSSI {
			return list[i].RSSI > list[j].RSSI
		}
		return list[i].Address < list[j].Address
	})
	return list
}

func displayDevices(w io.Writer, entries map[string]scanner.DeviceEntry, format string) error {
	list := sortedEntries(entries)
	if format == config.FormatJSON {
		return displayDevicesJSON(w, list)
	}
	if len(list) == 0 {
		_, err := fmt.Fprintln(w, "No devices discovered")
		return err
	}
	return displayDevicesTable(w, list)
}

func displayDevicesTable(out io.Writer, entries []scanner.DeviceEntry) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")
	fmt.Fprintln(w, strings.Repeat("-", 64))

	for _, e := range entries {
		name := e.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, e.Address, e.RSSI, joinServices(e))
	}

	return w.Flush()
}

func joinServices(e scanner.DeviceEntry) string {
	ids := make([]string, 0, len(e.Services))
	for _, s := range e.Services {
		ids = append(ids, device.ShortenUUID(s))
	}
	services := strings.Join(ids, ",")
	if len(services) > 30 {
		services = services[:27] + "..."
	}
	return services
}

type deviceJSON struct {
	Name     string   `json:"name"`
	Address  string   `json:"address"`
	RSSI     int      `json:"rssi"`
	Services []string `json:"services"`
	Seen     int      `json:"seen"`
}

func displayDevicesJSON(w io.Writer, entries []scanner.DeviceEntry) error {
	out := make([]deviceJSON, 0, len(entries))
	for _, e := range entries {
		ids := make([]string, 0, len(e.Services))
		for _, s := range e.Services {
			ids = append(ids, device.ShortenUUID(s))
		}
		out = append(out, deviceJSON{Name: e.Name, Address: e.Address, RSSI: e.RSSI, Services: ids, Seen: e.Seen})
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(out)
}
