package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	"github.com/srg/bletower/internal/devicefactory"
	"github.com/srg/bletower/internal/monitor"
	"gopkg.in/yaml.v3"
)

// Output formats for printed events
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds application configuration
type Config struct {
	LogLevel        string        `yaml:"log_level" default:"info"`
	Adapter         string        `yaml:"adapter" default:"go-ble"`
	ScanTimeout     time.Duration `yaml:"scan_timeout" default:"10s"`
	DisconnectGrace time.Duration `yaml:"disconnect_grace" default:"200ms"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout" default:"30s"`
	EventBuffer     int           `yaml:"event_buffer" default:"64"`
	AutoConnect     bool          `yaml:"auto_connect" default:"false"`
	OutputFormat    string        `yaml:"output_format" default:"text"`
	MetricsAddr     string        `yaml:"metrics_addr"`
	Filter          FilterConfig  `yaml:"filter"`

	// MeasurementFlags decodes heart rate measurements with their flags byte
	// instead of reading the first byte.
	MeasurementFlags bool `yaml:"measurement_flags" default:"false"`
}

// FilterConfig selects the peripheral to monitor. Empty fields match everything.
type FilterConfig struct {
	Name     string   `yaml:"name"`
	Address  string   `yaml:"address"`
	Services []string `yaml:"services"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML file over the defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values the defaults cannot guarantee
func (c *Config) Validate() error {
	var errs []error
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.OutputFormat != FormatText && c.OutputFormat != FormatJSON {
		errs = append(errs, fmt.Errorf("unsupported output format %q (use %s or %s)", c.OutputFormat, FormatText, FormatJSON))
	}
	if c.EventBuffer <= 0 {
		errs = append(errs, fmt.Errorf("event_buffer must be positive, got %d", c.EventBuffer))
	}
	if c.ScanTimeout <= 0 {
		errs = append(errs, fmt.Errorf("scan_timeout must be positive, got %s", c.ScanTimeout))
	}
	if c.DisconnectGrace < 0 {
		errs = append(errs, fmt.Errorf("disconnect_grace must not be negative, got %s", c.DisconnectGrace))
	}
	if _, err := c.ScanFilters(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Level returns the parsed log level, Info when it cannot be parsed
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// ScanFilters turns the filter section into scan filters: one per service, or a
// single name/address filter when no service is given. No filter section means no filters.
func (c *Config) ScanFilters() ([]device.ScanFilter, error) {
	f := c.Filter
	if f.Name == "" && f.Address == "" && len(f.Services) == 0 {
		return nil, nil
	}
	if len(f.Services) == 0 {
		return []device.ScanFilter{{Name: f.Name, Address: f.Address}}, nil
	}

	ids, err := device.ParseUUIDs(f.Services...)
	if err != nil {
		return nil, fmt.Errorf("filter services: %w", err)
	}
	filters := make([]device.ScanFilter, 0, len(ids))
	for _, id := range ids {
		filters = append(filters, device.ScanFilter{Name: f.Name, Address: f.Address, Service: id})
	}
	return filters, nil
}

// MonitorOptions maps the timing and buffering settings onto monitor options.
func (c *Config) MonitorOptions(logger *logrus.Logger) monitor.Options {
	return monitor.Options{
		ScanTimeout:     c.ScanTimeout,
		DisconnectGrace: c.DisconnectGrace,
		EventBuffer:     c.EventBuffer,
		Logger:          logger,
	}
}

// AdapterOptions returns the settings passed to the adapter factory
func (c *Config) AdapterOptions() devicefactory.Options {
	return devicefactory.Options{ConnectTimeout: c.ConnectTimeout}
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
