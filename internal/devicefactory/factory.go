// Package devicefactory selects the radio adapter implementation by name.
package devicefactory

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
	goble "github.com/srg/bletower/internal/device/go-ble"
	"github.com/srg/bletower/internal/device/tinygo"
)

// DefaultAdapter is used when no adapter name is configured
const DefaultAdapter = goble.Name

// VendorAdapter names the vendor SDK variant, which has no Go binding.
const VendorAdapter = "polar"

// Options carries the settings adapters may need
type Options struct {
	ConnectTimeout time.Duration
}

// AdapterFactory creates an adapter for a name. It is a variable so that tests can inject fakes.
var AdapterFactory = func(name string, logger *logrus.Logger, opts Options) (device.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", goble.Name:
		return goble.NewAdapter(logger, goble.Options{ConnectTimeout: opts.ConnectTimeout}), nil
	case tinygo.Name:
		return tinygo.NewAdapter(logger), nil
	case VendorAdapter:
		return nil, fmt.Errorf("%w: adapter %q needs a vendor SDK with no Go binding", device.ErrUnsupported, name)
	default:
		return nil, fmt.Errorf("%w: unknown adapter %q (available: %s)", device.ErrUnsupported, name, strings.Join(Names(), ", "))
	}
}

// NewAdapter creates the named adapter
func NewAdapter(name string, logger *logrus.Logger, opts Options) (device.Adapter, error) {
	if logger == nil {
		logger = logrus.New()
	}
	adapter, err := AdapterFactory(name, logger, opts)
	if err != nil {
		return nil, err
	}
	logger.WithField("adapter", adapter.Name()).Debug("Radio adapter selected")
	return adapter, nil
}

// Names lists the selectable adapter names
func Names() []string {
	names := []string{goble.Name, tinygo.Name}
	sort.Strings(names)
	return names
}
