package goble

import (
	"time"

	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
)

// peripheral is a scanned go-ble peer
type peripheral struct {
	name    string
	address string
}

func (p peripheral) Name() string    { return p.name }
func (p peripheral) Address() string { return p.address }

// toScanResult converts an advertisement. Services whose UUID cannot be parsed are skipped.
func toScanResult(adv ble.Advertisement) device.ScanResult {
	advertised := adv.Services()
	services := make([]uuid.UUID, 0, len(advertised))
	for _, s := range advertised {
		if id, err := toUUID(s); err == nil {
			services = append(services, id)
		}
	}

	address := ""
	if addr := adv.Addr(); addr != nil {
		address = addr.String()
	}

	return device.ScanResult{
		Peripheral: peripheral{name: adv.LocalName(), address: address},
		RSSI:       adv.RSSI(),
		Services:   services,
		Timestamp:  time.Now(),
	}
}
