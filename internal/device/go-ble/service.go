package goble

import (
	"github.com/go-ble/ble"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/srg/bletower/internal/device"
)

type service struct {
	id              uuid.UUID
	characteristics map[uuid.UUID]*characteristic
}

func (s *service) UUID() uuid.UUID { return s.id }

func (s *service) Characteristic(id uuid.UUID) (device.GattCharacteristic, bool) {
	c, ok := s.characteristics[id]
	if !ok {
		return nil, false
	}
	return c, true
}

type characteristic struct {
	id          uuid.UUID
	service     uuid.UUID
	ble         *ble.Characteristic
	descriptors map[uuid.UUID]*descriptor
}

func (c *characteristic) UUID() uuid.UUID    { return c.id }
func (c *characteristic) Service() uuid.UUID { return c.service }

func (c *characteristic) Descriptor(id uuid.UUID) (device.GattDescriptor, bool) {
	d, ok := c.descriptors[id]
	if !ok {
		return nil, false
	}
	return d, true
}

func (c *characteristic) canNotify() bool {
	return c.ble.Property&(ble.CharNotify|ble.CharIndicate) != 0
}

type descriptor struct {
	id   uuid.UUID
	ble  *ble.Descriptor
	char *characteristic
}

func (d *descriptor) UUID() uuid.UUID                            { return d.id }
func (d *descriptor) Characteristic() device.GattCharacteristic { return d.char }

// convertProfile indexes a discovered go-ble profile by 128-bit UUID. On Darwin the
// CCCD is not reported as a descriptor, so one is added for every characteristic
// that can notify or indicate.
func convertProfile(p *ble.Profile, logger *logrus.Logger) map[uuid.UUID]*service {
	services := make(map[uuid.UUID]*service)
	if p == nil {
		return services
	}

	for _, bs := range p.Services {
		sid, err := toUUID(bs.UUID)
		if err != nil {
			logger.WithError(err).WithField("service_uuid", bs.UUID.String()).Warn("Skipping service with unparsable UUID")
			continue
		}
		svc := &service{id: sid, characteristics: make(map[uuid.UUID]*characteristic)}

		for _, bc := range bs.Characteristics {
			cid, err := toUUID(bc.UUID)
			if err != nil {
				logger.WithError(err).WithField("char_uuid", bc.UUID.String()).Warn("Skipping characteristic with unparsable UUID")
				continue
			}
			c := &characteristic{id: cid, service: sid, ble: bc, descriptors: make(map[uuid.UUID]*descriptor)}
			for _, bd := range bc.Descriptors {
				did, err := toUUID(bd.UUID)
				if err != nil {
					continue
				}
				c.descriptors[did] = &descriptor{id: did, ble: bd, char: c}
			}

			cccd := device.ClientCharacteristicConfigDescriptor
			if _, ok := c.descriptors[cccd]; !ok && c.canNotify() {
				c.descriptors[cccd] = &descriptor{id: cccd, ble: bc.CCCD, char: c}
			}

			logger.WithFields(logrus.Fields{
				"service_uuid": device.ShortenUUID(sid),
				"char_uuid":    device.ShortenUUID(cid),
				"properties":   PropertyNames(bc.Property),
			}).Debug("Found characteristic")
			svc.characteristics[cid] = c
		}
		services[sid] = svc
	}
	return services
}
