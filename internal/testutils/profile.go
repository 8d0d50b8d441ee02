package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/srg/bletower/internal/device"
)

// CharacteristicConfig describes a fake characteristic
type CharacteristicConfig struct {
	UUID       string `json:"uuid"`
	Properties string `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte `json:"value,omitempty"`
}

// ServiceConfig describes a fake service
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// ProfileConfig is the GATT layout of a fake peripheral
type ProfileConfig struct {
	Services []ServiceConfig `json:"services"`
}

// Profile is a built GATT layout shared by every FakeGatt of one FakeAdapter.
// Characteristics with the notify or indicate property get a CCCD.
type Profile struct {
	mu       sync.Mutex
	services map[uuid.UUID]*fakeService
}

// ProfileBuilder builds a Profile with a fluent API or from JSON.
type ProfileBuilder struct {
	config ProfileConfig
	err    error
}

// NewProfileBuilder creates an empty profile builder
func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{}
}

// FromJSON replaces the layout with the parsed JSON document. Format args are applied first.
func (b *ProfileBuilder) FromJSON(jsonStrFmt string, args ...any) *ProfileBuilder {
	var cfg ProfileConfig
	if err := json.Unmarshal([]byte(fmt.Sprintf(jsonStrFmt, args...)), &cfg); err != nil {
		b.err = fmt.Errorf("invalid profile JSON: %w", err)
		return b
	}
	b.config = cfg
	return b
}

// WithService adds a service; following WithCharacteristic calls attach to it.
func (b *ProfileBuilder) WithService(id string) *ProfileBuilder {
	b.config.Services = append(b.config.Services, ServiceConfig{UUID: id})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *ProfileBuilder) WithCharacteristic(id, properties string, value []byte) *ProfileBuilder {
	if len(b.config.Services) == 0 {
		b.err = fmt.Errorf("characteristic %s added before any service", id)
		return b
	}
	last := &b.config.Services[len(b.config.Services)-1]
	last.Characteristics = append(last.Characteristics, CharacteristicConfig{UUID: id, Properties: properties, Value: value})
	return b
}

// Build returns the profile. It panics on invalid configuration, which is fine for tests.
func (b *ProfileBuilder) Build() *Profile {
	if b.err != nil {
		panic(b.err)
	}
	p := &Profile{services: make(map[uuid.UUID]*fakeService)}
	for _, sc := range b.config.Services {
		sid := mustUUID(sc.UUID)
		svc := &fakeService{id: sid, characteristics: make(map[uuid.UUID]*fakeCharacteristic), profile: p}
		for _, cc := range sc.Characteristics {
			c := &fakeCharacteristic{
				id:          mustUUID(cc.UUID),
				service:     sid,
				properties:  cc.Properties,
				value:       append([]byte(nil), cc.Value...),
				descriptors: make(map[uuid.UUID]*fakeDescriptor),
				profile:     p,
			}
			if strings.Contains(cc.Properties, "notify") || strings.Contains(cc.Properties, "indicate") {
				cccd := device.ClientCharacteristicConfigDescriptor
				c.descriptors[cccd] = &fakeDescriptor{id: cccd, characteristic: c}
			}
			svc.characteristics[c.id] = c
		}
		p.services[sid] = svc
	}
	return p
}

// SetValue replaces the stored value of a characteristic
func (p *Profile) SetValue(characteristic string, value []byte) {
	c := p.characteristic(mustUUID(characteristic))
	if c == nil {
		panic(fmt.Sprintf("characteristic %s not in profile", characteristic))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c.value = append([]byte(nil), value...)
}

func (p *Profile) characteristic(id uuid.UUID) *fakeCharacteristic {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, svc := range p.services {
		if c, ok := svc.characteristics[id]; ok {
			return c
		}
	}
	return nil
}

func (p *Profile) service(id uuid.UUID) (*fakeService, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	svc, ok := p.services[id]
	return svc, ok
}

type fakeService struct {
	id              uuid.UUID
	characteristics map[uuid.UUID]*fakeCharacteristic
	profile         *Profile
}

func (s *fakeService) UUID() uuid.UUID { return s.id }

func (s *fakeService) Characteristic(id uuid.UUID) (device.GattCharacteristic, bool) {
	s.profile.mu.Lock()
	defer s.profile.mu.Unlock()
	c, ok := s.characteristics[id]
	if !ok {
		return nil, false
	}
	return c, true
}

type fakeCharacteristic struct {
	id          uuid.UUID
	service     uuid.UUID
	properties  string
	value       []byte
	descriptors map[uuid.UUID]*fakeDescriptor
	profile     *Profile
}

func (c *fakeCharacteristic) UUID() uuid.UUID    { return c.id }
func (c *fakeCharacteristic) Service() uuid.UUID { return c.service }

func (c *fakeCharacteristic) Descriptor(id uuid.UUID) (device.GattDescriptor, bool) {
	d, ok := c.descriptors[id]
	if !ok {
		return nil, false
	}
	return d, true
}

func (c *fakeCharacteristic) currentValue() []byte {
	c.profile.mu.Lock()
	defer c.profile.mu.Unlock()
	return append([]byte(nil), c.value...)
}

type fakeDescriptor struct {
	id             uuid.UUID
	characteristic *fakeCharacteristic
}

func (d *fakeDescriptor) UUID() uuid.UUID                            { return d.id }
func (d *fakeDescriptor) Characteristic() device.GattCharacteristic { return d.characteristic }

func mustUUID(s string) uuid.UUID {
	id, err := device.ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// HeartRateProfileJSON is a peripheral exposing Device Information, Heart Rate and Battery services.
const HeartRateProfileJSON = `
{
	"services": [
		{
			"uuid": "180A",
			"characteristics": [
				{ "uuid": "2A29", "properties": "read", "value": [65, 99, 109, 101] },
				{ "uuid": "2A24", "properties": "read", "value": [72, 49] },
				{ "uuid": "2A25", "properties": "read", "value": [52, 50] },
				{ "uuid": "2A27", "properties": "read", "value": [49, 46, 48] },
				{ "uuid": "2A26", "properties": "read", "value": [50, 46, 49] },
				{ "uuid": "2A28", "properties": "read", "value": [51, 46, 50] }
			]
		},
		{
			"uuid": "180D",
			"characteristics": [
				{ "uuid": "2A37", "properties": "read,notify", "value": [100] },
				{ "uuid": "2A38", "properties": "read", "value": [1] },
				{ "uuid": "2A39", "properties": "write", "value": [] }
			]
		},
		{
			"uuid": "180F",
			"characteristics": [
				{ "uuid": "2A19", "properties": "read,notify", "value": [85] }
			]
		}
	]
}`
