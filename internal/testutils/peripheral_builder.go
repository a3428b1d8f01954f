//go:build test

package testutils

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/srg/pixl/internal/bledb"
	"github.com/srg/pixl/internal/link"
)

// CharacteristicConfig represents a GATT characteristic configuration for simulation
type CharacteristicConfig struct {
	UUID       string        `json:"uuid"`
	Properties string        `json:"properties,omitempty"` // e.g., "read,write,notify"
	Value      []byte        `json:"value,omitempty"`
	ReadDelay  time.Duration `json:"-"`
	WriteDelay time.Duration `json:"-"`
}

// ServiceConfig represents a GATT service configuration for simulation
type ServiceConfig struct {
	UUID            string                 `json:"uuid"`
	Characteristics []CharacteristicConfig `json:"characteristics,omitempty"`
}

// PeripheralProfile represents the complete peripheral profile for simulation
type PeripheralProfile struct {
	Services []ServiceConfig `json:"services"`
}

// CharacteristicOption customizes a characteristic added with WithCharacteristic.
type CharacteristicOption func(*CharacteristicConfig)

// WithReadDelay makes reads of the characteristic block for d.
func WithReadDelay(d time.Duration) CharacteristicOption {
	return func(c *CharacteristicConfig) { c.ReadDelay = d }
}

// WithWriteDelay makes writes to the characteristic block for d.
func WithWriteDelay(d time.Duration) CharacteristicOption {
	return func(c *CharacteristicConfig) { c.WriteDelay = d }
}

// PeripheralBuilder builds simulated peripherals and GATT databases
type PeripheralBuilder struct {
	profile PeripheralProfile
}

// NewPeripheralBuilder creates an empty peripheral builder
func NewPeripheralBuilder() *PeripheralBuilder {
	return &PeripheralBuilder{profile: PeripheralProfile{Services: []ServiceConfig{}}}
}

// NewPixlPeripheral returns a builder preloaded with the full Pixl contract and
// the Generic Attribute service carrying Service Changed.
func NewPixlPeripheral() *PeripheralBuilder {
	return NewPeripheralBuilder().FromJSON(PixlProfileJSON)
}

// PixlProfileJSON is the profile of a healthy Pixl peripheral.
const PixlProfileJSON = `
{
	"services": [
		{
			"uuid": "1801",
			"characteristics": [
				{ "uuid": "2A05", "properties": "indicate" }
			]
		},
		{
			"uuid": "00001805-0000-1000-8000-00805f9b34fb",
			"characteristics": [
				{ "uuid": "00002a2b-0000-1000-8000-00805f9b34fb", "properties": "read,write,notify", "value": [231, 7, 3, 15, 12, 30, 0, 3, 0, 0] }
			]
		},
		{
			"uuid": "3c0a1000-281d-4b48-b2a7-f15579a1c38f",
			"characteristics": [
				{ "uuid": "3c0a1001-281d-4b48-b2a7-f15579a1c38f", "properties": "write" },
				{ "uuid": "3c0a1002-281d-4b48-b2a7-f15579a1c38f", "properties": "read", "value": [237, 0] },
				{ "uuid": "3c0a1003-281d-4b48-b2a7-f15579a1c38f", "properties": "notify", "value": [0] }
			]
		}
	]
}`

// WithService adds a service to the profile
func (b *PeripheralBuilder) WithService(uuid string) *PeripheralBuilder {
	b.profile.Services = append(b.profile.Services, ServiceConfig{
		UUID:            uuid,
		Characteristics: []CharacteristicConfig{},
	})
	return b
}

// WithCharacteristic adds a characteristic to the last added service
func (b *PeripheralBuilder) WithCharacteristic(uuid, properties string, value []byte, opts ...CharacteristicOption) *PeripheralBuilder {
	if len(b.profile.Services) == 0 {
		panic("WithCharacteristic: no service added yet, call WithService first")
	}

	char := CharacteristicConfig{
		UUID:       uuid,
		Properties: properties,
		Value:      value,
	}
	for _, opt := range opts {
		opt(&char)
	}
	last := len(b.profile.Services) - 1
	b.profile.Services[last].Characteristics = append(b.profile.Services[last].Characteristics, char)
	return b
}

// WithoutService removes a service from the profile.
func (b *PeripheralBuilder) WithoutService(uuid string) *PeripheralBuilder {
	key := bledb.NormalizeUUID(uuid)
	kept := b.profile.Services[:0]
	for _, svc := range b.profile.Services {
		if bledb.NormalizeUUID(svc.UUID) != key {
			kept = append(kept, svc)
		}
	}
	b.profile.Services = kept
	return b
}

// WithoutCharacteristic removes a characteristic from whichever service holds it.
func (b *PeripheralBuilder) WithoutCharacteristic(uuid string) *PeripheralBuilder {
	key := bledb.NormalizeUUID(uuid)
	for i := range b.profile.Services {
		chars := b.profile.Services[i].Characteristics
		kept := chars[:0]
		for _, c := range chars {
			if bledb.NormalizeUUID(c.UUID) != key {
				kept = append(kept, c)
			}
		}
		b.profile.Services[i].Characteristics = kept
	}
	return b
}

// FromJSON fills the profile from JSON
func (b *PeripheralBuilder) FromJSON(jsonStrFmt string, args ...interface{}) *PeripheralBuilder {
	jsonStr := jsonStrFmt
	if len(args) > 0 {
		jsonStr = fmt.Sprintf(jsonStrFmt, args...)
	}

	var profile PeripheralProfile
	if err := json.Unmarshal([]byte(jsonStr), &profile); err != nil {
		panic(fmt.Sprintf("PeripheralBuilder.FromJSON: failed to unmarshal: %v", err))
	}

	b.profile = profile
	return b
}

// Profile returns the configured profile.
func (b *PeripheralBuilder) Profile() PeripheralProfile {
	return b.profile
}

// Database builds the GATT database a discovery of this peripheral would return.
func (b *PeripheralBuilder) Database() *link.Database {
	db := link.NewDatabase()
	var handle uint16
	for _, svcConfig := range b.profile.Services {
		svc := db.AddService(svcConfig.UUID)
		for _, charConfig := range svcConfig.Characteristics {
			handle += 2
			svc.AddCharacteristic(charConfig.UUID, ParseProperties(charConfig.Properties), handle)
		}
	}
	return db
}

// Build creates a simulated peripheral with the configured profile
func (b *PeripheralBuilder) Build() *SimulatedPeripheral {
	return newSimulatedPeripheral(b.profile)
}

// ParseProperties converts a comma-separated property list to link.Property flags.
// An empty list means read, write and notify.
func ParseProperties(props string) link.Property {
	if strings.TrimSpace(props) == "" {
		return link.PropRead | link.PropWrite | link.PropNotify
	}

	var p link.Property
	for _, name := range strings.Split(props, ",") {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "read":
			p |= link.PropRead
		case "write":
			p |= link.PropWrite
		case "write-no-response", "writenoresponse":
			p |= link.PropWriteNoResponse
		case "notify":
			p |= link.PropNotify
		case "indicate":
			p |= link.PropIndicate
		default:
			panic(fmt.Sprintf("ParseProperties: unknown property %q", name))
		}
	}
	return p
}
