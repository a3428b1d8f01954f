package link

import (
	"github.com/srg/pixl/internal/bledb"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Service is a discovered GATT service with characteristics in discovery order.
type Service struct {
	UUID            string
	characteristics *orderedmap.OrderedMap[string, *Characteristic]
}

// KnownName returns the human-readable service name, or "".
func (s *Service) KnownName() string {
	return bledb.LookupService(s.UUID)
}

// AddCharacteristic registers a characteristic, replacing any earlier one with the same UUID.
func (s *Service) AddCharacteristic(uuid string, props Property, handle uint16) *Characteristic {
	c := &Characteristic{
		UUID:        bledb.NormalizeUUID(uuid),
		ServiceUUID: s.UUID,
		Properties:  props,
		Handle:      handle,
	}
	s.characteristics.Set(c.UUID, c)
	return c
}

// Characteristic looks up a characteristic by UUID in any accepted spelling.
func (s *Service) Characteristic(uuid string) (*Characteristic, bool) {
	return s.characteristics.Get(bledb.NormalizeUUID(uuid))
}

// Characteristics returns the characteristics in discovery order.
func (s *Service) Characteristics() []*Characteristic {
	out := make([]*Characteristic, 0, s.characteristics.Len())
	for pair := s.characteristics.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Database is the result of a discovery: services keyed by normalized UUID.
type Database struct {
	services *orderedmap.OrderedMap[string, *Service]
}

// NewDatabase returns an empty database.
func NewDatabase() *Database {
	return &Database{services: orderedmap.New[string, *Service]()}
}

// AddService registers a service, returning the existing one if already present.
func (d *Database) AddService(uuid string) *Service {
	key := bledb.NormalizeUUID(uuid)
	if svc, ok := d.services.Get(key); ok {
		return svc
	}
	svc := &Service{UUID: key, characteristics: orderedmap.New[string, *Characteristic]()}
	d.services.Set(key, svc)
	return svc
}

// Service looks up a service by UUID.
func (d *Database) Service(uuid string) (*Service, bool) {
	if d == nil {
		return nil, false
	}
	return d.services.Get(bledb.NormalizeUUID(uuid))
}

// Services returns the services in discovery order.
func (d *Database) Services() []*Service {
	if d == nil {
		return nil
	}
	out := make([]*Service, 0, d.services.Len())
	for pair := d.services.Oldest(); pair != nil; pair = pair.Next() {
		out = append(out, pair.Value)
	}
	return out
}

// Lookup finds a characteristic within a service.
// Returns a NotFoundError if the service or characteristic is not found.
func (d *Database) Lookup(service, uuid string) (*Characteristic, error) {
	svc, ok := d.Service(service)
	if !ok {
		return nil, &NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	c, ok := svc.Characteristic(uuid)
	if !ok {
		return nil, &NotFoundError{Resource: "characteristic", UUIDs: []string{service, uuid}}
	}
	return c, nil
}

// CharacteristicCount returns the total number of characteristics across services.
func (d *Database) CharacteristicCount() int {
	n := 0
	for _, svc := range d.Services() {
		n += svc.characteristics.Len()
	}
	return n
}
