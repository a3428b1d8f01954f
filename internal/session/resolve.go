package session

import (
	"errors"
	"fmt"

	"github.com/srg/pixl/internal/link"
)

// ErrUnsupportedDevice is wrapped by every validation failure.
var ErrUnsupportedDevice = errors.New("unsupported device")

// ResolvedCharacteristicSet holds the four contract characteristics of a validated peripheral.
type ResolvedCharacteristicSet struct {
	CurrentTime *link.Characteristic
	Integer     *link.Characteristic
	Temperature *link.Characteristic
	ButtonClick *link.Characteristic
}

type requirement struct {
	service  string
	char     string
	props    link.Property
	name     string
	assignTo func(*ResolvedCharacteristicSet, *link.Characteristic)
}

var requirements = []requirement{
	{CurrentTimeServiceUUID, CurrentTimeCharUUID, link.PropRead | link.PropNotify, "current time",
		func(s *ResolvedCharacteristicSet, c *link.Characteristic) { s.CurrentTime = c }},
	{VendorServiceUUID, IntegerCharUUID, link.PropWrite, "integer",
		func(s *ResolvedCharacteristicSet, c *link.Characteristic) { s.Integer = c }},
	{VendorServiceUUID, TemperatureCharUUID, link.PropRead, "temperature",
		func(s *ResolvedCharacteristicSet, c *link.Characteristic) { s.Temperature = c }},
	{VendorServiceUUID, ButtonClickCharUUID, link.PropNotify, "button click",
		func(s *ResolvedCharacteristicSet, c *link.Characteristic) { s.ButtonClick = c }},
}

// CapabilityError reports a contract characteristic that lacks a required property.
type CapabilityError struct {
	Name     string
	UUID     string
	Required link.Property
	Actual   link.Property
}

func (e *CapabilityError) Error() string {
	return fmt.Sprintf("%s characteristic %q requires %s, has %s", e.Name, e.UUID, e.Required, e.Actual)
}

// Resolve looks up every contract characteristic in db. It succeeds only when all
// of them are present; otherwise the error wraps ErrUnsupportedDevice and lists each
// missing service or characteristic. With requireProperties, missing capabilities
// fail validation too; otherwise they are returned as warnings.
func Resolve(db *link.Database, requireProperties bool) (*ResolvedCharacteristicSet, []error, error) {
	set := &ResolvedCharacteristicSet{}
	var missing []error
	var warnings []error
	reportedServices := make(map[string]bool)

	for _, req := range requirements {
		c, err := db.Lookup(req.service, req.char)
		if err != nil {
			var nf *link.NotFoundError
			if errors.As(err, &nf) && nf.Resource == "service" {
				if reportedServices[req.service] {
					continue
				}
				reportedServices[req.service] = true
			}
			missing = append(missing, err)
			continue
		}
		if !c.Properties.Has(req.props) {
			capErr := &CapabilityError{Name: req.name, UUID: c.UUID, Required: req.props, Actual: c.Properties}
			if requireProperties {
				missing = append(missing, capErr)
			} else {
				warnings = append(warnings, capErr)
			}
		}
		req.assignTo(set, c)
	}

	if len(missing) > 0 {
		return nil, warnings, fmt.Errorf("%w: %w", ErrUnsupportedDevice, errors.Join(missing...))
	}
	return set, warnings, nil
}
