package goble

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pixl/internal/bledb"
)

// DefaultScanDuration bounds a scan when ScanOptions.Duration is zero.
const DefaultScanDuration = 10 * time.Second

// Advertisement is the part of a BLE advertisement the scanner keeps.
type Advertisement struct {
	Address     string
	Name        string
	RSSI        int
	Connectable bool
	Services    []string // normalized UUIDs
}

// scanDevice runs a scan on the default go-ble device (can be overridden in tests)
var scanDevice = func(ctx context.Context, handler func(Advertisement)) error {
	dev, err := DeviceFactory()
	if err != nil {
		return fmt.Errorf("failed to create BLE device: %w", err)
	}
	return dev.Scan(ctx, true, func(adv ble.Advertisement) {
		handler(fromBLE(adv))
	})
}

func fromBLE(adv ble.Advertisement) Advertisement {
	services := make([]string, 0, len(adv.Services()))
	for _, u := range adv.Services() {
		services = append(services, bledb.NormalizeUUID(u.String()))
	}
	return Advertisement{
		Address:     adv.Addr().String(),
		Name:        adv.LocalName(),
		RSSI:        adv.RSSI(),
		Connectable: adv.Connectable(),
		Services:    services,
	}
}

// Discovered is a peripheral seen during a scan.
type Discovered struct {
	Address     string    `json:"address"`
	Name        string    `json:"name"`
	RSSI        int       `json:"rssi"`
	Connectable bool      `json:"connectable"`
	Services    []string  `json:"services"`
	Seen        int       `json:"seen"`
	LastSeen    time.Time `json:"last_seen"`
}

// ScanOptions configures a scan.
type ScanOptions struct {
	Duration     time.Duration
	ServiceUUIDs []string // when set, only peripherals advertising one of them are kept
	OnFound      func(Discovered)
}

// Scanner discovers advertising peripherals.
type Scanner struct {
	logger  *logrus.Logger
	devices *hashmap.Map[string, Discovered]
	now     func() time.Time
}

func NewScanner(logger *logrus.Logger) *Scanner {
	if logger == nil {
		logger = logrus.New()
	}
	return &Scanner{logger: logger, now: time.Now}
}

// Scan listens for advertisements until the duration elapses or ctx is done and
// returns what it found, strongest signal first.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) ([]Discovered, error) {
	if opts.Duration <= 0 {
		opts.Duration = DefaultScanDuration
	}
	wanted := bledb.NormalizeUUIDs(opts.ServiceUUIDs)
	s.devices = hashmap.New[string, Discovered]()

	s.logger.WithFields(logrus.Fields{
		"duration": opts.Duration,
		"services": wanted,
	}).Info("Starting BLE scan...")

	scanCtx, cancel := context.WithTimeout(ctx, opts.Duration)
	defer cancel()

	err := scanDevice(scanCtx, func(adv Advertisement) {
		s.handleAdvertisement(adv, wanted, opts.OnFound)
	})
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return nil, fmt.Errorf("scan failed: %w", NormalizeError(err))
	}

	found := make([]Discovered, 0, s.devices.Len())
	s.devices.Range(func(_ string, d Discovered) bool {
		found = append(found, d)
		return true
	})
	sort.Slice(found, func(i, j int) bool {
		if found[i].RSSI != found[j].RSSI {
			return found[i].RSSI > found[j].RSSI
		}
		return found[i].Address < found[j].Address
	})

	s.logger.WithField("device_count", len(found)).Info("BLE scan completed")

	if ctxErr := ctx.Err(); ctxErr != nil {
		return found, ctxErr
	}
	return found, nil
}

// handleAdvertisement updates an existing entry or adds a new one
func (s *Scanner) handleAdvertisement(adv Advertisement, wanted []string, onFound func(Discovered)) {
	d, existing := s.devices.Get(adv.Address)
	if !existing {
		if !advertisesAny(adv, wanted) {
			return
		}
		d = Discovered{Address: adv.Address}
		s.logger.WithFields(logrus.Fields{
			"address": adv.Address,
			"name":    adv.Name,
			"rssi":    adv.RSSI,
		}).Info("Discovered new device")
	}

	// Names and service lists are often split between advertisement and scan response
	if adv.Name != "" {
		d.Name = adv.Name
	}
	if len(adv.Services) > 0 {
		d.Services = adv.Services
	}
	d.RSSI = adv.RSSI
	d.Connectable = adv.Connectable
	d.Seen++
	d.LastSeen = s.now()
	s.devices.Set(adv.Address, d)

	if !existing && onFound != nil {
		onFound(d)
	}
}

func advertisesAny(adv Advertisement, wanted []string) bool {
	if len(wanted) == 0 {
		return true
	}
	for _, w := range wanted {
		for _, svc := range adv.Services {
			if svc == w {
				return true
			}
		}
	}
	return false
}
