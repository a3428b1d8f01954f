// Package goble implements link.Transport on top of github.com/go-ble/ble.
package goble

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/pixl/internal/bledb"
	"github.com/srg/pixl/internal/link"
)

// DefaultConnectTimeout bounds a dial when the transport is created without one.
const DefaultConnectTimeout = 30 * time.Second

// gattClient is the part of ble.Client the transport uses.
type gattClient interface {
	DiscoverProfile(force bool) (*ble.Profile, error)
	ReadCharacteristic(c *ble.Characteristic) ([]byte, error)
	WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error
	Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error
	Unsubscribe(c *ble.Characteristic, ind bool) error
	CancelConnection() error
}

// dial connects to address through the default go-ble device (can be overridden in tests)
var dial = func(ctx context.Context, address string) (gattClient, error) {
	dev, err := DeviceFactory()
	if err != nil {
		return nil, fmt.Errorf("failed to create BLE device: %w", err)
	}
	ble.SetDefaultDevice(dev)

	client, err := ble.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		return nil, err
	}
	return client, nil
}

type subscription struct {
	char *ble.Characteristic
	ind  bool
}

// Transport is a blocking GATT client for one peripheral. It is not safe to
// issue calls concurrently from several goroutines; link.Queue serializes them.
type Transport struct {
	logger         *logrus.Logger
	connectTimeout time.Duration

	mu            sync.RWMutex
	client        gattClient
	address       string
	disconnected  <-chan struct{}
	chars         map[string]*ble.Characteristic
	subscriptions map[string]subscription

	// handlers is read from go-ble notification goroutines
	handlers *hashmap.Map[string, func([]byte)]
}

var _ link.Transport = (*Transport)(nil)

// NewTransport creates a disconnected transport.
func NewTransport(logger *logrus.Logger, connectTimeout time.Duration) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	return &Transport{
		logger:         logger,
		connectTimeout: connectTimeout,
		chars:          make(map[string]*ble.Characteristic),
		subscriptions:  make(map[string]subscription),
		handlers:       hashmap.New[string, func([]byte)](),
	}
}

func charKey(serviceUUID, charUUID string) string {
	return bledb.NormalizeUUID(serviceUUID) + "/" + bledb.NormalizeUUID(charUUID)
}

// Dial connects to the peripheral at address, bounded by the connect timeout.
func (t *Transport) Dial(ctx context.Context, address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		if !linkDown(t.disconnected) {
			t.logger.WithField("address", address).Warn("Connection attempt while already connected")
			return link.ErrAlreadyConnected
		}
		t.logger.WithField("address", t.address).Debug("Releasing client of a lost connection")
		t.releaseLocked()
	}

	t.logger.WithFields(logrus.Fields{
		"address": address,
		"timeout": t.connectTimeout,
	}).Info("Connecting to BLE device...")

	connCtx, cancel := context.WithTimeout(ctx, t.connectTimeout)
	defer cancel()

	client, err := dial(connCtx, address)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": address,
			"error":   err,
		}).Error("Failed to dial BLE device")
		return fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	t.client = client
	t.address = address
	t.disconnected = nil

	// CoreBluetooth clients report disconnects through Disconnected()
	if dc, ok := client.(interface{ Disconnected() <-chan struct{} }); ok {
		t.disconnected = dc.Disconnected()
	} else {
		t.logger.Debug("Client does not support Disconnected() channel (non-Darwin platform?)")
	}

	t.logger.WithField("address", address).Info("BLE device connected")
	return nil
}

// Discover runs a full profile discovery and returns the resulting database.
func (t *Transport) Discover(context.Context) (*link.Database, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client == nil {
		return nil, link.ErrNotConnected
	}

	t.logger.WithField("address", t.address).Debug("Discovering services and characteristics...")
	profile, err := t.client.DiscoverProfile(true)
	if err != nil {
		t.logger.WithFields(logrus.Fields{
			"address": t.address,
			"error":   err,
		}).Error("Failed to discover profile")
		return nil, NormalizeError(err)
	}

	db := link.NewDatabase()
	t.chars = make(map[string]*ble.Characteristic)
	for _, bleSvc := range profile.Services {
		svc := db.AddService(bleSvc.UUID.String())
		for _, bleChar := range bleSvc.Characteristics {
			c := svc.AddCharacteristic(bleChar.UUID.String(), toProperty(bleChar.Property), bleChar.ValueHandle)
			t.chars[charKey(svc.UUID, c.UUID)] = bleChar
			t.logger.WithFields(logrus.Fields{
				"service_uuid": svc.UUID,
				"char_uuid":    c.UUID,
				"properties":   c.Properties.String(),
			}).Debug("Found characteristic")
		}
	}

	t.logger.WithFields(logrus.Fields{
		"address":         t.address,
		"services":        len(db.Services()),
		"characteristics": db.CharacteristicCount(),
	}).Info("Profile discovered successfully")
	return db, nil
}

func (t *Transport) resolve(c *link.Characteristic) (gattClient, *ble.Characteristic, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.client == nil || linkDown(t.disconnected) {
		return nil, nil, link.ErrNotConnected
	}
	if c == nil {
		return nil, nil, fmt.Errorf("characteristic is nil")
	}
	bc, ok := t.chars[charKey(c.ServiceUUID, c.UUID)]
	if !ok {
		return nil, nil, &link.NotFoundError{Resource: "characteristic", UUIDs: []string{c.ServiceUUID, c.UUID}}
	}
	return t.client, bc, nil
}

// Read reads the characteristic value from the peripheral.
func (t *Transport) Read(ctx context.Context, c *link.Characteristic) ([]byte, error) {
	client, bc, err := t.resolve(c)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := client.ReadCharacteristic(bc)
	if err != nil {
		return nil, fmt.Errorf("failed to read characteristic %s: %w", c.UUID, NormalizeError(err))
	}
	return data, nil
}

// Write writes value to the characteristic.
func (t *Transport) Write(ctx context.Context, c *link.Characteristic, value []byte, mode link.WriteMode) error {
	client, bc, err := t.resolve(c)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := client.WriteCharacteristic(bc, value, mode == link.WriteNoResponse); err != nil {
		return fmt.Errorf("failed to write characteristic %s: %w", c.UUID, NormalizeError(err))
	}
	return nil
}

// Subscribe enables notifications, or indications when the characteristic only
// supports those, and routes every value to onValue.
func (t *Transport) Subscribe(_ context.Context, c *link.Characteristic, onValue func([]byte)) error {
	client, bc, err := t.resolve(c)
	if err != nil {
		return err
	}

	props := toProperty(bc.Property)
	if props&(link.PropNotify|link.PropIndicate) == 0 {
		return fmt.Errorf("characteristic %s does not support notifications: %w", c.UUID, link.ErrUnsupported)
	}
	ind := !props.Has(link.PropNotify)
	key := charKey(c.ServiceUUID, c.UUID)

	t.handlers.Set(key, onValue)
	err = NormalizeError(client.Subscribe(bc, ind, func(data []byte) {
		if h, ok := t.handlers.Get(key); ok {
			h(append([]byte(nil), data...))
		}
	}))
	if err != nil {
		t.handlers.Del(key)
		t.logger.WithFields(logrus.Fields{
			"service_uuid": c.ServiceUUID,
			"char_uuid":    c.UUID,
			"error":        err,
		}).Error("Failed to subscribe to characteristic notifications")
		return err
	}

	t.mu.Lock()
	t.subscriptions[key] = subscription{char: bc, ind: ind}
	t.mu.Unlock()

	t.logger.WithFields(logrus.Fields{
		"service_uuid": c.ServiceUUID,
		"char_uuid":    c.UUID,
		"indicate":     ind,
	}).Info("Successfully subscribed to characteristic notifications")
	return nil
}

// Disconnect unsubscribes best-effort and cancels the connection.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	client := t.client
	subs := t.subscriptions
	t.client = nil
	t.subscriptions = make(map[string]subscription)
	t.chars = make(map[string]*ble.Characteristic)
	t.mu.Unlock()

	if client == nil {
		t.logger.Debug("Disconnect called but already disconnected")
		return nil
	}

	t.logger.WithField("subscriptions", len(subs)).Info("Disconnecting BLE device...")
	for key, sub := range subs {
		t.handlers.Del(key)
		if err := NormalizeError(client.Unsubscribe(sub.char, sub.ind)); err != nil {
			t.logger.WithFields(logrus.Fields{
				"characteristic": key,
				"error":          err,
			}).Debug("Failed to unsubscribe during disconnect")
		}
	}

	if err := client.CancelConnection(); err != nil {
		return fmt.Errorf("failed to cancel connection: %w", NormalizeError(err))
	}
	return nil
}

// releaseLocked forgets the current client without talking to it.
func (t *Transport) releaseLocked() {
	for key := range t.subscriptions {
		t.handlers.Del(key)
	}
	t.client = nil
	t.disconnected = nil
	t.subscriptions = make(map[string]subscription)
	t.chars = make(map[string]*ble.Characteristic)
}

func linkDown(ch <-chan struct{}) bool {
	if ch == nil {
		return false
	}
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// Disconnected returns the client's disconnect channel, or nil when unsupported.
func (t *Transport) Disconnected() <-chan struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.disconnected
}

func toProperty(p ble.Property) link.Property {
	var out link.Property
	if p&ble.CharRead != 0 {
		out |= link.PropRead
	}
	if p&ble.CharWrite != 0 {
		out |= link.PropWrite
	}
	if p&ble.CharWriteNR != 0 {
		out |= link.PropWriteNoResponse
	}
	if p&ble.CharNotify != 0 {
		out |= link.PropNotify
	}
	if p&ble.CharIndicate != 0 {
		out |= link.PropIndicate
	}
	return out
}
