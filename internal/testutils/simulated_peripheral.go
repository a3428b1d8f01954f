//go:build test

package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/pixl/internal/bledb"
	"github.com/srg/pixl/internal/link"
)

// WriteRecord is one write observed by a SimulatedPeripheral.
type WriteRecord struct {
	CharUUID string
	Value    []byte
	Mode     link.WriteMode
}

type simChar struct {
	config  CharacteristicConfig
	props   link.Property
	value   []byte
	onValue func([]byte)
}

// SimulatedPeripheral is an in-memory link.Transport backed by a PeripheralProfile.
type SimulatedPeripheral struct {
	profile PeripheralProfile

	mu           sync.Mutex
	chars        map[string]*simChar // keyed by normalized characteristic UUID
	connected    bool
	disconnected chan struct{}
	dials        int
	disconnects  int
	reads        []string
	writes       []WriteRecord
	dialErr      error
	discoverErr  error
	readErr      error
	writeErr     error
}

func newSimulatedPeripheral(profile PeripheralProfile) *SimulatedPeripheral {
	p := &SimulatedPeripheral{
		profile: profile,
		chars:   make(map[string]*simChar),
	}
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			p.chars[bledb.NormalizeUUID(c.UUID)] = &simChar{
				config: c,
				props:  ParseProperties(c.Properties),
				value:  append([]byte(nil), c.Value...),
			}
		}
	}
	return p
}

// FailDial makes subsequent dials return err.
func (p *SimulatedPeripheral) FailDial(err error) *SimulatedPeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dialErr = err
	return p
}

// FailDiscover makes subsequent discoveries return err.
func (p *SimulatedPeripheral) FailDiscover(err error) *SimulatedPeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoverErr = err
	return p
}

// FailReads makes subsequent reads return err.
func (p *SimulatedPeripheral) FailReads(err error) *SimulatedPeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	return p
}

// FailWrites makes subsequent writes return err.
func (p *SimulatedPeripheral) FailWrites(err error) *SimulatedPeripheral {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
	return p
}

func (p *SimulatedPeripheral) Dial(ctx context.Context, address string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dials++
	if p.dialErr != nil {
		return p.dialErr
	}
	if p.connected {
		return link.ErrAlreadyConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.connected = true
	p.disconnected = make(chan struct{})
	return nil
}

func (p *SimulatedPeripheral) Discover(context.Context) (*link.Database, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return nil, link.ErrNotConnected
	}
	if p.discoverErr != nil {
		return nil, p.discoverErr
	}
	return (&PeripheralBuilder{profile: p.profile}).Database(), nil
}

func (p *SimulatedPeripheral) Read(ctx context.Context, c *link.Characteristic) ([]byte, error) {
	p.mu.Lock()
	sc, err := p.lookupLocked(c, link.PropRead)
	if err == nil {
		err = p.readErr
	}
	p.reads = append(p.reads, c.UUID)
	var value []byte
	var delay time.Duration
	if sc != nil {
		value = append([]byte(nil), sc.value...)
		delay = sc.config.ReadDelay
	}
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if err := sleepCtx(ctx, delay); err != nil {
		return nil, err
	}
	return value, nil
}

func (p *SimulatedPeripheral) Write(ctx context.Context, c *link.Characteristic, value []byte, mode link.WriteMode) error {
	want := link.PropWrite
	if mode == link.WriteNoResponse {
		want = link.PropWriteNoResponse
	}

	p.mu.Lock()
	sc, err := p.lookupLocked(c, want)
	if err == nil {
		err = p.writeErr
	}
	p.writes = append(p.writes, WriteRecord{CharUUID: c.UUID, Value: append([]byte(nil), value...), Mode: mode})
	var delay time.Duration
	if sc != nil && err == nil {
		sc.value = append([]byte(nil), value...)
		delay = sc.config.WriteDelay
	}
	p.mu.Unlock()

	if err != nil {
		return err
	}
	return sleepCtx(ctx, delay)
}

func (p *SimulatedPeripheral) Subscribe(_ context.Context, c *link.Characteristic, onValue func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	sc, err := p.lookupLocked(c, 0)
	if err != nil {
		return err
	}
	if sc.props&(link.PropNotify|link.PropIndicate) == 0 {
		return fmt.Errorf("characteristic %s does not support notifications: %w", c.UUID, link.ErrUnsupported)
	}
	sc.onValue = onValue
	return nil
}

func (p *SimulatedPeripheral) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects++
	p.dropLocked()
	return nil
}

func (p *SimulatedPeripheral) Disconnected() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected
}

// DropLink simulates the peripheral going out of range.
func (p *SimulatedPeripheral) DropLink() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dropLocked()
}

// Notify delivers data to the characteristic's subscriber.
// Returns false when nobody is subscribed.
func (p *SimulatedPeripheral) Notify(charUUID string, data []byte) bool {
	p.mu.Lock()
	sc, ok := p.chars[bledb.NormalizeUUID(charUUID)]
	var fn func([]byte)
	if ok && p.connected {
		fn = sc.onValue
	}
	p.mu.Unlock()

	if fn == nil {
		return false
	}
	fn(append([]byte(nil), data...))
	return true
}

// IsSubscribed reports whether the characteristic has an active subscriber.
func (p *SimulatedPeripheral) IsSubscribed(charUUID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	sc, ok := p.chars[bledb.NormalizeUUID(charUUID)]
	return ok && sc.onValue != nil
}

// Value returns the current value of a characteristic.
func (p *SimulatedPeripheral) Value(charUUID string) []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sc, ok := p.chars[bledb.NormalizeUUID(charUUID)]; ok {
		return append([]byte(nil), sc.value...)
	}
	return nil
}

// SetValue replaces the value returned by reads of a characteristic.
func (p *SimulatedPeripheral) SetValue(charUUID string, value []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if sc, ok := p.chars[bledb.NormalizeUUID(charUUID)]; ok {
		sc.value = append([]byte(nil), value...)
	}
}

// IsConnected reports the simulated link state.
func (p *SimulatedPeripheral) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Dials returns the number of dial attempts.
func (p *SimulatedPeripheral) Dials() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dials
}

// Disconnects returns the number of requested disconnects.
func (p *SimulatedPeripheral) Disconnects() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnects
}

// Reads returns the UUIDs of every read, in order.
func (p *SimulatedPeripheral) Reads() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.reads...)
}

// Writes returns every write, in order.
func (p *SimulatedPeripheral) Writes() []WriteRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WriteRecord(nil), p.writes...)
}

func (p *SimulatedPeripheral) lookupLocked(c *link.Characteristic, want link.Property) (*simChar, error) {
	if !p.connected {
		return nil, link.ErrNotConnected
	}
	sc, ok := p.chars[bledb.NormalizeUUID(c.UUID)]
	if !ok {
		return nil, &link.NotFoundError{Resource: "characteristic", UUIDs: []string{c.ServiceUUID, c.UUID}}
	}
	if want != 0 && !sc.props.Has(want) {
		return sc, fmt.Errorf("characteristic %s lacks %s: %w", c.UUID, want, link.ErrUnsupported)
	}
	return sc, nil
}

func (p *SimulatedPeripheral) dropLocked() {
	if !p.connected {
		return
	}
	p.connected = false
	for _, sc := range p.chars {
		sc.onValue = nil
	}
	close(p.disconnected)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
