package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/pixl/internal/codec"
	"github.com/srg/pixl/internal/link"
)

// Options configures a Controller. The zero value is usable.
type Options struct {
	Logger            *logrus.Logger
	OnStateChange     StateObserver
	RequireProperties bool
	Location          *time.Location // for inbound time values; nil means time.Local
}

// Snapshot is a copy of the controller's session for collaborators.
type Snapshot struct {
	SessionID      uint64
	Address        string
	State          State
	Reason         DisconnectReason
	Resolved       bool
	ClickCount     int
	Temperature    float64
	HasTemperature bool
	Time           time.Time
	HasTime        bool
}

type peripheralSession struct {
	id          uint64
	address     string
	resolved    *ResolvedCharacteristicSet
	clicks      int
	temperature float64
	hasTemp     bool
	time        time.Time
	hasTime     bool
}

type stateChange struct {
	state  State
	reason DisconnectReason
	err    error
}

// Controller manages the session with one Pixl peripheral over a link.Link.
//
// The controller enqueues link operations while holding its lock, which the link
// contract allows because enqueueing never blocks and never completes inline.
// Listener and observer calls are always made after the lock is released.
type Controller struct {
	link              link.Link
	listener          Listener
	logger            *logrus.Logger
	observer          StateObserver
	requireProperties bool
	location          *time.Location

	mu        sync.Mutex
	state     State
	reason    DisconnectReason
	session   *peripheralSession
	nextID    uint64
	pending   []stateChange
	notifying bool
}

// NewController binds a controller to l and installs itself as l's event handler.
func NewController(l link.Link, listener Listener, opts Options) *Controller {
	if listener == nil {
		listener = NopListener{}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	c := &Controller{
		link:              l,
		listener:          listener,
		logger:            opts.Logger,
		observer:          opts.OnStateChange,
		requireProperties: opts.RequireProperties,
		location:          opts.Location,
		state:             StateDisconnected,
	}
	l.SetEventHandler(c.handleLinkEvent)
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a copy of the current session, or a Disconnected snapshot without one.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{State: c.state, Reason: c.reason}
	if s := c.session; s != nil {
		snap.SessionID = s.id
		snap.Address = s.address
		snap.Resolved = s.resolved != nil
		snap.ClickCount = s.clicks
		snap.Temperature = s.temperature
		snap.HasTemperature = s.hasTemp
		snap.Time = s.time
		snap.HasTime = s.hasTime
	}
	return snap
}

// Connect starts a session with the peripheral at address. It returns once the
// connect is queued; progress is reported through the state observer.
func (c *Controller) Connect(ctx context.Context, address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("device address is empty")
	}

	c.mu.Lock()
	if c.session != nil {
		c.mu.Unlock()
		return link.ErrAlreadyConnected
	}

	c.nextID++
	id := c.nextID
	c.session = &peripheralSession{id: id, address: address}

	c.logger.WithFields(logrus.Fields{
		"address": address,
		"session": id,
	}).Info("Connecting to Pixl peripheral...")

	c.setStateLocked(StateConnecting, ReasonNone, nil)
	c.link.Connect(ctx, address, func(err error) { c.onConnected(id, err) })
	c.unlockAndNotify()
	return nil
}

// ReadTemperature queues a temperature read. It returns false, without link
// activity, unless the session is Ready.
func (c *Controller) ReadTemperature() bool {
	c.mu.Lock()
	s := c.readySessionLocked()
	if s == nil || s.resolved.Temperature == nil {
		c.mu.Unlock()
		return false
	}
	id := s.id
	c.link.Read(s.resolved.Temperature, func(data []byte, err error) { c.onTemperature(id, data, err) })
	c.mu.Unlock()
	return true
}

// WriteInt queues an acknowledged write of v as 4 little-endian bytes.
func (c *Controller) WriteInt(v int32) bool {
	c.mu.Lock()
	s := c.readySessionLocked()
	if s == nil || s.resolved.Integer == nil {
		c.mu.Unlock()
		return false
	}
	c.link.Write(s.resolved.Integer, codec.EncodeInt32LE(v), link.WriteDefault, c.writeDone(s.id, "integer"))
	c.mu.Unlock()
	return true
}

// WriteCurrentTime queues an acknowledged write of t as a Current Time value.
func (c *Controller) WriteCurrentTime(t time.Time) bool {
	c.mu.Lock()
	s := c.readySessionLocked()
	if s == nil || s.resolved.CurrentTime == nil {
		c.mu.Unlock()
		return false
	}
	c.link.Write(s.resolved.CurrentTime, codec.EncodeTime(t), link.WriteDefault, c.writeDone(s.id, "current_time"))
	c.mu.Unlock()
	return true
}

// RequestDisconnection ends the session. A link disconnect is always queued,
// even when no session exists.
func (c *Controller) RequestDisconnection() {
	c.mu.Lock()
	c.link.Disconnect(c.disconnectDone("requested"))
	if c.session != nil {
		c.logger.WithField("session", c.session.id).Info("Disconnecting from Pixl peripheral...")
		c.endSessionLocked(ReasonRequested, nil)
	}
	c.unlockAndNotify()
}

func (c *Controller) onConnected(id uint64, err error) {
	c.mu.Lock()
	if !c.isCurrentLocked(id, StateConnecting) {
		c.mu.Unlock()
		c.logStale(id, "connect")
		return
	}

	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"session": id,
			"error":   err,
		}).Warn("Failed to connect to Pixl peripheral")
		c.endSessionLocked(ReasonConnectFailed, err)
		c.unlockAndNotify()
		return
	}

	c.setStateLocked(StateDiscovering, ReasonNone, nil)
	c.link.Discover(func(db *link.Database, err error) { c.onDiscovered(id, db, err) })
	c.unlockAndNotify()
}

func (c *Controller) onDiscovered(id uint64, db *link.Database, err error) {
	c.mu.Lock()
	if !c.isCurrentLocked(id, StateDiscovering) {
		c.mu.Unlock()
		c.logStale(id, "discover")
		return
	}

	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"session": id,
			"error":   err,
		}).Warn("Service discovery failed")
		c.link.Disconnect(c.disconnectDone("discovery_failed"))
		c.endSessionLocked(ReasonDiscoveryFailed, err)
		c.unlockAndNotify()
		return
	}

	c.setStateLocked(StateValidating, ReasonNone, nil)
	set, warnings, err := Resolve(db, c.requireProperties)
	for _, w := range warnings {
		c.logger.WithField("session", id).Warn(w.Error())
	}
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"session": id,
			"error":   err,
		}).Warn("Peripheral does not match the Pixl contract")
		c.link.Disconnect(c.disconnectDone("not_supported"))
		c.endSessionLocked(ReasonNotSupported, err)
		c.unlockAndNotify()
		return
	}

	c.session.resolved = set
	c.session.clicks = 0
	c.unlockAndNotify()

	c.mu.Lock()
	if !c.isCurrentLocked(id, StateValidating) {
		c.mu.Unlock()
		c.logStale(id, "validation")
		return
	}
	c.mu.Unlock()

	// the seed event precedes any click notification
	c.listener.ClickCountUpdate(0)

	c.mu.Lock()
	if !c.isCurrentLocked(id, StateValidating) {
		c.mu.Unlock()
		c.logStale(id, "validation")
		return
	}
	c.link.EnableNotifications(set.ButtonClick, c.onClickNotification(id), c.enableDone(id, "button_click"))
	c.link.EnableNotifications(set.CurrentTime, c.onTimeNotification(id), c.enableDone(id, "current_time"))
	c.setStateLocked(StateReady, ReasonNone, nil)
	c.logger.WithField("session", id).Info("Pixl peripheral ready")
	c.unlockAndNotify()
}

func (c *Controller) onTemperature(id uint64, data []byte, err error) {
	if err != nil {
		c.logger.WithFields(logrus.Fields{
			"session": id,
			"error":   err,
		}).Warn("Temperature read failed")
		return
	}

	c.mu.Lock()
	s := c.resolvedSessionLocked(id)
	if s == nil {
		c.mu.Unlock()
		c.logStale(id, "temperature read")
		return
	}
	celsius := codec.DecodeTemperature(data)
	s.temperature = celsius
	s.hasTemp = true
	c.mu.Unlock()

	c.listener.TemperatureUpdate(celsius)
}

func (c *Controller) onClickNotification(id uint64) func([]byte) {
	return func(data []byte) {
		c.mu.Lock()
		s := c.resolvedSessionLocked(id)
		if s == nil || c.state != StateReady {
			c.mu.Unlock()
			c.logStale(id, "click notification")
			return
		}
		count := int(codec.DecodeClickCount(data))
		if count < s.clicks {
			c.logger.WithFields(logrus.Fields{
				"session":  id,
				"previous": s.clicks,
				"count":    count,
			}).Warn("Click counter went backwards")
		}
		s.clicks = count
		c.mu.Unlock()

		c.listener.ClickCountUpdate(count)
	}
}

func (c *Controller) onTimeNotification(id uint64) func([]byte) {
	return func(data []byte) {
		c.mu.Lock()
		s := c.resolvedSessionLocked(id)
		if s == nil || c.state != StateReady {
			c.mu.Unlock()
			c.logStale(id, "time notification")
			return
		}
		t := codec.DecodeTime(data).Time(c.location)
		s.time = t
		s.hasTime = true
		c.mu.Unlock()

		c.listener.DateUpdate(t)
	}
}

func (c *Controller) handleLinkEvent(ev link.Event) {
	c.mu.Lock()
	s := c.session
	if s == nil {
		c.mu.Unlock()
		c.logger.WithField("event", ev.Kind.String()).Debug("Link event without a session, ignoring")
		return
	}

	switch ev.Kind {
	case link.EventLinkLost:
		c.logger.WithFields(logrus.Fields{
			"session": s.id,
			"error":   ev.Err,
		}).Warn("Link to Pixl peripheral lost")
		c.endSessionLocked(ReasonLinkLoss, ev.Err)

	case link.EventServicesInvalidated:
		if c.state != StateReady {
			c.logger.WithFields(logrus.Fields{
				"session": s.id,
				"state":   c.state.String(),
			}).Debug("Services invalidated before Ready, ignoring")
			break
		}
		c.logger.WithField("session", s.id).Warn("Peripheral services invalidated")
		s.resolved = nil
		c.setStateLocked(StateInvalidated, ReasonNone, nil)
		c.link.Disconnect(c.disconnectDone("services_invalidated"))
		c.endSessionLocked(ReasonServicesInvalidated, nil)
	}
	c.unlockAndNotify()
}

func (c *Controller) writeDone(id uint64, what string) func(error) {
	return func(err error) {
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"session":        id,
				"characteristic": what,
				"error":          err,
			}).Warn("Characteristic write failed")
			return
		}
		c.logger.WithFields(logrus.Fields{
			"session":        id,
			"characteristic": what,
		}).Debug("Characteristic write acknowledged")
	}
}

func (c *Controller) enableDone(id uint64, what string) func(error) {
	return func(err error) {
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"session":        id,
				"characteristic": what,
				"error":          err,
			}).Warn("Failed to enable notifications")
		}
	}
}

func (c *Controller) disconnectDone(cause string) func(error) {
	return func(err error) {
		if err != nil {
			c.logger.WithFields(logrus.Fields{
				"cause": cause,
				"error": err,
			}).Warn("Link disconnect failed")
		}
	}
}

func (c *Controller) logStale(id uint64, what string) {
	c.logger.WithFields(logrus.Fields{
		"session":    id,
		"completion": what,
	}).Debug("Dropping stale completion")
}

func (c *Controller) isCurrentLocked(id uint64, want State) bool {
	return c.session != nil && c.session.id == id && c.state == want
}

func (c *Controller) resolvedSessionLocked(id uint64) *peripheralSession {
	if c.session == nil || c.session.id != id || c.session.resolved == nil {
		return nil
	}
	return c.session
}

func (c *Controller) readySessionLocked() *peripheralSession {
	if c.state != StateReady || c.session == nil || c.session.resolved == nil {
		return nil
	}
	return c.session
}

func (c *Controller) endSessionLocked(reason DisconnectReason, err error) {
	c.session = nil
	c.setStateLocked(StateDisconnected, reason, err)
}

func (c *Controller) setStateLocked(state State, reason DisconnectReason, err error) {
	c.state = state
	c.reason = reason
	c.logger.WithFields(logrus.Fields{
		"state":  state.String(),
		"reason": reason.String(),
	}).Debug("Session state changed")
	if c.observer != nil {
		c.pending = append(c.pending, stateChange{state: state, reason: reason, err: err})
	}
}

// unlockAndNotify releases the lock and reports the state changes made while
// holding it. One goroutine delivers at a time so the observer sees changes in
// order; changes queued meanwhile, including from the observer itself, are
// delivered by that goroutine before it returns.
func (c *Controller) unlockAndNotify() {
	if c.notifying || len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}

	c.notifying = true
	for len(c.pending) > 0 {
		batch := c.pending
		c.pending = nil
		c.mu.Unlock()
		for _, ch := range batch {
			c.observer(ch.state, ch.reason, ch.err)
		}
		c.mu.Lock()
	}
	c.notifying = false
	c.mu.Unlock()
}
