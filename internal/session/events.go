package session

import (
	"context"
	"sync"
	"time"

	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/sirupsen/logrus"
	"github.com/srg/pixl/internal/groutine"
)

// DefaultEventBuffer is the ring size used when NewEventChannel gets a non-positive size.
const DefaultEventBuffer = 64

// EventKind tags an Event.
type EventKind int

const (
	EventDateUpdate EventKind = iota
	EventTemperatureUpdate
	EventClickCountUpdate
)

func (k EventKind) String() string {
	switch k {
	case EventDateUpdate:
		return "date"
	case EventTemperatureUpdate:
		return "temperature"
	case EventClickCountUpdate:
		return "clicks"
	default:
		return "unknown"
	}
}

// Event is a Listener callback captured by EventChannel.
type Event struct {
	Kind       EventKind
	At         time.Time // when the event was captured
	Date       time.Time
	Celsius    float64
	ClickCount int
}

// EventChannel is a Listener that buffers events in an overlapped ring and
// delivers them on a channel. Producers never block; when the consumer falls
// behind the oldest buffered events are overwritten.
type EventChannel struct {
	logger  *logrus.Logger
	ring    mpmc.RichOverlappedRingBuffer[Event]
	out     chan Event
	wake    chan struct{}
	group   *groutine.Group
	once    sync.Once
	dropped int
	mu      sync.Mutex
}

var _ Listener = (*EventChannel)(nil)

// NewEventChannel starts the pump goroutine. Close stops it and closes Events().
func NewEventChannel(size int, logger *logrus.Logger) *EventChannel {
	if size <= 0 {
		size = DefaultEventBuffer
	}
	if logger == nil {
		logger = logrus.New()
	}
	ec := &EventChannel{
		logger: logger,
		ring:   mpmc.NewOverlappedRingBuffer[Event](uint32(size)),
		out:    make(chan Event),
		wake:   make(chan struct{}, 1),
		group:  groutine.NewGroup(context.Background()),
	}
	ec.group.Go("session-event-pump", ec.pump)
	return ec
}

// Events returns the delivery channel. It is closed after Close.
func (ec *EventChannel) Events() <-chan Event {
	return ec.out
}

// Dropped returns how many events were overwritten before delivery.
func (ec *EventChannel) Dropped() int {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return ec.dropped
}

// Close stops delivery. Buffered events not yet received are discarded.
func (ec *EventChannel) Close() {
	ec.once.Do(func() {
		ec.group.Stop()
		ec.group.Wait()
		close(ec.out)
	})
}

func (ec *EventChannel) DateUpdate(t time.Time) {
	ec.push(Event{Kind: EventDateUpdate, Date: t})
}

func (ec *EventChannel) TemperatureUpdate(celsius float64) {
	ec.push(Event{Kind: EventTemperatureUpdate, Celsius: celsius})
}

func (ec *EventChannel) ClickCountUpdate(count int) {
	ec.push(Event{Kind: EventClickCountUpdate, ClickCount: count})
}

func (ec *EventChannel) push(ev Event) {
	ev.At = time.Now()
	overwrites, err := ec.ring.EnqueueM(ev)
	if err != nil {
		ec.logger.WithFields(logrus.Fields{
			"event": ev.Kind.String(),
			"error": err,
		}).Warn("Failed to buffer session event")
		return
	}
	if overwrites > 0 {
		ec.mu.Lock()
		ec.dropped += int(overwrites)
		ec.mu.Unlock()
		ec.logger.WithField("event", ev.Kind.String()).Debug("Event buffer full, oldest event overwritten")
	}

	select {
	case ec.wake <- struct{}{}:
	default:
	}
}

func (ec *EventChannel) pump(ctx context.Context) {
	for {
		for !ec.ring.IsEmpty() {
			ev, err := ec.ring.Dequeue()
			if err != nil {
				break
			}
			select {
			case ec.out <- ev:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ec.wake:
		case <-ctx.Done():
			return
		}
	}
}
