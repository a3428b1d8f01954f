package link

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/srg/pixl/internal/groutine"
)

// UUIDs of the GATT Service Changed characteristic the queue watches after discovery.
const (
	GenericAttributeServiceUUID = "1801"
	ServiceChangedUUID          = "2a05"
)

type op struct {
	name    string
	connect bool
	exec    func(ctx context.Context)
	fail    func(err error)
}

// Queue implements Link over a blocking Transport. A single worker runs the
// queued operations in order; a monitor per connection turns an unrequested
// disconnect into EventLinkLost.
type Queue struct {
	transport Transport
	logger    *logrus.Logger
	group     *groutine.Group

	mu        sync.Mutex
	ops       []*op
	wake      chan struct{}
	closed    bool
	connected bool
	connGen   uint64
	stopConn  chan struct{}
	handler   func(Event)
}

// NewQueue starts the worker. Call Close to stop it.
func NewQueue(transport Transport, logger *logrus.Logger) *Queue {
	if logger == nil {
		logger = logrus.New()
	}
	q := &Queue{
		transport: transport,
		logger:    logger,
		group:     groutine.NewGroup(context.Background()),
		wake:      make(chan struct{}, 1),
	}
	q.group.Go("link-worker", q.run)
	return q
}

// SetEventHandler installs the receiver of link events. It replaces any previous handler.
func (q *Queue) SetEventHandler(h func(Event)) {
	q.mu.Lock()
	q.handler = h
	q.mu.Unlock()
}

// Connect enqueues a dial to address. ctx bounds the dial only.
func (q *Queue) Connect(ctx context.Context, address string, done func(error)) {
	q.enqueue(&op{
		name:    "connect",
		connect: true,
		exec: func(context.Context) {
			done(q.dial(ctx, address))
		},
		fail: done,
	})
}

// Discover enqueues a service discovery.
func (q *Queue) Discover(done func(*Database, error)) {
	q.enqueue(&op{
		name: "discover",
		exec: func(ctx context.Context) {
			gen, err := q.requireConnected()
			if err != nil {
				done(nil, err)
				return
			}
			db, err := q.transport.Discover(ctx)
			if err != nil {
				done(nil, fmt.Errorf("failed to discover services: %w", err))
				return
			}
			q.watchServiceChanged(ctx, gen, db)
			done(db, nil)
		},
		fail: func(err error) { done(nil, err) },
	})
}

// Read enqueues a characteristic read.
func (q *Queue) Read(c *Characteristic, done func([]byte, error)) {
	q.enqueue(&op{
		name: "read",
		exec: func(ctx context.Context) {
			if _, err := q.requireConnected(); err != nil {
				done(nil, err)
				return
			}
			done(q.transport.Read(ctx, c))
		},
		fail: func(err error) { done(nil, err) },
	})
}

// Write enqueues a characteristic write.
func (q *Queue) Write(c *Characteristic, value []byte, mode WriteMode, done func(error)) {
	payload := append([]byte(nil), value...)
	q.enqueue(&op{
		name: "write",
		exec: func(ctx context.Context) {
			if _, err := q.requireConnected(); err != nil {
				done(err)
				return
			}
			done(q.transport.Write(ctx, c, payload, mode))
		},
		fail: done,
	})
}

// EnableNotifications enqueues a subscription; onValue receives every notification.
func (q *Queue) EnableNotifications(c *Characteristic, onValue func([]byte), done func(error)) {
	q.enqueue(&op{
		name: "enable-notifications",
		exec: func(ctx context.Context) {
			if _, err := q.requireConnected(); err != nil {
				done(err)
				return
			}
			done(q.transport.Subscribe(ctx, c, onValue))
		},
		fail: done,
	})
}

// Disconnect enqueues a requested disconnect. It succeeds when nothing is connected.
func (q *Queue) Disconnect(done func(error)) {
	q.enqueue(&op{
		name:    "disconnect",
		connect: true,
		exec: func(context.Context) {
			q.mu.Lock()
			wasConnected := q.connected
			q.markDisconnectedLocked()
			q.mu.Unlock()

			if !wasConnected {
				done(nil)
				return
			}
			q.logger.Info("Disconnecting BLE device...")
			done(q.transport.Disconnect())
		},
		fail: done,
	})
}

// Close stops the worker, fails every queued operation with ErrQueueClosed and
// drops the connection. It must not be called from a completion callback.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	pending := q.ops
	q.ops = nil
	wasConnected := q.connected
	q.markDisconnectedLocked()
	q.mu.Unlock()

	q.group.Stop()
	q.group.Wait()

	for _, o := range pending {
		o.fail(ErrQueueClosed)
	}
	if wasConnected {
		if err := q.transport.Disconnect(); err != nil {
			q.logger.WithField("error", err).Warn("Failed to disconnect while closing link queue")
		}
	}
}

// Pending returns the number of queued operations not yet started.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ops)
}

func (q *Queue) enqueue(o *op) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		groutine.Go(context.Background(), "link-closed-"+o.name, func(context.Context) {
			o.fail(ErrQueueClosed)
		})
		return
	}
	q.ops = append(q.ops, o)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) next(ctx context.Context) (*op, bool) {
	for {
		q.mu.Lock()
		if len(q.ops) > 0 {
			o := q.ops[0]
			q.ops[0] = nil
			q.ops = q.ops[1:]
			q.mu.Unlock()
			return o, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (q *Queue) run(ctx context.Context) {
	for {
		o, ok := q.next(ctx)
		if !ok {
			return
		}
		q.logger.WithField("op", o.name).Debug("Running link operation")
		o.exec(ctx)
	}
}

func (q *Queue) dial(ctx context.Context, address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("device address is empty")
	}

	q.mu.Lock()
	if q.connected {
		q.mu.Unlock()
		return ErrAlreadyConnected
	}
	q.mu.Unlock()

	if err := q.transport.Dial(ctx, address); err != nil {
		return err
	}

	q.mu.Lock()
	q.connected = true
	q.connGen++
	gen := q.connGen
	stop := make(chan struct{})
	q.stopConn = stop
	q.mu.Unlock()

	disconnected := q.transport.Disconnected()
	if disconnected == nil {
		q.logger.Debug("Transport does not report disconnects, link loss will not be detected")
		return nil
	}

	q.group.Go("link-monitor", func(gctx context.Context) {
		select {
		case <-disconnected:
			q.linkLost(gen)
		case <-stop:
		case <-gctx.Done():
		}
	})
	return nil
}

func (q *Queue) requireConnected() (uint64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.connected {
		return 0, ErrNotConnected
	}
	return q.connGen, nil
}

func (q *Queue) markDisconnectedLocked() {
	q.connected = false
	if q.stopConn != nil {
		close(q.stopConn)
		q.stopConn = nil
	}
}

// linkLost fails the queued non-connect operations and emits EventLinkLost.
func (q *Queue) linkLost(gen uint64) {
	q.mu.Lock()
	if !q.connected || gen != q.connGen {
		q.mu.Unlock()
		return
	}
	q.markDisconnectedLocked()

	var failed []*op
	kept := q.ops[:0]
	for _, o := range q.ops {
		if o.connect {
			kept = append(kept, o)
		} else {
			failed = append(failed, o)
		}
	}
	q.ops = kept
	q.mu.Unlock()

	q.logger.WithField("failed_ops", len(failed)).Warn("BLE link lost")
	for _, o := range failed {
		o.fail(ErrNotConnected)
	}
	q.emit(Event{Kind: EventLinkLost, Err: ErrNotConnected})
}

// watchServiceChanged subscribes to Service Changed indications, when the
// peripheral exposes them, and reports them as EventServicesInvalidated.
func (q *Queue) watchServiceChanged(ctx context.Context, gen uint64, db *Database) {
	c, err := db.Lookup(GenericAttributeServiceUUID, ServiceChangedUUID)
	if err != nil {
		return
	}
	err = q.transport.Subscribe(ctx, c, func([]byte) {
		q.mu.Lock()
		current := q.connected && gen == q.connGen
		q.mu.Unlock()
		if !current {
			return
		}
		q.logger.Info("Peripheral reported GATT services changed")
		q.emit(Event{Kind: EventServicesInvalidated})
	})
	if err != nil {
		q.logger.WithField("error", err).Warn("Failed to subscribe to Service Changed indications")
	}
}

func (q *Queue) emit(ev Event) {
	q.mu.Lock()
	h := q.handler
	q.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
