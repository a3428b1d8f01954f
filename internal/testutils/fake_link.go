//go:build test

package testutils

import (
	"context"
	"sync"

	"github.com/srg/pixl/internal/bledb"
	"github.com/srg/pixl/internal/link"
)

// OpKind names an operation recorded by FakeLink.
type OpKind string

const (
	OpConnect             OpKind = "connect"
	OpDiscover            OpKind = "discover"
	OpRead                OpKind = "read"
	OpWrite               OpKind = "write"
	OpEnableNotifications OpKind = "enable-notifications"
	OpDisconnect          OpKind = "disconnect"
)

// FakeOp is an operation enqueued on a FakeLink. The test completes it explicitly,
// which plays the role of the link worker.
type FakeOp struct {
	Kind    OpKind
	Address string
	Char    *link.Characteristic
	Value   []byte
	Mode    link.WriteMode

	mu           sync.Mutex
	completed    bool
	errDone      func(error)
	discoverDone func(*link.Database, error)
	readDone     func([]byte, error)
}

// Complete finishes a connect, write, enable-notifications or disconnect operation.
func (o *FakeOp) Complete(err error) {
	if !o.markCompleted() {
		return
	}
	switch {
	case o.errDone != nil:
		o.errDone(err)
	case o.discoverDone != nil:
		o.discoverDone(nil, err)
	case o.readDone != nil:
		o.readDone(nil, err)
	}
}

// CompleteDiscover finishes a discover operation.
func (o *FakeOp) CompleteDiscover(db *link.Database, err error) {
	if o.markCompleted() {
		o.discoverDone(db, err)
	}
}

// CompleteRead finishes a read operation.
func (o *FakeOp) CompleteRead(data []byte, err error) {
	if o.markCompleted() {
		o.readDone(data, err)
	}
}

// Completed reports whether the operation has been finished.
func (o *FakeOp) Completed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.completed
}

func (o *FakeOp) markCompleted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.completed {
		return false
	}
	o.completed = true
	return true
}

// FakeLink is a link.Link that records operations and never completes them on its own.
type FakeLink struct {
	mu        sync.Mutex
	ops       []*FakeOp
	handler   func(link.Event)
	notifiers map[string]func([]byte)
}

// NewFakeLink creates an empty FakeLink.
func NewFakeLink() *FakeLink {
	return &FakeLink{notifiers: make(map[string]func([]byte))}
}

func (f *FakeLink) record(op *FakeOp) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
}

func (f *FakeLink) Connect(_ context.Context, address string, done func(error)) {
	f.record(&FakeOp{Kind: OpConnect, Address: address, errDone: done})
}

func (f *FakeLink) Discover(done func(*link.Database, error)) {
	f.record(&FakeOp{Kind: OpDiscover, discoverDone: done})
}

func (f *FakeLink) Read(c *link.Characteristic, done func([]byte, error)) {
	f.record(&FakeOp{Kind: OpRead, Char: c, readDone: done})
}

func (f *FakeLink) Write(c *link.Characteristic, value []byte, mode link.WriteMode, done func(error)) {
	f.record(&FakeOp{Kind: OpWrite, Char: c, Value: append([]byte(nil), value...), Mode: mode, errDone: done})
}

func (f *FakeLink) EnableNotifications(c *link.Characteristic, onValue func([]byte), done func(error)) {
	f.mu.Lock()
	f.notifiers[c.UUID] = onValue
	f.mu.Unlock()
	f.record(&FakeOp{Kind: OpEnableNotifications, Char: c, errDone: done})
}

func (f *FakeLink) Disconnect(done func(error)) {
	f.record(&FakeOp{Kind: OpDisconnect, errDone: done})
}

func (f *FakeLink) SetEventHandler(h func(link.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

// Ops returns the recorded operations in enqueue order.
func (f *FakeLink) Ops() []*FakeOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*FakeOp(nil), f.ops...)
}

// OpsOfKind returns the recorded operations of one kind.
func (f *FakeLink) OpsOfKind(kind OpKind) []*FakeOp {
	var out []*FakeOp
	for _, op := range f.Ops() {
		if op.Kind == kind {
			out = append(out, op)
		}
	}
	return out
}

// Kinds returns the kinds of the recorded operations in order.
func (f *FakeLink) Kinds() []OpKind {
	ops := f.Ops()
	out := make([]OpKind, len(ops))
	for i, op := range ops {
		out[i] = op.Kind
	}
	return out
}

// Last returns the most recent operation, or nil.
func (f *FakeLink) Last() *FakeOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ops) == 0 {
		return nil
	}
	return f.ops[len(f.ops)-1]
}

// Count returns the number of recorded operations.
func (f *FakeLink) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ops)
}

// Notify delivers a notification to the handler registered for charUUID.
// Returns false when no handler is registered.
func (f *FakeLink) Notify(charUUID string, data []byte) bool {
	f.mu.Lock()
	fn := f.notifiers[bledb.NormalizeUUID(charUUID)]
	f.mu.Unlock()
	if fn == nil {
		return false
	}
	fn(data)
	return true
}

// Emit delivers a link event to the installed handler.
func (f *FakeLink) Emit(ev link.Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}
