package link

import (
	"context"
	"strings"
)

// WriteMode selects acknowledged or unacknowledged writes.
type WriteMode int

const (
	// WriteDefault is a write request the peripheral acknowledges.
	WriteDefault WriteMode = iota
	// WriteNoResponse is a write command without acknowledgement.
	WriteNoResponse
)

func (m WriteMode) String() string {
	if m == WriteNoResponse {
		return "no-response"
	}
	return "default"
}

// Property is a bit set of characteristic capabilities.
type Property uint8

const (
	PropRead Property = 1 << iota
	PropWrite
	PropWriteNoResponse
	PropNotify
	PropIndicate
)

var propertyNames = []struct {
	p    Property
	name string
}{
	{PropRead, "Read"},
	{PropWrite, "Write"},
	{PropWriteNoResponse, "WriteWithoutResponse"},
	{PropNotify, "Notify"},
	{PropIndicate, "Indicate"},
}

// Has reports whether every bit of want is set.
func (p Property) Has(want Property) bool {
	return p&want == want
}

// String returns the property names joined with "|", e.g. "Read|Notify".
func (p Property) String() string {
	var parts []string
	for _, n := range propertyNames {
		if p&n.p != 0 {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// Characteristic is a discovered characteristic handle. UUIDs are normalized.
type Characteristic struct {
	UUID        string
	ServiceUUID string
	Properties  Property
	Handle      uint16
}

// EventKind identifies a link-level event.
type EventKind int

const (
	// EventLinkLost is emitted when an established connection drops without being requested.
	EventLinkLost EventKind = iota
	// EventServicesInvalidated is emitted when the peripheral reports its GATT database changed.
	EventServicesInvalidated
)

func (k EventKind) String() string {
	switch k {
	case EventLinkLost:
		return "link_lost"
	case EventServicesInvalidated:
		return "services_invalidated"
	default:
		return "unknown"
	}
}

// Event is an unsolicited notification from the link.
type Event struct {
	Kind EventKind
	Err  error
}

// Link is the enqueue/callback contract the session controller drives.
// Methods never block and never call done synchronously.
type Link interface {
	Connect(ctx context.Context, address string, done func(error))
	Discover(done func(*Database, error))
	Read(c *Characteristic, done func([]byte, error))
	Write(c *Characteristic, value []byte, mode WriteMode, done func(error))
	EnableNotifications(c *Characteristic, onValue func([]byte), done func(error))
	Disconnect(done func(error))
	SetEventHandler(h func(Event))
}

// Transport is a blocking GATT client for one peripheral. Queue serializes calls to it.
type Transport interface {
	Dial(ctx context.Context, address string) error
	Discover(ctx context.Context) (*Database, error)
	Read(ctx context.Context, c *Characteristic) ([]byte, error)
	Write(ctx context.Context, c *Characteristic, value []byte, mode WriteMode) error
	Subscribe(ctx context.Context, c *Characteristic, onValue func([]byte)) error
	Disconnect() error
	// Disconnected returns a channel closed when the current connection drops.
	// A nil channel means the transport cannot report link loss.
	Disconnected() <-chan struct{}
}
