package link

import (
	"errors"
	"fmt"
)

// NotFoundError reports a service or characteristic missing from the peripheral's database.
type NotFoundError struct {
	Resource string   // "service" or "characteristic"
	UUIDs    []string // service first, then characteristic
}

func (e *NotFoundError) Error() string {
	if len(e.UUIDs) == 0 {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	if len(e.UUIDs) == 1 {
		return fmt.Sprintf("%s %q not found", e.Resource, e.UUIDs[0])
	}
	return fmt.Sprintf("%s %q not found in service %q", e.Resource, e.UUIDs[len(e.UUIDs)-1], e.UUIDs[0])
}

// ConnectionState names why a link operation could not run.
type ConnectionState string

const (
	NotConnected     ConnectionState = "not_connected"
	AlreadyConnected ConnectionState = "already_connected"
	NotInitialized   ConnectionState = "not_initialized"
	BluetoothOff     ConnectionState = "bluetooth_off"
)

// ConnectionError is returned by Link and Transport when the link is in the wrong state.
type ConnectionError struct {
	State ConnectionState
	Msg   string
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.State)
	}
	return fmt.Sprintf("%s: %s", e.State, e.Msg)
}

// Is matches any ConnectionError with the same State, so wrapped sentinels compare equal.
func (e *ConnectionError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ConnectionError)
	if !ok {
		return false
	}
	return e.State == t.State
}

// Sentinels for errors.Is
var (
	ErrNotConnected     = &ConnectionError{State: NotConnected}
	ErrAlreadyConnected = &ConnectionError{State: AlreadyConnected}
	ErrNotInitialized   = &ConnectionError{State: NotInitialized}
	ErrBluetoothOff     = &ConnectionError{State: BluetoothOff}
)

var (
	ErrTimeout     = errors.New("timeout")
	ErrUnsupported = errors.New("unsupported")
	ErrQueueClosed = errors.New("link queue closed")
)

// StateOf returns the connection state carried by err, if any.
func StateOf(err error) (ConnectionState, bool) {
	var cerr *ConnectionError
	if !errors.As(err, &cerr) || cerr == nil {
		return "", false
	}
	return cerr.State, true
}

// IsConnectionState reports whether err carries the given connection state.
func IsConnectionState(err error, state ConnectionState) bool {
	got, ok := StateOf(err)
	return ok && got == state
}
