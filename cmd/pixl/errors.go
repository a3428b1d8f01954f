package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/srg/pixl/internal/link"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the session ended while a command was still using it.
	// This is distinct from link.ErrNotConnected, which is reported for operations
	// that never had a connection.
	ErrConnectionLost = errors.New("connection lost")

	// ErrNoResponse indicates the device did not answer within the operation timeout.
	ErrNoResponse = errors.New("no response from device")
)

// FormatUserError turns an error chain into a one-line message with a hint
// for the failures a user can act on.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	if hint := hintFor(err); hint != "" {
		return fmt.Sprintf("%s (%s)", err, hint)
	}
	return err.Error()
}

func hintFor(err error) string {
	if state, ok := link.StateOf(err); ok {
		switch state {
		case link.BluetoothOff:
			return "turn Bluetooth on and retry"
		case link.AlreadyConnected:
			return "another session holds the device, close it and retry"
		case link.NotInitialized:
			return "the Bluetooth adapter is not ready, retry in a moment"
		}
	}
	switch {
	case errors.Is(err, link.ErrUnsupported):
		return "only macOS is supported"
	case errors.Is(err, link.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "is the device powered and in range? --timeout raises the limit"
	}
	return ""
}
