//go:build !darwin

package goble

import (
	"fmt"
	"runtime"

	"github.com/go-ble/ble"
	"github.com/srg/pixl/internal/link"
)

// DeviceFactory creates ble.Device instances (can be overridden in tests).
// Only the CoreBluetooth backend is wired; other platforms report ErrUnsupported.
var DeviceFactory = func() (ble.Device, error) {
	return nil, fmt.Errorf("no BLE backend for %s: %w", runtime.GOOS, link.ErrUnsupported)
}
