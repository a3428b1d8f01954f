//go:build test

package session_test

import (
	"errors"
	"testing"

	"github.com/srg/pixl/internal/link"
	"github.com/srg/pixl/internal/session"
	"github.com/srg/pixl/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Run("complete contract", func(t *testing.T) {
		set, warnings, err := session.Resolve(testutils.NewPixlPeripheral().Database(), true)
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, session.CurrentTimeCharUUID, set.CurrentTime.UUID)
		assert.Equal(t, session.CurrentTimeServiceUUID, set.CurrentTime.ServiceUUID)
		assert.Equal(t, session.IntegerCharUUID, set.Integer.UUID)
		assert.Equal(t, session.TemperatureCharUUID, set.Temperature.UUID)
		assert.Equal(t, session.ButtonClickCharUUID, set.ButtonClick.UUID)
		assert.Equal(t, session.VendorServiceUUID, set.ButtonClick.ServiceUUID)
	})

	t.Run("empty database lists both services once", func(t *testing.T) {
		set, _, err := session.Resolve(link.NewDatabase(), false)
		assert.Nil(t, set)
		require.ErrorIs(t, err, session.ErrUnsupportedDevice)

		var nf *link.NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "service", nf.Resource)

		var unwrapped interface{ Unwrap() []error }
		require.True(t, errors.As(err, &unwrapped))
		var joined []error
		for _, e := range unwrapped.Unwrap() {
			if j, ok := e.(interface{ Unwrap() []error }); ok {
				joined = j.Unwrap()
			}
		}
		assert.Len(t, joined, 2, "MUST report each missing service once")
	})

	t.Run("missing capabilities are warnings by default", func(t *testing.T) {
		db := testutils.NewPeripheralBuilder().
			WithService("1805").
			WithCharacteristic("2a2b", "read", nil).
			WithService("3c0a1000-281d-4b48-b2a7-f15579a1c38f").
			WithCharacteristic("3c0a1001-281d-4b48-b2a7-f15579a1c38f", "write", nil).
			WithCharacteristic("3c0a1002-281d-4b48-b2a7-f15579a1c38f", "read", nil).
			WithCharacteristic("3c0a1003-281d-4b48-b2a7-f15579a1c38f", "notify", nil).
			Database()

		set, warnings, err := session.Resolve(db, false)
		require.NoError(t, err)
		assert.NotNil(t, set)
		require.Len(t, warnings, 1)
		assert.Contains(t, warnings[0].Error(), "current time characteristic")

		_, _, err = session.Resolve(db, true)
		var capErr *session.CapabilityError
		require.ErrorAs(t, err, &capErr)
		assert.Equal(t, link.PropRead|link.PropNotify, capErr.Required)
		assert.Equal(t, link.PropRead, capErr.Actual)
	})
}
