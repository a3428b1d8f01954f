package link

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseLookup(t *testing.T) {
	db := NewDatabase()
	svc := db.AddService("00001805-0000-1000-8000-00805f9b34fb")
	svc.AddCharacteristic("2A2B", PropRead|PropNotify, 3)
	db.AddService("3c0a1000-281d-4b48-b2a7-f15579a1c38f").
		AddCharacteristic("3c0a1001-281d-4b48-b2a7-f15579a1c38f", PropWrite, 10)

	t.Run("normalized lookup", func(t *testing.T) {
		c, err := db.Lookup("1805", "00002a2b-0000-1000-8000-00805f9b34fb")
		require.NoError(t, err)
		assert.Equal(t, "2a2b", c.UUID)
		assert.Equal(t, "1805", c.ServiceUUID)
		assert.Equal(t, uint16(3), c.Handle)
	})

	t.Run("missing service", func(t *testing.T) {
		_, err := db.Lookup("180f", "2a19")
		var nf *NotFoundError
		require.ErrorAs(t, err, &nf)
		assert.Equal(t, "service", nf.Resource)
		assert.Equal(t, `service "180f" not found`, err.Error())
	})

	t.Run("missing characteristic", func(t *testing.T) {
		_, err := db.Lookup("1805", "2a0f")
		assert.EqualError(t, err, `characteristic "2a0f" not found in service "1805"`)
	})

	t.Run("discovery order and duplicates", func(t *testing.T) {
		again := db.AddService("1805")
		assert.Same(t, svc, again, "MUST return the existing service")

		services := db.Services()
		require.Len(t, services, 2)
		assert.Equal(t, "1805", services[0].UUID)
		assert.Equal(t, "Current Time", services[0].KnownName())
		assert.Equal(t, 2, db.CharacteristicCount())
	})

	t.Run("nil database", func(t *testing.T) {
		var empty *Database
		_, ok := empty.Service("1805")
		assert.False(t, ok)
		assert.Nil(t, empty.Services())
	})
}

func TestPropertyString(t *testing.T) {
	assert.Equal(t, "Read|Notify", (PropRead | PropNotify).String())
	assert.Equal(t, "", Property(0).String())
	assert.True(t, (PropRead | PropWrite).Has(PropWrite))
	assert.False(t, PropRead.Has(PropRead|PropNotify))
}

func TestConnectionErrorIs(t *testing.T) {
	wrapped := &ConnectionError{State: NotConnected, Msg: "link dropped"}
	assert.ErrorIs(t, wrapped, ErrNotConnected, "MUST compare ConnectionError by state")
	assert.NotErrorIs(t, wrapped, ErrAlreadyConnected)
	assert.Equal(t, "not_connected: link dropped", wrapped.Error())

	joined := errors.Join(errors.New("other"), ErrAlreadyConnected)
	assert.True(t, IsConnectionState(joined, AlreadyConnected))
	assert.False(t, IsConnectionState(errors.New("plain"), NotConnected))

	state, ok := StateOf(fmt.Errorf("dial: %w", ErrBluetoothOff))
	assert.True(t, ok, "MUST find a wrapped ConnectionError")
	assert.Equal(t, BluetoothOff, state)
	_, ok = StateOf(ErrTimeout)
	assert.False(t, ok)
}
