//go:build test

package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/srg/pixl/internal/session"
	"github.com/srg/pixl/internal/testutils"
	"github.com/stretchr/testify/suite"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

func (s *CommandsTestSuite) TestTemp() {
	// GOAL: Verify temp connects, reads the sensor once and prints Celsius
	//
	// TEST SCENARIO: Pixl reports 237 → command prints 23.7 °C → link disconnected

	out, err := s.ExecuteCommand("temp", TestDeviceAddress)
	s.Require().NoError(err, "temp MUST succeed against a Pixl")

	testutils.NewTextAsserter(s.T()).Assert(out, "23.7 °C\n")
	s.Equal([]string{session.TemperatureCharUUID}, s.Peripheral.Reads(), "MUST read the temperature exactly once")
	s.False(s.Peripheral.IsConnected(), "MUST disconnect before exiting")
}

func (s *CommandsTestSuite) TestTempUnsupportedDevice() {
	// GOAL: Verify a peripheral without the vendor service is rejected with a clear message
	//
	// TEST SCENARIO: vendor service missing → validation fails → "is not supported" error

	s.UsePeripheral(testutils.NewPixlPeripheral().WithoutService(session.VendorServiceUUID))

	_, err := s.ExecuteCommand("temp", TestDeviceAddress)
	s.Require().Error(err)
	s.True(errors.Is(err, session.ErrUnsupportedDevice), "MUST wrap ErrUnsupportedDevice")
	s.Contains(FormatUserError(err), "device "+TestDeviceAddress+" is not supported")
	s.Empty(s.Peripheral.Reads(), "MUST not read from an unsupported device")
}

func (s *CommandsTestSuite) TestConnectFailure() {
	s.Peripheral.FailDial(errors.New("peripheral out of range"))

	_, err := s.ExecuteCommand("temp", TestDeviceAddress)
	s.Require().Error(err)
	s.Contains(err.Error(), "peripheral out of range")
}

func (s *CommandsTestSuite) TestWriteInt() {
	// GOAL: Verify write-int encodes the value little-endian and waits for the write
	//
	// TEST SCENARIO: write-int -5 → fb ff ff ff written to the integer characteristic → confirmation printed

	out, err := s.ExecuteCommand("write-int", "--", TestDeviceAddress, "-5")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, "Wrote -5 to "+TestDeviceAddress+"\n")
	writes := s.Peripheral.Writes()
	s.Require().Len(writes, 1, "MUST write exactly once")
	s.Equal(session.IntegerCharUUID, writes[0].CharUUID)
	s.Equal([]byte{0xfb, 0xff, 0xff, 0xff}, writes[0].Value)
}

func (s *CommandsTestSuite) TestWriteIntRejectsInvalidValues() {
	for _, value := range []string{"abc", "2147483648", "-2147483649", "1.5"} {
		s.Run(value, func() {
			_, err := s.ExecuteCommand("write-int", "--", TestDeviceAddress, value)
			s.Error(err, "MUST reject %s", value)
		})
	}
	s.Zero(s.Peripheral.Dials(), "MUST not connect when the value is invalid")
}

func (s *CommandsTestSuite) TestSetTime() {
	// GOAL: Verify set-time writes the Current Time payload in the configured zone
	//
	// TEST SCENARIO: --at 2023-03-15T12:30:45Z with time_zone UTC → 10-byte payload written

	cfg := s.WriteConfig("session:\n  time_zone: UTC\n")

	out, err := s.ExecuteCommand("set-time", TestDeviceAddress, "--config", cfg, "--at", "2023-03-15T12:30:45Z")
	s.Require().NoError(err)

	s.Contains(out, "Set time on "+TestDeviceAddress+" to 2023-03-15T12:30:45Z")
	writes := s.Peripheral.Writes()
	s.Require().Len(writes, 1)
	s.Equal(session.CurrentTimeCharUUID, writes[0].CharUUID)
	s.Equal([]byte{0xe7, 0x07, 0x03, 0x0f, 0x0c, 0x1e, 0x2d, 0x03, 0x00, 0x00}, writes[0].Value)
}

func (s *CommandsTestSuite) TestSetTimeRejectsInvalidAt() {
	_, err := s.ExecuteCommand("set-time", TestDeviceAddress, "--at", "tomorrow")
	s.Require().Error(err)
	s.Contains(err.Error(), "must be RFC3339")
	s.Zero(s.Peripheral.Dials())
}

func (s *CommandsTestSuite) TestMonitorJSON() {
	// GOAL: Verify monitor streams events as JSON lines and exits cleanly on cancel
	//
	// TEST SCENARIO: connect → seed clicks(0) → temperature → button notify → cancel → nil error

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := new(syncBuffer)
	result := make(chan error, 1)
	go func() {
		_, err := s.ExecuteCommandContext(ctx, out, "monitor", TestDeviceAddress, "--format", "json")
		result <- err
	}()

	s.Require().Eventually(func() bool {
		return strings.Contains(out.String(), `"temperature"`)
	}, 2*time.Second, 10*time.Millisecond, "MUST print the initial temperature")

	s.True(s.Peripheral.Notify(session.ButtonClickCharUUID, []byte{2}))
	s.Require().Eventually(func() bool {
		return strings.Count(out.String(), `"clicks"`) == 2
	}, 2*time.Second, 10*time.Millisecond, "MUST print the click notification")

	cancel()
	select {
	case err := <-result:
		s.NoError(err, "cancelling monitor MUST be a clean exit")
	case <-time.After(2 * time.Second):
		s.FailNow("monitor did not exit after cancel")
	}

	testutils.NewJSONAsserter(s.T()).AssertLines(out.String(), `[
		{"event": "clicks", "count": 0, "at": "<<PRESENCE>>"},
		{"event": "temperature", "celsius": 23.7},
		{"event": "clicks", "count": 2}
	]`)
	s.Eventually(func() bool { return !s.Peripheral.IsConnected() }, time.Second, 10*time.Millisecond)
}

func (s *CommandsTestSuite) TestMonitorLinkLoss() {
	// GOAL: Verify monitor reports a lost connection as an error
	//
	// TEST SCENARIO: connect → events printed as text → link dropped → ErrConnectionLost

	out := new(syncBuffer)
	result := make(chan error, 1)
	go func() {
		_, err := s.ExecuteCommandContext(context.Background(), out, "monitor", TestDeviceAddress)
		result <- err
	}()

	s.Require().Eventually(func() bool {
		return strings.Contains(out.String(), "temperature")
	}, 2*time.Second, 10*time.Millisecond)

	s.Peripheral.DropLink()

	select {
	case err := <-result:
		s.ErrorIs(err, ErrConnectionLost)
		s.Contains(err.Error(), session.ReasonLinkLoss.String())
	case <-time.After(2 * time.Second):
		s.FailNow("monitor did not exit after link loss")
	}

	testutils.NewTextAsserter(s.T()).Assert(out.String(), `
clicks       0
temperature  23.7 °C
`)
}

func (s *CommandsTestSuite) TestMonitorRejectsInvalidFlags() {
	_, err := s.ExecuteCommand("monitor", TestDeviceAddress, "--format", "xml")
	s.ErrorContains(err, "invalid format")

	resetFlags(rootCmd)
	_, err = s.ExecuteCommand("monitor", TestDeviceAddress, "--read-interval=-1s")
	s.ErrorContains(err, "invalid read interval")

	s.Zero(s.Peripheral.Dials(), "MUST validate flags before connecting")
}

func (s *CommandsTestSuite) TestInvalidLogLevel() {
	_, err := s.ExecuteCommand("temp", TestDeviceAddress, "--log-level", "loud")
	s.ErrorContains(err, "invalid log level")
	s.Zero(s.Peripheral.Dials())
}

func TestCommandsTestSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}
