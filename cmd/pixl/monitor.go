package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/pixl/internal/session"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <device-address>",
	Short: "Stream click, temperature and time events",
	Long: fmt.Sprintf(`Connects to a Pixl, validates it and prints every event until Ctrl+C
or until the device disconnects.

The click counter starts at 0 for every session. The temperature is read once
after connecting, then every --read-interval when set.

Examples:
  # Stream events as text
  pixl monitor %s

  # Set the device clock first, poll temperature every 30s, emit JSON lines
  pixl monitor %s --sync-time --read-interval 30s --format json

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runMonitor,
}

var (
	monitorSyncTime     bool
	monitorReadInterval time.Duration
	monitorFormat       string
)

func init() {
	monitorCmd.Flags().BoolVar(&monitorSyncTime, "sync-time", false, "Write the current time to the device after connecting")
	monitorCmd.Flags().DurationVar(&monitorReadInterval, "read-interval", 0, "Read the temperature at this interval (0 reads once)")
	monitorCmd.Flags().StringVar(&monitorFormat, "format", formatText, "Output format: text or json")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	address := args[0]

	printer, err := newEventPrinter(cmd.OutOrStdout(), monitorFormat)
	if err != nil {
		return err
	}
	if monitorReadInterval < 0 {
		return fmt.Errorf("invalid read interval: %s (must not be negative)", monitorReadInterval)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	ctx, stop := commandContext(cmd)
	defer stop()

	events := session.NewEventChannel(env.cfg.Session.EventBuffer, env.logger)
	defer events.Close()

	s, err := openSession(ctx, cmd, env, address, events, fmt.Sprintf("Monitoring %s", address))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.waitReady(ctx); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Connected to %s. Press Ctrl+C to stop...\n", address)

	if monitorSyncTime {
		s.syncTime(time.Now().In(env.location))
	}
	s.requestTemperature()

	var tick <-chan time.Time
	if monitorReadInterval > 0 {
		ticker := time.NewTicker(monitorReadInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			// User cancelled
			return nil
		case ev, ok := <-events.Events():
			if !ok {
				return nil
			}
			if err := printer.Print(ev); err != nil {
				return err
			}
		case <-tick:
			s.requestTemperature()
		case ch := <-s.states:
			if ch.state == session.StateDisconnected {
				if dropped := events.Dropped(); dropped > 0 {
					env.logger.WithField("dropped", dropped).Warn("Events were overwritten before they could be printed")
				}
				return s.sessionError(ch)
			}
		}
	}
}
