package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/pixl/internal/session"
)

// setTimeCmd represents the set-time command
var setTimeCmd = &cobra.Command{
	Use:   "set-time <device-address>",
	Short: "Write the Current Time characteristic",
	Long: fmt.Sprintf(`Writes the current time, or the time given with --at, to the Pixl
Current Time characteristic. The wall clock is taken in the configured
session time zone.

Examples:
  pixl set-time %s
  pixl set-time %s --at 2024-01-01T09:00:00+01:00

%s`, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runSetTime,
}

var setTimeAt string

func init() {
	setTimeCmd.Flags().StringVar(&setTimeAt, "at", "", "Time to write, RFC3339 (default now)")
}

func runSetTime(cmd *cobra.Command, args []string) error {
	address := args[0]

	var at time.Time
	if setTimeAt != "" {
		var err error
		at, err = time.Parse(time.RFC3339, setTimeAt)
		if err != nil {
			return fmt.Errorf("invalid --at value %q: must be RFC3339 (e.g. 2024-01-01T09:00:00Z)", setTimeAt)
		}
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.In(env.location)

	cmd.SilenceUsage = true

	ctx, stop := commandContext(cmd)
	defer stop()

	s, err := openSession(ctx, cmd, env, address, session.NopListener{}, fmt.Sprintf("Setting time on %s", address))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.waitReady(ctx); err != nil {
		return err
	}
	if !s.controller.WriteCurrentTime(at) {
		return fmt.Errorf("%w: %s", ErrConnectionLost, address)
	}

	if err := s.disconnect(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set time on %s to %s\n", address, at.Format(time.RFC3339))
	return nil
}
