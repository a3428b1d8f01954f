package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/srg/pixl/internal/session"
)

// writeIntCmd represents the write-int command
var writeIntCmd = &cobra.Command{
	Use:   "write-int <device-address> <value>",
	Short: "Write a signed 32-bit integer",
	Long: fmt.Sprintf(`Writes a signed 32-bit integer, little-endian, to the Pixl integer
characteristic with an acknowledged write.

Values accept decimal, 0x hex, 0o octal and 0b binary notation. Put "--"
before the arguments to write a negative value.

Examples:
  pixl write-int %s 42
  pixl write-int -- %s -5
  pixl write-int %s 0x7fffffff

%s`, exampleDeviceAddress, exampleDeviceAddress, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(2),
	RunE: runWriteInt,
}

// parseInt32 parses a signed 32-bit value in any Go integer literal base.
func parseInt32(s string) (int32, error) {
	v, err := strconv.ParseInt(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q: must be a signed 32-bit integer", s)
	}
	return int32(v), nil
}

func runWriteInt(cmd *cobra.Command, args []string) error {
	address := args[0]

	value, err := parseInt32(args[1])
	if err != nil {
		return err
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := commandContext(cmd)
	defer stop()

	s, err := openSession(ctx, cmd, env, address, session.NopListener{}, fmt.Sprintf("Writing to %s", address))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.waitReady(ctx); err != nil {
		return err
	}
	if !s.controller.WriteInt(value) {
		return fmt.Errorf("%w: %s", ErrConnectionLost, address)
	}

	// The link is FIFO: once the disconnect completes the write has too.
	if err := s.disconnect(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d to %s\n", value, address)
	return nil
}
