package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/srg/pixl/internal/session"
)

// tempCmd represents the temp command
var tempCmd = &cobra.Command{
	Use:   "temp <device-address>",
	Short: "Read the temperature sensor once",
	Long: fmt.Sprintf(`Connects to a Pixl, reads the temperature characteristic and prints it
in degrees Celsius.

Examples:
  pixl temp %s

%s`, exampleDeviceAddress, deviceAddressNote),
	Args: cobra.ExactArgs(1),
	RunE: runTemp,
}

func runTemp(cmd *cobra.Command, args []string) error {
	address := args[0]

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := commandContext(cmd)
	defer stop()

	temps := make(chan float64, 1)
	listener := session.ListenerFuncs{
		OnTemperature: func(celsius float64) {
			select {
			case temps <- celsius:
			default:
			}
		},
	}

	s, err := openSession(ctx, cmd, env, address, listener, fmt.Sprintf("Reading temperature from %s", address))
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.waitReady(ctx); err != nil {
		return err
	}
	if !s.controller.ReadTemperature() {
		return fmt.Errorf("%w: %s", ErrConnectionLost, address)
	}

	celsius, err := await(ctx, s, temps, "temperature")
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%.1f °C\n", celsius)
	return nil
}
