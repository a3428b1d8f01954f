package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pixl/internal/bledb"
	goble "github.com/srg/pixl/internal/link/go-ble"
	"github.com/srg/pixl/internal/session"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Find nearby Pixl peripherals",
	Long: `Scans for advertising peripherals and lists the ones that advertise the
Pixl vendor service, with the address to pass to the other commands.

Examples:
  # List Pixl devices seen within 10 seconds
  pixl scan

  # Scan longer and include every advertising peripheral
  pixl scan --duration 30s --all`,
	Args: cobra.NoArgs,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanAll      bool
	scanFormat   string
)

// scanPeripherals runs the scan (can be overridden in tests)
var scanPeripherals = func(ctx context.Context, logger *logrus.Logger, opts goble.ScanOptions) ([]goble.Discovered, error) {
	return goble.NewScanner(logger).Scan(ctx, opts)
}

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", goble.DefaultScanDuration, "Scan duration")
	scanCmd.Flags().BoolVar(&scanAll, "all", false, "List every advertising peripheral, not only Pixl devices")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != formatJSON {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}
	if scanDuration <= 0 {
		return fmt.Errorf("invalid duration: %s (must be positive)", scanDuration)
	}

	env, err := loadEnvironment(cmd)
	if err != nil {
		return err
	}

	cmd.SilenceUsage = true

	ctx, stop := commandContext(cmd)
	defer stop()

	opts := goble.ScanOptions{Duration: scanDuration}
	if !scanAll {
		opts.ServiceUUIDs = []string{session.VendorServiceUUID}
	}

	progress := NewProgressPrinter(cmd.ErrOrStderr(), "Scanning for Pixl devices", "Scanning")
	progress.Start()
	found, err := scanPeripherals(ctx, env.logger, opts)
	progress.Stop()

	// Ctrl+C ends the scan early; show what was found
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if scanFormat == formatJSON {
		return displayDevicesJSON(cmd.OutOrStdout(), found)
	}
	return displayDevicesTable(cmd.OutOrStdout(), found)
}

func displayDevicesTable(out io.Writer, devices []goble.Discovered) error {
	if len(devices) == 0 {
		_, err := fmt.Fprintln(out, "No devices found")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\tSERVICES")

	for _, d := range devices {
		name := d.Name
		if name == "" {
			name = "(unnamed)"
		}
		if len(name) > 20 {
			name = name[:17] + "..."
		}

		services := make([]string, 0, len(d.Services))
		for _, uuid := range d.Services {
			if known := bledb.LookupService(uuid); known != "" {
				services = append(services, known)
			} else {
				services = append(services, uuid)
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", name, d.Address, d.RSSI, strings.Join(services, ","))
	}

	return w.Flush()
}

func displayDevicesJSON(out io.Writer, devices []goble.Discovered) error {
	if devices == nil {
		devices = []goble.Discovered{}
	}
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(devices)
}
