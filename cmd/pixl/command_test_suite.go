//go:build test

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/srg/pixl/internal/link"
	"github.com/srg/pixl/internal/testutils"
	"github.com/srg/pixl/pkg/config"
	"github.com/stretchr/testify/suite"
)

// Test device address for consistent simulated device identification
const TestDeviceAddress = "00:00:00:00:00:01"

// syncBuffer is a bytes.Buffer safe to read while a command writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// CommandTestSuite runs pixl commands against a simulated peripheral behind a real link.Queue.
// All cmd/pixl test suites should embed it.
type CommandTestSuite struct {
	suite.Suite

	Helper     *testutils.TestHelper
	Peripheral *testutils.SimulatedPeripheral

	originalNewLink func(*config.Config, *logrus.Logger) (link.Link, func())
}

func (s *CommandTestSuite) SetupSuite() {
	s.originalNewLink = newLink
}

func (s *CommandTestSuite) TearDownSuite() {
	newLink = s.originalNewLink
}

func (s *CommandTestSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.UsePeripheral(testutils.NewPixlPeripheral())
	resetFlags(rootCmd)
}

// UsePeripheral makes subsequent commands connect to the peripheral built from b.
func (s *CommandTestSuite) UsePeripheral(b *testutils.PeripheralBuilder) {
	s.Peripheral = b.Build()
	peripheral := s.Peripheral
	newLink = func(_ *config.Config, logger *logrus.Logger) (link.Link, func()) {
		q := link.NewQueue(peripheral, logger)
		return q, q.Close
	}
}

// ExecuteCommand runs pixl with args, returns stdout and error.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	return s.ExecuteCommandContext(context.Background(), new(syncBuffer), args...)
}

// ExecuteCommandContext runs pixl with args under ctx, writing stdout to out.
func (s *CommandTestSuite) ExecuteCommandContext(ctx context.Context, out *syncBuffer, args ...string) (string, error) {
	errOut := new(syncBuffer)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)
	rootCmd.SetArgs(args)
	// cobra keeps a subcommand's context from its first run
	for _, sub := range rootCmd.Commands() {
		sub.SetContext(ctx)
	}
	err := rootCmd.ExecuteContext(ctx)
	return out.String(), err
}

// WriteConfig writes a YAML config file and returns its path.
func (s *CommandTestSuite) WriteConfig(content string) string {
	path := filepath.Join(s.T().TempDir(), "pixl.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(content), 0o600), "config file MUST be written")
	return path
}

// resetFlags restores every flag of cmd and its subcommands to its default.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}
