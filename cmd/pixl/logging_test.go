package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pixl/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Duration("timeout", 0, "")
	require.NoError(t, cmd.Flags().Parse(args))
	return cmd
}

func TestConfigureLogger(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		cfgLevel string
		fromFile bool
		expected logrus.Level
		wantErr  bool
	}{
		{name: "silent by default", expected: logrus.PanicLevel},
		{name: "config level ignored without a file", cfgLevel: "debug", expected: logrus.PanicLevel},
		{name: "config file level", cfgLevel: "warn", fromFile: true, expected: logrus.WarnLevel},
		{name: "flag overrides file", args: []string{"--log-level", "error"}, cfgLevel: "debug", fromFile: true, expected: logrus.ErrorLevel},
		{name: "debug flag", args: []string{"--log-level", "debug"}, expected: logrus.DebugLevel},
		{name: "invalid flag", args: []string{"--log-level", "trace"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			if tt.cfgLevel != "" {
				cfg.LogLevel = tt.cfgLevel
			}

			logger, err := configureLogger(newFlagCommand(t, tt.args...), cfg, tt.fromFile)
			if tt.wantErr {
				assert.ErrorContains(t, err, "invalid log level")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, logger.GetLevel())
		})
	}
}

func TestLoadEnvironment_TimeoutOverride(t *testing.T) {
	env, err := loadEnvironment(newFlagCommand(t, "--timeout", "5s"))
	require.NoError(t, err)
	assert.Equal(t, "5s", env.cfg.Device.ConnectTimeout)

	_, err = loadEnvironment(newFlagCommand(t, "--timeout", "0s"))
	assert.ErrorContains(t, err, "invalid timeout")
}
