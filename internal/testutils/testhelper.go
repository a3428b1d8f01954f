//go:build test

package testutils

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type TestHelper struct {
	T       *testing.T
	Logger  *logrus.Logger
	LogHook *test.Hook
}

// NewTestHelper creates a test helper whose logger discards output and records
// every entry in LogHook.
func NewTestHelper(t *testing.T) *TestHelper {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:       t,
		Logger:  logger,
		LogHook: hook,
	}
}

// HasLogEntry reports whether an entry at level contains msg.
func (h *TestHelper) HasLogEntry(level logrus.Level, msg string) bool {
	for _, e := range h.LogHook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, msg) {
			return true
		}
	}
	return false
}

// ResetLogs drops every recorded entry.
func (h *TestHelper) ResetLogs() {
	h.LogHook.Reset()
}
