package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/pixl/internal/link"
	goble "github.com/srg/pixl/internal/link/go-ble"
	"github.com/srg/pixl/internal/session"
	"github.com/srg/pixl/pkg/config"
)

var (
	// operationTimeout bounds waiting for a single read result.
	operationTimeout = 10 * time.Second

	// disconnectGrace bounds waiting for a requested disconnect to complete.
	disconnectGrace = 5 * time.Second
)

// newLink builds the serialized link for one command (can be overridden in tests)
var newLink = func(cfg *config.Config, logger *logrus.Logger) (link.Link, func()) {
	q := link.NewQueue(goble.NewTransport(logger, cfg.ConnectTimeout()), logger)
	return q, q.Close
}

type stateChange struct {
	state  session.State
	reason session.DisconnectReason
	err    error
}

// deviceSession ties a Controller to the command that drives it.
type deviceSession struct {
	address    string
	logger     *logrus.Logger
	controller *session.Controller
	closeLink  func()
	states     chan stateChange
	progress   *ProgressPrinter
	closeOnce  sync.Once
}

// commandContext is cancelled by Ctrl+C or SIGTERM.
func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

// openSession creates the link and controller and starts connecting.
func openSession(ctx context.Context, cmd *cobra.Command, env *environment, address string, listener session.Listener, description string) (*deviceSession, error) {
	l, closeLink := newLink(env.cfg, env.logger)

	s := &deviceSession{
		address:   address,
		logger:    env.logger,
		closeLink: closeLink,
		states:    make(chan stateChange, 64),
		progress:  NewProgressPrinter(cmd.ErrOrStderr(), description, "Connecting", "Ready", "Disconnected"),
	}
	s.controller = session.NewController(l, listener, session.Options{
		Logger:            env.logger,
		OnStateChange:     s.onStateChange,
		RequireProperties: env.cfg.Session.RequireProperties,
		Location:          env.location,
	})

	s.progress.Start()
	if err := s.controller.Connect(ctx, address); err != nil {
		s.progress.Stop()
		closeLink()
		return nil, err
	}
	return s, nil
}

func (s *deviceSession) onStateChange(state session.State, reason session.DisconnectReason, err error) {
	select {
	case s.states <- stateChange{state: state, reason: reason, err: err}:
	default:
		s.logger.WithField("state", state).Warn("State change dropped; command is not consuming them")
	}
}

// waitReady blocks until the session is Ready, ends, or ctx is cancelled.
func (s *deviceSession) waitReady(ctx context.Context) error {
	progress := s.progress.Callback()
	defer s.progress.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch := <-s.states:
			progress(phaseName(ch.state))
			switch ch.state {
			case session.StateReady:
				return nil
			case session.StateDisconnected:
				if err := s.sessionError(ch); err != nil {
					return err
				}
				return fmt.Errorf("%w: %s", ErrConnectionLost, s.address)
			}
		}
	}
}

// await waits for one value from values while watching for the session to end.
func await[T any](ctx context.Context, s *deviceSession, values <-chan T, what string) (T, error) {
	var zero T
	timer := time.NewTimer(operationTimeout)
	defer timer.Stop()

	for {
		select {
		case v := <-values:
			return v, nil
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-timer.C:
			return zero, fmt.Errorf("%w: %s not received from %s within %s", ErrNoResponse, what, s.address, operationTimeout)
		case ch := <-s.states:
			if ch.state == session.StateDisconnected {
				return zero, s.sessionError(ch)
			}
		}
	}
}

// syncTime queues a Current Time write and warns when the session refuses it.
func (s *deviceSession) syncTime(at time.Time) bool {
	if s.controller.WriteCurrentTime(at) {
		return true
	}
	s.logger.WithFields(logrus.Fields{
		"address": s.address,
		"time":    at.Format(time.RFC3339),
	}).Warn("Time sync not sent, session is not ready")
	return false
}

func (s *deviceSession) requestTemperature() bool {
	if s.controller.ReadTemperature() {
		return true
	}
	s.logger.WithField("address", s.address).Warn("Temperature read not sent, session is not ready")
	return false
}

// disconnect requests a disconnect and waits for it. Operations queued before
// it have completed once it returns nil.
func (s *deviceSession) disconnect() error {
	if s.controller.State() == session.StateDisconnected {
		return nil
	}
	s.controller.RequestDisconnection()

	timer := time.NewTimer(disconnectGrace)
	defer timer.Stop()
	for {
		select {
		case ch := <-s.states:
			if ch.state == session.StateDisconnected {
				if ch.reason == session.ReasonRequested {
					return nil
				}
				return s.sessionError(ch)
			}
		case <-timer.C:
			return fmt.Errorf("%w: disconnect from %s did not complete within %s", ErrNoResponse, s.address, disconnectGrace)
		}
	}
}

// Close ends the session and releases the link. Safe to call more than once.
func (s *deviceSession) Close() {
	s.closeOnce.Do(func() {
		if err := s.disconnect(); err != nil {
			s.logger.WithError(err).Debug("Disconnect on close did not complete cleanly")
		}
		s.closeLink()
	})
}

func (s *deviceSession) sessionError(ch stateChange) error {
	switch ch.reason {
	case session.ReasonNotSupported:
		return fmt.Errorf("device %s is not supported: %w", s.address, ch.err)
	case session.ReasonConnectFailed, session.ReasonDiscoveryFailed:
		if ch.err != nil {
			return ch.err
		}
		return fmt.Errorf("%w: %s", ErrConnectionLost, ch.reason)
	case session.ReasonRequested:
		return nil
	default:
		return fmt.Errorf("%w: %s (%s)", ErrConnectionLost, s.address, ch.reason)
	}
}

func phaseName(state session.State) string {
	switch state {
	case session.StateConnecting:
		return "Connecting"
	case session.StateDiscovering:
		return "Discovering services"
	case session.StateValidating:
		return "Validating"
	case session.StateReady:
		return "Ready"
	case session.StateInvalidated:
		return "Invalidated"
	default:
		return "Disconnected"
	}
}
