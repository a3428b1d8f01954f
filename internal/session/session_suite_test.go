//go:build test

package session_test

import (
	"context"
	"sync"

	"github.com/srg/pixl/internal/link"
	"github.com/srg/pixl/internal/session"
	"github.com/srg/pixl/internal/testutils"
	"github.com/stretchr/testify/suite"
)

const testAddress = "AA:BB:CC:DD:EE:FF"

type observedState struct {
	State  session.State
	Reason session.DisconnectReason
	Err    error
}

// ControllerSuite drives a Controller over a FakeLink, completing each
// link operation by hand.
type ControllerSuite struct {
	suite.Suite

	Helper     *testutils.TestHelper
	Link       *testutils.FakeLink
	Listener   *testutils.RecordingListener
	Controller *session.Controller
	Peripheral *testutils.PeripheralBuilder

	requireProperties bool

	mu     sync.Mutex
	states []observedState
}

func (s *ControllerSuite) SetupTest() {
	s.Helper = testutils.NewTestHelper(s.T())
	s.Link = testutils.NewFakeLink()
	s.Listener = testutils.NewRecordingListener()
	s.states = nil
	if s.Peripheral == nil {
		s.Peripheral = testutils.NewPixlPeripheral()
	}
	s.Controller = session.NewController(s.Link, s.Listener, session.Options{
		Logger:            s.Helper.Logger,
		RequireProperties: s.requireProperties,
		OnStateChange: func(state session.State, reason session.DisconnectReason, err error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.states = append(s.states, observedState{State: state, Reason: reason, Err: err})
		},
	})
}

func (s *ControllerSuite) TearDownTest() {
	s.Peripheral = nil
	s.requireProperties = false
}

func (s *ControllerSuite) ObservedStates() []session.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]session.State, len(s.states))
	for i, st := range s.states {
		out[i] = st.State
	}
	return out
}

func (s *ControllerSuite) LastObserved() observedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Require().NotEmpty(s.states, "MUST have observed a state change")
	return s.states[len(s.states)-1]
}

// lastOp returns the most recent link operation and checks its kind.
func (s *ControllerSuite) lastOp(kind testutils.OpKind) *testutils.FakeOp {
	op := s.Link.Last()
	s.Require().NotNil(op, "MUST have enqueued a link operation")
	s.Require().Equal(kind, op.Kind, "MUST enqueue %s", kind)
	return op
}

// ConnectToDiscovery connects and completes the connect.
func (s *ControllerSuite) ConnectToDiscovery() *testutils.FakeOp {
	s.Require().NoError(s.Controller.Connect(context.Background(), testAddress))
	s.lastOp(testutils.OpConnect).Complete(nil)
	return s.lastOp(testutils.OpDiscover)
}

// ConnectToReady drives the controller all the way to Ready with the configured peripheral.
func (s *ControllerSuite) ConnectToReady() {
	s.ConnectToDiscovery().CompleteDiscover(s.Peripheral.Database(), nil)
	s.Require().Equal(session.StateReady, s.Controller.State(), "MUST reach Ready")
}

// Resolved returns the contract characteristics of the configured peripheral.
func (s *ControllerSuite) Resolved() *session.ResolvedCharacteristicSet {
	set, _, err := session.Resolve(s.Peripheral.Database(), false)
	s.Require().NoError(err)
	return set
}

func (s *ControllerSuite) EmitLinkEvent(kind link.EventKind) {
	s.Link.Emit(link.Event{Kind: kind})
}
