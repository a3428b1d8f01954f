package goble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/srg/pixl/internal/link"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type mockClient struct {
	mock.Mock
	disconnected chan struct{}
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	p, _ := args.Get(0).(*ble.Profile)
	return p, args.Error(1)
}

func (m *mockClient) ReadCharacteristic(c *ble.Characteristic) ([]byte, error) {
	args := m.Called(c)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	return m.disconnected
}

type TransportTestSuite struct {
	suite.Suite

	logger       *logrus.Logger
	hook         *test.Hook
	client       *mockClient
	transport    *Transport
	originalDial func(ctx context.Context, address string) (gattClient, error)

	currentTime *ble.Characteristic
	integer     *ble.Characteristic
	click       *ble.Characteristic
	changed     *ble.Characteristic
}

func (s *TransportTestSuite) SetupTest() {
	s.logger, s.hook = test.NewNullLogger()
	s.logger.SetLevel(logrus.DebugLevel)
	s.client = &mockClient{disconnected: make(chan struct{})}

	s.originalDial = dial
	dial = func(ctx context.Context, address string) (gattClient, error) {
		return s.client, nil
	}

	s.currentTime = &ble.Characteristic{UUID: ble.MustParse("00002a2b-0000-1000-8000-00805f9b34fb"), Property: ble.CharRead | ble.CharNotify, ValueHandle: 3}
	s.integer = &ble.Characteristic{UUID: ble.MustParse("3c0a1001-281d-4b48-b2a7-f15579a1c38f"), Property: ble.CharWrite, ValueHandle: 10}
	s.click = &ble.Characteristic{UUID: ble.MustParse("3c0a1003-281d-4b48-b2a7-f15579a1c38f"), Property: ble.CharNotify, ValueHandle: 14}
	s.changed = &ble.Characteristic{UUID: ble.MustParse("2a05"), Property: ble.CharIndicate, ValueHandle: 1}

	s.transport = NewTransport(s.logger, 0)
}

func (s *TransportTestSuite) TearDownTest() {
	dial = s.originalDial
}

func (s *TransportTestSuite) profile() *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{
		{UUID: ble.MustParse("1801"), Characteristics: []*ble.Characteristic{s.changed}},
		{UUID: ble.MustParse("00001805-0000-1000-8000-00805f9b34fb"), Characteristics: []*ble.Characteristic{s.currentTime}},
		{UUID: ble.MustParse("3c0a1000-281d-4b48-b2a7-f15579a1c38f"), Characteristics: []*ble.Characteristic{s.integer, s.click}},
	}}
}

func (s *TransportTestSuite) connectAndDiscover() *link.Database {
	s.Require().NoError(s.transport.Dial(context.Background(), "AA:BB:CC:DD:EE:FF"))
	s.client.On("DiscoverProfile", true).Return(s.profile(), nil).Once()
	db, err := s.transport.Discover(context.Background())
	s.Require().NoError(err, "MUST discover profile")
	return db
}

func (s *TransportTestSuite) TestDialAndDiscover() {
	// GOAL: Verify profile discovery is translated into a normalized link.Database
	//
	// TEST SCENARIO: dial → DiscoverProfile(true) → services in discovery order, properties mapped, handles kept

	db := s.connectAndDiscover()

	services := db.Services()
	s.Require().Len(services, 3)
	s.Equal([]string{"1801", "1805", "3c0a1000281d4b48b2a7f15579a1c38f"},
		[]string{services[0].UUID, services[1].UUID, services[2].UUID}, "MUST keep discovery order")

	ct, err := db.Lookup("1805", "2a2b")
	s.Require().NoError(err)
	s.Equal(link.PropRead|link.PropNotify, ct.Properties)
	s.Equal(uint16(3), ct.Handle)

	s.NotNil(s.transport.Disconnected(), "MUST expose the client's disconnect channel")
	s.ErrorIs(s.transport.Dial(context.Background(), "AA:BB:CC:DD:EE:FF"), link.ErrAlreadyConnected)
}

func (s *TransportTestSuite) TestDialErrors() {
	s.ErrorContains(s.transport.Dial(context.Background(), ""), "device address is empty")

	dial = func(ctx context.Context, address string) (gattClient, error) {
		return nil, errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")
	}
	err := s.transport.Dial(context.Background(), "AA:BB:CC:DD:EE:FF")
	s.ErrorIs(err, link.ErrBluetoothOff, "MUST normalize powered-off errors")

	_, err = s.transport.Discover(context.Background())
	s.ErrorIs(err, link.ErrNotConnected)
}

func (s *TransportTestSuite) TestReadWrite() {
	db := s.connectAndDiscover()
	ct, _ := db.Lookup("1805", "2a2b")
	integer, _ := db.Lookup("3c0a1000-281d-4b48-b2a7-f15579a1c38f", "3c0a1001-281d-4b48-b2a7-f15579a1c38f")

	s.client.On("ReadCharacteristic", s.currentTime).Return([]byte{0xe7, 0x07}, nil).Once()
	data, err := s.transport.Read(context.Background(), ct)
	s.NoError(err)
	s.Equal([]byte{0xe7, 0x07}, data)

	s.client.On("WriteCharacteristic", s.integer, []byte{1, 0, 0, 0}, false).Return(nil).Once()
	s.NoError(s.transport.Write(context.Background(), integer, []byte{1, 0, 0, 0}, link.WriteDefault))

	s.client.On("WriteCharacteristic", s.integer, []byte{2, 0, 0, 0}, true).Return(errors.New("device not connected")).Once()
	err = s.transport.Write(context.Background(), integer, []byte{2, 0, 0, 0}, link.WriteNoResponse)
	s.ErrorIs(err, link.ErrNotConnected, "MUST normalize go-ble errors")

	unknown := &link.Characteristic{UUID: "2a19", ServiceUUID: "180f"}
	_, err = s.transport.Read(context.Background(), unknown)
	var nf *link.NotFoundError
	s.ErrorAs(err, &nf)

	s.client.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestSubscribeRoutesNotifications() {
	// GOAL: Verify notifications and indications are routed to the registered handler
	//
	// TEST SCENARIO: subscribe click (notify) and Service Changed (indicate) → go-ble handler fires → onValue receives a copy

	db := s.connectAndDiscover()
	click, _ := db.Lookup("3c0a1000-281d-4b48-b2a7-f15579a1c38f", "3c0a1003-281d-4b48-b2a7-f15579a1c38f")
	changed, _ := db.Lookup("1801", "2a05")
	integer, _ := db.Lookup("3c0a1000-281d-4b48-b2a7-f15579a1c38f", "3c0a1001-281d-4b48-b2a7-f15579a1c38f")

	var clickHandler ble.NotificationHandler
	s.client.On("Subscribe", s.click, false, mock.Anything).Run(func(args mock.Arguments) {
		clickHandler = args.Get(2).(ble.NotificationHandler)
	}).Return(nil).Once()
	s.client.On("Subscribe", s.changed, true, mock.Anything).Return(nil).Once()

	var got []byte
	s.Require().NoError(s.transport.Subscribe(context.Background(), click, func(b []byte) { got = b }))
	s.Require().NoError(s.transport.Subscribe(context.Background(), changed, func([]byte) {}))

	raw := []byte{7}
	clickHandler(raw)
	raw[0] = 9
	s.Equal([]byte{7}, got, "MUST deliver a copy of the notification payload")

	err := s.transport.Subscribe(context.Background(), integer, func([]byte) {})
	s.ErrorIs(err, link.ErrUnsupported, "MUST reject characteristics without notify/indicate")

	s.client.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestDisconnect() {
	db := s.connectAndDiscover()
	click, _ := db.Lookup("3c0a1000-281d-4b48-b2a7-f15579a1c38f", "3c0a1003-281d-4b48-b2a7-f15579a1c38f")
	s.client.On("Subscribe", s.click, false, mock.Anything).Return(nil).Once()
	s.Require().NoError(s.transport.Subscribe(context.Background(), click, func([]byte) {}))

	s.client.On("Unsubscribe", s.click, false).Return(errors.New("disconnected")).Once()
	s.client.On("CancelConnection").Return(nil).Once()

	s.NoError(s.transport.Disconnect(), "unsubscribe failures MUST NOT fail the disconnect")
	s.NoError(s.transport.Disconnect(), "second disconnect MUST be a no-op")

	_, err := s.transport.Read(context.Background(), click)
	s.ErrorIs(err, link.ErrNotConnected)
	s.client.AssertExpectations(s.T())
}

func (s *TransportTestSuite) TestReconnectAfterLinkLoss() {
	// GOAL: Verify a link dropped by the peripheral does not block the next connect
	//
	// TEST SCENARIO: queue connect → client disconnect channel closes → EventLinkLost → connect again → new client dialed and discovered

	clients := []*mockClient{s.client, {disconnected: make(chan struct{})}}
	dials := 0
	dial = func(ctx context.Context, address string) (gattClient, error) {
		c := clients[dials]
		dials++
		return c, nil
	}

	queue := link.NewQueue(s.transport, s.logger)
	defer queue.Close()
	events := make(chan link.Event, 4)
	queue.SetEventHandler(func(ev link.Event) { events <- ev })

	connect := func() error {
		done := make(chan error, 1)
		queue.Connect(context.Background(), "AA:BB:CC:DD:EE:FF", func(err error) { done <- err })
		select {
		case err := <-done:
			return err
		case <-time.After(2 * time.Second):
			s.FailNow("connect did not complete")
			return nil
		}
	}

	s.Require().NoError(connect(), "MUST connect")
	close(clients[0].disconnected)

	select {
	case ev := <-events:
		s.Equal(link.EventLinkLost, ev.Kind, "MUST report the dropped link")
	case <-time.After(2 * time.Second):
		s.FailNow("link loss was not reported")
	}

	s.Require().NoError(connect(), "MUST reconnect after link loss")
	s.Equal(2, dials, "MUST dial a fresh client")

	clients[1].On("DiscoverProfile", true).Return(s.profile(), nil).Once()
	clients[1].On("Subscribe", s.changed, true, mock.Anything).Return(nil).Once()
	clients[1].On("Unsubscribe", s.changed, true).Return(nil).Maybe()
	clients[1].On("CancelConnection").Return(nil).Maybe()
	done := make(chan error, 1)
	queue.Discover(func(_ *link.Database, err error) { done <- err })
	select {
	case err := <-done:
		s.NoError(err, "MUST discover over the new client")
	case <-time.After(2 * time.Second):
		s.FailNow("discover did not complete")
	}
	clients[0].AssertNotCalled(s.T(), "DiscoverProfile", true)
	clients[1].AssertExpectations(s.T())
}

func TestTransportTestSuite(t *testing.T) {
	suite.Run(t, new(TransportTestSuite))
}

func TestNormalizeError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"bluetooth off", errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?"), link.ErrBluetoothOff},
		{"not connected", errors.New("Device Not Connected"), link.ErrNotConnected},
		{"already connected", errors.New("device already connected"), link.ErrAlreadyConnected},
		{"not initialized", errors.New("connection is not initialized"), link.ErrNotInitialized},
		{"deadline", context.DeadlineExceeded, link.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NormalizeError(tt.in)
			require.ErrorIs(t, err, tt.want)
			require.Contains(t, err.Error(), tt.in.Error(), "MUST keep the original message")
		})
	}

	require.NoError(t, NormalizeError(nil))
	plain := errors.New("something else")
	require.Same(t, plain, NormalizeError(plain))
}
