package session

// State is the lifecycle phase of the controller's session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateDiscovering
	StateValidating
	StateReady
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateDiscovering:
		return "discovering"
	case StateValidating:
		return "validating"
	case StateReady:
		return "ready"
	case StateInvalidated:
		return "invalidated"
	default:
		return "unknown"
	}
}

// DisconnectReason explains why a session ended. It is ReasonNone for every
// state other than StateDisconnected.
type DisconnectReason int

const (
	ReasonNone DisconnectReason = iota
	ReasonRequested
	ReasonLinkLoss
	ReasonNotSupported
	ReasonConnectFailed
	ReasonDiscoveryFailed
	ReasonServicesInvalidated
)

func (r DisconnectReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonRequested:
		return "requested"
	case ReasonLinkLoss:
		return "link_loss"
	case ReasonNotSupported:
		return "not_supported"
	case ReasonConnectFailed:
		return "connect_failed"
	case ReasonDiscoveryFailed:
		return "discovery_failed"
	case ReasonServicesInvalidated:
		return "services_invalidated"
	default:
		return "unknown"
	}
}

// StateObserver receives every state change with the reason for disconnects.
// err carries the failure behind ReasonConnectFailed, ReasonDiscoveryFailed and ReasonNotSupported.
type StateObserver func(state State, reason DisconnectReason, err error)
