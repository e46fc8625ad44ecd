package domain

// ConnectionStatus is the health of the streaming connection to the backend.
type ConnectionStatus int

const (
	// StatusConnecting means a dial attempt is in flight.
	StatusConnecting ConnectionStatus = iota
	// StatusConnected means frames can be sent and received.
	StatusConnected
	// StatusDisconnected means no transport is open.
	StatusDisconnected
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusConnecting:
		return "CONNECTING"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// Phase is the state of the single pending request of a session.
type Phase int

const (
	// PhaseIdle means no request is outstanding.
	PhaseIdle Phase = iota
	// PhaseSent means a request frame went out and no chunk arrived yet.
	PhaseSent
	// PhaseStreaming means an assistant message is being extended.
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseSent:
		return "SENT"
	case PhaseStreaming:
		return "STREAMING"
	default:
		return "UNKNOWN"
	}
}
