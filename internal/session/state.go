package session

import (
	"errors"

	"github.com/ashureev/shsh-chat/internal/domain"
)

var (
	// ErrSendRejected is returned when SendMessage is a no-op.
	ErrSendRejected = errors.New("send rejected")
	// ErrBlankMessage means the text was empty after trimming.
	ErrBlankMessage = errors.New("message is blank")
	// ErrBusy means a previous exchange is still outstanding.
	ErrBusy = errors.New("a response is still streaming")
	// ErrDisconnected means the connection is not CONNECTED.
	ErrDisconnected = errors.New("not connected")
	// ErrSendFailed means the request frame could not be transmitted.
	ErrSendFailed = errors.New("request could not be delivered")
	// ErrClosed is returned once the session has been torn down.
	ErrClosed = errors.New("session closed")
)

// SendFailedText is the assistant error message surfaced when a request frame
// could not be written after the user message was appended.
const SendFailedText = "Your message could not be delivered. Please check your connection and try again."

// State is an immutable snapshot of a session's observable outputs.
type State struct {
	SessionID string
	History   []domain.Message
	Status    domain.ConnectionStatus
	Phase     domain.Phase
}

// Streaming reports whether an exchange is outstanding.
func (s State) Streaming() bool {
	return s.Phase != domain.PhaseIdle
}

// HasAssistantReply reports whether the assistant has answered at least once.
func (s State) HasAssistantReply() bool {
	return domain.HasAssistant(s.History)
}
