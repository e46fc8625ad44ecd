// Package stream folds inbound protocol frames into chat history mutations.
package stream

import (
	"log/slog"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/protocol"
)

// FallbackErrorText is used when an error frame carries no text.
const FallbackErrorText = "Sorry, something went wrong while generating a response."

// Result describes what a single Apply did to the history.
type Result struct {
	// Changed is false when the frame was discarded.
	Changed bool
	// Finalized is set when the exchange ended with this frame.
	Finalized bool
	// Message is the finalized message, if the exchange produced one.
	Message *domain.Message
}

// Assembler tracks the pending exchange and the index of the in-progress
// assistant message. It is not safe for concurrent use; the session owns it.
type Assembler struct {
	history *[]domain.Message
	phase   domain.Phase
	current int
	logger  *slog.Logger
}

// New creates an assembler that mutates history in place.
func New(history *[]domain.Message, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		history: history,
		phase:   domain.PhaseIdle,
		current: -1,
		logger:  logger.With("component", "stream"),
	}
}

// Phase returns the state of the pending exchange.
func (a *Assembler) Phase() domain.Phase {
	return a.phase
}

// Streaming reports whether an exchange is outstanding.
func (a *Assembler) Streaming() bool {
	return a.phase != domain.PhaseIdle
}

// Begin marks that a request frame went out. It returns false when an
// exchange is already pending.
func (a *Assembler) Begin() bool {
	if a.phase != domain.PhaseIdle {
		return false
	}
	a.phase = domain.PhaseSent
	a.current = -1
	return true
}

// Apply folds one frame into the history. Frames that arrive with no pending
// exchange are protocol violations: they are logged and discarded.
func (a *Assembler) Apply(f protocol.Frame) Result {
	if a.phase == domain.PhaseIdle {
		a.logger.Warn("Discarding frame with no exchange in progress", "frame_kind", string(f.Kind))
		return Result{}
	}

	switch f.Kind {
	case protocol.KindChunk:
		return a.chunk(f.Text)
	case protocol.KindDone:
		return a.done()
	case protocol.KindError:
		return a.fail(f.Err)
	default:
		a.logger.Warn("Discarding frame of unknown kind", "frame_kind", string(f.Kind))
		return Result{}
	}
}

// Abort ends a pending exchange without a backend terminator, e.g. when the
// connection drops. A partially streamed message keeps its text and is flagged
// as an error; if nothing streamed yet, history is left untouched.
func (a *Assembler) Abort() Result {
	switch a.phase {
	case domain.PhaseIdle:
		return Result{}
	case domain.PhaseSent:
		a.reset()
		return Result{Changed: true, Finalized: true}
	default:
		msg := &(*a.history)[a.current]
		msg.IsError = true
		final := *msg
		a.reset()
		return Result{Changed: true, Finalized: true, Message: &final}
	}
}

func (a *Assembler) chunk(text string) Result {
	if a.phase == domain.PhaseSent {
		*a.history = append(*a.history, domain.Message{Role: domain.RoleAssistant, Text: text})
		a.current = len(*a.history) - 1
		a.phase = domain.PhaseStreaming
		return Result{Changed: true}
	}
	(*a.history)[a.current].Text += text
	return Result{Changed: true}
}

func (a *Assembler) done() Result {
	if a.phase == domain.PhaseSent {
		// The backend finished without sending any text.
		a.reset()
		return Result{Changed: true, Finalized: true}
	}
	final := (*a.history)[a.current]
	a.reset()
	return Result{Changed: true, Finalized: true, Message: &final}
}

func (a *Assembler) fail(text string) Result {
	if text == "" {
		text = FallbackErrorText
	}
	if a.phase == domain.PhaseSent {
		*a.history = append(*a.history, domain.Message{Role: domain.RoleAssistant, Text: text, IsError: true})
		final := (*a.history)[len(*a.history)-1]
		a.reset()
		return Result{Changed: true, Finalized: true, Message: &final}
	}
	msg := &(*a.history)[a.current]
	msg.Text = text
	msg.IsError = true
	final := *msg
	a.reset()
	return Result{Changed: true, Finalized: true, Message: &final}
}

func (a *Assembler) reset() {
	a.phase = domain.PhaseIdle
	a.current = -1
}
