// Package protocol implements the JSON wire format spoken with the chat backend.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrMalformedFrame is returned when an inbound frame is not a JSON object.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownFrameKind is returned when a frame matches no known kind.
	ErrUnknownFrameKind = errors.New("unknown frame kind")
)

// Kind distinguishes inbound frames.
type Kind string

const (
	// KindChunk carries partial text of the in-progress assistant message.
	KindChunk Kind = "chunk"
	// KindDone marks the in-progress message complete.
	KindDone Kind = "done"
	// KindError marks the in-progress message failed.
	KindError Kind = "error"
)

// Frame is one decoded inbound unit.
type Frame struct {
	Kind Kind
	Text string
	// Err is the backend-provided error text; empty when none was sent.
	Err string
}

// Chunk builds a chunk frame.
func Chunk(text string) Frame { return Frame{Kind: KindChunk, Text: text} }

// Done builds a done frame.
func Done() Frame { return Frame{Kind: KindDone} }

// Error builds an error frame.
func Error(msg string) Frame { return Frame{Kind: KindError, Err: msg} }

// Request is the outbound payload sent for each user message.
type Request struct {
	UserInput string `json:"user_input"`
	UserID    string `json:"user_id,omitempty"`
	PatientID string `json:"patient_id,omitempty"`
}

// wireFrame covers both the typed schema and the legacy text/end schema.
type wireFrame struct {
	Type  string  `json:"type,omitempty"`
	Text  *string `json:"text,omitempty"`
	End   bool    `json:"end,omitempty"`
	Error *string `json:"error,omitempty"`
}

// Decode parses one inbound frame. An explicit "type" wins; otherwise the kind is
// inferred from the legacy fields: "error" ⇒ error, "end": true ⇒ done, "text" ⇒ chunk.
func Decode(data []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(data, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch Kind(w.Type) {
	case KindChunk:
		if w.Text == nil {
			return Frame{}, fmt.Errorf("%w: chunk without text", ErrMalformedFrame)
		}
		return Chunk(*w.Text), nil
	case KindDone:
		return Done(), nil
	case KindError:
		return Error(deref(w.Error)), nil
	case "":
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownFrameKind, w.Type)
	}

	switch {
	case w.Error != nil:
		return Error(*w.Error), nil
	case w.End:
		return Done(), nil
	case w.Text != nil:
		return Chunk(*w.Text), nil
	default:
		return Frame{}, ErrUnknownFrameKind
	}
}

// Encode serializes a frame in the typed schema, keeping the legacy fields populated
// so older widgets reading only text/end keep working.
func Encode(f Frame) ([]byte, error) {
	w := wireFrame{Type: string(f.Kind)}
	switch f.Kind {
	case KindChunk:
		text := f.Text
		w.Text = &text
	case KindDone:
		w.End = true
	case KindError:
		msg := f.Err
		w.Error = &msg
		w.End = true
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameKind, f.Kind)
	}
	return json.Marshal(w)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
