package api

import (
	"context"
	"iter"
	"strings"
	"time"

	"github.com/ashureev/shsh-chat/internal/protocol"
)

// Responder produces the reply text for one request as a sequence of chunks.
// A non-nil error ends the reply with an error frame.
type Responder interface {
	Respond(ctx context.Context, req protocol.Request) iter.Seq2[string, error]
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, req protocol.Request) iter.Seq2[string, error]

// Respond calls f.
func (f ResponderFunc) Respond(ctx context.Context, req protocol.Request) iter.Seq2[string, error] {
	return f(ctx, req)
}

// EchoResponder repeats the user input back word by word.
type EchoResponder struct {
	// Delay is the pause between chunks.
	Delay time.Duration
}

// Respond streams "You said: <input>" split at word boundaries.
func (e EchoResponder) Respond(ctx context.Context, req protocol.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, chunk := range splitChunks("You said: " + req.UserInput) {
			if i > 0 && e.Delay > 0 {
				select {
				case <-time.After(e.Delay):
				case <-ctx.Done():
					yield("", ctx.Err())
					return
				}
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// splitChunks splits text after each space so the chunks concatenate back to
// the original text.
func splitChunks(text string) []string {
	var chunks []string
	for text != "" {
		i := strings.IndexByte(text, ' ')
		if i < 0 {
			chunks = append(chunks, text)
			break
		}
		chunks = append(chunks, text[:i+1])
		text = text[i+1:]
	}
	return chunks
}
