package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/protocol"
	"github.com/ashureev/shsh-chat/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu         sync.Mutex
	status     domain.ConnectionStatus
	onFrame    func([]byte)
	onStatus   func(domain.ConnectionStatus)
	sent       []any
	sendErr    error
	reconnects int
	closed     bool
}

func newFakeTransport(status domain.ConnectionStatus) *fakeTransport {
	return &fakeTransport{status: status}
}

func (f *fakeTransport) OnFrame(fn func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onFrame = fn
}

func (f *fakeTransport) OnStatus(fn func(domain.ConnectionStatus)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onStatus = fn
}

func (f *fakeTransport) Connect(context.Context) error {
	f.setStatus(domain.StatusConnected)
	return nil
}

func (f *fakeTransport) Send(_ context.Context, v any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, v)
	return nil
}

func (f *fakeTransport) Status() domain.ConnectionStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

func (f *fakeTransport) Reconnect() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconnects++
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) setStatus(s domain.ConnectionStatus) {
	f.mu.Lock()
	f.status = s
	fn := f.onStatus
	f.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (f *fakeTransport) emit(t *testing.T, frame protocol.Frame) {
	t.Helper()
	data, err := protocol.Encode(frame)
	require.NoError(t, err)
	f.emitRaw(data)
}

func (f *fakeTransport) emitRaw(data []byte) {
	f.mu.Lock()
	fn := f.onFrame
	f.mu.Unlock()
	fn(data)
}

func (f *fakeTransport) requests() []protocol.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []protocol.Request
	for _, v := range f.sent {
		if r, ok := v.(protocol.Request); ok {
			out = append(out, r)
		}
	}
	return out
}

type memRecorder struct {
	mu       sync.Mutex
	sessions []domain.TranscriptSession
	seqs     []int
	messages []domain.Message
}

func (r *memRecorder) RecordSession(s domain.TranscriptSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions = append(r.sessions, s)
}

func (r *memRecorder) RecordMessage(_ string, seq int, msg domain.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, seq)
	r.messages = append(r.messages, msg)
}

const intro = "Hello! How can I help you today?"

func newConnectedClient(t *testing.T, opts ...Option) (*Client, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport(domain.StatusDisconnected)
	c := New(Settings{IntroductionText: intro, UserID: "user-1", PatientID: "p-9"}, tr, opts...)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.Start())
	require.Equal(t, domain.StatusConnected, c.ConnectionStatus())
	return c, tr
}

func TestNewSeedsSystemMessage(t *testing.T) {
	t.Parallel()

	c, _ := newConnectedClient(t)
	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, domain.Message{Role: domain.RoleSystem, Text: intro}, history[0])
	assert.False(t, c.IsStreaming())
	assert.NotEmpty(t, c.ID())
}

func TestSendMessageTransmitsRawText(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	require.NoError(t, c.SendMessage("  What are your hours?  "))

	history := c.History()
	require.Len(t, history, 2)
	assert.Equal(t, domain.Message{Role: domain.RoleUser, Text: "  What are your hours?  "}, history[1])
	assert.True(t, c.IsStreaming())
	assert.Equal(t, domain.PhaseSent, c.State().Phase)

	reqs := tr.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, protocol.Request{UserInput: "  What are your hours?  ", UserID: "user-1", PatientID: "p-9"}, reqs[0])
}

func TestSendMessageRejections(t *testing.T) {
	t.Parallel()

	t.Run("blank", func(t *testing.T) {
		t.Parallel()
		c, tr := newConnectedClient(t)
		for _, text := range []string{"", "   ", "\n\t"} {
			err := c.SendMessage(text)
			require.ErrorIs(t, err, ErrSendRejected)
			assert.ErrorIs(t, err, ErrBlankMessage)
		}
		assert.Len(t, c.History(), 1)
		assert.Empty(t, tr.requests())
	})

	t.Run("busy", func(t *testing.T) {
		t.Parallel()
		c, tr := newConnectedClient(t)
		require.NoError(t, c.SendMessage("first"))
		err := c.SendMessage("second")
		require.ErrorIs(t, err, ErrSendRejected)
		assert.ErrorIs(t, err, ErrBusy)

		tr.emit(t, protocol.Chunk("partial"))
		require.ErrorIs(t, c.SendMessage("third"), ErrBusy)

		assert.Len(t, c.History(), 3)
		assert.Len(t, tr.requests(), 1)
	})

	t.Run("disconnected", func(t *testing.T) {
		t.Parallel()
		tr := newFakeTransport(domain.StatusDisconnected)
		c := New(Settings{IntroductionText: intro}, tr)
		t.Cleanup(func() { _ = c.Close() })

		err := c.SendMessage("hello")
		require.ErrorIs(t, err, ErrSendRejected)
		assert.ErrorIs(t, err, ErrDisconnected)
		assert.Len(t, c.History(), 1)
		assert.Empty(t, tr.requests())
	})
}

func TestSendFailureAppendsErrorMessage(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	tr.mu.Lock()
	tr.sendErr = errors.New("broken pipe")
	tr.mu.Unlock()

	err := c.SendMessage("hello")
	require.ErrorIs(t, err, ErrSendFailed)

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: SendFailedText, IsError: true}, history[2])
	assert.False(t, c.IsStreaming())
}

func TestStreamedReplyIsAssembled(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	require.NoError(t, c.SendMessage("What are your hours?"))

	tr.emitRaw([]byte(`{"text":"We're open"}`))
	assert.Equal(t, domain.PhaseStreaming, c.State().Phase)
	tr.emitRaw([]byte(`{"type":"chunk","text":" 9-5."}`))
	tr.emitRaw([]byte(`{"end":true}`))

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: "We're open 9-5."}, history[2])
	assert.False(t, c.IsStreaming())

	require.NoError(t, c.SendMessage("Thanks"))
	assert.Len(t, c.History(), 4)
}

func TestErrorFrameEndsExchange(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	require.NoError(t, c.SendMessage("hi"))
	tr.emit(t, protocol.Chunk("par"))
	tr.emitRaw([]byte(`{"error":"model unavailable"}`))

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: "model unavailable", IsError: true}, history[2])
	assert.False(t, c.IsStreaming())
}

func TestOrphanAndMalformedFramesAreIgnored(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	before := c.State()

	tr.emit(t, protocol.Chunk("late"))
	tr.emit(t, protocol.Done())
	tr.emitRaw([]byte(`not json`))
	tr.emitRaw([]byte(`{"type":"bogus"}`))

	after := c.State()
	assert.Equal(t, before.History, after.History)
	assert.Equal(t, domain.PhaseIdle, after.Phase)
}

func TestHistoryOnlyGrows(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	var mu sync.Mutex
	var lengths []int
	var first []domain.Message
	unsubscribe := c.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		lengths = append(lengths, len(s.History))
		first = append(first, s.History[0])
	})
	defer unsubscribe()

	for _, q := range []string{"one", "two"} {
		require.NoError(t, c.SendMessage(q))
		tr.emit(t, protocol.Chunk("a"))
		tr.emit(t, protocol.Chunk("b"))
		tr.emit(t, protocol.Done())
	}
	_ = c.State()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(lengths); i++ {
		assert.GreaterOrEqual(t, lengths[i], lengths[i-1])
	}
	for _, m := range first {
		assert.Equal(t, domain.Message{Role: domain.RoleSystem, Text: intro}, m)
	}
	assert.Equal(t, 5, lengths[len(lengths)-1])
}

func TestDisconnectDuringStreamingAbortsExchange(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	require.NoError(t, c.SendMessage("hi"))
	tr.emit(t, protocol.Chunk("We're"))
	tr.setStatus(domain.StatusDisconnected)

	s := c.State()
	assert.Equal(t, domain.StatusDisconnected, s.Status)
	assert.False(t, s.Streaming())
	require.Len(t, s.History, 3)
	assert.Equal(t, domain.Message{Role: domain.RoleAssistant, Text: "We're", IsError: true}, s.History[2])

	tr.setStatus(domain.StatusConnected)
	tr.emit(t, protocol.Done())
	assert.Len(t, c.History(), 3)
}

func TestDisconnectBeforeFirstChunkReturnsToIdle(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	require.NoError(t, c.SendMessage("hi"))
	tr.setStatus(domain.StatusDisconnected)

	s := c.State()
	assert.False(t, s.Streaming())
	assert.Len(t, s.History, 2)
}

func TestSubscribeReceivesStatusAndStreamingTransitions(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(domain.StatusDisconnected)
	c := New(Settings{IntroductionText: intro}, tr)
	t.Cleanup(func() { _ = c.Close() })

	var mu sync.Mutex
	var states []State
	c.Subscribe(func(s State) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, s)
	})

	require.NoError(t, c.Start())
	require.NoError(t, c.SendMessage("hi"))
	tr.emit(t, protocol.Chunk("yo"))
	tr.emit(t, protocol.Done())
	_ = c.State()

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, states, 5)
	assert.Equal(t, domain.StatusDisconnected, states[0].Status)
	assert.Equal(t, domain.StatusConnected, states[1].Status)
	assert.Equal(t, domain.PhaseSent, states[2].Phase)
	assert.Equal(t, domain.PhaseStreaming, states[3].Phase)
	assert.Equal(t, domain.PhaseIdle, states[4].Phase)
	assert.True(t, states[4].HasAssistantReply())
}

func TestRecorderReceivesFinalizedMessages(t *testing.T) {
	t.Parallel()

	rec := &memRecorder{}
	c, tr := newConnectedClient(t, WithRecorder(rec), WithSessionID("sess-1"))
	require.NoError(t, c.SendMessage("hi"))
	tr.emit(t, protocol.Chunk("hel"))
	tr.emit(t, protocol.Chunk("lo"))
	tr.emit(t, protocol.Done())
	tr.emit(t, protocol.Chunk("orphan"))
	_ = c.State()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.sessions, 1)
	assert.Equal(t, "sess-1", rec.sessions[0].SessionID)
	assert.Equal(t, []int{0, 1, 2}, rec.seqs)
	assert.Equal(t, "hello", rec.messages[2].Text)
}

func TestErrorFrameWithoutTextUsesFallback(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	require.NoError(t, c.SendMessage("hi"))
	tr.emitRaw([]byte(`{"type":"error"}`))

	history := c.History()
	require.Len(t, history, 3)
	assert.Equal(t, stream.FallbackErrorText, history[2].Text)
	assert.True(t, history[2].IsError)
}

func TestCloseStopsSession(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(domain.StatusConnected)
	c := New(Settings{IntroductionText: intro}, tr)

	var mu sync.Mutex
	calls := 0
	c.Subscribe(func(State) {
		mu.Lock()
		defer mu.Unlock()
		calls++
	})

	require.NoError(t, c.Close())
	tr.setStatus(domain.StatusDisconnected)

	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()

	assert.True(t, tr.closed)
	require.ErrorIs(t, c.SendMessage("hi"), ErrClosed)
	assert.Equal(t, domain.StatusDisconnected, c.ConnectionStatus())
	require.NoError(t, c.Close())
}

func TestReconnectDelegatesToTransport(t *testing.T) {
	t.Parallel()

	c, tr := newConnectedClient(t)
	c.Reconnect()
	tr.mu.Lock()
	defer tr.mu.Unlock()
	assert.Equal(t, 1, tr.reconnects)
}
