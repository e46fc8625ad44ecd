// Package session implements the chat session client: the single owner of a
// session's history, streaming state and connection.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/protocol"
	"github.com/ashureev/shsh-chat/internal/stream"
	"github.com/google/uuid"
)

const eventQueueSize = 64

// Transport is the connection the session speaks through.
// It is implemented by *connection.Manager.
type Transport interface {
	OnFrame(fn func(data []byte))
	OnStatus(fn func(domain.ConnectionStatus))
	Connect(ctx context.Context) error
	Send(ctx context.Context, v any) error
	Status() domain.ConnectionStatus
	Reconnect()
	Close() error
}

// Recorder receives finalized messages. Implementations must not block.
type Recorder interface {
	RecordSession(s domain.TranscriptSession)
	RecordMessage(sessionID string, seq int, msg domain.Message)
}

// Settings are the parts of the widget configuration the session uses.
type Settings struct {
	Endpoint         string
	IntroductionText string
	UserID           string
	PatientID        string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRecorder records every finalized message.
func WithRecorder(r Recorder) Option {
	return func(c *Client) {
		c.recorder = r
	}
}

// WithSessionID overrides the generated session ID.
func WithSessionID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.id = id
		}
	}
}

type subscriber struct {
	id int
	fn func(State)
}

// Client is the public session unit. All state mutations run on one goroutine,
// so a SendMessage is processed to completion before any frame queued after it.
type Client struct {
	id        string
	settings  Settings
	transport Transport
	recorder  Recorder
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	events    chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Owned by the loop goroutine.
	history   []domain.Message
	assembler *stream.Assembler
	status    domain.ConnectionStatus
	subs      []subscriber
	nextSubID int
}

// New creates a session over transport and seeds the introduction text as the
// system message at index 0. Call Start to connect.
func New(settings Settings, transport Transport, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		id:        uuid.NewString(),
		settings:  settings,
		transport: transport,
		logger:    slog.Default(),
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan func(), eventQueueSize),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		status:    transport.Status(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "session", "session_id", c.id)
	c.assembler = stream.New(&c.history, c.logger)

	if c.recorder != nil {
		c.recorder.RecordSession(domain.TranscriptSession{
			SessionID: c.id,
			UserID:    settings.UserID,
			Endpoint:  settings.Endpoint,
			CreatedAt: time.Now().UTC(),
		})
	}
	if settings.IntroductionText != "" {
		c.history = append(c.history, domain.Message{Role: domain.RoleSystem, Text: settings.IntroductionText})
		c.record(0)
	}

	transport.OnFrame(c.handleFrame)
	transport.OnStatus(c.handleStatus)

	go c.loop()
	return c
}

// ID returns the session identifier.
func (c *Client) ID() string {
	return c.id
}

// Start opens the connection and waits for the first attempt. A failed first
// attempt is returned but the session stays usable: reconnects continue in
// the background.
func (c *Client) Start() error {
	if err := c.transport.Connect(c.ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

// Reconnect asks the transport to retry now.
func (c *Client) Reconnect() {
	c.transport.Reconnect()
}

// SendMessage appends a user message and transmits a request frame carrying
// the raw text. It returns an ErrSendRejected error, leaving history unchanged,
// when the text is blank, an exchange is outstanding, or the connection is down.
func (c *Client) SendMessage(text string) error {
	var result error
	if !c.do(func() { result = c.send(text) }) {
		return ErrClosed
	}
	return result
}

// State returns a snapshot of the observable outputs.
func (c *Client) State() State {
	var s State
	if !c.do(func() { s = c.snapshot() }) {
		return State{SessionID: c.id, Status: domain.StatusDisconnected}
	}
	return s
}

// History returns a copy of the message sequence.
func (c *Client) History() []domain.Message {
	return c.State().History
}

// ConnectionStatus returns the last status reported by the transport.
func (c *Client) ConnectionStatus() domain.ConnectionStatus {
	return c.State().Status
}

// IsStreaming reports whether an exchange is outstanding.
func (c *Client) IsStreaming() bool {
	return c.State().Streaming()
}

// Subscribe registers fn to receive a snapshot after every change, starting
// with the current state. Callbacks run on the session goroutine in order and
// share one snapshot. They must not mutate it or call back into the Client.
// The returned function unsubscribes.
func (c *Client) Subscribe(fn func(State)) func() {
	var id int
	c.do(func() {
		c.nextSubID++
		id = c.nextSubID
		c.subs = append(c.subs, subscriber{id: id, fn: fn})
		fn(c.snapshot())
	})
	return func() {
		c.do(func() {
			for i, s := range c.subs {
				if s.id == id {
					c.subs = append(c.subs[:i], c.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Close tears the session down: the connection is released and no further
// callbacks are invoked once Close returns.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.transport.Close()
		c.cancel()
		close(c.quit)
		<-c.done
		c.logger.Info("Chat session closed")
	})
	return err
}

func (c *Client) loop() {
	defer close(c.done)
	for {
		select {
		case fn := <-c.events:
			fn()
		case <-c.quit:
			return
		}
	}
}

// do runs fn on the session goroutine and waits for it.
func (c *Client) do(fn func()) bool {
	finished := make(chan struct{})
	select {
	case c.events <- func() { fn(); close(finished) }:
	case <-c.quit:
		return false
	}
	select {
	case <-finished:
		return true
	case <-c.quit:
		return false
	}
}

// post queues fn on the session goroutine without waiting.
func (c *Client) post(fn func()) {
	select {
	case c.events <- fn:
	case <-c.quit:
	}
}

func (c *Client) send(text string) error {
	if domain.IsBlank(text) {
		return fmt.Errorf("%w: %w", ErrSendRejected, ErrBlankMessage)
	}
	if c.assembler.Streaming() {
		return fmt.Errorf("%w: %w", ErrSendRejected, ErrBusy)
	}
	if c.transport.Status() != domain.StatusConnected {
		return fmt.Errorf("%w: %w", ErrSendRejected, ErrDisconnected)
	}

	c.history = append(c.history, domain.Message{Role: domain.RoleUser, Text: text})
	c.record(len(c.history) - 1)
	c.assembler.Begin()

	req := protocol.Request{
		UserInput: text,
		UserID:    c.settings.UserID,
		PatientID: c.settings.PatientID,
	}
	if err := c.transport.Send(c.ctx, req); err != nil {
		c.logger.Warn("Failed to send chat request", "error", err)
		c.assembler.Apply(protocol.Error(SendFailedText))
		c.record(len(c.history) - 1)
		c.notify()
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.logger.Debug("Chat request sent", "message_length", len(text))
	c.notify()
	return nil
}

func (c *Client) handleFrame(data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn("Discarding malformed frame", "error", err, "frame_length", len(data))
		return
	}
	c.post(func() {
		res := c.assembler.Apply(f)
		if !res.Changed {
			return
		}
		if res.Message != nil {
			c.record(len(c.history) - 1)
		}
		c.notify()
	})
}

func (c *Client) handleStatus(s domain.ConnectionStatus) {
	c.post(func() {
		c.status = s
		if s == domain.StatusDisconnected && c.assembler.Streaming() {
			c.logger.Warn("Connection lost during a pending exchange", "phase", c.assembler.Phase().String())
			if res := c.assembler.Abort(); res.Message != nil {
				c.record(len(c.history) - 1)
			}
		}
		c.notify()
	})
}

func (c *Client) snapshot() State {
	return State{
		SessionID: c.id,
		History:   append([]domain.Message(nil), c.history...),
		Status:    c.status,
		Phase:     c.assembler.Phase(),
	}
}

func (c *Client) notify() {
	if len(c.subs) == 0 {
		return
	}
	s := c.snapshot()
	for _, sub := range c.subs {
		sub.fn(s)
	}
}

func (c *Client) record(seq int) {
	if c.recorder == nil {
		return
	}
	c.recorder.RecordMessage(c.id, seq, c.history[seq])
}
