// Package widget is the host-page side of the chat widget: it validates the
// configuration, wires a session to its connection, suggestions and transcript
// store, and hands back a Handle the host uses instead of global hooks.
package widget

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/ashureev/shsh-chat/internal/config"
	"github.com/ashureev/shsh-chat/internal/connection"
	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/session"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/ashureev/shsh-chat/internal/suggestion"
)

// ErrUnknownSuggestion is returned by AskSuggestion for a question that is not
// currently offered.
var ErrUnknownSuggestion = errors.New("question is not a visible suggestion")

// Option configures Init.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	transport session.Transport
	recorder  session.Recorder
	connect   bool
}

// WithLogger sets the logger for every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithTransport replaces the websocket connection manager.
func WithTransport(t session.Transport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithRecorder records transcripts through r instead of the configured store.
func WithRecorder(r session.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// WithoutConnect skips the initial connection attempt; the first Open connects.
func WithoutConnect() Option {
	return func(o *options) {
		o.connect = false
	}
}

// Handle is a mounted widget instance.
type Handle struct {
	cfg     *config.Config
	client  *session.Client
	rotator *suggestion.Rotator
	logger  *slog.Logger

	repo     store.Repository
	recorder *store.AsyncRecorder

	mu           sync.Mutex
	open         bool
	started      bool
	visibility   map[int]func(bool)
	nextListener int

	teardownOnce sync.Once
}

// Init validates cfg and mounts a widget. A ConfigurationError aborts
// initialization: it is logged once and no session is created.
func Init(cfg *config.Config, opts ...Option) (*Handle, error) {
	o := options{logger: slog.Default(), connect: true}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "widget")

	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		logger.Error("Chat widget initialization aborted", "error", err)
		return nil, err
	}

	h := &Handle{
		cfg:        cfg,
		logger:     logger,
		visibility: make(map[int]func(bool)),
	}

	transport := o.transport
	if transport == nil {
		mgr, err := connection.NewManager(cfg.ChatURL,
			connection.WithLogger(o.logger),
			connection.WithTimeouts(cfg.Engine.DialTimeout, cfg.Engine.WriteTimeout),
			connection.WithBackoff(cfg.Engine.ReconnectInitial, cfg.Engine.ReconnectMax, cfg.Engine.ReconnectAttempts),
		)
		if err != nil {
			logger.Error("Chat widget initialization aborted", "error", err)
			return nil, err
		}
		transport = mgr
	}

	recorder := o.recorder
	if recorder == nil && cfg.Transcript.Enabled {
		repo, err := store.NewSQLite(cfg.Transcript.Path)
		if err != nil {
			return nil, fmt.Errorf("open transcript store: %w", err)
		}
		h.repo = repo
		h.recorder = store.NewAsyncRecorder(repo, cfg.Transcript.QueueSize, o.logger)
		recorder = h.recorder
	}

	sessionOpts := []session.Option{session.WithLogger(o.logger)}
	if recorder != nil {
		sessionOpts = append(sessionOpts, session.WithRecorder(recorder))
	}
	h.client = session.New(session.Settings{
		Endpoint:         cfg.ChatURL,
		IntroductionText: cfg.IntroductionText,
		UserID:           cfg.UserID,
		PatientID:        cfg.PatientID,
	}, transport, sessionOpts...)

	h.rotator = suggestion.New(cfg.SuggestedQuestions, cfg.TriggerCount(),
		suggestion.WithDelay(cfg.Engine.SuggestionDelay),
		suggestion.WithLogger(o.logger),
	)
	h.client.Subscribe(func(s session.State) {
		h.rotator.Update(s.Streaming(), s.HasAssistantReply())
	})

	logger.Info("Chat widget mounted", "container", cfg.Container, "session_id", h.client.ID())
	if o.connect {
		h.start()
	}
	return h, nil
}

// SessionID returns the mounted session's identifier.
func (h *Handle) SessionID() string {
	return h.client.ID()
}

// Config returns a copy of the validated configuration.
func (h *Handle) Config() *config.Config {
	return h.cfg.Clone()
}

// Open shows the chat window. A session whose connection is down is asked to
// reconnect.
func (h *Handle) Open() {
	h.setOpen(true)
	if !h.start() && h.client.ConnectionStatus() == domain.StatusDisconnected {
		h.client.Reconnect()
	}
}

// Close hides the chat window. The session stays connected.
func (h *Handle) Close() {
	h.setOpen(false)
}

// Toggle flips visibility and reports the new state.
func (h *Handle) Toggle() bool {
	h.mu.Lock()
	next := !h.open
	h.mu.Unlock()
	if next {
		h.Open()
	} else {
		h.Close()
	}
	return next
}

// IsOpen reports whether the chat window is shown.
func (h *Handle) IsOpen() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.open
}

// OnVisibility registers fn for open/close changes and returns a function
// that removes it.
func (h *Handle) OnVisibility(fn func(open bool)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextListener++
	id := h.nextListener
	h.visibility[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.visibility, id)
	}
}

// Subscribe observes session state. See session.Client.Subscribe.
func (h *Handle) Subscribe(fn func(session.State)) func() {
	return h.client.Subscribe(fn)
}

// OnSuggestions observes the visible suggestions. See suggestion.Rotator.OnChange.
func (h *Handle) OnSuggestions(fn func(visible []string)) {
	h.rotator.OnChange(fn)
}

// SendMessage sends free text. See session.Client.SendMessage.
func (h *Handle) SendMessage(text string) error {
	return h.client.SendMessage(text)
}

// AskSuggestion sends a visible suggestion. It is marked used only when the
// send is accepted, so a rejected click can be retried.
func (h *Handle) AskSuggestion(q string) error {
	if !slices.Contains(h.rotator.Visible(), q) {
		return fmt.Errorf("%w: %q", ErrUnknownSuggestion, q)
	}
	if err := h.client.SendMessage(q); err != nil {
		return err
	}
	h.rotator.MarkUsed(q)
	return nil
}

// Suggestions returns the currently visible suggestions.
func (h *Handle) Suggestions() []string {
	return h.rotator.Visible()
}

// State returns the session snapshot.
func (h *Handle) State() session.State {
	return h.client.State()
}

// Reconnect asks the connection to retry now.
func (h *Handle) Reconnect() {
	h.client.Reconnect()
}

// Teardown unmounts the widget: the debounce timer is cancelled, the
// connection is closed and queued transcript records are flushed.
func (h *Handle) Teardown() error {
	var errs []error
	h.teardownOnce.Do(func() {
		h.rotator.Close()
		if err := h.client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close session: %w", err))
		}
		if h.recorder != nil {
			if err := h.recorder.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transcript recorder: %w", err))
			}
		}
		if h.repo != nil {
			if err := h.repo.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transcript store: %w", err))
			}
		}
		h.setOpen(false)
		h.logger.Info("Chat widget unmounted", "session_id", h.client.ID())
	})
	return errors.Join(errs...)
}

// start connects the session once. It reports whether this call started it.
func (h *Handle) start() bool {
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		return false
	}
	h.started = true
	h.mu.Unlock()

	if err := h.client.Start(); err != nil {
		// Reconnects continue in the background.
		h.logger.Warn("Initial connection to chat backend failed", "error", err)
	}
	return true
}

func (h *Handle) setOpen(open bool) {
	h.mu.Lock()
	if h.open == open {
		h.mu.Unlock()
		return
	}
	h.open = open
	listeners := make([]func(bool), 0, len(h.visibility))
	for _, fn := range h.visibility {
		listeners = append(listeners, fn)
	}
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(open)
	}
}
