// Package connection owns the streaming websocket transport to the chat backend.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/config"
	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

var (
	// ErrNotConnected is returned by Send when the status is not CONNECTED.
	ErrNotConnected = errors.New("not connected")
	// ErrClosed is returned once the manager has been torn down.
	ErrClosed = errors.New("connection manager closed")
	// ErrAlreadyStarted is returned by a second Connect call.
	ErrAlreadyStarted = errors.New("connection already started")
)

const defaultReadLimit = 1 << 20 // 1MB

// Manager owns the lifecycle of one websocket connection to a configured endpoint.
// Frames and status changes are delivered from a single goroutine, in order.
type Manager struct {
	endpoint     string
	logger       *slog.Logger
	dialTimeout  time.Duration
	writeTimeout time.Duration
	initial      time.Duration
	maxInterval  time.Duration
	maxAttempts  int
	dialOpts     *websocket.DialOptions

	mu       sync.RWMutex
	conn     *websocket.Conn
	status   domain.ConnectionStatus
	onFrame  func([]byte)
	onStatus func(domain.ConnectionStatus)
	started  bool
	closed   bool
	cancel   context.CancelFunc

	reconnectCh chan struct{}
	done        chan struct{}
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTimeouts sets the handshake and per-frame write timeouts.
func WithTimeouts(dial, write time.Duration) Option {
	return func(m *Manager) {
		if dial > 0 {
			m.dialTimeout = dial
		}
		if write > 0 {
			m.writeTimeout = write
		}
	}
}

// WithBackoff sets the reconnect schedule: initial delay doubling up to max,
// for at most attempts consecutive failures before the manager parks.
func WithBackoff(initial, maxInterval time.Duration, attempts int) Option {
	return func(m *Manager) {
		if initial > 0 {
			m.initial = initial
		}
		if maxInterval >= m.initial {
			m.maxInterval = maxInterval
		}
		if attempts > 0 {
			m.maxAttempts = attempts
		}
	}
}

// WithDialOptions passes options through to websocket.Dial.
func WithDialOptions(opts *websocket.DialOptions) Option {
	return func(m *Manager) {
		m.dialOpts = opts
	}
}

// NewManager creates a manager for endpoint. The endpoint scheme is validated
// here, before any connection attempt.
func NewManager(endpoint string, opts ...Option) (*Manager, error) {
	if err := config.ValidateEndpoint(endpoint); err != nil {
		return nil, err
	}

	m := &Manager{
		endpoint:     endpoint,
		logger:       slog.Default(),
		dialTimeout:  5 * time.Second,
		writeTimeout: 10 * time.Second,
		initial:      time.Second,
		maxInterval:  30 * time.Second,
		maxAttempts:  6,
		status:       domain.StatusDisconnected,
		reconnectCh:  make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "connection", "endpoint", endpoint)
	return m, nil
}

// OnFrame registers the single consumer of inbound frames.
func (m *Manager) OnFrame(fn func(data []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFrame = fn
}

// OnStatus registers the single consumer of status transitions.
func (m *Manager) OnStatus(fn func(domain.ConnectionStatus)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onStatus = fn
}

// Status returns the current connection status.
func (m *Manager) Status() domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Endpoint returns the configured endpoint address.
func (m *Manager) Endpoint() string {
	return m.endpoint
}

// Connect starts the connection loop and waits for the first dial attempt.
// The loop keeps running after a failed first attempt and follows the
// reconnect policy. The connection lives until ctx is done or Close is called.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.mu.Unlock()

	first := make(chan error, 1)
	go m.run(runCtx, first)

	select {
	case err := <-first:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reconnect asks the loop to retry immediately, skipping any pending backoff
// and waking it after an exhausted reconnect sequence.
func (m *Manager) Reconnect() {
	select {
	case m.reconnectCh <- struct{}{}:
	default:
	}
}

// Send transmits v as one JSON text frame. It fails with ErrNotConnected
// instead of queueing when the status is not CONNECTED.
func (m *Manager) Send(ctx context.Context, v any) error {
	m.mu.RLock()
	conn, status, closed := m.conn, m.status, m.closed
	m.mu.RUnlock()

	if closed {
		return ErrClosed
	}
	if status != domain.StatusConnected || conn == nil {
		return ErrNotConnected
	}

	writeCtx, cancel := context.WithTimeout(ctx, m.writeTimeout)
	defer cancel()
	if err := wsjson.Write(writeCtx, conn, v); err != nil {
		return fmt.Errorf("send frame: %w", err)
	}
	return nil
}

// Close tears the connection down. Backoff timers are cancelled, the transport
// is released, and no callback runs after Close returns.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.status = domain.StatusDisconnected
	conn, cancel, started := m.conn, m.cancel, m.started
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(websocket.StatusNormalClosure, "session closed"); err != nil {
			m.logger.Debug("Failed to close websocket", "error", err)
		}
	}
	if cancel != nil {
		cancel()
	}
	if started {
		<-m.done
	}
	m.logger.Info("Chat connection closed")
	return nil
}

func (m *Manager) run(ctx context.Context, first chan<- error) {
	defer close(m.done)

	b := m.newBackoff()
	failures := 0
	for {
		conn, err := m.dial(ctx)
		if first != nil {
			first <- err
			first = nil
		}
		if ctx.Err() != nil || errors.Is(err, ErrClosed) {
			if conn != nil {
				_ = conn.CloseNow()
			}
			return
		}

		if err != nil {
			failures++
			m.logger.Warn("Chat connection attempt failed", "attempt", failures, "error", err)
			m.setStatus(domain.StatusDisconnected)
		} else {
			failures = 0
			b.Reset()
			m.readLoop(ctx, conn)
			if ctx.Err() != nil {
				return
			}
			m.setStatus(domain.StatusDisconnected)
		}

		if failures >= m.maxAttempts {
			m.logger.Warn("Reconnect attempts exhausted, waiting for manual reconnect", "attempts", failures)
			failures = 0
			b.Reset()
			if !m.waitForReconnect(ctx) {
				return
			}
			continue
		}

		delay := b.NextBackOff()
		if delay == backoff.Stop {
			delay = m.maxInterval
		}
		m.logger.Info("Reconnecting to chat backend", "delay", delay, "attempt", failures+1)
		if !m.sleep(ctx, delay) {
			return
		}
	}
}

func (m *Manager) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.initial
	b.MaxInterval = m.maxInterval
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

func (m *Manager) dial(ctx context.Context) (*websocket.Conn, error) {
	m.setStatus(domain.StatusConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, m.dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dialCtx, m.endpoint, m.dialOpts)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", m.endpoint, err)
	}
	conn.SetReadLimit(defaultReadLimit)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = conn.CloseNow()
		return nil, ErrClosed
	}
	m.conn = conn
	m.mu.Unlock()

	// A reconnect request raised while we were already dialing is satisfied.
	select {
	case <-m.reconnectCh:
	default:
	}

	m.setStatus(domain.StatusConnected)
	m.logger.Info("Connected to chat backend")
	return conn, nil
}

func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() {
		m.mu.Lock()
		if m.conn == conn {
			m.conn = nil
		}
		m.mu.Unlock()
		_ = conn.CloseNow()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if status := websocket.CloseStatus(err); status != -1 {
				m.logger.Info("Chat connection closed by backend", "status", status)
			} else {
				m.logger.Warn("Chat connection read error", "error", err)
			}
			return
		}
		m.deliver(data)
	}
}

func (m *Manager) deliver(data []byte) {
	m.mu.RLock()
	fn, closed := m.onFrame, m.closed
	m.mu.RUnlock()
	if fn == nil || closed {
		return
	}
	fn(data)
}

func (m *Manager) setStatus(s domain.ConnectionStatus) {
	m.mu.Lock()
	if m.closed || m.status == s {
		m.mu.Unlock()
		return
	}
	m.status = s
	fn := m.onStatus
	m.mu.Unlock()

	m.logger.Debug("Connection status changed", "status", s.String())
	if fn != nil {
		fn(s)
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-m.reconnectCh:
		return true
	case <-ctx.Done():
		return false
	}
}

func (m *Manager) waitForReconnect(ctx context.Context) bool {
	select {
	case <-m.reconnectCh:
		return true
	case <-ctx.Done():
		return false
	}
}
