package store

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/shsh-chat/internal/domain"
)

const (
	defaultQueueSize = 256
	writeTimeout     = 5 * time.Second
	closeTimeout     = 5 * time.Second
)

type recordOp struct {
	session *domain.TranscriptSession
	entry   *domain.TranscriptEntry
}

// AsyncRecorder writes transcript records to a Repository from a background
// goroutine so the session never waits on disk I/O.
type AsyncRecorder struct {
	repo   Repository
	queue  chan recordOp
	logger *slog.Logger

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
	wg      sync.WaitGroup
}

// NewAsyncRecorder starts a recorder with a bounded queue.
func NewAsyncRecorder(repo Repository, queueSize int, logger *slog.Logger) *AsyncRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	r := &AsyncRecorder{
		repo:   repo,
		queue:  make(chan recordOp, queueSize),
		logger: logger.With("component", "transcript"),
	}
	r.wg.Add(1)
	go r.process()
	return r
}

// RecordSession queues the session row.
func (r *AsyncRecorder) RecordSession(s domain.TranscriptSession) {
	r.enqueue(recordOp{session: &s})
}

// RecordMessage queues a finalized message.
func (r *AsyncRecorder) RecordMessage(sessionID string, seq int, msg domain.Message) {
	r.enqueue(recordOp{entry: &domain.TranscriptEntry{
		SessionID: sessionID,
		Seq:       seq,
		Message:   msg,
		CreatedAt: time.Now().UTC(),
	}})
}

func (r *AsyncRecorder) enqueue(op recordOp) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	select {
	case r.queue <- op:
	default:
		// Queue full: drop rather than stall the session.
		n := r.dropped.Add(1)
		r.logger.Warn("Transcript queue full, dropping record",
			"queue_len", len(r.queue),
			"dropped", n,
		)
	}
}

func (r *AsyncRecorder) process() {
	defer r.wg.Done()
	for op := range r.queue {
		r.write(op)
	}
}

func (r *AsyncRecorder) write(op recordOp) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	start := time.Now()
	var err error
	switch {
	case op.session != nil:
		err = r.repo.CreateSession(ctx, *op.session)
	case op.entry != nil:
		err = r.repo.AppendMessage(ctx, *op.entry)
	}
	if err != nil {
		r.logger.Error("Failed to write transcript record", "error", err)
		return
	}
	if d := time.Since(start); d > 100*time.Millisecond {
		r.logger.Warn("Slow transcript write", "duration_ms", d.Milliseconds())
	}
}

// Close stops accepting records and waits for queued ones to be written.
func (r *AsyncRecorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	remaining := len(r.queue)
	close(r.queue)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("Transcript recorder stopped", "flushed", remaining)
	case <-time.After(closeTimeout):
		r.logger.Warn("Transcript recorder shutdown timeout", "queue_remaining", len(r.queue))
	}
	return nil
}

// Stats returns recorder statistics.
func (r *AsyncRecorder) Stats() map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return map[string]interface{}{
		"queue_len":      len(r.queue),
		"queue_capacity": cap(r.queue),
		"dropped":        r.dropped.Load(),
	}
}
