// Package suggestion decides which canned follow-up questions are shown.
package suggestion

import (
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ashureev/shsh-chat/internal/config"
)

// DefaultDelay is the quiet period after a completed exchange before the
// visible questions are recomputed.
const DefaultDelay = 2000 * time.Millisecond

// Option configures a Rotator.
type Option func(*Rotator)

// WithDelay overrides the recomputation delay.
func WithDelay(d time.Duration) Option {
	return func(r *Rotator) {
		if d > 0 {
			r.delay = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Rotator) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Rotator tracks used questions and the currently visible subset.
// It is safe for concurrent use.
type Rotator struct {
	delay  time.Duration
	logger *slog.Logger

	mu           sync.Mutex
	all          []string
	used         map[string]struct{}
	visible      []string
	triggerCount int
	streaming    bool
	answered     bool
	timer        *time.Timer
	generation   uint64
	closed       bool
	onChange     func([]string)
}

// New creates a rotator over questions. A triggerCount that is not positive
// falls back to config.DefaultTriggerCount. The first triggerCount questions
// are visible before any exchange.
func New(questions []string, triggerCount int, opts ...Option) *Rotator {
	if triggerCount <= 0 {
		triggerCount = config.DefaultTriggerCount
	}
	r := &Rotator{
		delay:        DefaultDelay,
		logger:       slog.Default(),
		all:          slices.Clone(questions),
		used:         make(map[string]struct{}),
		triggerCount: triggerCount,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "suggestion")
	r.visible = r.remaining()
	return r
}

// OnChange registers fn to receive the visible questions after every change.
// fn is called with the rotator locked and must not call back into it.
func (r *Rotator) OnChange(fn func(visible []string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// TriggerCount returns the maximum number of visible questions.
func (r *Rotator) TriggerCount() int {
	return r.triggerCount
}

// Visible returns the questions currently offered.
func (r *Rotator) Visible() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.visible)
}

// Used returns the questions already asked, in question order.
func (r *Rotator) Used() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, q := range r.all {
		if _, ok := r.used[q]; ok {
			out = append(out, q)
		}
	}
	return out
}

// Update feeds the session's streaming flag and whether an assistant reply
// exists. Streaming clears the visible set and discards any pending
// recomputation. The end of a stream, once the assistant has replied,
// schedules a recomputation after the delay.
func (r *Rotator) Update(streaming, answered bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	wasStreaming, wasAnswered := r.streaming, r.answered
	r.streaming, r.answered = streaming, answered

	if streaming {
		r.cancelLocked()
		if len(r.visible) > 0 {
			r.visible = nil
			r.notifyLocked()
		}
		return
	}
	if answered && (wasStreaming || !wasAnswered) {
		r.scheduleLocked()
	}
}

// MarkUsed records that q was asked. It reports whether q is a known question
// that had not been used before.
func (r *Rotator) MarkUsed(q string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.all, q) {
		return false
	}
	if _, ok := r.used[q]; ok {
		return false
	}
	r.used[q] = struct{}{}
	if i := slices.Index(r.visible, q); i >= 0 {
		r.visible = slices.Delete(slices.Clone(r.visible), i, i+1)
		r.notifyLocked()
	}
	return true
}

// Pending reports whether a recomputation is scheduled.
func (r *Rotator) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}

// Close cancels any pending recomputation. No callback runs after Close returns.
func (r *Rotator) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.cancelLocked()
}

func (r *Rotator) scheduleLocked() {
	r.cancelLocked()
	gen := r.generation
	r.timer = time.AfterFunc(r.delay, func() { r.recompute(gen) })
}

func (r *Rotator) cancelLocked() {
	r.generation++
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Rotator) recompute(gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || gen != r.generation || r.streaming {
		return
	}
	r.timer = nil
	r.visible = r.remaining()
	r.logger.Debug("Suggestions recomputed", "visible", len(r.visible), "used", len(r.used))
	r.notifyLocked()
}

func (r *Rotator) remaining() []string {
	out := make([]string, 0, r.triggerCount)
	for _, q := range r.all {
		if len(out) == r.triggerCount {
			break
		}
		if _, ok := r.used[q]; ok {
			continue
		}
		out = append(out, q)
	}
	return out
}

func (r *Rotator) notifyLocked() {
	if r.onChange != nil {
		r.onChange(slices.Clone(r.visible))
	}
}
