// Package progress reports the fractional progress and final result of a
// long-running cache or upload operation.
package progress

import (
	"context"
	"math"
	"sync"
)

// Tracker carries monotone progress fractions in [0,1] and a terminal result
// that is delivered exactly once. Updates are coalesced: a slow reader
// always sees the latest fraction but may miss intermediate ones.
type Tracker struct {
	mu       sync.Mutex
	fraction float64
	finished bool
	err      error

	updates chan float64
	done    chan struct{}
}

// New creates a tracker at zero progress.
func New() *Tracker {
	return &Tracker{
		updates: make(chan float64, 1),
		done:    make(chan struct{}),
	}
}

// Completed returns a tracker that has already finished successfully.
func Completed() *Tracker {
	t := New()
	t.Finish(nil)
	return t
}

// Failed returns a tracker that has already finished with err.
func Failed(err error) *Tracker {
	t := New()
	t.Finish(err)
	return t
}

// Report records a new fraction. Values are clamped to [0,1]; a value lower
// than the current fraction, NaN, or a report after Finish is ignored.
func (t *Tracker) Report(f float64) {
	if math.IsNaN(f) {
		return
	}
	f = math.Max(0, math.Min(1, f))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished || f <= t.fraction {
		return
	}
	t.fraction = f
	t.push(f)
}

// push replaces any unread value with f. Callers hold mu.
func (t *Tracker) push(f float64) {
	select {
	case <-t.updates:
	default:
	}
	t.updates <- f
}

// Finish ends the operation. On success a final 1.0 is published. Only the
// first call has any effect.
func (t *Tracker) Finish(err error) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.finished {
		return false
	}
	t.finished = true
	t.err = err
	if err == nil && t.fraction < 1 {
		t.fraction = 1
		t.push(1)
	}
	close(t.updates)
	close(t.done)
	return true
}

// Updates delivers progress fractions and is closed after Finish.
func (t *Tracker) Updates() <-chan float64 {
	return t.updates
}

// Done is closed once the operation finishes.
func (t *Tracker) Done() <-chan struct{} {
	return t.done
}

// Err returns the terminal error. It is nil until Done is closed.
func (t *Tracker) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Fraction returns the latest reported fraction.
func (t *Tracker) Fraction() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fraction
}

// Wait blocks until the operation finishes or ctx is done.
func (t *Tracker) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Forward copies every update from src into t until src finishes, and
// returns src's terminal error. t itself is not finished.
func (t *Tracker) Forward(src *Tracker) error {
	for f := range src.Updates() {
		t.Report(f)
	}
	return src.Err()
}
