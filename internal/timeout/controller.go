// Package timeout implements the shared deadline and cancellation signal the
// loop uses to stay within an agent run's wall-clock budget. Grounded on the
// context.Context-everywhere convention used throughout the teacher's
// runtime/agent/runtime/workflow_loop.go.
package timeout

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MinIterationTimeMS is the minimum remaining budget the loop requires
// before starting another iteration (§4.6 step 1).
const MinIterationTimeMS = 30_000

// Error is returned by Checkpoint and WithTimeout when the budget has been
// exhausted. It carries enough context to build the "timed out" event.
type Error struct {
	Elapsed time.Duration
	Limit   time.Duration
	Context string
}

func (e *Error) Error() string {
	return fmt.Sprintf("timeout: elapsed=%s limit=%s (%s)", e.Elapsed, e.Limit, e.Context)
}

// Controller tracks a single total time budget for a run, exposes elapsed
// and remaining time, and provides a cancellation signal that can be fired
// early via Abort.
type Controller struct {
	limit time.Duration

	mu      sync.Mutex
	started bool
	start   time.Time
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Controller with the given total budget. The controller
// is armed by calling Start.
func New(budget time.Duration) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{limit: budget, ctx: ctx, cancel: cancel}
}

// Start arms the deadline. Calling Start more than once is a no-op after the
// first call.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	c.started = true
	c.start = time.Now()
}

// Stop releases the controller's cancellation signal. Idempotent.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	c.cancel()
}

// Abort fires the cancellation signal immediately, distinct from a natural
// deadline expiry. Idempotent (delegates to Stop).
func (c *Controller) Abort() {
	c.Stop()
}

// Done returns the cancellation channel: closed when the controller is
// stopped, aborted, or the process exits.
func (c *Controller) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Elapsed returns the time since Start was called. Zero before Start.
func (c *Controller) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return 0
	}
	return time.Since(c.start)
}

// Remaining returns the time left in the budget. Never negative.
func (c *Controller) Remaining() time.Duration {
	rem := c.limit - c.Elapsed()
	if rem < 0 {
		return 0
	}
	return rem
}

// IsTimedOut reports whether the budget has been exhausted.
func (c *Controller) IsTimedOut() bool {
	return c.Elapsed() >= c.limit
}

// HasTimeFor reports whether at least estimated remains in the budget.
func (c *Controller) HasTimeFor(estimated time.Duration) bool {
	return c.Remaining() >= estimated
}

// Checkpoint returns a *Error when the budget is exhausted, nil otherwise.
func (c *Controller) Checkpoint(context string) error {
	if !c.IsTimedOut() {
		return nil
	}
	return &Error{Elapsed: c.Elapsed(), Limit: c.limit, Context: context}
}

// WithTimeout races op against both the controller's own deadline and an
// additional per-call budget ms, returning *Error on loss. The losing
// operation's own cancellation is best-effort: op is expected to observe
// ctx and return promptly, but WithTimeout does not block waiting for it.
func (c *Controller) WithTimeout(ctx context.Context, ms time.Duration, op func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, ms)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(callCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-callCtx.Done():
		return &Error{Elapsed: c.Elapsed(), Limit: c.limit, Context: "with_timeout"}
	case <-c.Done():
		return &Error{Elapsed: c.Elapsed(), Limit: c.limit, Context: "controller aborted"}
	}
}
