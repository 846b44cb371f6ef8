package guardrail

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// BudgetExceededError is returned when a request or cost cap is exceeded.
type BudgetExceededError struct {
	Kind  string // "requests" or "cost"
	Limit float64
	Used  float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("guardrail: %s budget exceeded (used=%.2f limit=%.2f)", e.Kind, e.Used, e.Limit)
}

// BudgetConfig bounds a process-wide rate/cost window.
type BudgetConfig struct {
	Window          time.Duration
	MaxRequests     int
	MaxCostEstimate float64
}

// DefaultBudgetConfig allows 120 requests and an estimated $5 of LLM spend
// per rolling hour, a conservative default tuned for a single investigation
// process rather than a fleet.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{Window: time.Hour, MaxRequests: 120, MaxCostEstimate: 5.0}
}

type entry struct {
	at   time.Time
	cost float64
}

// Bucket tracks a process-wide sliding-window count of requests and
// accumulated estimated cost. A Bucket is safe for concurrent use; it is
// in-memory by default and the single piece of genuinely process-wide
// shared state in the agent, so an optional Store may back it for
// multi-process deployments. Alongside the hard window cap, a token-bucket
// limiter smooths calls across the window instead of letting a burst land
// in the same instant, grounded on the teacher's AdaptiveRateLimiter
// (features/model/middleware/ratelimit.go) and simplified to a fixed rate
// since cost is already hard-capped by the window check.
type Bucket struct {
	cfg BudgetConfig

	mu      sync.Mutex
	entries []entry

	store   Store
	limiter *rate.Limiter
}

// Store persists Bucket usage across process restarts or multiple
// instances. Implementations must be safe for concurrent use.
type Store interface {
	Record(ctx context.Context, at time.Time, cost float64) error
	Usage(ctx context.Context, since time.Time) (requests int, cost float64, err error)
}

// NewBucket builds a Bucket. A nil store keeps the bucket in-memory only.
func NewBucket(cfg BudgetConfig, store Store) *Bucket {
	if cfg.Window <= 0 {
		cfg = DefaultBudgetConfig()
	}
	return &Bucket{cfg: cfg, store: store, limiter: newCallRateLimiter(cfg)}
}

// newCallRateLimiter builds a token-bucket limiter that spreads
// MaxRequests evenly across Window, so a caller cannot spend the whole
// window's request budget in one burst.
func newCallRateLimiter(cfg BudgetConfig) *rate.Limiter {
	perSecond := float64(cfg.MaxRequests) / cfg.Window.Seconds()
	return rate.NewLimiter(rate.Limit(perSecond), cfg.MaxRequests)
}

// Allow reports whether one more request of the given estimated cost fits
// within the configured window and the smoothing rate limiter, without
// recording it against the window counters. A token is taken from the rate
// limiter as part of this check; Window/cost accounting itself is recorded
// separately via Record.
func (b *Bucket) Allow(ctx context.Context, estimatedCost float64) error {
	requests, cost, err := b.usage(ctx)
	if err != nil {
		return fmt.Errorf("guardrail: budget usage: %w", err)
	}
	if requests+1 > b.cfg.MaxRequests {
		return &BudgetExceededError{Kind: "requests", Limit: float64(b.cfg.MaxRequests), Used: float64(requests)}
	}
	if cost+estimatedCost > b.cfg.MaxCostEstimate {
		return &BudgetExceededError{Kind: "cost", Limit: b.cfg.MaxCostEstimate, Used: cost}
	}
	if !b.limiter.Allow() {
		return &BudgetExceededError{Kind: "rate", Limit: float64(b.cfg.MaxRequests), Used: float64(requests)}
	}
	return nil
}

// Record registers a completed call's estimated cost against the window.
func (b *Bucket) Record(ctx context.Context, estimatedCost float64) error {
	now := time.Now()
	b.mu.Lock()
	b.entries = append(b.entries, entry{at: now, cost: estimatedCost})
	b.prune(now)
	b.mu.Unlock()

	if b.store != nil {
		return b.store.Record(ctx, now, estimatedCost)
	}
	return nil
}

func (b *Bucket) usage(ctx context.Context) (int, float64, error) {
	if b.store != nil {
		return b.store.Usage(ctx, time.Now().Add(-b.cfg.Window))
	}
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prune(now)
	var cost float64
	for _, e := range b.entries {
		cost += e.cost
	}
	return len(b.entries), cost, nil
}

// prune drops entries older than the window. Caller must hold b.mu.
func (b *Bucket) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.Window)
	i := 0
	for i < len(b.entries) && b.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		b.entries = b.entries[i:]
	}
}
