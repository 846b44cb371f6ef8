// Package events implements the fire-and-forget lifecycle event bus.
// Grounded on the teacher's runtime/agent/hooks package: a Bus of
// Subscribers that receive typed events; a slow or failing subscriber must
// never slow down or fail the loop (best-effort delivery, not durability).
package events

import (
	"context"
	"sync"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/telemetry"
)

// Subscriber receives AgentEvents. Implementations should return quickly:
// Publish runs each subscriber synchronously, in turn, and returns to the
// loop only after every subscriber has returned. Errors and panics are
// logged and swallowed, never escalated.
type Subscriber interface {
	Handle(ctx context.Context, evt agent.AgentEvent) error
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, evt agent.AgentEvent) error

func (f SubscriberFunc) Handle(ctx context.Context, evt agent.AgentEvent) error { return f(ctx, evt) }

// Subscription can be closed to stop receiving events.
type Subscription struct {
	id  int
	bus *Bus
}

// Close removes the subscription from the bus. Idempotent.
func (s *Subscription) Close() {
	s.bus.remove(s.id)
}

// Bus is a thread-safe, in-process publisher of AgentEvents to zero or more
// subscribers.
type Bus struct {
	logger telemetry.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]Subscriber
}

// NewBus constructs an empty Bus. A nil logger is replaced with a noop
// logger.
func NewBus(logger telemetry.Logger) *Bus {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Bus{logger: logger, subs: make(map[int]Subscriber)}
}

// Register adds a subscriber and returns a Subscription used to unregister
// it later.
func (b *Bus) Register(sub Subscriber) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	return &Subscription{id: id, bus: b}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Publish delivers evt to every registered subscriber. A subscriber error or
// panic is logged and otherwise ignored: publishing is best-effort and must
// never affect run correctness.
func (b *Bus) Publish(ctx context.Context, evt agent.AgentEvent) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.RUnlock()

	for _, s := range subs {
		b.deliver(ctx, s, evt)
	}
}

func (b *Bus) deliver(ctx context.Context, s Subscriber, evt agent.AgentEvent) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn(ctx, "event subscriber panicked", "kind", evt.Kind, "recover", r)
		}
	}()
	if err := s.Handle(ctx, evt); err != nil {
		b.logger.Warn(ctx, "event subscriber failed", "kind", evt.Kind, "err", err)
	}
}
