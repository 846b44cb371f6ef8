// Package telemetry defines the Logger/Metrics/Tracer interfaces used
// throughout watchtower, adapted in shape from the teacher's
// runtime/agent/telemetry package (noop.go + clue.go): structured logging,
// counters/timers, and tracing spans behind small interfaces so components
// never import a concrete backend directly.
package telemetry

import (
	"context"
	"time"
)

// Logger emits structured, leveled log messages with key/value pairs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics records counters, timers, and gauges.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, d time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Span is a single trace span.
type Span interface {
	End()
	AddEvent(name string, keyvals ...any)
	SetError(err error)
}

// Tracer starts spans.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}
