package guardrail

import (
	"context"
	"time"

	"github.com/watchtower-ai/watchtower/internal/telemetry"
)

// AuditEntry is one append-only record in the audit log, per spec §4.9
// ("agent_started", "tool_called", "approval_requested", ...).
type AuditEntry struct {
	RunID       string         `json:"run_id"`
	WorkspaceID string         `json:"workspace_id"`
	Kind        string         `json:"kind"`
	Detail      map[string]any `json:"detail,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// AuditSink persists AuditEntries. Implementations must be append-only and
// must not fail the caller's operation on a write error beyond logging it.
type AuditSink interface {
	Append(ctx context.Context, e AuditEntry) error
}

// AuditLog writes entries through a telemetry.Logger and, optionally,
// forwards them to a durable AuditSink (e.g. a MongoDB-backed store) for
// retention beyond the process's own log stream.
type AuditLog struct {
	logger telemetry.Logger
	sink   AuditSink
}

// NewAuditLog builds an AuditLog. A nil logger is replaced with a noop
// logger; a nil sink means log-only, no durable retention.
func NewAuditLog(logger telemetry.Logger, sink AuditSink) *AuditLog {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &AuditLog{logger: logger, sink: sink}
}

// Record logs kind and, if a sink is configured, persists an entry whose
// detail has sensitive keys redacted via RedactArgs. A sink failure is logged as a warning, not
// propagated: the audit log must never block agent progress.
func (a *AuditLog) Record(ctx context.Context, runID, workspaceID, kind string, detail map[string]any) {
	entry := AuditEntry{
		RunID:       runID,
		WorkspaceID: workspaceID,
		Kind:        kind,
		Detail:      RedactArgs(detail),
		Timestamp:   time.Now(),
	}
	a.logger.Info(ctx, "audit: "+kind, "run_id", runID, "workspace_id", workspaceID)
	if a.sink == nil {
		return
	}
	if err := a.sink.Append(ctx, entry); err != nil {
		a.logger.Warn(ctx, "audit sink append failed", "kind", kind, "err", err)
	}
}
