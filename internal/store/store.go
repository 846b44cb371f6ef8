// Package store defines the persistence seams the loop and CLI depend on,
// so callers can wire an in-memory, MongoDB-backed, or Redis-backed
// implementation interchangeably. Grounded on the teacher's
// features/run/mongo Store.Upsert/Load contract: a narrow interface per
// concern, with concrete backends living in sibling packages
// (internal/store/memory, internal/store/mongo, internal/store/redis).
package store

import (
	"context"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// Store persists full AgentState snapshots, keyed by run id, so a paused
// run can be resumed in a later process.
type Store interface {
	Save(ctx context.Context, state *agent.AgentState) error
	Load(ctx context.Context, runID string) (*agent.AgentState, error)
}

// ApprovalStore persists ApprovalRequest records for the out-of-process
// approve/reject decision flow (spec §4.7).
type ApprovalStore interface {
	Save(ctx context.Context, req agent.ApprovalRequest) error
	Load(ctx context.Context, id string) (agent.ApprovalRequest, error)
	Delete(ctx context.Context, id string) error
}

// RunRecordStore persists lightweight RunRecord summaries independent of
// the full AgentState, for fast listing/search without loading every
// message in a run's transcript.
type RunRecordStore interface {
	Upsert(ctx context.Context, rec agent.RunRecord) error
	Load(ctx context.Context, runID string) (agent.RunRecord, error)
}
