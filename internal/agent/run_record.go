package agent

import "time"

// RunRecord is a lightweight, independently-persisted summary of one run:
// just enough to list or search runs without loading the full AgentState
// transcript. Grounded on the teacher's run.Record store contract
// (features/run/mongo Store.Upsert/Load).
type RunRecord struct {
	RunID       string    `json:"run_id"`
	WorkspaceID string    `json:"workspace_id"`
	Status      Status    `json:"status"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RunRecordFromState projects state into its RunRecord summary.
func RunRecordFromState(state *AgentState, startedAt time.Time) RunRecord {
	return RunRecord{
		RunID:       state.RunID,
		WorkspaceID: state.WorkspaceID,
		Status:      state.Status,
		StartedAt:   startedAt,
		UpdatedAt:   time.Now(),
	}
}
