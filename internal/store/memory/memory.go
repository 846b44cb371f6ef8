// Package memory provides the in-process default stores used when no
// Mongo/Redis backing is configured: every watchtower run must work
// standalone with zero external dependencies, matching the ambient
// "in-memory default" the config layer falls back to.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/guardrail"
	"github.com/watchtower-ai/watchtower/internal/store"
)

var (
	_ store.Store          = (*StateStore)(nil)
	_ store.ApprovalStore  = (*ApprovalStore)(nil)
	_ store.RunRecordStore = (*RunRecordStore)(nil)
)

// StateStore is an in-memory agent.AgentState store keyed by run id.
type StateStore struct {
	mu     sync.RWMutex
	states map[string]agent.AgentState
}

// NewStateStore returns an empty in-memory StateStore.
func NewStateStore() *StateStore {
	return &StateStore{states: make(map[string]agent.AgentState)}
}

func (s *StateStore) Save(_ context.Context, state *agent.AgentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.RunID] = *state
	return nil
}

func (s *StateStore) Load(_ context.Context, runID string) (*agent.AgentState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[runID]
	if !ok {
		return nil, fmt.Errorf("memory: no state for run %q", runID)
	}
	return &st, nil
}

// ApprovalStore is an in-memory agent.ApprovalRequest store keyed by id.
type ApprovalStore struct {
	mu       sync.RWMutex
	requests map[string]agent.ApprovalRequest
}

// NewApprovalStore returns an empty in-memory ApprovalStore.
func NewApprovalStore() *ApprovalStore {
	return &ApprovalStore{requests: make(map[string]agent.ApprovalRequest)}
}

func (s *ApprovalStore) Save(_ context.Context, req agent.ApprovalRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *ApprovalStore) Load(_ context.Context, id string) (agent.ApprovalRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[id]
	if !ok {
		return agent.ApprovalRequest{}, fmt.Errorf("memory: no approval request %q", id)
	}
	return req, nil
}

func (s *ApprovalStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.requests, id)
	return nil
}

// AuditSink is an in-memory guardrail.AuditSink, useful for tests and for
// standalone runs with no durable audit retention configured.
type AuditSink struct {
	mu      sync.Mutex
	entries []guardrail.AuditEntry
}

// NewAuditSink returns an empty in-memory AuditSink.
func NewAuditSink() *AuditSink {
	return &AuditSink{}
}

func (s *AuditSink) Append(_ context.Context, e guardrail.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
	return nil
}

// Entries returns a snapshot copy of every entry appended so far.
func (s *AuditSink) Entries() []guardrail.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]guardrail.AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// RunRecordStore is an in-memory agent.RunRecord store keyed by run id.
type RunRecordStore struct {
	mu      sync.RWMutex
	records map[string]agent.RunRecord
}

// NewRunRecordStore returns an empty in-memory RunRecordStore.
func NewRunRecordStore() *RunRecordStore {
	return &RunRecordStore{records: make(map[string]agent.RunRecord)}
}

func (s *RunRecordStore) Upsert(_ context.Context, rec agent.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.RunID] = rec
	return nil
}

func (s *RunRecordStore) Load(_ context.Context, runID string) (agent.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[runID]
	if !ok {
		return agent.RunRecord{}, fmt.Errorf("memory: no run record for run %q", runID)
	}
	return rec, nil
}
