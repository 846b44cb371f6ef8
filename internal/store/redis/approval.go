// Package redis persists ApprovalRequests so a pause survives a process
// restart and so multiple watchtower instances can share suspension
// state. Grounded on the teacher's thin Store-delegates-to-client pattern
// (features/run/mongo/store.go), adapted to github.com/redis/go-redis/v9
// since an ApprovalRequest is a small, short-lived, key-addressable
// record rather than a document collection.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/store"
)

const keyPrefix = "watchtower:approval:"

var _ store.ApprovalStore = (*ApprovalStore)(nil)

// ApprovalStore persists agent.ApprovalRequest records in Redis, keyed by
// request id, with a TTL matching the request's own expiry.
type ApprovalStore struct {
	client *redis.Client
}

// New builds an ApprovalStore.
func New(client *redis.Client) (*ApprovalStore, error) {
	if client == nil {
		return nil, errors.New("redis: client is required")
	}
	return &ApprovalStore{client: client}, nil
}

// Save persists req, expiring the key shortly after req.ExpiresAt so a
// stale approval cannot linger indefinitely.
func (s *ApprovalStore) Save(ctx context.Context, req agent.ApprovalRequest) error {
	if req.ID == "" {
		return errors.New("redis: approval request id is required")
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("redis: marshal approval request: %w", err)
	}
	ttl := time.Until(req.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, keyPrefix+req.ID, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set approval request: %w", err)
	}
	return nil
}

// Load retrieves a previously saved ApprovalRequest by id.
func (s *ApprovalStore) Load(ctx context.Context, id string) (agent.ApprovalRequest, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		return agent.ApprovalRequest{}, fmt.Errorf("redis: get approval request %q: %w", id, err)
	}
	var req agent.ApprovalRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return agent.ApprovalRequest{}, fmt.Errorf("redis: unmarshal approval request %q: %w", id, err)
	}
	return req, nil
}

// Delete removes a saved ApprovalRequest, used once it is resolved.
func (s *ApprovalStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, keyPrefix+id).Err(); err != nil {
		return fmt.Errorf("redis: delete approval request %q: %w", id, err)
	}
	return nil
}
