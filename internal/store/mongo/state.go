package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongo "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/watchtower-ai/watchtower/internal/agent"
	"github.com/watchtower-ai/watchtower/internal/store"
)

const defaultStateCollection = "watchtower_agent_state"

var (
	_ store.Store          = (*StateStore)(nil)
	_ store.RunRecordStore = (*RunRecordStore)(nil)
)

// stateCollection is the subset of *mongo.Collection the state store needs.
type stateCollection interface {
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
}

// StateStore persists agent.AgentState, upserted by run_id. Grounded on the
// teacher's features/run/mongo Store.Upsert/Load shape, collapsed to a
// single document per run (no separate event ledger) since AgentState is
// already a complete, self-contained snapshot.
type StateStore struct {
	coll    stateCollection
	timeout time.Duration
}

// StateOptions configures NewStateStore.
type StateOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// NewStateStore builds a StateStore backed by the given Mongo client.
func NewStateStore(opts StateOptions) (*StateStore, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultStateCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &StateStore{coll: coll, timeout: timeout}, nil
}

// Save upserts the full AgentState snapshot, keyed by run_id.
func (s *StateStore) Save(ctx context.Context, state *agent.AgentState) error {
	if state.RunID == "" {
		return errors.New("mongo: run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": state.RunID}
	doc := bson.M{"_id": state.RunID, "state": state}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("mongo: save agent state: %w", err)
	}
	return nil
}

// Load retrieves the AgentState previously saved for runID.
func (s *StateStore) Load(ctx context.Context, runID string) (*agent.AgentState, error) {
	if runID == "" {
		return nil, errors.New("mongo: run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var wrapper struct {
		State agent.AgentState `bson:"state"`
	}
	if err := s.coll.FindOne(ctx, bson.M{"_id": runID}).Decode(&wrapper); err != nil {
		return nil, fmt.Errorf("mongo: load agent state %q: %w", runID, err)
	}
	return &wrapper.State, nil
}
