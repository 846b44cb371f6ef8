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
)

const defaultRunRecordCollection = "watchtower_run_records"

// runRecordCollection is the subset of *mongo.Collection the run record
// store needs.
type runRecordCollection interface {
	ReplaceOne(ctx context.Context, filter, replacement any, opts ...options.Lister[options.ReplaceOptions]) (*mongo.UpdateResult, error)
	FindOne(ctx context.Context, filter any, opts ...options.Lister[options.FindOneOptions]) *mongo.SingleResult
}

// RunRecordStore persists agent.RunRecord summaries, upserted by run_id.
// Grounded on the teacher's features/run/mongo Store.Upsert/Load contract.
type RunRecordStore struct {
	coll    runRecordCollection
	timeout time.Duration
}

// RunRecordOptions configures NewRunRecordStore.
type RunRecordOptions struct {
	Client     *mongo.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// NewRunRecordStore builds a RunRecordStore backed by the given Mongo client.
func NewRunRecordStore(opts RunRecordOptions) (*RunRecordStore, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultRunRecordCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &RunRecordStore{coll: coll, timeout: timeout}, nil
}

// Upsert stores rec, replacing any prior record for the same run.
func (s *RunRecordStore) Upsert(ctx context.Context, rec agent.RunRecord) error {
	if rec.RunID == "" {
		return errors.New("mongo: run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	filter := bson.M{"_id": rec.RunID}
	doc := bson.M{"_id": rec.RunID, "record": rec}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, filter, doc, opts); err != nil {
		return fmt.Errorf("mongo: upsert run record: %w", err)
	}
	return nil
}

// Load retrieves the RunRecord previously upserted for runID.
func (s *RunRecordStore) Load(ctx context.Context, runID string) (agent.RunRecord, error) {
	if runID == "" {
		return agent.RunRecord{}, errors.New("mongo: run id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var wrapper struct {
		Record agent.RunRecord `bson:"record"`
	}
	if err := s.coll.FindOne(ctx, bson.M{"_id": runID}).Decode(&wrapper); err != nil {
		return agent.RunRecord{}, fmt.Errorf("mongo: load run record %q: %w", runID, err)
	}
	return wrapper.Record, nil
}
