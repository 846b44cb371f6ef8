// Package mongo provides MongoDB-backed durable stores: audit log
// retention and AgentState persistence. Grounded on the teacher's
// features/runlog/mongo/clients/mongo/client.go: a small collection
// interface wraps *mongo.Collection so tests can inject a fake, and a
// thin outer Store delegates straight through to it, matching
// features/run/mongo/store.go's Store→client delegation shape.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/watchtower-ai/watchtower/internal/guardrail"
)

const (
	defaultAuditCollection = "watchtower_audit_log"
	defaultTimeout         = 5 * time.Second
)

// auditCollection is the subset of *mongo.Collection the audit sink needs,
// narrowed for testability.
type auditCollection interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongodriver.InsertOneResult, error)
}

type auditDocument struct {
	RunID       string         `bson:"run_id"`
	WorkspaceID string         `bson:"workspace_id"`
	Kind        string         `bson:"kind"`
	Detail      map[string]any `bson:"detail,omitempty"`
	Timestamp   time.Time      `bson:"timestamp"`
}

// AuditSink implements guardrail.AuditSink on top of a MongoDB collection.
type AuditSink struct {
	coll    auditCollection
	timeout time.Duration
}

// AuditOptions configures NewAuditSink.
type AuditOptions struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// NewAuditSink builds an AuditSink backed by the given Mongo client.
func NewAuditSink(opts AuditOptions) (*AuditSink, error) {
	if opts.Client == nil {
		return nil, errors.New("mongo: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongo: database name is required")
	}
	collection := opts.Collection
	if collection == "" {
		collection = defaultAuditCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collection)
	return &AuditSink{coll: coll, timeout: timeout}, nil
}

var _ guardrail.AuditSink = (*AuditSink)(nil)

// Append inserts one audit entry. It is the only write operation the sink
// performs; audit entries are never updated or deleted.
func (s *AuditSink) Append(ctx context.Context, e guardrail.AuditEntry) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	doc := auditDocument{
		RunID:       e.RunID,
		WorkspaceID: e.WorkspaceID,
		Kind:        e.Kind,
		Detail:      e.Detail,
		Timestamp:   e.Timestamp.UTC(),
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("mongo: insert audit entry: %w", err)
	}
	return nil
}
