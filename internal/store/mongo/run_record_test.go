package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

func TestNewRunRecordStore_RequiresClientAndDatabase(t *testing.T) {
	_, err := NewRunRecordStore(RunRecordOptions{})
	assert.Error(t, err)

	_, err = NewRunRecordStore(RunRecordOptions{Database: "watchtower"})
	assert.Error(t, err)
}

func TestRunRecordStore_UpsertRequiresRunID(t *testing.T) {
	s := &RunRecordStore{}
	err := s.Upsert(context.Background(), agent.RunRecord{})
	assert.Error(t, err)
}

func TestRunRecordStore_LoadRequiresRunID(t *testing.T) {
	s := &RunRecordStore{}
	_, err := s.Load(context.Background(), "")
	assert.Error(t, err)
}
