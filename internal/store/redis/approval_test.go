package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

func TestNew_RequiresClient(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestApprovalStore_SaveRequiresID(t *testing.T) {
	s := &ApprovalStore{}
	err := s.Save(context.Background(), agent.ApprovalRequest{})
	assert.Error(t, err)
}
