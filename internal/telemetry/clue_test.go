package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"goa.design/clue/log"
)

func TestKVToClue_PairsStringKeysWithValues(t *testing.T) {
	out := kvToClue([]any{"iteration", 3, "tool", "cloudwatch_query_logs"})
	want := []log.Fielder{log.KV{K: "iteration", V: 3}, log.KV{K: "tool", V: "cloudwatch_query_logs"}}
	assert.Equal(t, want, out)
}

func TestKVToClue_SkipsNonStringKeysAndOddTrailingValue(t *testing.T) {
	out := kvToClue([]any{42, "x", "tool", "y", "trailing"})
	assert.Equal(t, []log.Fielder{log.KV{K: "tool", V: "y"}}, out)
}

func TestTagsToAttrs_PairsTags(t *testing.T) {
	attrs := tagsToAttrs([]string{"workspace", "ws-1", "risk_tier", "destructive"})
	assert.Len(t, attrs, 2)
	assert.Equal(t, "workspace", string(attrs[0].Key))
	assert.Equal(t, "ws-1", attrs[0].Value.AsString())
}

func TestToString_HandlesStringErrorAndOther(t *testing.T) {
	assert.Equal(t, "hi", toString("hi"))
	assert.Equal(t, "boom", toString(errors.New("boom")))
	assert.Equal(t, "", toString(42))
}
