package provider

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// RecoverToolCalls scans text for JSON object fragments shaped like
// {"name": ..., "parameters"|"arguments": ...} and, when at least one is
// found, returns synthetic ToolCalls with generated ids. This absorbs
// models that emit a tool call as plain-text JSON instead of using the
// provider's structured tool-call mechanism — per spec §4.1, "the single
// largest source of incidental complexity", so it is isolated here and
// covered by a property test (see recover_test.go).
//
// The second return value is true when at least one tool call was
// recovered; callers should suppress the text content in that case and
// treat the turn as a tool-call turn.
func RecoverToolCalls(text string) ([]agent.ToolCall, bool) {
	var calls []agent.ToolCall
	i := 0
	for i < len(text) {
		start := strings.IndexByte(text[i:], '{')
		if start < 0 {
			break
		}
		start += i
		end, ok := findBalancedBraceEnd(text, start)
		if !ok {
			i = start + 1
			continue
		}
		fragment := text[start : end+1]
		if call, ok := parseToolCallFragment(fragment); ok {
			calls = append(calls, call)
		}
		i = end + 1
	}
	return calls, len(calls) > 0
}

// findBalancedBraceEnd returns the index of the '}' that closes the object
// opened at text[start] == '{', respecting string-escaped braces (braces
// that appear inside a "..." string literal are not counted). Returns
// ok=false if the text ends before the object is closed.
func findBalancedBraceEnd(text string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// toolCallFragment is the minimal shape RecoverToolCalls looks for. Either
// "parameters" or "arguments" is accepted as the args key, matching the two
// spellings different model families tend to use.
type toolCallFragment struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters"`
	Arguments  json.RawMessage `json:"arguments"`
}

func parseToolCallFragment(fragment string) (agent.ToolCall, bool) {
	var f toolCallFragment
	if err := json.Unmarshal([]byte(fragment), &f); err != nil {
		return agent.ToolCall{}, false
	}
	if f.Name == "" {
		return agent.ToolCall{}, false
	}
	args := f.Arguments
	if len(args) == 0 {
		args = f.Parameters
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	return agent.ToolCall{
		ID:        "recovered_" + uuid.NewString(),
		ToolName:  f.Name,
		Arguments: string(args),
	}, true
}
