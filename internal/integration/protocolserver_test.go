package integration

import (
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
)

func TestParseCallToolResult_JoinsTextContent(t *testing.T) {
	resp := &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Text: "line one"},
			mcp.TextContent{Text: "line two"},
		},
	}
	result := parseCallToolResult(resp)
	assert.True(t, result.Success)
	assert.Equal(t, "line one\nline two", result.Output)
}

func TestParseCallToolResult_IsErrorReturnsFailure(t *testing.T) {
	resp := &mcp.CallToolResult{IsError: true, Content: []mcp.Content{mcp.TextContent{Text: "boom"}}}
	result := parseCallToolResult(resp)
	assert.False(t, result.Success)
	assert.Equal(t, "boom", result.Error)
}

func TestParseCallToolResult_IsErrorWithNoTextUsesFallback(t *testing.T) {
	resp := &mcp.CallToolResult{IsError: true}
	result := parseCallToolResult(resp)
	assert.False(t, result.Success)
	assert.Equal(t, "unknown MCP tool error", result.Error)
}

func TestConvertSchema_RoundTripsJSONSchema(t *testing.T) {
	schema := mcp.ToolInputSchema{Type: "object", Properties: map[string]any{"query": map[string]any{"type": "string"}}}
	got := convertSchema(schema)
	assert.Equal(t, "object", got["type"])
}

func TestConvertEnv_BuildsKeyValuePairs(t *testing.T) {
	got := convertEnv(map[string]string{"FOO": "bar"})
	assert.Equal(t, []string{"FOO=bar"}, got)
	assert.Nil(t, convertEnv(nil))
}

func TestSubstituteEnvSlice_ExpandsEachArg(t *testing.T) {
	t.Setenv("WATCHTOWER_TEST_TOKEN", "secret")
	got := substituteEnvSlice([]string{"--token=${WATCHTOWER_TEST_TOKEN}", "--flag"})
	assert.Equal(t, []string{"--token=secret", "--flag"}, got)
}
