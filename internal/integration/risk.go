package integration

import (
	"strings"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// riskForHTTPMethod implements spec §4.4's OpenAPI/REST inference:
// DELETE→destructive; POST/PUT/PATCH→safe_write; else read_only.
func riskForHTTPMethod(method string) agent.RiskTier {
	switch strings.ToUpper(method) {
	case "DELETE":
		return agent.RiskDestructive
	case "POST", "PUT", "PATCH":
		return agent.RiskSafeWrite
	default:
		return agent.RiskReadOnly
	}
}

var (
	destructiveSubstrings = []string{"delete", "remove", "drop", "destroy"}
	safeWriteSubstrings   = []string{"create", "update", "write", "add", "edit", "modify", "set", "post", "put"}
)

// riskForProtocolTool implements spec §4.4's protocol-server heuristic: the
// tool's name and description are scanned for substrings when no explicit
// risk tier is available from the server itself.
func riskForProtocolTool(name, description string) agent.RiskTier {
	haystack := strings.ToLower(name + " " + description)
	for _, s := range destructiveSubstrings {
		if strings.Contains(haystack, s) {
			return agent.RiskDestructive
		}
	}
	for _, s := range safeWriteSubstrings {
		if strings.Contains(haystack, s) {
			return agent.RiskSafeWrite
		}
	}
	return agent.RiskReadOnly
}
