package guardrail

import (
	"regexp"
	"strings"
)

// secretShapePatterns mirrors the secret-shape entries of DefaultPatterns,
// used to redact tool output before it enters the assistant transcript
// rather than to block execution.
var secretShapePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bBearer\s+[A-Za-z0-9\-_.=]{10,}`),
	regexp.MustCompile(`\b[0-9a-f]{32,}\b`),
	regexp.MustCompile(`-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----[\s\S]*?-----END (RSA |EC |OPENSSH )?PRIVATE KEY-----`),
	regexp.MustCompile(`\b(sk-[a-zA-Z0-9]{10,}|ghp_[a-zA-Z0-9]{20,}|AKIA[0-9A-Z]{12,})\b`),
}

const redactedPlaceholder = "***REDACTED***"

// RedactOutput replaces secret-shaped substrings in tool output with a
// placeholder before the text is allowed into the assistant transcript.
func RedactOutput(text string) string {
	for _, p := range secretShapePatterns {
		text = p.ReplaceAllString(text, redactedPlaceholder)
	}
	return text
}

// sensitiveKeySubstrings are matched case-insensitively against argument
// map keys for audit-log redaction (spec §4.9: "password/secret/token/key/
// credential substrings").
var sensitiveKeySubstrings = []string{"password", "secret", "token", "key", "credential"}

// RedactArgs returns a copy of args with any value whose key contains a
// sensitive substring replaced by the redaction placeholder. Nested maps
// are redacted recursively.
func RedactArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = redactedPlaceholder
			continue
		}
		if nested, ok := v.(map[string]any); ok {
			out[k] = RedactArgs(nested)
			continue
		}
		out[k] = v
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
