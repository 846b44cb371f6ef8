// Package guardrail implements the deny-pattern matching, rate/cost
// limiting, output redaction, and audit logging that sit between the
// agent loop and every tool execution. Grounded on the allow/deny
// precedence style of the teacher's runtime/a2a/policy package, adapted
// from skill-name allow/deny lists to regex argument scanning.
package guardrail

import "regexp"

// Severity classifies a matched denial pattern.
type Severity string

const (
	SeverityBlocked Severity = "blocked"
	SeverityWarning Severity = "warning"
)

// Pattern is one named, case-insensitive regex check.
type Pattern struct {
	Name     string
	Regexp   *regexp.Regexp
	Severity Severity
}

// Violation reports a single matched Pattern against a piece of text.
type Violation struct {
	Pattern  string   `json:"pattern"`
	Severity Severity `json:"severity"`
	Snippet  string   `json:"snippet"`
}

func mustPattern(name, expr string, sev Severity) Pattern {
	return Pattern{Name: name, Regexp: regexp.MustCompile(`(?i)` + expr), Severity: sev}
}

// DefaultPatterns is the built-in SQL, shell, and secret-shape denylist
// described in spec §4.9.
func DefaultPatterns() []Pattern {
	return []Pattern{
		mustPattern("sql_drop", `\bDROP\s+(TABLE|DATABASE|SCHEMA)\b`, SeverityBlocked),
		mustPattern("sql_truncate", `\bTRUNCATE\b`, SeverityBlocked),
		mustPattern("sql_delete_without_where", `\bDELETE\s+FROM\s+\S+\s*(;|$)`, SeverityBlocked),
		mustPattern("sql_update_tautology", `\bUPDATE\b.*\bWHERE\s+1\s*=\s*1\b`, SeverityBlocked),
		mustPattern("sql_grant_all", `\bGRANT\s+ALL\b`, SeverityBlocked),
		mustPattern("sql_revoke", `\bREVOKE\b`, SeverityWarning),

		mustPattern("shell_rm_rf_root", `\brm\s+-rf\s+(/|~|\*)`, SeverityBlocked),
		mustPattern("shell_chmod_777", `\bchmod\s+777\b`, SeverityBlocked),
		mustPattern("shell_fork_bomb", `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`, SeverityBlocked),
		mustPattern("shell_mkfs", `\bmkfs(\.\w+)?\b`, SeverityBlocked),
		mustPattern("shell_dd_device", `\bdd\s+.*\bof=/dev/`, SeverityBlocked),
		mustPattern("shell_redirect_to_device", `>\s*/dev/sd\w*`, SeverityBlocked),
		mustPattern("shell_pipe_to_shell", `\b(curl|wget)\b[^|]*\|\s*(sh|bash)\b`, SeverityBlocked),
		mustPattern("shell_eval_subshell", `\beval\s*\$\(`, SeverityBlocked),

		mustPattern("secret_bearer_token", `\bBearer\s+[A-Za-z0-9\-_.=]{10,}`, SeverityWarning),
		mustPattern("secret_long_hex", `\b[0-9a-f]{32,}\b`, SeverityWarning),
		mustPattern("secret_private_key_header", `-----BEGIN (RSA |EC |OPENSSH )?PRIVATE KEY-----`, SeverityBlocked),
		mustPattern("secret_provider_token_prefix", `\b(sk-[a-zA-Z0-9]{10,}|ghp_[a-zA-Z0-9]{20,}|AKIA[0-9A-Z]{12,})\b`, SeverityWarning),
	}
}

// Scanner evaluates text against an ordered list of Patterns.
type Scanner struct {
	patterns []Pattern
}

// NewScanner builds a Scanner. A nil/empty patterns slice falls back to
// DefaultPatterns.
func NewScanner(patterns []Pattern) *Scanner {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return &Scanner{patterns: patterns}
}

// Scan returns every Violation found in text, in pattern-declaration order.
func (s *Scanner) Scan(text string) []Violation {
	var out []Violation
	for _, p := range s.patterns {
		if loc := p.Regexp.FindStringIndex(text); loc != nil {
			out = append(out, Violation{Pattern: p.Name, Severity: p.Severity, Snippet: snippet(text, loc[0], loc[1])})
		}
	}
	return out
}

// Blocked reports whether any violation in vs is severity=blocked.
func Blocked(vs []Violation) bool {
	for _, v := range vs {
		if v.Severity == SeverityBlocked {
			return true
		}
	}
	return false
}

func snippet(text string, start, end int) string {
	const pad = 20
	lo := start - pad
	if lo < 0 {
		lo = 0
	}
	hi := end + pad
	if hi > len(text) {
		hi = len(text)
	}
	return text[lo:hi]
}
