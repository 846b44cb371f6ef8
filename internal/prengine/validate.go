package prengine

import (
	"fmt"
	"strings"
)

// snippetRatioThreshold and snippetMinOldSize implement spec §4.5's
// "snippet-only patch" heuristic: a replacement under 30% of a
// sufficiently large original is almost always a truncated edit, not an
// intentional rewrite.
const (
	snippetRatioThreshold = 0.3
	snippetMinOldSize     = 50
	previewLength         = 300
)

// ValidationError is returned when a file edit fails pre-write validation.
// Its Error() embeds a preview of the original content so the LLM can
// correct its own output.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("VALIDATION FAILED for %q: %s", e.Path, e.Reason)
}

// functionDefTokens are the leading tokens that mark a file as starting
// mid-function rather than at its top — a signal that it was snipped out
// of a larger original and likely dropped its imports.
var functionDefTokens = []string{"func ", "def ", "function ", "class ", "public ", "private "}

// importSignals are substrings whose presence in the original but absence
// in the replacement suggest the replacement dropped the import block.
var importSignals = []string{"import ", "require(", "#include", "using "}

// ValidateReplacement checks a single file edit against the existing blob
// content on base (oldContent == "" for new files, which always skip
// validation). It returns a *ValidationError on rejection.
func ValidateReplacement(path, oldContent, newContent string) error {
	if oldContent == "" {
		return nil
	}
	oldSize, newSize := len(oldContent), len(newContent)
	if oldSize > snippetMinOldSize && float64(newSize) < snippetRatioThreshold*float64(oldSize) {
		return &ValidationError{
			Path:   path,
			Reason: fmt.Sprintf("new content (%d bytes) is under 30%% of the existing content (%d bytes); this looks like a truncated snippet, not a full replacement. Original began:\n%s", newSize, oldSize, preview(oldContent)),
		}
	}
	if looksLikeTruncatedDefinition(oldContent, newContent) {
		return &ValidationError{
			Path:   path,
			Reason: fmt.Sprintf("new content starts mid-definition and omits import/include statements present in the original. Original began:\n%s", preview(oldContent)),
		}
	}
	return nil
}

func looksLikeTruncatedDefinition(oldContent, newContent string) bool {
	trimmed := strings.TrimSpace(newContent)
	startsAtDef := false
	for _, tok := range functionDefTokens {
		if strings.HasPrefix(trimmed, tok) {
			startsAtDef = true
			break
		}
	}
	if !startsAtDef {
		return false
	}
	for _, sig := range importSignals {
		if strings.Contains(oldContent, sig) && !strings.Contains(newContent, sig) {
			return true
		}
	}
	return false
}

func preview(content string) string {
	if len(content) <= previewLength {
		return content
	}
	return content[:previewLength]
}
