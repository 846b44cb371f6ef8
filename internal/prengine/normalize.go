// Package prengine implements the PR Composition Engine: normalizing LLM-
// supplied file edits, validating them against the existing content on the
// base branch, and assembling a tree/commit/branch/PR against GitHub's
// REST API v3. Grounded on the teacher's thin-typed-HTTP-seam pattern
// (features/model/anthropic/client.go wraps a vendor SDK behind a narrow
// interface; here there is no SDK, so the seam wraps net/http directly).
package prengine

import (
	"encoding/json"
	"strings"
)

// File is one normalized file edit.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// rawFile is the loosely-typed shape an LLM actually produces: path may
// arrive as "path" or "filename", and files as a whole may arrive as a JSON
// string instead of an array.
type rawFile struct {
	Path     string `json:"path"`
	Filename string `json:"filename"`
	Content  string `json:"content"`
}

// NormalizeFiles accepts files in any of the shapes an LLM might produce —
// a real []any, or a JSON-string-encoded array — and returns the
// normalized []File, preferring "path" over "filename" and unescaping
// literal \n/\t sequences when they appear to be mistaken escapes rather
// than intentional content.
func NormalizeFiles(files any) ([]File, error) {
	raws, err := toRawFiles(files)
	if err != nil {
		return nil, err
	}
	out := make([]File, 0, len(raws))
	for _, r := range raws {
		path := r.Path
		if path == "" {
			path = r.Filename
		}
		out = append(out, File{Path: path, Content: normalizeContent(r.Content)})
	}
	return out, nil
}

func toRawFiles(files any) ([]rawFile, error) {
	switch v := files.(type) {
	case string:
		var raws []rawFile
		if err := json.Unmarshal([]byte(v), &raws); err != nil {
			return nil, err
		}
		return raws, nil
	case []any:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var raws []rawFile
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	case []rawFile:
		return v, nil
	default:
		data, err := json.Marshal(files)
		if err != nil {
			return nil, err
		}
		var raws []rawFile
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, err
		}
		return raws, nil
	}
}

// normalizeContent unescapes literal \n/\t sequences when the content
// appears to carry them in place of real whitespace — either no real
// newline is present at all, or literal escapes outnumber real newlines —
// and otherwise preserves the content bit-exact.
func normalizeContent(content string) string {
	literalNewlines := strings.Count(content, `\n`)
	realNewlines := strings.Count(content, "\n")
	if literalNewlines == 0 {
		return content
	}
	if realNewlines == 0 || literalNewlines > realNewlines {
		content = strings.ReplaceAll(content, `\n`, "\n")
		content = strings.ReplaceAll(content, `\t`, "\t")
	}
	return content
}
