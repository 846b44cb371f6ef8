package prengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// fakeGitHub implements just enough of the GitHub REST surface to drive the
// engine through the full commit protocol.
type fakeGitHub struct {
	t                *testing.T
	branchExists     bool
	existingPRNumber int
	blobCalls        int
}

func newFakeGitHubServer(t *testing.T, state *fakeGitHub) *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/repos/o/r/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"object": map[string]any{"sha": "base-sha"}})
	})
	mux.HandleFunc("/repos/o/r/git/refs", func(w http.ResponseWriter, r *http.Request) {
		if state.branchExists {
			w.WriteHeader(http.StatusUnprocessableEntity)
			writeJSON(w, map[string]any{"message": "Reference already exists"})
			return
		}
		state.branchExists = true
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"ref": "refs/heads/feature"})
	})
	mux.HandleFunc("/repos/o/r/git/refs/heads/feature", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{})
	})
	mux.HandleFunc("/repos/o/r/git/commits/base-sha", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"tree": map[string]any{"sha": "base-tree-sha"}})
	})
	mux.HandleFunc("/repos/o/r/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		state.blobCalls++
		writeJSON(w, map[string]any{"sha": "blob-sha"})
	})
	mux.HandleFunc("/repos/o/r/git/trees", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sha": "new-tree-sha"})
	})
	mux.HandleFunc("/repos/o/r/git/commits", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"sha": "new-commit-sha"})
	})
	mux.HandleFunc("/repos/o/r/contents/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		writeJSON(w, map[string]any{"message": "Not Found"})
	})
	mux.HandleFunc("/repos/o/r/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if state.existingPRNumber == 0 {
				writeJSON(w, []any{})
				return
			}
			writeJSON(w, []map[string]any{{"number": state.existingPRNumber, "html_url": "https://example/pr/1"}})
			return
		}
		if state.existingPRNumber != 0 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			writeJSON(w, map[string]any{"message": "A pull request already exists for o:feature."})
			return
		}
		state.existingPRNumber = 7
		w.WriteHeader(http.StatusCreated)
		writeJSON(w, map[string]any{"number": 7, "html_url": "https://example/pr/7"})
	})
	mux.HandleFunc("/repos/o/r/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"number": 7, "html_url": "https://example/pr/7"})
	})

	return httptest.NewServer(mux)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	data, _ := json.Marshal(v)
	w.Write(data)
}

func TestEngine_Run_CreatesNewPR(t *testing.T) {
	state := &fakeGitHub{t: t}
	srv := newFakeGitHubServer(t, state)
	defer srv.Close()

	client := newGitHubClient("tok", srv.Client())
	client.apiURL = srv.URL

	e := New()
	files := []File{{Path: "a.go", Content: "package a\n"}}
	pr, created, err := e.run(context.Background(), client, "o/r", "Title", "Body", "main", "feature", files)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, 7, pr.Number)
	assert.Equal(t, 1, state.blobCalls)
}

func TestEngine_Run_ResetsExistingBranch(t *testing.T) {
	state := &fakeGitHub{t: t, branchExists: true}
	srv := newFakeGitHubServer(t, state)
	defer srv.Close()

	client := newGitHubClient("tok", srv.Client())
	client.apiURL = srv.URL

	e := New()
	files := []File{{Path: "a.go", Content: "package a\n"}}
	_, created, err := e.run(context.Background(), client, "o/r", "Title", "Body", "main", "feature", files)
	require.NoError(t, err)
	assert.True(t, created)
}

func TestEngine_Run_UpdatesExistingPR(t *testing.T) {
	state := &fakeGitHub{t: t, existingPRNumber: 7}
	srv := newFakeGitHubServer(t, state)
	defer srv.Close()

	client := newGitHubClient("tok", srv.Client())
	client.apiURL = srv.URL

	e := New()
	files := []File{{Path: "a.go", Content: "package a\n"}}
	pr, created, err := e.run(context.Background(), client, "o/r", "Title", "Body", "main", "feature", files)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 7, pr.Number)
}

func TestEngine_Execute_RequiresGithubCredential(t *testing.T) {
	e := New()
	res, err := e.execute(context.Background(), agent.ToolContext{}, map[string]any{
		"repo": "o/r", "base": "main", "head": "feature",
		"files": []any{map[string]any{"path": "a.go", "content": "package a\n"}},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "github credential")
}

func TestEngine_Execute_RejectsEmptyFiles(t *testing.T) {
	e := New()
	res, err := e.execute(context.Background(), agent.ToolContext{Credentials: map[string]string{"github": "tok"}}, map[string]any{
		"repo": "o/r", "base": "main", "head": "feature", "files": []any{},
	})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "non-empty")
}
