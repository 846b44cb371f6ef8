package prengine

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/watchtower-ai/watchtower/internal/agent"
)

// Engine implements spec §4.5's PR Composition Engine as a single
// draft-PR-creating tool. One Engine instance is shared across a run; the
// GitHub token is resolved per call from ToolContext.Credentials, never
// baked into the Engine itself.
type Engine struct{}

// New constructs an Engine.
func New() *Engine {
	return &Engine{}
}

// Tool returns the create_pr tool definition and executor, ready for
// toolregistry.Registry.Register.
func (e *Engine) Tool() agent.Tool {
	return agent.Tool{
		Name:        "create_pr",
		Description: "Create or update a draft pull request applying one or more file edits.",
		RiskTier:    agent.RiskSafeWrite,
		Definition: agent.ToolDefinition{
			Name:        "create_pr",
			Description: "Create or update a draft pull request applying one or more file edits against repo.",
			Parameters: map[string]any{
				"type":     "object",
				"required": []string{"repo", "title", "base", "head", "files"},
				"properties": map[string]any{
					"repo":  map[string]any{"type": "string"},
					"title": map[string]any{"type": "string"},
					"body":  map[string]any{"type": "string"},
					"base":  map[string]any{"type": "string"},
					"head":  map[string]any{"type": "string"},
					"files": map[string]any{"type": "array"},
				},
			},
		},
		Executor: e.execute,
	}
}

func (e *Engine) execute(ctx context.Context, tc agent.ToolContext, args map[string]any) (agent.ToolResult, error) {
	repo, _ := args["repo"].(string)
	title, _ := args["title"].(string)
	body, _ := args["body"].(string)
	base, _ := args["base"].(string)
	head, _ := args["head"].(string)
	if repo == "" || base == "" || head == "" {
		return agent.ToolResult{Success: false, Error: "repo, base, and head are required"}, nil
	}

	files, err := NormalizeFiles(args["files"])
	if err != nil {
		return agent.ToolResult{Success: false, Error: fmt.Sprintf("could not parse files: %v", err)}, nil
	}
	if len(files) == 0 {
		return agent.ToolResult{Success: false, Error: "files must be a non-empty array"}, nil
	}

	token := tc.Credentials["github"]
	if token == "" {
		return agent.ToolResult{Success: false, Error: "no github credential available in tool context"}, nil
	}
	client := newGitHubClient(token, nil)

	pr, created, err := e.run(ctx, client, repo, title, body, base, head, files)
	if err != nil {
		return agent.ToolResult{Success: false, Error: err.Error()}, nil
	}

	verb := "created"
	if !created {
		verb = "updated"
	}
	return agent.ToolResult{
		Success: true,
		Output:  fmt.Sprintf("PR #%d %s: %s", pr.Number, verb, pr.HTMLURL),
		Metadata: map[string]any{
			"pr_number": pr.Number,
			"html_url":  pr.HTMLURL,
			"created":   created,
		},
	}, nil
}

// run implements spec §4.5's strictly-ordered commit protocol.
func (e *Engine) run(ctx context.Context, c *githubClient, repo, title, body, base, head string, files []File) (*pullRequest, bool, error) {
	baseSHA, err := c.getRef(ctx, repo, base)
	if err != nil {
		return nil, false, fmt.Errorf("resolving base ref %q: %w", base, err)
	}

	if err := c.createRef(ctx, repo, head, baseSHA); err != nil {
		var apiErr *githubAPIError
		if ok := asGithubAPIError(err, &apiErr) && apiErr.contains("Reference already exists"); ok {
			if err := c.updateRef(ctx, repo, head, baseSHA, true); err != nil {
				return nil, false, fmt.Errorf("resetting existing branch %q to base: %w", head, err)
			}
		} else {
			return nil, false, fmt.Errorf("creating branch %q: %w", head, err)
		}
	}

	baseTreeSHA, err := c.getCommitTree(ctx, repo, baseSHA)
	if err != nil {
		return nil, false, fmt.Errorf("fetching base tree: %w", err)
	}

	if err := e.validateFiles(ctx, c, repo, base, files); err != nil {
		return nil, false, err
	}

	entries, err := e.createBlobs(ctx, c, repo, files)
	if err != nil {
		return nil, false, err
	}

	newTreeSHA, err := c.createTree(ctx, repo, baseTreeSHA, entries)
	if err != nil {
		return nil, false, fmt.Errorf("creating tree: %w", err)
	}

	commitMessage := title
	if commitMessage == "" {
		commitMessage = "Update " + strings.Join(filePaths(files), ", ")
	}
	commitSHA, err := c.createCommit(ctx, repo, commitMessage, newTreeSHA, baseSHA)
	if err != nil {
		return nil, false, fmt.Errorf("creating commit: %w", err)
	}

	if err := c.updateRef(ctx, repo, head, commitSHA, true); err != nil {
		return nil, false, fmt.Errorf("updating branch %q to new commit: %w", head, err)
	}

	pr, err := c.createPullRequest(ctx, repo, title, body, head, base)
	if err == nil {
		return pr, true, nil
	}
	var apiErr *githubAPIError
	if ok := asGithubAPIError(err, &apiErr) && apiErr.contains("A pull request already exists"); ok {
		existing, findErr := c.findOpenPullRequest(ctx, repo, head, base)
		if findErr != nil {
			return nil, false, fmt.Errorf("locating existing pull request: %w", findErr)
		}
		updated, updateErr := c.updatePullRequest(ctx, repo, existing.Number, title, body)
		if updateErr != nil {
			return nil, false, fmt.Errorf("updating existing pull request: %w", updateErr)
		}
		return updated, false, nil
	}
	return nil, false, fmt.Errorf("creating pull request: %w", err)
}

// validateFiles runs ValidateReplacement against each file that already
// exists on base; new files skip validation.
func (e *Engine) validateFiles(ctx context.Context, c *githubClient, repo, base string, files []File) error {
	for _, f := range files {
		_, oldContent, found, err := c.getFileBlob(ctx, repo, base, f.Path)
		if err != nil {
			return fmt.Errorf("fetching existing content for %q: %w", f.Path, err)
		}
		if !found {
			continue
		}
		if err := ValidateReplacement(f.Path, oldContent, f.Content); err != nil {
			return err
		}
	}
	return nil
}

// createBlobs fans out parallel blob creation per spec §4.5 step 4.
func (e *Engine) createBlobs(ctx context.Context, c *githubClient, repo string, files []File) ([]treeEntry, error) {
	entries := make([]treeEntry, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			sha, err := c.createBlob(gctx, repo, f.Content)
			if err != nil {
				return fmt.Errorf("creating blob for %q: %w", f.Path, err)
			}
			entries[i] = treeEntry{Path: f.Path, Mode: "100644", Type: "blob", SHA: sha}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func filePaths(files []File) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func asGithubAPIError(err error, target **githubAPIError) bool {
	apiErr, ok := err.(*githubAPIError)
	if !ok {
		return false
	}
	*target = apiErr
	return true
}
