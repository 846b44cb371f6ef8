package prengine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/watchtower-ai/watchtower/internal/provider/retry"
)

const githubAPIBase = "https://api.github.com"

// githubClient is a thin, typed seam over the GitHub REST API v3 endpoints
// the PR engine needs. No generated SDK was available in the reference
// corpus, so each call is a narrow net/http request, mirroring the
// teacher's MessagesClient-style adapter pattern.
type githubClient struct {
	token  string
	http   *http.Client
	apiURL string
}

func newGitHubClient(token string, httpClient *http.Client) *githubClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &githubClient{token: token, http: httpClient, apiURL: githubAPIBase}
}

func (c *githubClient) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reqBody = bytes.NewReader(data)
	}

	var status int
	err := retry.Do(ctx, retry.DefaultConfig(), func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, method, c.apiURL+path, reqBody)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/vnd.github+json")
		if reqBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return readErr
		}
		status = resp.StatusCode

		if resp.StatusCode >= 400 {
			httpErr := &retry.HTTPStatusError{StatusCode: resp.StatusCode, Message: string(data)}
			if retry.IsRetryable(httpErr) {
				return httpErr
			}
			return &githubAPIError{StatusCode: resp.StatusCode, Body: string(data)}
		}
		if out != nil && len(data) > 0 {
			return json.Unmarshal(data, out)
		}
		return nil
	})
	return status, err
}

// githubAPIError is a non-retryable GitHub API error, distinguished from
// retry.HTTPStatusError so callers can pattern-match specific messages
// (e.g. "Reference already exists") without it being mistaken for a
// transient failure.
type githubAPIError struct {
	StatusCode int
	Body       string
}

func (e *githubAPIError) Error() string {
	return fmt.Sprintf("github api: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *githubAPIError) contains(substr string) bool {
	return strings.Contains(e.Body, substr)
}

type refResponse struct {
	Object struct {
		SHA string `json:"sha"`
	} `json:"object"`
}

// getRef resolves heads/<branch> to its current commit SHA.
func (c *githubClient) getRef(ctx context.Context, repo, branch string) (string, error) {
	var ref refResponse
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/git/ref/heads/%s", repo, branch), nil, &ref)
	if err != nil {
		return "", err
	}
	return ref.Object.SHA, nil
}

// createRef creates heads/<branch> pointing at sha. Returns a
// *githubAPIError containing "Reference already exists" if the branch is
// already present, which callers handle via updateRef(force=true).
func (c *githubClient) createRef(ctx context.Context, repo, branch, sha string) error {
	body := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/git/refs", repo), body, nil)
	return err
}

// updateRef force-updates heads/<branch> to sha, resetting it when force is
// true (used both to reset an existing branch back to base, and to land
// the final commit).
func (c *githubClient) updateRef(ctx context.Context, repo, branch, sha string, force bool) error {
	body := map[string]any{"sha": sha, "force": force}
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/git/refs/heads/%s", repo, branch), body, nil)
	return err
}

type commitResponse struct {
	Tree struct {
		SHA string `json:"sha"`
	} `json:"tree"`
}

// getCommitTree fetches the tree SHA for a commit.
func (c *githubClient) getCommitTree(ctx context.Context, repo, sha string) (string, error) {
	var commit commitResponse
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/git/commits/%s", repo, sha), nil, &commit)
	if err != nil {
		return "", err
	}
	return commit.Tree.SHA, nil
}

type blobResponse struct {
	SHA string `json:"sha"`
}

// createBlob base64-encodes content and creates a blob, returning its SHA.
func (c *githubClient) createBlob(ctx context.Context, repo, content string) (string, error) {
	body := map[string]string{
		"content":  base64.StdEncoding.EncodeToString([]byte(content)),
		"encoding": "base64",
	}
	var blob blobResponse
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/git/blobs", repo), body, &blob)
	if err != nil {
		return "", err
	}
	return blob.SHA, nil
}

type existingBlob struct {
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

// getFileBlob fetches the existing blob metadata and decoded content for
// path on ref, or ("", "", false, nil) if the file does not exist.
func (c *githubClient) getFileBlob(ctx context.Context, repo, ref, path string) (sha string, content string, found bool, err error) {
	var resp struct {
		SHA     string `json:"sha"`
		Content string `json:"content"`
		Size    int    `json:"size"`
	}
	_, err = c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/contents/%s?ref=%s", repo, path, ref), nil, &resp)
	if err != nil {
		var apiErr *githubAPIError
		if isNotFound(err, &apiErr) {
			return "", "", false, nil
		}
		return "", "", false, err
	}
	decoded, decErr := base64.StdEncoding.DecodeString(strings.ReplaceAll(resp.Content, "\n", ""))
	if decErr != nil {
		return "", "", false, decErr
	}
	return resp.SHA, string(decoded), true, nil
}

func isNotFound(err error, target **githubAPIError) bool {
	apiErr, ok := err.(*githubAPIError)
	if !ok {
		return false
	}
	*target = apiErr
	return apiErr.StatusCode == http.StatusNotFound
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	SHA  string `json:"sha"`
}

type treeResponse struct {
	SHA string `json:"sha"`
}

// createTree creates a new tree with baseTreeSHA as its base and entries
// layered on top.
func (c *githubClient) createTree(ctx context.Context, repo, baseTreeSHA string, entries []treeEntry) (string, error) {
	body := map[string]any{"base_tree": baseTreeSHA, "tree": entries}
	var tree treeResponse
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/git/trees", repo), body, &tree)
	if err != nil {
		return "", err
	}
	return tree.SHA, nil
}

type commitCreateResponse struct {
	SHA string `json:"sha"`
}

// createCommit creates a commit with the given tree and single parent.
func (c *githubClient) createCommit(ctx context.Context, repo, message, treeSHA, parentSHA string) (string, error) {
	body := map[string]any{"message": message, "tree": treeSHA, "parents": []string{parentSHA}}
	var commit commitCreateResponse
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/git/commits", repo), body, &commit)
	if err != nil {
		return "", err
	}
	return commit.SHA, nil
}

type pullRequest struct {
	Number int    `json:"number"`
	HTMLURL string `json:"html_url"`
	State  string `json:"state"`
	Head   struct {
		Ref string `json:"ref"`
	} `json:"head"`
	Base struct {
		Ref string `json:"ref"`
	} `json:"base"`
}

// createPullRequest opens a draft PR. Returns a *githubAPIError containing
// "A pull request already exists" if one is already open for head+base.
func (c *githubClient) createPullRequest(ctx context.Context, repo, title, body, head, base string) (*pullRequest, error) {
	reqBody := map[string]any{
		"title": title, "body": body, "head": head, "base": base, "draft": true,
	}
	var pr pullRequest
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/pulls", repo), reqBody, &pr)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}

// findOpenPullRequest locates the open PR with matching head+base.
func (c *githubClient) findOpenPullRequest(ctx context.Context, repo, head, base string) (*pullRequest, error) {
	owner := strings.SplitN(repo, "/", 2)[0]
	var prs []pullRequest
	_, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/pulls?state=open&head=%s:%s&base=%s", repo, owner, head, base), nil, &prs)
	if err != nil {
		return nil, err
	}
	if len(prs) == 0 {
		return nil, fmt.Errorf("no open pull request found for %s -> %s", head, base)
	}
	return &prs[0], nil
}

// updatePullRequest patches an existing PR's title/body.
func (c *githubClient) updatePullRequest(ctx context.Context, repo string, number int, title, body string) (*pullRequest, error) {
	reqBody := map[string]any{"title": title, "body": body}
	var pr pullRequest
	_, err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/repos/%s/pulls/%d", repo, number), reqBody, &pr)
	if err != nil {
		return nil, err
	}
	return &pr, nil
}
