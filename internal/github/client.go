// Package github implements the GitHub repository backend: a REST v3 API
// client speaking the Git object model, and the provider built on top of it.
package github

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/statichq/gitcms/internal/apperrors"
)

const (
	// BaseURL is the GitHub REST API root.
	BaseURL = "https://api.github.com"
	// StatusURL is the public GitHub status page components endpoint.
	StatusURL = "https://www.githubstatus.com/api/v2/components.json"

	providerName = "github"

	httpTimeout = 30 * time.Second

	// Rate limiting configuration (~5 requests/second keeps well under the
	// authenticated REST quota).
	rateLimitInterval = 200 * time.Millisecond

	httpStatusBadRequest = 400

	blobMode = "100644"
	blobType = "blob"

	// renameListDepth bounds the subtree listing used when moving an
	// entry's folder.
	renameListDepth = 100
)

// Client is a GitHub REST API client scoped to one repository and branch.
type Client struct {
	httpClient  *http.Client
	token       string
	repo        string
	branch      string
	rateLimiter *rate.Limiter
	baseURL     string
	statusURL   string
	logger      *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithBaseURL sets a custom API root (GitHub Enterprise, tests).
func WithBaseURL(url string) ClientOption {
	return func(client *Client) {
		client.baseURL = url
	}
}

// WithStatusURL sets a custom status page endpoint (useful for testing).
func WithStatusURL(url string) ClientOption {
	return func(client *Client) {
		client.statusURL = url
	}
}

// NewClient creates a client for one repo ("owner/name") and branch.
func NewClient(token, repo, branch string, opts ...ClientOption) *Client {
	client := &Client{
		httpClient:  &http.Client{Timeout: httpTimeout},
		token:       token,
		repo:        repo,
		branch:      branch,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitInterval), 1),
		baseURL:     BaseURL,
		statusURL:   StatusURL,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

func (c *Client) repoURL() string {
	return "/repos/" + c.repo
}

// withBranch returns a copy of the client scoped to another branch. The
// original keeps serving in-flight operations unchanged.
func (c *Client) withBranch(branch string) *Client {
	copied := *c
	copied.branch = branch
	return &copied
}

// do performs an HTTP request with rate limiting and retries.
//
//nolint:funlen // HTTP client with retry logic and error handling
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	_, err := c.doRaw(ctx, method, path, body, result)
	return err
}

// doRaw is do plus access to the response headers, needed for pagination.
func (c *Client) doRaw(ctx context.Context, method, path string, body, result any) (http.Header, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var jsonBody []byte
	if body != nil {
		var err error
		jsonBody, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	url := c.baseURL + path

	c.logger.DebugContext(ctx, "API request", "method", method, "path", path)
	startTime := time.Now()

	// Retry with exponential backoff on secondary rate limits.
	maxRetries := 5
	backoff := time.Second

	for attempt := range maxRetries {
		// The request is rebuilt every attempt: a retried request must not
		// reuse a body reader the previous attempt already drained.
		var bodyReader io.Reader
		if jsonBody != nil {
			bodyReader = bytes.NewReader(jsonBody)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Authorization", "token "+c.token)
		req.Header.Set("Accept", "application/vnd.github.v3+json")
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		// Listings must observe our own writes immediately.
		req.Header.Set("Cache-Control", "no-cache")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("do request: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.WarnContext(ctx, "rate limited, backing off", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		if resp.StatusCode >= httpStatusBadRequest {
			var errResp struct {
				Message string `json:"message"`
			}
			_ = json.Unmarshal(respBody, &errResp)
			return nil, apperrors.NewAPIError(resp.StatusCode, "GitHub", errResp.Message)
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return nil, fmt.Errorf("unmarshal response: %w", err)
			}
		}

		c.logger.DebugContext(ctx, "API response",
			"method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(startTime))

		return resp.Header, nil
	}

	return nil, apperrors.ErrMaxRetriesExceeded
}

// allPages follows Link rel="next" headers until the listing is exhausted.
func allPages[T any](ctx context.Context, c *Client, requestPath string) ([]T, error) {
	var out []T
	next := requestPath
	for next != "" {
		var page []T
		header, err := c.doRaw(ctx, http.MethodGet, next, nil, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		next = nextLink(header.Get("Link"), c.baseURL)
	}
	return out, nil
}

// nextLink extracts the rel="next" target from a Link header, relative to
// the API root. An absent link returns "".
func nextLink(header, baseURL string) string {
	for _, part := range strings.Split(header, ",") {
		section := strings.Split(part, ";")
		if len(section) < 2 {
			continue
		}
		if strings.TrimSpace(section[1]) != `rel="next"` {
			continue
		}
		target := strings.Trim(strings.TrimSpace(section[0]), "<>")
		return strings.TrimPrefix(target, baseURL)
	}
	return ""
}

// user returns the authenticated user.
func (c *Client) user(ctx context.Context) (*userResponse, error) {
	var user userResponse
	if err := c.do(ctx, http.MethodGet, "/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// repository returns the configured repository, including the caller's
// permissions on it.
func (c *Client) repository(ctx context.Context) (*repoResponse, error) {
	var repo repoResponse
	if err := c.do(ctx, http.MethodGet, c.repoURL(), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (c *Client) getBranch(ctx context.Context, name string) (*branchResponse, error) {
	var branch branchResponse
	err := c.do(ctx, http.MethodGet, c.repoURL()+"/branches/"+url.PathEscape(name), nil, &branch)
	if err != nil {
		return nil, err
	}
	return &branch, nil
}

func (c *Client) listBranches(ctx context.Context) ([]branchResponse, error) {
	return allPages[branchResponse](ctx, c, c.repoURL()+"/branches?per_page=100")
}

func (c *Client) listPulls(ctx context.Context) ([]pullResponse, error) {
	return allPages[pullResponse](ctx, c, c.repoURL()+"/pulls?state=open&per_page=100")
}

func (c *Client) getRef(ctx context.Context, branch string) (*refResponse, error) {
	var ref refResponse
	err := c.do(ctx, http.MethodGet, c.repoURL()+"/git/refs/heads/"+url.PathEscape(branch), nil, &ref)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (c *Client) createRef(ctx context.Context, branch, sha string) error {
	body := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	return c.do(ctx, http.MethodPost, c.repoURL()+"/git/refs", body, nil)
}

func (c *Client) patchRef(ctx context.Context, branch, sha string, force bool) error {
	body := map[string]any{"sha": sha, "force": force}
	return c.do(ctx, http.MethodPatch, c.repoURL()+"/git/refs/heads/"+url.PathEscape(branch), body, nil)
}

// createOrUpdateRef creates a branch at sha, falling back to a forced update
// when the branch already exists from an earlier interrupted attempt.
func (c *Client) createOrUpdateRef(ctx context.Context, branch, sha string) error {
	err := c.createRef(ctx, branch, sha)
	if err == nil {
		return nil
	}
	if apperrors.IsAPIStatus(err, http.StatusConflict, http.StatusUnprocessableEntity) {
		c.logger.DebugContext(ctx, "branch exists, updating", "branch", branch)
		return c.patchRef(ctx, branch, sha, true)
	}
	return err
}

func (c *Client) getCommit(ctx context.Context, sha string) (*commitResponse, error) {
	var commit commitResponse
	if err := c.do(ctx, http.MethodGet, c.repoURL()+"/git/commits/"+sha, nil, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

func (c *Client) createCommit(ctx context.Context, message, treeSHA string, parents []string) (*commitResponse, error) {
	body := map[string]any{"message": message, "tree": treeSHA, "parents": parents}
	var commit commitResponse
	if err := c.do(ctx, http.MethodPost, c.repoURL()+"/git/commits", body, &commit); err != nil {
		return nil, err
	}
	return &commit, nil
}

// getTree fetches a tree by sha or "ref:path" qualifier. Missing trees are
// surfaced as 404 APIErrors for the caller to interpret.
func (c *Client) getTree(ctx context.Context, treeRef string, recursive bool) (*treeResponse, error) {
	requestPath := c.repoURL() + "/git/trees/" + url.PathEscape(treeRef)
	if recursive {
		requestPath += "?recursive=1"
	}
	var tree treeResponse
	if err := c.do(ctx, http.MethodGet, requestPath, nil, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

func (c *Client) createTree(ctx context.Context, baseTreeSHA string, entries []treeWrite) (*treeResponse, error) {
	body := map[string]any{"base_tree": baseTreeSHA, "tree": entries}
	var tree treeResponse
	if err := c.do(ctx, http.MethodPost, c.repoURL()+"/git/trees", body, &tree); err != nil {
		return nil, err
	}
	return &tree, nil
}

// uploadBlob stores content and returns the blob sha.
func (c *Client) uploadBlob(ctx context.Context, content []byte) (string, error) {
	body := map[string]string{
		"content":  base64.StdEncoding.EncodeToString(content),
		"encoding": "base64",
	}
	var blob blobResponse
	if err := c.do(ctx, http.MethodPost, c.repoURL()+"/git/blobs", body, &blob); err != nil {
		return "", err
	}
	return blob.SHA, nil
}

// fetchBlob returns a blob's decoded content.
func (c *Client) fetchBlob(ctx context.Context, sha string) ([]byte, error) {
	var blob blobResponse
	if err := c.do(ctx, http.MethodGet, c.repoURL()+"/git/blobs/"+sha, nil, &blob); err != nil {
		return nil, err
	}
	if blob.Encoding != "base64" {
		return []byte(blob.Content), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode blob %s: %w", sha, err)
	}
	return decoded, nil
}

// fileInfo is one blob found by listFiles, with its path relative to the
// repository root.
type fileInfo struct {
	Path string
	SHA  string
	Size int64
}

// listFiles lists the blobs under dir, keeping only entries at most depth
// path segments below it. A missing directory yields an empty listing.
func (c *Client) listFiles(ctx context.Context, dir string, depth int) ([]fileInfo, error) {
	tree, err := c.getTree(ctx, c.branch+":"+strings.Trim(dir, "/"), depth > 1)
	if apperrors.IsAPIStatus(err, http.StatusNotFound) {
		return []fileInfo{}, nil
	}
	if err != nil {
		return nil, err
	}
	if tree.Truncated {
		c.logger.WarnContext(ctx, "tree listing truncated", "dir", dir)
	}

	files := make([]fileInfo, 0, len(tree.Tree))
	for _, item := range tree.Tree {
		if item.Type != blobType {
			continue
		}
		if strings.Count(item.Path, "/") >= depth {
			continue
		}
		files = append(files, fileInfo{
			Path: path.Join(dir, item.Path),
			SHA:  item.SHA,
			Size: item.Size,
		})
	}
	return files, nil
}

// readFile returns the decoded content of one path on the branch.
func (c *Client) readFile(ctx context.Context, filePath string) (*contentResponse, []byte, error) {
	requestPath := c.repoURL() + "/contents/" + escapePath(filePath) + "?ref=" + url.QueryEscape(c.branch)
	var content contentResponse
	if err := c.do(ctx, http.MethodGet, requestPath, nil, &content); err != nil {
		return nil, nil, err
	}

	if content.Encoding != "base64" {
		return &content, []byte(content.Content), nil
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", filePath, err)
	}
	return &content, decoded, nil
}

// lastCommit returns the most recent commit touching a path.
func (c *Client) lastCommit(ctx context.Context, filePath string) (*repoCommitResponse, error) {
	requestPath := fmt.Sprintf("%s/commits?path=%s&sha=%s&per_page=1",
		c.repoURL(), url.QueryEscape(filePath), url.QueryEscape(c.branch))
	var commits []repoCommitResponse
	if err := c.do(ctx, http.MethodGet, requestPath, nil, &commits); err != nil {
		return nil, err
	}
	if len(commits) == 0 {
		return nil, nil
	}
	return &commits[0], nil
}

func (c *Client) createPull(ctx context.Context, title, head, base string) error {
	body := map[string]string{
		"title": title,
		"head":  head,
		"base":  base,
		"body":  "Automated pull request for a content change awaiting review.",
	}
	err := c.do(ctx, http.MethodPost, c.repoURL()+"/pulls", body, nil)
	// A pull request surviving an earlier interrupted attempt is fine.
	if apperrors.IsAPIStatus(err, http.StatusUnprocessableEntity) {
		c.logger.DebugContext(ctx, "pull request already open", "head", head)
		return nil
	}
	return err
}

// escapePath escapes each path segment, keeping the separators.
func escapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
