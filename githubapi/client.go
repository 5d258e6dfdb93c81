package githubapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	defaultBaseURL = "https://api.github.com"

	// requestTimeout is the per-call HTTP timeout.
	requestTimeout = 30 * time.Second

	// maxRetries is the number of times a transient failure is retried.
	maxRetries = 3

	// backoffBase is the initial delay before the first retry; it doubles
	// on each subsequent retry.
	backoffBase = 2 * time.Second

	// rateLimitFallback is the wait applied when a rate-limited response
	// carries no usable reset header.
	rateLimitFallback = 60 * time.Second

	// maxConcurrentFetches bounds parallel file-content requests.
	maxConcurrentFetches = 10
)

// Client provides access to the GitHub REST API with uniform retry,
// exponential backoff, and rate-limit handling on every call.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *slog.Logger

	// sleep is replaceable in tests to assert the backoff schedule.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewClient creates a client authenticated with a bearer token.
func NewClient(token string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
		logger:     logger,
		sleep:      sleepContext,
		now:        time.Now,
	}
}

// NewAppClient creates a client authenticated as a GitHub App installation.
// The privateKey is the PEM-encoded private key of the app.
func NewAppClient(appID, installationID int64, privateKey []byte, logger *slog.Logger) (*Client, error) {
	transport, err := ghinstallation.New(http.DefaultTransport, appID, installationID, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create installation transport: %w", err)
	}
	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: requestTimeout},
		baseURL:    defaultBaseURL,
		logger:     logger,
		sleep:      sleepContext,
		now:        time.Now,
	}, nil
}

// SetBaseURL overrides the API base URL, e.g. for GitHub Enterprise or tests.
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// request performs an API call with the retry/backoff/rate-limit policy.
// All public operations go through here so the policy exists in one place.
func (c *Client) request(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	delay := backoffBase
	retries := 0
	for {
		data, err := c.doOnce(ctx, method, path, payload)
		if err == nil {
			return data, nil
		}

		var rle *RateLimitError
		if errors.As(err, &rle) {
			// Rate-limit waits honor the server-specified reset time and
			// do not consume a retry.
			c.logger.Warn("rate limited, waiting",
				"method", method,
				"path", path,
				"wait", rle.RetryAfter,
			)
			if serr := c.sleep(ctx, rle.RetryAfter); serr != nil {
				return nil, serr
			}
			continue
		}

		var pe *PermissionError
		var nfe *NotFoundError
		if errors.As(err, &pe) || errors.As(err, &nfe) {
			return nil, err
		}

		if retries >= maxRetries {
			return nil, fmt.Errorf("giving up after %d retries: %w", maxRetries, err)
		}

		c.logger.Warn("retrying after transient error",
			"method", method,
			"path", path,
			"attempt", retries+1,
			"max_attempts", maxRetries,
			"delay", delay,
			"error", err,
		)
		if serr := c.sleep(ctx, delay); serr != nil {
			return nil, serr
		}
		delay *= 2
		retries++
	}
}

// doOnce performs a single HTTP exchange and classifies the outcome.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (json.RawMessage, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{Method: method, Path: path}
	case resp.StatusCode == http.StatusForbidden:
		if isRateLimited(resp, respBody) {
			return nil, &RateLimitError{RetryAfter: c.rateLimitWait(resp)}
		}
		return nil, &PermissionError{Path: path}
	case resp.StatusCode >= 400:
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     method,
			Path:       path,
			Body:       truncate(string(respBody), 200),
		}
	}

	return json.RawMessage(respBody), nil
}

// isRateLimited reports whether a 403 response is due to rate limiting
// rather than missing scopes.
func isRateLimited(resp *http.Response, body []byte) bool {
	if resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return true
	}
	return strings.Contains(strings.ToLower(string(body)), "rate limit")
}

// rateLimitWait derives the wait duration from the X-RateLimit-Reset
// header, falling back to a fixed interval when the header is unusable.
func (c *Client) rateLimitWait(resp *http.Response) time.Duration {
	reset := resp.Header.Get("X-RateLimit-Reset")
	if reset == "" {
		return rateLimitFallback
	}
	epoch, err := strconv.ParseInt(reset, 10, 64)
	if err != nil {
		return rateLimitFallback
	}
	wait := time.Unix(epoch, 0).Sub(c.now())
	if wait <= 0 {
		return time.Second
	}
	return wait
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// GetPullRequest fetches a pull request by number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pull request: %w", err)
	}

	var pr PullRequest
	if err := json.Unmarshal(data, &pr); err != nil {
		return nil, fmt.Errorf("failed to decode pull request: %w", err)
	}
	return &pr, nil
}

// ListPullRequestFiles fetches one page of the changed-files list.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number, page, perPage int) ([]PullRequestFile, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))

	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/files?%s", owner, repo, number, params.Encode())
	data, err := c.request(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch changed files: %w", err)
	}

	var files []PullRequestFile
	if err := json.Unmarshal(data, &files); err != nil {
		return nil, fmt.Errorf("failed to decode changed files: %w", err)
	}
	return files, nil
}

// GetFileContent fetches the content of a file at a given revision.
func (c *Client) GetFileContent(ctx context.Context, owner, repo, path, ref string) (string, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, repo, path, url.QueryEscape(ref))
	data, err := c.request(ctx, http.MethodGet, apiPath, nil)
	if err != nil {
		return "", err
	}

	var content FileContent
	if err := json.Unmarshal(data, &content); err != nil {
		return "", fmt.Errorf("failed to decode file content: %w", err)
	}

	if content.Encoding != "base64" {
		return "", fmt.Errorf("unsupported encoding: %s", content.Encoding)
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(content.Content, "\n", ""))
	if err != nil {
		return "", fmt.Errorf("failed to decode base64 content: %w", err)
	}
	return string(decoded), nil
}

// CreateIssueComment posts a comment on a PR via the issues API.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (*IssueComment, error) {
	path := fmt.Sprintf("/repos/%s/%s/issues/%d/comments", owner, repo, number)
	data, err := c.request(ctx, http.MethodPost, path, IssueCommentRequest{Body: body})
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	var comment IssueComment
	if err := json.Unmarshal(data, &comment); err != nil {
		return nil, fmt.Errorf("failed to decode comment response: %w", err)
	}
	return &comment, nil
}

// FetchContents fetches multiple files at a revision in parallel.
// Returns a map of path -> content. Files that cannot be fetched are
// logged and left out of the map.
func (c *Client) FetchContents(ctx context.Context, owner, repo, ref string, paths []string) (map[string]string, error) {
	result := make(map[string]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(maxConcurrentFetches)

	for _, path := range paths {
		path := path
		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer sem.Release(1)

			content, err := c.GetFileContent(gctx, owner, repo, path, ref)
			if err != nil {
				c.logger.Warn("skipping unfetchable file", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			result[path] = content
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}
