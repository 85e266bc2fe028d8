// Package judgeclient talks to a Judge0-compatible batch submission API.
package judgeclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	DefaultBaseURL      = "https://judge0-ce.p.rapidapi.com"
	DefaultAPIHost      = "judge0-ce.p.rapidapi.com"
	DefaultPollAttempts = 10
	DefaultPollInterval = 2 * time.Second
	defaultTimeout      = 30 * time.Second
	maxErrorBody        = 4096
)

// Config holds the remote judge endpoint and credentials.
type Config struct {
	BaseURL string
	APIKey  string
	APIHost string
	// Headers are sent verbatim on every request, after the API key headers.
	Headers map[string]string
	Timeout time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithSleeper replaces the wait between poll attempts.
func WithSleeper(s Sleeper) Option {
	return func(c *Client) {
		if s != nil {
			c.sleep = s
		}
	}
}

// Client submits batches and polls their results.
type Client struct {
	baseURL string
	headers map[string]string
	http    *http.Client
	sleep   Sleeper
}

// New creates a client with defaults applied.
func New(cfg Config, opts ...Option) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	headers := make(map[string]string, len(cfg.Headers)+2)
	if cfg.APIKey != "" {
		headers["X-RapidAPI-Key"] = cfg.APIKey
		host := cfg.APIHost
		if host == "" {
			host = DefaultAPIHost
		}
		headers["X-RapidAPI-Host"] = host
	}
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	c := &Client{
		baseURL: baseURL,
		headers: headers,
		http:    &http.Client{Timeout: timeout},
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type batchRequest struct {
	Submissions []model.SubmissionPayload `json:"submissions"`
}

type tokenItem struct {
	Token string `json:"token"`
}

type batchStatusResponse struct {
	Submissions []model.ResolvedSubmission `json:"submissions"`
}

// SubmitBatch posts all submissions in one request and returns their tokens in order.
func (c *Client) SubmitBatch(ctx context.Context, submissions []model.SubmissionPayload) ([]string, error) {
	body, err := json.Marshal(batchRequest{Submissions: submissions})
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "encode batch failed")
	}

	data, err := c.do(ctx, http.MethodPost, "/submissions/batch?base64_encoded=true", body)
	if err != nil {
		return nil, err
	}

	var items []tokenItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "decode submit response failed")
	}
	if len(items) != len(submissions) {
		return nil, appErr.Newf(appErr.JudgeSystemError, "judge returned %d tokens for %d submissions", len(items), len(submissions)).
			WithDetail("tokens", len(items)).
			WithDetail("submissions", len(submissions))
	}

	tokens := make([]string, len(items))
	var rejected []int
	for i, item := range items {
		if item.Token == "" {
			rejected = append(rejected, i)
			continue
		}
		tokens[i] = item.Token
	}
	if len(rejected) > 0 {
		return nil, appErr.New(appErr.JudgeBatchRejected).
			WithDetail("rejected", rejected).
			WithDetail("body", truncate(string(data)))
	}
	return tokens, nil
}

// FetchBatch reads the current state of the given tokens, ordered like tokens.
func (c *Client) FetchBatch(ctx context.Context, tokens []string) ([]model.ResolvedSubmission, error) {
	query := url.Values{}
	query.Set("tokens", strings.Join(tokens, ","))
	query.Set("base64_encoded", "true")
	query.Set("fields", "*")

	data, err := c.do(ctx, http.MethodGet, "/submissions/batch?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var resp batchStatusResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "decode status response failed")
	}
	return orderByToken(tokens, resp.Submissions)
}

// PollUntilResolved fetches the batch until no submission is pending, waiting
// interval between attempts. It fails with a poll timeout after maxAttempts.
func (c *Client) PollUntilResolved(ctx context.Context, tokens []string, maxAttempts int, interval time.Duration) ([]model.ResolvedSubmission, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollAttempts
	}
	if interval < 0 {
		interval = 0
	}

	pending := len(tokens)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		results, err := c.FetchBatch(ctx, tokens)
		if err != nil {
			return nil, err
		}
		pending = countPending(results)
		logger.Debug(ctx, "judge poll attempt",
			zap.Int("attempt", attempt),
			zap.Int("pending", pending),
			zap.Int("total", len(results)),
		)
		if pending == 0 {
			return results, nil
		}
		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, interval); err != nil {
			return nil, appErr.Wrapf(err, appErr.Timeout, "polling canceled")
		}
	}
	return nil, appErr.PollTimeout(maxAttempts, pending)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.InternalServerError, "build request failed")
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		if v != "" {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeTransportError, "judge request failed: %v", err).
			WithDetail("status_code", 0)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.JudgeTransportError, "read response body failed").
			WithDetail("status_code", resp.StatusCode)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, appErr.Transport(resp.StatusCode, truncate(string(data)))
	}
	return data, nil
}

// orderByToken aligns results with tokens. Results without tokens are taken positionally.
func orderByToken(tokens []string, results []model.ResolvedSubmission) ([]model.ResolvedSubmission, error) {
	if len(results) != len(tokens) {
		return nil, appErr.Newf(appErr.JudgeSystemError, "judge returned %d results for %d tokens", len(results), len(tokens)).
			WithDetail("results", len(results)).
			WithDetail("tokens", len(tokens))
	}
	byToken := make(map[string]model.ResolvedSubmission, len(results))
	for _, r := range results {
		if r.Token == "" {
			return results, nil
		}
		byToken[r.Token] = r
	}
	ordered := make([]model.ResolvedSubmission, len(tokens))
	for i, token := range tokens {
		r, ok := byToken[token]
		if !ok {
			return nil, appErr.Newf(appErr.JudgeSystemError, "judge result missing for token %s", token).
				WithDetail("token", token)
		}
		ordered[i] = r
	}
	return ordered, nil
}

func countPending(results []model.ResolvedSubmission) int {
	n := 0
	for _, r := range results {
		if model.IsPending(r.Status.ID) {
			n++
		}
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// truncate caps s at maxErrorBody bytes without splitting a UTF-8 sequence.
func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	cut := maxErrorBody
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return fmt.Sprintf("%s...(%d bytes)", s[:cut], len(s))
}
