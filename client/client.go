// Package client is a Go client for the emailguard HTTP API.
//
//	c, err := client.New("https://emailguard.example.com", client.WithAPIKey(key))
//	res, err := c.Validate(ctx, "jane@example.com")
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/optimode/emailguard"
)

// MaxBulkEmails is the server's per-request limit.
const MaxBulkEmails = 1000

const defaultUserAgent = "emailguard-go-client/1.0"

// Client is safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	apiKey     string
	userAgent  string
	http       *http.Client
	maxRetries int
	retryDelay time.Duration
	sleep      func(ctx context.Context, d time.Duration) error
}

// Option configures a Client.
type Option func(*Client)

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetries sets the number of retries after the first attempt and the
// initial backoff, doubled on each retry. Default: 3 retries, 1s
func WithRetries(n int, initial time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = max(n, 0)
		if initial > 0 {
			c.retryDelay = initial
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the API rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("client: invalid base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("client: invalid base URL %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    u,
		userAgent:  defaultUserAgent,
		http:       &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		retryDelay: time.Second,
		sleep:      sleepCtx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ValidateOptions are per-request options.
type ValidateOptions struct {
	// SMTPCheck asks the server to probe the mailbox.
	SMTPCheck bool
	// AuthCheck asks for the domain's SPF, DMARC and DKIM records.
	AuthCheck bool
	// ReputationCheck asks for the domain reputation summary.
	ReputationCheck bool
}

// apply sets the requested check flags on a request body.
func (o ValidateOptions) apply(body map[string]any) {
	if o.SMTPCheck {
		body["smtpCheck"] = true
	}
	if o.AuthCheck {
		body["authCheck"] = true
	}
	if o.ReputationCheck {
		body["reputationCheck"] = true
	}
}

// BulkMetadata mirrors the server's bulk metadata block.
type BulkMetadata struct {
	Total             int   `json:"total"`
	Completed         int   `json:"completed"`
	DuplicatesRemoved int   `json:"duplicatesRemoved"`
	InvalidRemoved    int   `json:"invalidRemoved"`
	TimedOut          bool  `json:"timedOut"`
	ProcessingTimeMs  int64 `json:"processingTimeMs"`
}

// BulkResponse is the outcome of ValidateBulk. Large requests are turned
// into a background job by the server: JobID is then set and Results is
// empty; poll with Job.
type BulkResponse struct {
	Results  []emailguard.Result `json:"results"`
	Summary  emailguard.Summary  `json:"summary"`
	Metadata BulkMetadata        `json:"metadata"`

	JobID     string `json:"jobId,omitempty"`
	StatusURL string `json:"statusUrl,omitempty"`
}

// Job is a background bulk job as reported by the server.
type Job struct {
	ID               string              `json:"id"`
	Status           string              `json:"status"`
	Progress         int                 `json:"progress"`
	Total            int                 `json:"total"`
	Results          []emailguard.Result `json:"results"`
	Errors           []string            `json:"errors"`
	Summary          emailguard.Summary  `json:"summary"`
	CreatedAt        time.Time           `json:"createdAt"`
	StartedAt        time.Time           `json:"startedAt"`
	CompletedAt      time.Time           `json:"completedAt"`
	ProcessingTimeMs int64               `json:"processingTimeMs"`
}

// Done reports whether the job reached a terminal state.
func (j Job) Done() bool {
	return j.Status == "completed" || j.Status == "failed" || j.Status == "cancelled"
}

// Health is the server's liveness report.
type Health struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Uptime    float64   `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
	Endpoints []string  `json:"endpoints"`
}

// Validate validates one address.
func (c *Client) Validate(ctx context.Context, email string, opts ...ValidateOptions) (emailguard.Result, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return emailguard.Result{}, inputError("email is required")
	}
	if !looksLikeEmail(email) {
		return emailguard.Result{}, inputError("invalid email format")
	}

	body := map[string]any{"email": email}
	if len(opts) > 0 {
		opts[0].apply(body)
	}

	var res emailguard.Result
	err := c.do(ctx, http.MethodPost, "/api/validate", body, &res)
	return res, err
}

// ValidateBulk validates up to MaxBulkEmails addresses.
func (c *Client) ValidateBulk(ctx context.Context, emails []string, opts ...ValidateOptions) (BulkResponse, error) {
	switch {
	case len(emails) == 0:
		return BulkResponse{}, inputError("emails list cannot be empty")
	case len(emails) > MaxBulkEmails:
		return BulkResponse{}, inputError(fmt.Sprintf("maximum %d emails per request", MaxBulkEmails))
	}

	body := map[string]any{"emails": emails}
	if len(opts) > 0 {
		opts[0].apply(body)
	}

	var res BulkResponse
	err := c.do(ctx, http.MethodPost, "/api/validate-bulk", body, &res)
	return res, err
}

// Job fetches a background job with its results.
func (c *Client) Job(ctx context.Context, id string) (Job, error) {
	var j Job
	err := c.do(ctx, http.MethodGet, "/api/validate-bulk/jobs/"+url.PathEscape(id), nil, &j)
	return j, err
}

// CancelJob cancels a running job or deletes a finished one.
func (c *Client) CancelJob(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/validate-bulk/jobs/"+url.PathEscape(id), nil, nil)
}

// Health checks the server.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var h Health
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &h)
	return h, err
}

// do sends the request, retrying network errors, 408, 429 and 5xx with
// exponential backoff. A Retry-After hint extends the wait.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		retryAfter, err := c.attempt(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
		if !retryable(err) || attempt >= c.maxRetries {
			return lastErr
		}

		delay := max(backoff(attempt, c.retryDelay), retryAfter)
		if err := c.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, path string, payload []byte, out any) (time.Duration, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, body)
	if err != nil {
		return 0, fmt.Errorf("client: build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, &networkError{err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return 0, &networkError{err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out == nil || len(raw) == 0 {
			return 0, nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, fmt.Errorf("client: decode response: %w", err)
		}
		return 0, nil
	}

	apiErr := parseAPIError(resp.StatusCode, raw)
	if resp.StatusCode == http.StatusTooManyRequests {
		secs, _ := strconv.Atoi(resp.Header.Get("Retry-After"))
		rl := &RateLimitError{APIError: *apiErr, RetryAfter: time.Duration(secs) * time.Second}
		return rl.RetryAfter, rl
	}
	return 0, apiErr
}

func retryable(err error) bool {
	var ne *networkError
	if errors.As(err, &ne) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		s := apiErr.StatusCode
		return s == http.StatusRequestTimeout || s == http.StatusTooManyRequests || s >= 500
	}
	return false
}

// backoff is initial * 2^attempt plus up to 10% jitter.
func backoff(attempt int, initial time.Duration) time.Duration {
	d := initial << attempt
	if jitter := int64(d / 10); jitter > 0 {
		d += time.Duration(rand.Int64N(jitter))
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// looksLikeEmail is a cheap pre-flight check; the server does the real
// syntax validation.
func looksLikeEmail(s string) bool {
	local, domain, ok := strings.Cut(s, "@")
	return ok && local != "" && strings.Contains(domain, ".") &&
		!strings.ContainsAny(s, " \t\r\n") && !strings.Contains(domain, "@") &&
		!strings.HasPrefix(domain, ".") && !strings.HasSuffix(domain, ".")
}
