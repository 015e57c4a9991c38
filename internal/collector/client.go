package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/github-repo-inventory/internal/errlog"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
)

// DefaultBaseURL is the public GitHub REST endpoint
const DefaultBaseURL = "https://api.github.com"

// MaxBackoff caps a single retry delay
const MaxBackoff = time.Hour

// BackoffPolicy returns the delay before retry number attempt (1-based)
type BackoffPolicy func(base time.Duration, attempt int) time.Duration

// LinearBackoff waits base, 2*base, 3*base, ... up to MaxBackoff
func LinearBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	if time.Duration(attempt) > MaxBackoff/base {
		return MaxBackoff
	}
	return base * time.Duration(attempt)
}

// ExponentialBackoff waits base, 2*base, 4*base, ... up to MaxBackoff
func ExponentialBackoff(base time.Duration, attempt int) time.Duration {
	if base <= 0 || attempt < 1 {
		return 0
	}
	d := base
	for i := 1; i < attempt; i++ {
		if d > MaxBackoff/2 {
			return MaxBackoff
		}
		d *= 2
	}
	return min(d, MaxBackoff)
}

// BackoffByName maps the configuration names to policies.
func BackoffByName(name string) (BackoffPolicy, error) {
	switch name {
	case "", "linear":
		return LinearBackoff, nil
	case "exponential":
		return ExponentialBackoff, nil
	default:
		return nil, fmt.Errorf("unknown backoff policy %q", name)
	}
}

// ClientConfig holds the settings of a Client
type ClientConfig struct {
	Token        string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	Backoff      BackoffPolicy
	RequestDelay time.Duration
	Timeout      time.Duration
}

// Client issues GET requests against the GitHub REST API. Connection failures
// are retried with backoff up to MaxRetries; rate-limited responses are waited
// out and retried without touching the retry budget; any other non-success
// status is logged and returned as an upstream error.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	retryDelay time.Duration
	backoff    BackoffPolicy
	limiter    RateLimiter
	errLog     *errlog.Log
	logger     *log.Logger
	sleep      sleepFunc
}

// NewClient creates a GitHub API client authenticated with a bearer token.
func NewClient(cfg ClientConfig, errLog *errlog.Log, logger *log.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("github client: token is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Backoff == nil {
		cfg.Backoff = LinearBackoff
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = log.Default()
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	httpClient := &http.Client{
		Timeout: cfg.Timeout,
		Transport: &oauth2.Transport{
			Base:   http.DefaultTransport,
			Source: ts,
		},
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		backoff:    cfg.Backoff,
		limiter:    NewRateLimiter(cfg.RequestDelay),
		errLog:     errLog,
		logger:     logger,
		sleep:      sleepContext,
	}, nil
}

// Get requests path with params and returns the body of a successful response.
func (c *Client) Get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	attempt := 0
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		status, headers, body, err := c.fetch(ctx, endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			attempt++
			c.errLog.Record("Connection error on %s: %v. Retry %d/%d", endpoint, err, attempt, c.maxRetries)
			if attempt >= c.maxRetries {
				c.errLog.Record("Max retries exceeded for %s", endpoint)
				return nil, apperrors.NewTransportError(endpoint, attempt, err)
			}
			delay := c.backoff(c.retryDelay, attempt)
			c.logger.Warn("Connection error, retrying", "url", endpoint, "attempt", attempt, "delay", delay)
			if err := c.sleep(ctx, delay); err != nil {
				return nil, err
			}
			continue
		}

		c.limiter.Update(headers)

		if isRateLimited(status, headers, body) {
			wait := c.limiter.Block(headers)
			c.logger.Warn("Rate limit hit, sleeping until reset", "url", endpoint, "wait", wait)
			continue
		}

		if status < 200 || status >= 300 {
			c.errLog.Record("Failed GET %s: %d %s", endpoint, status, string(body))
			c.logger.Debug("Request failed", "url", endpoint, "status", status)
			return nil, apperrors.NewUpstreamError(endpoint, status)
		}

		return body, nil
	}
}

// GetJSON is Get followed by decoding the body into v.
func (c *Client) GetJSON(ctx context.Context, path string, params url.Values, v any) error {
	body, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		endpoint := c.baseURL + path
		c.errLog.Record("Unexpected response from %s: %v", endpoint, err)
		return apperrors.NewDecodeError(endpoint, err)
	}
	return nil
}

// fetch performs one round trip. A non-nil error means the connection failed
// or the body was cut short.
func (c *Client) fetch(ctx context.Context, endpoint string) (int, http.Header, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "github-repo-inventory")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, resp.Header, body, nil
}

// isRateLimited recognises GitHub's primary and secondary limit responses
func isRateLimited(status int, headers http.Header, body []byte) bool {
	switch status {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		if headers.Get("X-RateLimit-Remaining") == "0" {
			return true
		}
		return strings.Contains(strings.ToLower(string(body)), "rate limit")
	}
	return false
}
