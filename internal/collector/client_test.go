package collector

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurihiro0119/github-repo-inventory/internal/errlog"
	apperrors "github.com/kurihiro0119/github-repo-inventory/internal/errors"
)

// fakeClock advances only when something sleeps on it
type fakeClock struct {
	mu     sync.Mutex
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) sleep(_ context.Context, d time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

func (c *fakeClock) recorded() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

func newTestClient(t *testing.T, baseURL string, maxRetries int, backoff BackoffPolicy, clock *fakeClock) (*Client, string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "logs", "error_log.txt")
	c, err := NewClient(ClientConfig{
		Token:      "test-token",
		BaseURL:    baseURL,
		MaxRetries: maxRetries,
		RetryDelay: time.Second,
		Backoff:    backoff,
	}, errlog.New(logPath), log.New(io.Discard))
	require.NoError(t, err)

	c.limiter = newRateLimiter(0, clock.now, clock.sleep)
	c.sleep = clock.sleep
	return c, logPath
}

func readLogLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewClient_RequiresToken(t *testing.T) {
	_, err := NewClient(ClientConfig{}, nil, nil)
	assert.Error(t, err)
}

func TestClient_Get_SendsAuthAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
		assert.Equal(t, "/orgs/acme/repos", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("type"))
		w.Write([]byte(`[{"name":"app"}]`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 3, LinearBackoff, newFakeClock())

	var repos []map[string]any
	err := c.GetJSON(context.Background(), "/orgs/acme/repos", url.Values{"type": {"all"}}, &repos)
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "app", repos[0]["name"])
}

func TestClient_Get_RateLimitWaitsUntilReset(t *testing.T) {
	clock := newFakeClock()
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			reset := clock.now().Add(30 * time.Second).Unix()
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"message":"API rate limit exceeded"}`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	// A single retry would be exhausted by the first failure if rate limits counted
	c, logPath := newTestClient(t, srv.URL, 1, LinearBackoff, clock)

	body, err := c.Get(context.Background(), "/orgs/acme/repos", nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(body))
	assert.Equal(t, int32(4), calls.Load())

	sleeps := clock.recorded()
	require.Len(t, sleeps, 3)
	for _, d := range sleeps {
		assert.GreaterOrEqual(t, d, 30*time.Second)
	}
	assert.Empty(t, readLogLines(t, logPath))
}

func TestClient_Get_RateLimitVariants(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		headers  map[string]string
		body     string
		wantWait time.Duration
	}{
		{
			name:     "429 without reset header",
			status:   http.StatusTooManyRequests,
			wantWait: 60 * time.Second,
		},
		{
			name:     "403 secondary limit message",
			status:   http.StatusForbidden,
			headers:  map[string]string{"X-RateLimit-Remaining": "4000"},
			body:     `{"message":"You have exceeded a secondary rate limit"}`,
			wantWait: 60 * time.Second,
		},
		{
			name:     "secondary limit with Retry-After",
			status:   http.StatusForbidden,
			headers:  map[string]string{"Retry-After": "7", "X-RateLimit-Remaining": "4000"},
			body:     `{"message":"You have exceeded a secondary rate limit"}`,
			wantWait: 7 * time.Second,
		},
		{
			name:     "429 with Retry-After",
			status:   http.StatusTooManyRequests,
			headers:  map[string]string{"Retry-After": "15"},
			wantWait: 15 * time.Second,
		},
		{
			name:     "reset already passed",
			status:   http.StatusForbidden,
			headers:  map[string]string{"X-RateLimit-Remaining": "0", "X-RateLimit-Reset": "1"},
			wantWait: time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					for k, v := range tt.headers {
						w.Header().Set(k, v)
					}
					w.WriteHeader(tt.status)
					w.Write([]byte(tt.body))
					return
				}
				w.Write([]byte(`{}`))
			}))
			defer srv.Close()

			c, _ := newTestClient(t, srv.URL, 1, LinearBackoff, clock)
			_, err := c.Get(context.Background(), "/rate", nil)
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.wantWait}, clock.recorded())
		})
	}
}

func TestClient_Get_ConnectionFailureExhaustsRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	clock := newFakeClock()
	c, logPath := newTestClient(t, baseURL, 3, LinearBackoff, clock)

	_, err := c.Get(context.Background(), "/orgs/acme/repos", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsTransport(err))

	lines := readLogLines(t, logPath)
	require.Len(t, lines, 4)
	for i, line := range lines[:3] {
		assert.Contains(t, line, "Connection error on "+baseURL+"/orgs/acme/repos")
		assert.Contains(t, line, "Retry "+strconv.Itoa(i+1)+"/3")
	}
	assert.Contains(t, lines[3], "Max retries exceeded for "+baseURL+"/orgs/acme/repos")

	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.recorded())
}

func TestClient_Get_ExponentialBackoff(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	baseURL := srv.URL
	srv.Close()

	clock := newFakeClock()
	c, _ := newTestClient(t, baseURL, 4, ExponentialBackoff, clock)

	_, err := c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, clock.recorded())
}

func TestClient_Get_UpstreamErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Not Found"}`))
	}))
	defer srv.Close()

	c, logPath := newTestClient(t, srv.URL, 5, LinearBackoff, newFakeClock())

	_, err := c.Get(context.Background(), "/repos/acme/missing/commits", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsUpstream(err))
	assert.Equal(t, http.StatusNotFound, apperrors.StatusOf(err))
	assert.Equal(t, int32(1), calls.Load())

	lines := readLogLines(t, logPath)
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Failed GET "+srv.URL+"/repos/acme/missing/commits: 404")
	assert.Contains(t, lines[0], "Not Found")
}

func TestClient_GetJSON_DecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL, 1, LinearBackoff, newFakeClock())

	var v []any
	err := c.GetJSON(context.Background(), "/x", nil, &v)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperrors.ErrCodeDecode, appErr.Code)
}

func TestClient_Get_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c, logPath := newTestClient(t, srv.URL, 3, LinearBackoff, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Get(ctx, "/x", nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, readLogLines(t, logPath))
}

func TestBackoffByName(t *testing.T) {
	linear, err := BackoffByName("linear")
	require.NoError(t, err)
	assert.Equal(t, 3*time.Second, linear(time.Second, 3))

	exponential, err := BackoffByName("exponential")
	require.NoError(t, err)
	assert.Equal(t, 8*time.Second, exponential(time.Second, 4))

	_, err = BackoffByName("fibonacci")
	assert.Error(t, err)
}

func TestBackoff_Capped(t *testing.T) {
	tests := []struct {
		name    string
		policy  BackoffPolicy
		attempt int
		want    time.Duration
	}{
		{name: "exponential below cap", policy: ExponentialBackoff, attempt: 5, want: 80 * time.Second},
		{name: "exponential past shift width", policy: ExponentialBackoff, attempt: 32, want: MaxBackoff},
		{name: "exponential huge attempt", policy: ExponentialBackoff, attempt: 64, want: MaxBackoff},
		{name: "linear below cap", policy: LinearBackoff, attempt: 3, want: 15 * time.Second},
		{name: "linear past cap", policy: LinearBackoff, attempt: 1000, want: MaxBackoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.policy(5*time.Second, tt.attempt)
			assert.Equal(t, tt.want, got)
			assert.Positive(t, got)
		})
	}
}
