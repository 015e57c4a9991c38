package collector

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"
)

const (
	// minRateLimitWait is the floor applied to a computed reset wait
	minRateLimitWait = time.Second
	// defaultRateLimitWait applies when a limited response carries no reset header
	defaultRateLimitWait = 60 * time.Second
)

// RateLimiter manages GitHub API rate limiting
type RateLimiter interface {
	// Wait blocks until it's safe to make another API call
	Wait(ctx context.Context) error
	// Update records the quota headers of a response
	Update(headers http.Header)
	// Block marks the quota as exhausted after a rate-limited response and
	// returns how long the next Wait will sleep.
	Block(headers http.Header) time.Duration
	// CheckLimit returns the last known quota; remaining is -1 when unknown
	CheckLimit() (remaining int, resetTime time.Time)
}

// sleepFunc pauses for d or until ctx is done
type sleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// githubRateLimiter implements RateLimiter for GitHub API
type githubRateLimiter struct {
	mu        sync.Mutex
	remaining int
	resetTime time.Time
	minDelay  time.Duration
	lastCall  time.Time
	now       func() time.Time
	sleep     sleepFunc
}

// NewRateLimiter creates a rate limiter that spaces requests at least minDelay apart
func NewRateLimiter(minDelay time.Duration) RateLimiter {
	return newRateLimiter(minDelay, time.Now, sleepContext)
}

func newRateLimiter(minDelay time.Duration, now func() time.Time, sleep sleepFunc) *githubRateLimiter {
	return &githubRateLimiter{
		remaining: -1,
		minDelay:  minDelay,
		now:       now,
		sleep:     sleep,
	}
}

// Wait waits until it's safe to make another API call
func (r *githubRateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.remaining == 0 {
		if wait := r.resetTime.Sub(r.now()); wait > 0 {
			if err := r.sleep(ctx, wait); err != nil {
				return err
			}
		}
		// Quota is unknown again until the next response reports it
		r.remaining = -1
	}

	if r.minDelay > 0 && !r.lastCall.IsZero() {
		if elapsed := r.now().Sub(r.lastCall); elapsed < r.minDelay {
			if err := r.sleep(ctx, r.minDelay-elapsed); err != nil {
				return err
			}
		}
	}

	r.lastCall = r.now()
	return nil
}

// Update updates the rate limit from API response headers
func (r *githubRateLimiter) Update(headers http.Header) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v := headers.Get("X-RateLimit-Remaining"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			r.remaining = n
		}
	}
	if reset, ok := parseReset(headers); ok {
		r.resetTime = reset
	}
}

// Block computes the wait from Retry-After, else max(reset - now, 1s), and
// arms the next Wait
func (r *githubRateLimiter) Block(headers http.Header) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	wait := defaultRateLimitWait
	if retryAfter, ok := parseRetryAfter(headers); ok {
		wait = retryAfter
	} else if reset, ok := parseReset(headers); ok {
		wait = reset.Sub(now)
	}
	if wait < minRateLimitWait {
		wait = minRateLimitWait
	}
	r.remaining = 0
	r.resetTime = now.Add(wait)
	return wait
}

// CheckLimit returns the current rate limit status
func (r *githubRateLimiter) CheckLimit() (int, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remaining, r.resetTime
}

// parseReset reads the epoch-seconds X-RateLimit-Reset header
func parseReset(headers http.Header) (time.Time, bool) {
	v := headers.Get("X-RateLimit-Reset")
	if v == "" {
		return time.Time{}, false
	}
	epoch, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(epoch, 0), true
}

// parseRetryAfter reads the delay-seconds Retry-After header sent with
// secondary rate limits
func parseRetryAfter(headers http.Header) (time.Duration, bool) {
	v := headers.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	seconds, err := strconv.Atoi(v)
	if err != nil || seconds < 0 {
		return 0, false
	}
	return time.Duration(seconds) * time.Second, true
}
