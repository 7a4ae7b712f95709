package httpx

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxRetryDelay caps the exponential delay between attempts on one host.
const maxRetryDelay = 8 * time.Second

// retryPolicy decides whether a failed attempt is worth repeating and how
// long the host is left alone before the next one.
type retryPolicy struct {
	attempts int
	base     time.Duration
}

func newRetryPolicy(attempts int) retryPolicy {
	if attempts <= 0 {
		attempts = 1
	}
	return retryPolicy{attempts: attempts, base: 500 * time.Millisecond}
}

// retryable is true for throttling, server errors and transport failures
// that were not caused by the caller giving up.
func (p retryPolicy) retryable(status int, err error) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= 500 && status <= 599:
		return true
	case status == 0 && err != nil:
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return false
}

func (p retryPolicy) delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := p.base << attempt
	if d <= 0 || d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}

// hostThrottle paces requests to one retailer host. A failed attempt holds
// the host off for the retry delay on top of the regular rate.
type hostThrottle struct {
	mu       sync.Mutex
	limiter  *rate.Limiter
	resumeAt time.Time
}

func newHostThrottle(limit rate.Limit, burst int) *hostThrottle {
	return &hostThrottle{limiter: rate.NewLimiter(limit, burst)}
}

func (t *hostThrottle) setRate(limit rate.Limit, burst int) {
	t.mu.Lock()
	t.limiter = rate.NewLimiter(limit, burst)
	t.mu.Unlock()
}

func (t *hostThrottle) holdOff(d time.Duration) {
	t.mu.Lock()
	if until := time.Now().Add(d); until.After(t.resumeAt) {
		t.resumeAt = until
	}
	t.mu.Unlock()
}

func (t *hostThrottle) wait(ctx context.Context) error {
	t.mu.Lock()
	until, limiter := t.resumeAt, t.limiter
	t.mu.Unlock()

	if d := time.Until(until); d > 0 {
		if err := pause(ctx, d); err != nil {
			return err
		}
	}
	return limiter.Wait(ctx)
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// targetURL parses a retailer link, defaulting to https for scheme-less
// and protocol-relative links.
func targetURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	return u, nil
}

// siteKey groups www and bare hosts of the same retailer under one throttle.
func siteKey(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "default"
	}
	return host
}
