package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"
)

const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36 sale-hunter/1.0"

// FetcherConfig controls politeness for retailer page fetches.
type FetcherConfig struct {
	UserAgent     string
	Timeout       time.Duration
	PerRequest    time.Duration
	Burst         int
	Retries       int
	RespectRobots bool
	Headers       map[string]string
}

// CollyFetcher downloads retailer listing pages with Colly. Each retailer
// host is paced by its own throttle, and throttled or failing hosts are
// retried with a growing delay.
type CollyFetcher struct {
	cfg   FetcherConfig
	retry retryPolicy

	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	throttles map[string]*hostThrottle
}

// FetchError describes a page or endpoint that could not be read. Status is
// 0 when no response arrived.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: status %d: %v", e.URL, e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func NewCollyFetcher(cfg FetcherConfig) *CollyFetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.PerRequest <= 0 {
		cfg.PerRequest = time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	return &CollyFetcher{
		cfg:       cfg,
		retry:     newRetryPolicy(cfg.Retries),
		limit:     rate.Every(cfg.PerRequest),
		burst:     cfg.Burst,
		throttles: make(map[string]*hostThrottle),
	}
}

// SetHostLimit overrides the default pace for one host, e.g. a search
// endpoint that tolerates far fewer requests than a retailer.
func (f *CollyFetcher) SetHostLimit(host string, per time.Duration, burst int) {
	if host == "" || per <= 0 || burst <= 0 {
		return
	}
	f.throttleFor(host).setRate(rate.Every(per), burst)
}

// FetchBytes returns the body and final status of rawURL.
func (f *CollyFetcher) FetchBytes(ctx context.Context, rawURL string) ([]byte, int, error) {
	u, err := targetURL(rawURL)
	if err != nil {
		return nil, 0, &FetchError{URL: rawURL, Err: err}
	}
	target := u.String()
	throttle := f.throttleFor(u.Hostname())

	var (
		body   []byte
		status int
	)
	for attempt := 0; attempt < f.retry.attempts; attempt++ {
		if err := throttle.wait(ctx); err != nil {
			return nil, 0, err
		}
		body, status, err = f.get(ctx, target)
		if err == nil {
			return body, status, nil
		}
		if ctx.Err() != nil {
			return nil, status, ctx.Err()
		}
		if !f.retry.retryable(status, err) {
			break
		}
		throttle.holdOff(f.retry.delay(attempt))
	}
	return nil, status, &FetchError{URL: target, Status: status, Err: err}
}

func (f *CollyFetcher) throttleFor(host string) *hostThrottle {
	key := siteKey(host)
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.throttles[key]
	if !ok {
		t = newHostThrottle(f.limit, f.burst)
		f.throttles[key] = t
	}
	return t
}

// get performs a single request on a fresh collector. Colly reports non-2xx
// responses through OnError, so status is captured from both callbacks.
func (f *CollyFetcher) get(ctx context.Context, target string) ([]byte, int, error) {
	c := colly.NewCollector(colly.UserAgent(f.cfg.UserAgent))
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.SetRequestTimeout(f.cfg.Timeout)

	var (
		body    []byte
		status  int
		failure error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		failure = err
	})

	header := make(http.Header, len(f.cfg.Headers))
	for k, v := range f.cfg.Headers {
		header.Set(k, v)
	}

	if err := c.Request(http.MethodGet, target, nil, nil, header); err != nil {
		if errors.Is(err, colly.ErrAbortedBeforeRequest) && ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		return nil, status, err
	}
	switch {
	case failure != nil:
		return nil, status, failure
	case status >= 400:
		return nil, status, fmt.Errorf("status %d", status)
	case status == 0:
		status = http.StatusOK
	}
	return body, status, nil
}
