package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// maxJSONBody caps catalog responses; Daraz pages are well under this.
const maxJSONBody = 8 << 20

// PoliteClient enforces per-host rate limits, robots.txt rules and polite
// retries for JSON endpoints.
type PoliteClient struct {
	client      *http.Client
	ua          string
	per         time.Duration
	burst       int
	limiters    map[string]*rate.Limiter
	robotsCache map[string]*robotstxt.RobotsData
	mu          sync.Mutex
}

func NewPoliteClient(cfg FetcherConfig) *PoliteClient {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.PerRequest <= 0 {
		cfg.PerRequest = time.Second
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 2
	}
	return &PoliteClient{
		client:      &http.Client{Timeout: cfg.Timeout},
		ua:          cfg.UserAgent,
		per:         cfg.PerRequest,
		burst:       cfg.Burst,
		limiters:    map[string]*rate.Limiter{},
		robotsCache: map[string]*robotstxt.RobotsData{},
	}
}

func (p *PoliteClient) limiterFor(host string) *rate.Limiter {
	host = siteKey(host)
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[host]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(p.per), p.burst)
	p.limiters[host] = l
	return l
}

// NewRequest builds an HTTP GET request with context and a safe URL defaulting to https.
func NewRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	u, err := targetURL(rawURL)
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
}

func (p *PoliteClient) robotsFor(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	host := u.Hostname()
	p.mu.Lock()
	if data, ok := p.robotsCache[host]; ok {
		p.mu.Unlock()
		return data, nil
	}
	p.mu.Unlock()

	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.ua)

	if err := p.limiterFor(host).Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.robotsCache[host] = data
	p.mu.Unlock()
	return data, nil
}

// Do executes the request respecting robots.txt and rate limits.
func (p *PoliteClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.ua)
	}

	u := req.URL
	if u.Scheme == "" {
		u.Scheme = "https"
	}

	if ok := p.allowed(ctx, u, req.Method); !ok {
		return nil, &FetchError{URL: u.String(), Err: ErrRobotsDisallowed}
	}

	limiter := p.limiterFor(u.Hostname())

	retry := newRetryPolicy(3)
	var lastErr error
	for attempt := 0; attempt < retry.attempts; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}

		resp, err := p.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		if retry.retryable(resp.StatusCode, nil) {
			lastErr = &FetchError{URL: u.String(), Status: resp.StatusCode, Err: errors.New("retryable status")}
			resp.Body.Close()
			if err := pause(ctx, retry.delay(attempt)); err != nil {
				return nil, err
			}
			continue
		}

		return resp, nil
	}

	if lastErr == nil {
		lastErr = errors.New("polite client: failed without error")
	}
	return nil, lastErr
}

// GetJSON fetches rawURL and decodes the body into v. Non-2xx responses
// become a *FetchError.
func (p *PoliteClient) GetJSON(ctx context.Context, rawURL string, v any) error {
	req, err := NewRequest(ctx, rawURL)
	if err != nil {
		return &FetchError{URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &FetchError{URL: rawURL, Status: resp.StatusCode}
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONBody)).Decode(v); err != nil {
		return &FetchError{URL: rawURL, Status: resp.StatusCode, Err: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

var ErrRobotsDisallowed = errors.New("blocked by robots.txt")

func (p *PoliteClient) allowed(ctx context.Context, u *url.URL, method string) bool {
	// Only reads are ever allowed.
	if !strings.EqualFold(method, http.MethodGet) && !strings.EqualFold(method, http.MethodHead) {
		return false
	}
	data, err := p.robotsFor(ctx, u)
	if err != nil {
		return true // fail open to avoid blocking everything
	}
	group := data.FindGroup(p.ua)
	if group == nil {
		return true
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}
