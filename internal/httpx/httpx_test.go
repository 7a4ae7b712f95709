package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastConfig() FetcherConfig {
	return FetcherConfig{
		UserAgent:  "sale-hunter-test",
		Timeout:    5 * time.Second,
		PerRequest: time.Millisecond,
		Burst:      10,
		Retries:    2,
		Headers:    map[string]string{"Accept-Language": "en-PK"},
	}
}

func TestCollyFetcherFetchBytes(t *testing.T) {
	var lang atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang.Store(r.Header.Get("Accept-Language"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><div class="card"><span class="price">Rs. 1,100</span></div></body></html>`)
	}))
	defer srv.Close()

	f := NewCollyFetcher(fastConfig())
	body, status, err := f.FetchBytes(context.Background(), srv.URL+"/sale")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if status != http.StatusOK {
		t.Errorf("unexpected status %d", status)
	}
	if !strings.Contains(string(body), `<span class="price">Rs. 1,100</span>`) {
		t.Errorf("unexpected body %q", body)
	}
	if lang.Load() != "en-PK" {
		t.Errorf("configured header not sent: %v", lang.Load())
	}
}

func TestCollyFetcherNotFoundIsNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewCollyFetcher(fastConfig())
	_, status, err := f.FetchBytes(context.Background(), srv.URL+"/missing")
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if status != http.StatusNotFound || fe.Status != http.StatusNotFound {
		t.Errorf("unexpected status %d / %d", status, fe.Status)
	}
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Errorf("expected a single request, got %d", n)
	}
}

func TestCollyFetcherRetriesThrottledHost(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, "<html>sale</html>")
	}))
	defer srv.Close()

	f := NewCollyFetcher(fastConfig())
	body, status, err := f.FetchBytes(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if status != http.StatusOK || !strings.Contains(string(body), "sale") {
		t.Errorf("unexpected response %d %q", status, body)
	}
	if n := atomic.LoadInt32(&hits); n != 2 {
		t.Errorf("expected one retry, got %d requests", n)
	}
}

func TestRetryPolicy(t *testing.T) {
	p := newRetryPolicy(3)
	tests := []struct {
		status int
		err    error
		want   bool
	}{
		{http.StatusTooManyRequests, errors.New("too many"), true},
		{http.StatusBadGateway, errors.New("bad gateway"), true},
		{http.StatusNotFound, errors.New("not found"), false},
		{http.StatusForbidden, errors.New("forbidden"), false},
		{0, errors.New("connection reset"), true},
		{0, context.Canceled, false},
		{0, fmt.Errorf("get: %w", context.DeadlineExceeded), false},
	}
	for _, tt := range tests {
		if got := p.retryable(tt.status, tt.err); got != tt.want {
			t.Errorf("retryable(%d, %v) = %v, want %v", tt.status, tt.err, got, tt.want)
		}
	}
	if p.delay(0) != 500*time.Millisecond || p.delay(2) != 2*time.Second {
		t.Errorf("unexpected delays %s %s", p.delay(0), p.delay(2))
	}
	if p.delay(40) != maxRetryDelay {
		t.Errorf("expected delay to be capped, got %s", p.delay(40))
	}
}

func TestSiteKey(t *testing.T) {
	for in, want := range map[string]string{
		"www.Daraz.pk":        "daraz.pk",
		"daraz.pk:443":        "daraz.pk",
		"html.duckduckgo.com": "html.duckduckgo.com",
		"":                    "default",
	} {
		if got := siteKey(in); got != want {
			t.Errorf("siteKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCollyFetcherCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := NewCollyFetcher(fastConfig())
	if _, _, err := f.FetchBytes(ctx, "https://example.invalid/"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPoliteClientGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			fmt.Fprint(w, "User-agent: *\nDisallow: /private\n")
		case "/catalog":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"mods":{"listItems":[{"name":"Kettle","price":"2799"}]}}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := NewPoliteClient(fastConfig())

	var out struct {
		Mods struct {
			ListItems []struct {
				Name  string `json:"name"`
				Price string `json:"price"`
			} `json:"listItems"`
		} `json:"mods"`
	}
	if err := p.GetJSON(context.Background(), srv.URL+"/catalog", &out); err != nil {
		t.Fatalf("get json: %v", err)
	}
	if len(out.Mods.ListItems) != 1 || out.Mods.ListItems[0].Price != "2799" {
		t.Errorf("unexpected payload %+v", out)
	}

	err := p.GetJSON(context.Background(), srv.URL+"/private/data", &out)
	if !errors.Is(err, ErrRobotsDisallowed) {
		t.Errorf("expected robots block, got %v", err)
	}

	err = p.GetJSON(context.Background(), srv.URL+"/nope", &out)
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != http.StatusNotFound {
		t.Errorf("expected 404 fetch error, got %v", err)
	}
}

func TestNewRequestDefaultsToHTTPS(t *testing.T) {
	req, err := NewRequest(context.Background(), "//www.daraz.pk/flash-sale/")
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if req.URL.Scheme != "https" {
		t.Errorf("expected https, got %s", req.URL.Scheme)
	}
	if _, err := NewRequest(context.Background(), " "); err == nil {
		t.Errorf("expected error for empty url")
	}
}
