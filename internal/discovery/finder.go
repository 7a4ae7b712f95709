package discovery

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"unicode"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
	"github.com/baxromumarov/sale-hunter/internal/urlutil"
)

const maxResults = 10

var saleHints = []string{"sale", "discount", "offer", "clearance", "promo"}

// Results on these hosts are never a brand's own sale page.
var skipHosts = []string{
	"facebook.com",
	"instagram.com",
	"youtube.com",
	"twitter.com",
	"x.com",
	"tiktok.com",
	"pinterest.com",
	"wikipedia.org",
	"google.com",
	"linkedin.com",
}

// SaleURLFinder looks up a brand's sale page with a web search so that an
// estimated listing can point at the brand instead of a search-results page.
type SaleURLFinder struct {
	fetcher  PageFetcher
	endpoint string
	suffix   string

	mu    sync.Mutex
	cache map[string]string
}

func NewSaleURLFinder(fetcher PageFetcher, endpoint, suffix string) *SaleURLFinder {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if suffix == "" {
		suffix = listing.DefaultSearchSuffix
	}
	return &SaleURLFinder{
		fetcher:  fetcher,
		endpoint: endpoint,
		suffix:   suffix,
		cache:    make(map[string]string),
	}
}

// Find returns the best sale page for name, or "" when no result looks like
// one. Answers, misses included, are cached for the finder's lifetime.
func (f *SaleURLFinder) Find(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}

	f.mu.Lock()
	cached, ok := f.cache[name]
	f.mu.Unlock()
	if ok {
		return cached, nil
	}

	results, err := duckDuckSearch(ctx, f.fetcher, f.endpoint, name+" "+f.suffix, maxResults)
	if err != nil {
		observability.IncError(observability.ClassifyScrapeError(err), "discovery")
		return "", err
	}

	best := pickSalePage(name, results)

	f.mu.Lock()
	f.cache[name] = best
	f.mu.Unlock()
	return best, nil
}

// Resolve fills the fallback URL of entities that have none. Lookups that
// fail leave the entity unchanged; the fallback then uses a search URL.
func (f *SaleURLFinder) Resolve(ctx context.Context, entities []listing.KnownEntity) []listing.KnownEntity {
	out := make([]listing.KnownEntity, len(entities))
	copy(out, entities)

	for i := range out {
		if out[i].FallbackURL != "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		found, err := f.Find(ctx, out[i].IdentityKey)
		if err != nil {
			slog.Debug("sale page lookup failed", "entity", out[i].IdentityKey, "error", err)
			continue
		}
		if found != "" {
			slog.Info("sale page found", "entity", out[i].IdentityKey, "url", found)
			out[i].FallbackURL = found
		}
	}
	return out
}

func pickSalePage(name string, results []string) string {
	token := brandToken(name)

	best, bestScore := "", 0
	for _, raw := range results {
		normalized, host, err := urlutil.Normalize(raw)
		if err != nil || host == "" || !urlutil.IsPage(normalized) || skippedHost(normalized) {
			continue
		}
		u, err := url.Parse(normalized)
		if err != nil {
			continue
		}

		score := 0
		target := strings.ToLower(u.Path + "?" + u.RawQuery)
		for _, hint := range saleHints {
			if strings.Contains(target, hint) {
				score += 2
				break
			}
		}
		if score == 0 {
			continue
		}
		if token != "" && strings.Contains(strings.ReplaceAll(host, "-", ""), token) {
			score += 3
		}
		if score > bestScore {
			best, bestScore = normalized, score
		}
	}
	return best
}

func skippedHost(raw string) bool {
	for _, h := range skipHosts {
		if urlutil.HostMatches(raw, h) {
			return true
		}
	}
	return false
}

// brandToken is the lower-case alphanumeric form of a brand name, or "" when
// it is too short to identify a host ("J.", "ECS").
func brandToken(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	if b.Len() < 4 {
		return ""
	}
	return b.String()
}
