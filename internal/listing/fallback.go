package listing

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

const (
	SourceEstimated         = "Estimated"
	SourceEstimatedFallback = "Estimated (Fallback)"

	DefaultSearchTemplate = "https://www.google.com/search?q=%s"
	DefaultSearchSuffix   = "pakistan sale"
)

// Rand is the randomness the fallback draws discounts from. *rand.Rand from
// math/rand/v2 satisfies it; tests pass a fixed sequence.
type Rand interface {
	IntN(n int) int
}

// Fallback produces Estimated records for entities that were enumerated by
// the caller but have no accepted scraped listing.
type Fallback struct {
	mu             sync.Mutex
	rng            Rand
	searchTemplate string
	searchSuffix   string
}

type FallbackOption func(*Fallback)

// WithSearchTemplate sets the URL used when no source URL is known. The
// template must contain a single %s for the escaped query.
func WithSearchTemplate(template, suffix string) FallbackOption {
	return func(f *Fallback) {
		if strings.Count(template, "%s") == 1 {
			f.searchTemplate = template
		}
		f.searchSuffix = strings.TrimSpace(suffix)
	}
}

func NewFallback(rng Rand, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		rng:            rng,
		searchTemplate: DefaultSearchTemplate,
		searchSuffix:   DefaultSearchSuffix,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fallback) Generate(identityKey, category, knownSourceURL string, r DiscountRange) NormalizedListing {
	n := r.normalized()

	f.mu.Lock()
	discount := n.Low + f.rng.IntN(n.High-n.Low+1)
	f.mu.Unlock()

	out := NormalizedListing{
		IdentityKey:     identityKey,
		SalePrice:       decimal.Zero,
		OriginalPrice:   decimal.Zero,
		DiscountPercent: discount,
		Provenance:      Estimated,
		Source:          SourceEstimated,
		Evidence:        Evidence{DiscountStrategy: StrategyRandomEstimate},
	}
	if c := strings.TrimSpace(category); c != "" {
		out.Category = strPtr(c)
	}
	if u := strings.TrimSpace(knownSourceURL); u != "" {
		out.SourceURL = strPtr(u)
		out.Source = SourceEstimatedFallback
	} else {
		out.SourceURL = strPtr(f.SearchURL(identityKey))
	}
	return out
}

// SearchURL builds the last-resort search-engine link for an entity.
func (f *Fallback) SearchURL(identityKey string) string {
	query := strings.TrimSpace(identityKey)
	if f.searchSuffix != "" {
		query += " " + f.searchSuffix
	}
	return fmt.Sprintf(f.searchTemplate, url.QueryEscape(query))
}
