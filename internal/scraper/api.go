package scraper

import (
	"context"

	"github.com/baxromumarov/sale-hunter/internal/listing"
)

// Collector gathers raw listing evidence from one retailer. A collector
// returns whatever it managed to collect together with an error describing
// what failed; partial results are normal.
type Collector interface {
	Name() string
	Collect(ctx context.Context) ([]listing.SignalBag, error)
}

// PageFetcher is satisfied by *httpx.CollyFetcher.
type PageFetcher interface {
	FetchBytes(ctx context.Context, rawURL string) ([]byte, int, error)
}

// JSONFetcher is satisfied by *httpx.PoliteClient.
type JSONFetcher interface {
	GetJSON(ctx context.Context, rawURL string, v any) error
}

type Normalizer interface {
	Normalize(htmlContent string) (string, error)
}

// Target is one page to scrape, with the category its listings belong to.
type Target struct {
	Name     string `yaml:"name" json:"name" validate:"required"`
	URL      string `yaml:"url" json:"url" validate:"required,url"`
	Category string `yaml:"category" json:"category"`
}

const (
	SourceDaraz    = "Daraz Real-time"
	SourcePriceOye = "PriceOye Real-time"
	SourceBrand    = "Scraped (Real)"
)
