package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
)

// PriceOyeSpec reads PriceOye category grids. The whole card is the anchor.
func PriceOyeSpec(category string) CardSpec {
	return CardSpec{
		Source:                 SourcePriceOye,
		Category:               category,
		CurrencyMarker:         "Rs.",
		CardSelectors:          []string{"a.ga-dataset"},
		TitleSelectors:         []string{".p-title"},
		SalePriceSelectors:     []string{".price-box"},
		OriginalPriceSelectors: []string{".price-diff-retail"},
		DiscountSelectors:      []string{".price-diff-saving"},
		ImageSelectors:         []string{"img.product-thumbnail"},
		ImageAttrs:             []string{"src", "data-src"},
	}
}

// PriceOyeScraper walks the configured PriceOye categories. A retail price of
// "Rs. 0" is passed through as is; the engine treats it as absent.
type PriceOyeScraper struct {
	fetcher PageFetcher
	targets []Target
	pages   int
}

func NewPriceOyeScraper(fetcher PageFetcher, targets []Target, pages int) *PriceOyeScraper {
	if pages <= 0 {
		pages = 2
	}
	return &PriceOyeScraper{fetcher: fetcher, targets: targets, pages: pages}
}

func (s *PriceOyeScraper) Name() string { return "priceoye" }

func (s *PriceOyeScraper) Collect(ctx context.Context) ([]listing.SignalBag, error) {
	var (
		bags []listing.SignalBag
		errs []error
	)
	for _, target := range s.targets {
		category := target.Category
		if category == "" {
			category = target.Name
		}
		for page := 1; page <= s.pages; page++ {
			if ctx.Err() != nil {
				return bags, ctx.Err()
			}
			pageURL := withPage(target.URL, page)
			found, err := s.scrapePage(ctx, pageURL, category)
			if err != nil {
				observability.IncError(observability.ClassifyScrapeError(err), "scraper_priceoye")
				errs = append(errs, fmt.Errorf("priceoye %s: %w", pageURL, err))
				continue
			}
			slog.Debug("priceoye page scraped", "url", pageURL, "category", category, "cards", len(found))
			bags = append(bags, found...)
		}
	}
	return bags, errors.Join(errs...)
}

func (s *PriceOyeScraper) scrapePage(ctx context.Context, pageURL, category string) ([]listing.SignalBag, error) {
	body, _, err := s.fetcher.FetchBytes(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	observability.IncPagesFetched(SourcePriceOye)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	bags := ExtractCards(doc, PriceOyeSpec(category), pageURL)
	if len(bags) == 0 {
		return nil, errors.New("no cards matched")
	}
	return bags, nil
}
