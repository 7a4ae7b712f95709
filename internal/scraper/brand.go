package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
)

// offerRe finds sale banners such as "Flat 30% OFF", "Up to 50% off", "-40%".
var offerRe = regexp.MustCompile(`(?i)(?:(?:up\s*to|upto|flat)\s*)?(\d{1,2})\s*%\s*off|-\s?(\d{1,2})\s?%`)

// brandCardSpec covers the storefront themes Pakistani brands run on
// (Shopify, Magento, WooCommerce).
func brandCardSpec(category string) CardSpec {
	return CardSpec{
		Source:   SourceBrand,
		Category: category,
		CardSelectors: []string{
			".product-card",
			".product-item",
			".grid-product",
			".product-grid-item",
			".card-wrapper",
			"li.product",
		},
		TitleSelectors: []string{".product-card__title", ".product-item-link", ".card__heading", ".product-title", ".woocommerce-loop-product__title"},
		SalePriceSelectors: []string{
			".price-item--sale",
			".special-price .price",
			".sale-price",
			"ins .amount",
			".price--sale",
		},
		OriginalPriceSelectors: []string{
			".price-item--regular",
			".old-price .price",
			".compare-at-price",
			"del",
			"s",
		},
		DiscountSelectors: []string{".badge--sale", ".sale-badge", ".discount-badge", ".product-label", ".onsale"},
		ImageAttrs:        []string{"src", "data-src", "data-srcset", "srcset"},
	}
}

// BrandScraper turns each brand's sale page into a single SignalBag keyed by
// brand name. Structured data wins over card markup; the page text is always
// attached as raw evidence.
type BrandScraper struct {
	fetcher    PageFetcher
	normalizer Normalizer
	targets    []Target
}

func NewBrandScraper(fetcher PageFetcher, normalizer Normalizer, targets []Target) *BrandScraper {
	if normalizer == nil {
		normalizer = NewTextNormalizer()
	}
	return &BrandScraper{fetcher: fetcher, normalizer: normalizer, targets: targets}
}

func (s *BrandScraper) Name() string { return "brands" }

func (s *BrandScraper) Collect(ctx context.Context) ([]listing.SignalBag, error) {
	var (
		bags []listing.SignalBag
		errs []error
	)
	for _, target := range s.targets {
		if ctx.Err() != nil {
			return bags, ctx.Err()
		}
		bag, err := s.scrapeBrand(ctx, target)
		if err != nil {
			observability.IncError(observability.ClassifyScrapeError(err), "scraper_brand")
			slog.Warn("brand scrape failed", "brand", target.Name, "url", target.URL, "error", err)
			errs = append(errs, fmt.Errorf("brand %s: %w", target.Name, err))
			continue
		}
		bags = append(bags, bag)
	}
	return bags, errors.Join(errs...)
}

func (s *BrandScraper) scrapeBrand(ctx context.Context, target Target) (listing.SignalBag, error) {
	body, _, err := s.fetcher.FetchBytes(ctx, target.URL)
	if err != nil {
		return listing.SignalBag{}, err
	}
	observability.IncPagesFetched(target.Name)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return listing.SignalBag{}, fmt.Errorf("parse html: %w", err)
	}
	text, err := s.normalizer.Normalize(string(body))
	if err != nil {
		return listing.SignalBag{}, fmt.Errorf("parse text: %w", err)
	}

	category := target.Category
	if category == "" {
		category = "Clothing"
	}
	bag := listing.SignalBag{
		IdentityKey:    target.Name,
		Title:          target.Name,
		RawText:        text,
		Source:         SourceBrand,
		SourceURL:      target.URL,
		Category:       &category,
		CurrencyMarker: currencyMarker(text),
	}

	if p, ok := firstLDProduct(doc); ok {
		price := p.Price
		bag.ExplicitSalePriceText = &price
		if p.ListPrice != "" {
			lp := p.ListPrice
			bag.ExplicitOriginalPriceText = &lp
		}
		if p.Image != "" {
			bag.ImageCandidates = append(bag.ImageCandidates, p.Image)
		}
	} else if card, ok := firstSaleCard(doc, brandCardSpec(category), target.URL); ok {
		bag.ExplicitSalePriceText = card.ExplicitSalePriceText
		bag.ExplicitOriginalPriceText = card.ExplicitOriginalPriceText
		bag.ExplicitDiscountText = card.ExplicitDiscountText
		bag.ImageCandidates = append(bag.ImageCandidates, card.ImageCandidates...)
	}

	if bag.ExplicitDiscountText == nil {
		if offer := strongestOffer(text); offer != "" {
			bag.ExplicitDiscountText = &offer
		}
	}
	if og, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok && og != "" {
		bag.ImageCandidates = append(bag.ImageCandidates, og)
	}
	return bag, nil
}

func firstLDProduct(doc *goquery.Document) (ldProduct, bool) {
	var found ldProduct
	ok := false
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if products := parseJSONLDProducts(s.Text()); len(products) > 0 {
			found, ok = products[0], true
			return false
		}
		return true
	})
	return found, ok
}

// firstSaleCard returns the first product card that shows a sale price.
func firstSaleCard(doc *goquery.Document, spec CardSpec, base string) (listing.SignalBag, bool) {
	for _, bag := range ExtractCards(doc, spec, base) {
		if bag.ExplicitSalePriceText != nil && *bag.ExplicitSalePriceText != "" {
			return bag, true
		}
	}
	return listing.SignalBag{}, false
}

// strongestOffer returns the banner fragment with the largest percentage.
func strongestOffer(text string) string {
	best, bestVal := "", -1
	for _, m := range offerRe.FindAllStringSubmatch(text, -1) {
		digits := m[1]
		if digits == "" {
			digits = m[2]
		}
		v, err := strconv.Atoi(digits)
		if err != nil || v == 0 {
			continue
		}
		if v > bestVal {
			best, bestVal = strings.TrimSpace(m[0]), v
		}
	}
	return best
}

func currencyMarker(text string) string {
	if strings.Contains(text, "PKR") && !strings.Contains(text, "Rs") {
		return "PKR"
	}
	return "Rs."
}
