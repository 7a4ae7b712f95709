package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/observability"
)

const darazProductBase = "https://www.daraz.pk/products/"

var darazDiscountRe = regexp.MustCompile(`-\s?\d{1,3}\s?%`)

// DarazGridSpec reads the desktop and "just for you" product grids.
func DarazGridSpec(category string) CardSpec {
	return CardSpec{
		Source:         SourceDaraz,
		Category:       category,
		CurrencyMarker: "Rs.",
		CardSelectors: []string{
			".search-product-item",
			".product-jfy-item",
			".jfy-product-card-wrapper",
			"[data-qa-locator='product-item']",
			".unit-content",
		},
		TitleSelectors:     []string{".RfADt", ".jfy-product-card-name", ".title", ".name"},
		LinkContains:       "/products/",
		SalePriceSelectors: []string{".ooOxS", ".jfy-product-card-price", ".price"},
		NoiseSelectors:     []string{".WNoq3", ".coins"},
		ImageAttrs:         []string{"src", "data-src"},
		DiscountPattern:    darazDiscountRe,
		Badges:             darazBadges,
	}
}

// DarazFlashSpec reads the mobile flash-sale modules, whose cards carry the
// product ids as attributes but no product name.
func DarazFlashSpec(category string) CardSpec {
	return CardSpec{
		Source:                 SourceDaraz,
		Category:               category,
		CurrencyMarker:         "Rs.",
		CardSelectors:          []string{".top-module-fashion-item", ".flash-unit"},
		SalePriceSelectors:     []string{".i-product-discount-price-text"},
		OriginalPriceSelectors: []string{".base-default-text"},
		DiscountSelectors:      []string{".item-discount"},
		NoiseSelectors:         []string{".WNoq3", ".coins"},
		ImageSelectors:         []string{".picture-wrapper img"},
		ImageAttrs:             []string{"src", "data-src"},
		LinkFromCard:           darazLinkFromIDs,
		TitleFromCard: func(card *goquery.Selection, _ string) string {
			if id, _ := card.Attr("itemid"); id != "" {
				return "Flash Sale Product " + id
			}
			return ""
		},
		Badges: darazBadges,
	}
}

func darazLinkFromIDs(card *goquery.Selection) string {
	item, _ := card.Attr("itemid")
	sku, _ := card.Attr("skuid")
	return darazLinkFromItem(item, sku)
}

func darazBadges(card *goquery.Selection, text string) []string {
	var badges []string
	if strings.Contains(text, "Free Shipping") {
		badges = append(badges, "Free Shipping")
	}
	if strings.Contains(text, "COD") {
		badges = append(badges, "COD")
	}
	if html, err := goquery.OuterHtml(card); err == nil && strings.Contains(strings.ToLower(html), "mall") {
		badges = append(badges, "Daraz Mall")
	}
	return badges
}

// DarazScraper walks the first pages of one or more Daraz listing pages.
type DarazScraper struct {
	fetcher PageFetcher
	targets []Target
	pages   int
}

func NewDarazScraper(fetcher PageFetcher, targets []Target, pages int) *DarazScraper {
	if pages <= 0 {
		pages = 3
	}
	return &DarazScraper{fetcher: fetcher, targets: targets, pages: pages}
}

func (s *DarazScraper) Name() string { return "daraz" }

func (s *DarazScraper) Collect(ctx context.Context) ([]listing.SignalBag, error) {
	var (
		bags []listing.SignalBag
		errs []error
	)
	for _, target := range s.targets {
		for page := 1; page <= s.pages; page++ {
			if ctx.Err() != nil {
				return bags, ctx.Err()
			}
			pageURL := withPage(target.URL, page)
			found, err := s.scrapePage(ctx, pageURL, target.Category)
			if err != nil {
				observability.IncError(observability.ClassifyScrapeError(err), "scraper_daraz")
				errs = append(errs, fmt.Errorf("daraz %s: %w", pageURL, err))
				continue
			}
			slog.Debug("daraz page scraped", "url", pageURL, "cards", len(found))
			bags = append(bags, found...)
		}
	}
	return bags, errors.Join(errs...)
}

func (s *DarazScraper) scrapePage(ctx context.Context, pageURL, category string) ([]listing.SignalBag, error) {
	body, _, err := s.fetcher.FetchBytes(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	observability.IncPagesFetched(SourceDaraz)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	if category == "" {
		category = "Electronics"
	}
	bags := ExtractCards(doc, DarazGridSpec(category), pageURL)
	if len(bags) == 0 {
		bags = ExtractCards(doc, DarazFlashSpec(category), pageURL)
	}
	if len(bags) == 0 {
		return nil, errors.New("no cards matched")
	}
	return bags, nil
}

// withPage sets the page query parameter on a listing URL.
func withPage(raw string, page int) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// darazCatalog is the subset of the catalog JSON (ajax=true) we read.
type darazCatalog struct {
	Mods struct {
		ListItems []darazItem `json:"listItems"`
	} `json:"mods"`
}

type darazItem struct {
	Name          string `json:"name"`
	ItemID        string `json:"itemId"`
	SkuID         string `json:"skuId"`
	Price         string `json:"price"`
	PriceShow     string `json:"priceShow"`
	OriginalPrice string `json:"originalPrice"`
	Discount      string `json:"discount"`
	Image         string `json:"image"`
	ProductURL    string `json:"productUrl"`
	RatingScore   string `json:"ratingScore"`
	Review        string `json:"review"`
	Icons         []struct {
		Alias string `json:"alias"`
	} `json:"icons"`
}

// DarazCatalogScraper reads the catalog JSON Daraz serves to its own grid.
// It sees the same products as DarazScraper without any markup guessing.
type DarazCatalogScraper struct {
	client  JSONFetcher
	targets []Target
	pages   int
}

func NewDarazCatalogScraper(client JSONFetcher, targets []Target, pages int) *DarazCatalogScraper {
	if pages <= 0 {
		pages = 3
	}
	return &DarazCatalogScraper{client: client, targets: targets, pages: pages}
}

func (s *DarazCatalogScraper) Name() string { return "daraz_catalog" }

func (s *DarazCatalogScraper) Collect(ctx context.Context) ([]listing.SignalBag, error) {
	var (
		bags []listing.SignalBag
		errs []error
	)
	for _, target := range s.targets {
		for page := 1; page <= s.pages; page++ {
			if ctx.Err() != nil {
				return bags, ctx.Err()
			}
			pageURL := catalogURL(target.URL, page)
			var payload darazCatalog
			if err := s.client.GetJSON(ctx, pageURL, &payload); err != nil {
				observability.IncError(observability.ClassifyScrapeError(err), "scraper_daraz_catalog")
				errs = append(errs, fmt.Errorf("daraz catalog %s: %w", pageURL, err))
				break
			}
			observability.IncPagesFetched(SourceDaraz)
			if len(payload.Mods.ListItems) == 0 {
				break
			}
			for _, item := range payload.Mods.ListItems {
				if bag, ok := item.signalBag(target.Category); ok {
					bags = append(bags, bag)
				}
			}
		}
	}
	return bags, errors.Join(errs...)
}

func catalogURL(raw string, page int) string {
	u, err := url.Parse(withPage(raw, page))
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("ajax", "true")
	u.RawQuery = q.Encode()
	return u.String()
}

func (it darazItem) signalBag(category string) (listing.SignalBag, bool) {
	name := strings.TrimSpace(it.Name)
	if name == "" {
		return listing.SignalBag{}, false
	}
	if category == "" {
		category = "Electronics"
	}
	bag := listing.SignalBag{
		IdentityKey:    name,
		Title:          name,
		Source:         SourceDaraz,
		CurrencyMarker: "Rs.",
		Category:       &category,
	}

	sale := it.Price
	if sale == "" {
		sale = it.PriceShow
	}
	if sale != "" {
		bag.ExplicitSalePriceText = &sale
	}
	if it.OriginalPrice != "" {
		orig := it.OriginalPrice
		bag.ExplicitOriginalPriceText = &orig
	}
	if it.Discount != "" {
		d := it.Discount
		bag.ExplicitDiscountText = &d
	}
	bag.RawText = strings.Join([]string{name, it.PriceShow, it.Discount}, " ")

	link := it.ProductURL
	if link == "" {
		link = darazLinkFromItem(it.ItemID, it.SkuID)
	}
	if strings.HasPrefix(link, "//") {
		link = "https:" + link
	}
	bag.SourceURL = link
	if it.Image != "" {
		bag.ImageCandidates = []string{it.Image}
	}

	if r, err := strconv.ParseFloat(it.RatingScore, 64); err == nil {
		bag.Rating = r
	}
	if n, err := strconv.Atoi(it.Review); err == nil {
		bag.Reviews = n
	}
	for _, icon := range it.Icons {
		switch {
		case strings.Contains(strings.ToLower(icon.Alias), "freeshipping"):
			bag.Badges = append(bag.Badges, "Free Shipping")
		case strings.Contains(strings.ToLower(icon.Alias), "mall"):
			bag.Badges = append(bag.Badges, "Daraz Mall")
		}
	}
	return bag, true
}

func darazLinkFromItem(item, sku string) string {
	switch {
	case item != "" && sku != "":
		return fmt.Sprintf("%s-i%s-s%s.html", darazProductBase, item, sku)
	case item != "":
		return fmt.Sprintf("%s-i%s.html", darazProductBase, item)
	}
	return ""
}
