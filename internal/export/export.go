package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/baxromumarov/sale-hunter/internal/listing"
)

type Layout string

const (
	// LayoutLegacy is the five-column file the dashboard has always read.
	LayoutLegacy Layout = "legacy"
	LayoutFull   Layout = "full"
)

const displayTitleMax = 30

var (
	legacyHeader = []string{"Brand Name", "Category", "Discount Percentage", "Source", "URL"}
	fullHeader   = []string{
		"identity_key",
		"sale_price",
		"original_price",
		"discount_percent",
		"provenance",
		"image_url",
		"category",
		"source_url",
		"source",
		"title",
		"rating",
		"reviews",
		"badges",
	}
)

// SaleItem is the dashboard view of one listing.
type SaleItem struct {
	Name          string   `json:"Brand Name"`
	Category      string   `json:"Category"`
	Discount      string   `json:"Discount Percentage"`
	Source        string   `json:"Source"`
	URL           string   `json:"URL"`
	ImageURL      string   `json:"ImageURL,omitempty"`
	FullTitle     string   `json:"FullTitle,omitempty"`
	Rating        float64  `json:"Rating,omitempty"`
	Reviews       int      `json:"Reviews,omitempty"`
	Price         string   `json:"Price,omitempty"`
	OriginalPrice string   `json:"OriginalPrice,omitempty"`
	Provenance    string   `json:"Provenance"`
	Badges        []string `json:"Badges,omitempty"`
}

// DisplayTitle shortens long product names to 30 characters plus "...".
func DisplayTitle(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= displayTitleMax {
		return s
	}
	return string([]rune(s)[:displayTitleMax]) + "..."
}

func ToSaleItem(l listing.NormalizedListing) SaleItem {
	name := l.Title
	if name == "" {
		name = l.IdentityKey
	}
	item := SaleItem{
		Name:       DisplayTitle(name),
		Category:   deref(l.Category),
		Discount:   fmt.Sprintf("%d%%", l.DiscountPercent),
		Source:     l.Source,
		URL:        deref(l.SourceURL),
		ImageURL:   deref(l.ImageURL),
		FullTitle:  name,
		Rating:     l.Rating,
		Reviews:    l.Reviews,
		Provenance: string(l.Provenance),
		Badges:     l.Badges,
	}
	if l.Provenance.Real() {
		item.Price = l.SalePrice.StringFixed(2)
		item.OriginalPrice = l.OriginalPrice.StringFixed(2)
	}
	return item
}

func ToSaleItems(listings []listing.NormalizedListing) []SaleItem {
	items := make([]SaleItem, 0, len(listings))
	for _, l := range listings {
		items = append(items, ToSaleItem(l))
	}
	return items
}

// WriteCSV writes listings in the given layout, in the order given.
func WriteCSV(w io.Writer, listings []listing.NormalizedListing, layout Layout) error {
	cw := csv.NewWriter(w)

	header := legacyHeader
	if layout == LayoutFull {
		header = fullHeader
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, l := range listings {
		var row []string
		if layout == LayoutFull {
			row = fullRow(l)
		} else {
			row = legacyRow(l)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write %q: %w", l.IdentityKey, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func legacyRow(l listing.NormalizedListing) []string {
	return []string{
		l.IdentityKey,
		deref(l.Category),
		fmt.Sprintf("%d%%", l.DiscountPercent),
		l.Source,
		deref(l.SourceURL),
	}
}

func fullRow(l listing.NormalizedListing) []string {
	return []string{
		l.IdentityKey,
		l.SalePrice.StringFixed(2),
		l.OriginalPrice.StringFixed(2),
		strconv.Itoa(l.DiscountPercent),
		string(l.Provenance),
		deref(l.ImageURL),
		deref(l.Category),
		deref(l.SourceURL),
		l.Source,
		l.Title,
		strconv.FormatFloat(l.Rating, 'f', -1, 64),
		strconv.Itoa(l.Reviews),
		strings.Join(l.Badges, "|"),
	}
}

// WriteJSON writes the whole report, listings and rejections included.
func WriteJSON(w io.Writer, report listing.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// WriteFile creates path and its parent directories and hands the file to write.
func WriteFile(path string, write func(io.Writer) error) (err error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return write(f)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
