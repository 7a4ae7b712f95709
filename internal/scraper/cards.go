package scraper

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/baxromumarov/sale-hunter/internal/listing"
	"github.com/baxromumarov/sale-hunter/internal/urlutil"
)

var reviewsRe = regexp.MustCompile(`\((\d+)\)`)

// CardSpec describes how to read product cards on one kind of listing page.
// Every selector list is ordered: the first selector with non-empty text wins.
type CardSpec struct {
	Source         string
	Category       string
	CurrencyMarker string

	// The first card selector that matches anything defines the cards.
	CardSelectors []string

	TitleSelectors         []string
	LinkSelectors          []string
	LinkContains           string
	SalePriceSelectors     []string
	OriginalPriceSelectors []string
	DiscountSelectors      []string
	NoiseSelectors         []string
	ImageSelectors         []string
	ImageAttrs             []string

	// DiscountPattern is matched against the card text when no discount
	// selector matched, e.g. Daraz grid cards render "-45%" without a class.
	DiscountPattern *regexp.Regexp

	// LinkFromCard builds the product link from card attributes when the card
	// carries no usable anchor.
	LinkFromCard func(card *goquery.Selection) string
	// TitleFromCard is the last resort when no title selector matched.
	TitleFromCard func(card *goquery.Selection, text string) string
	Badges        func(card *goquery.Selection, text string) []string
}

// ExtractCards turns every card on the page into a SignalBag. Cards without a
// title are skipped; everything else is left to the reconciliation engine.
func ExtractCards(doc *goquery.Document, spec CardSpec, base string) []listing.SignalBag {
	cards := findCards(doc.Selection, spec.CardSelectors)
	if cards == nil {
		return nil
	}

	var bags []listing.SignalBag
	cards.Each(func(_ int, card *goquery.Selection) {
		if bag, ok := cardBag(card, spec, base); ok {
			bags = append(bags, bag)
		}
	})
	return bags
}

func findCards(root *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := root.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func cardBag(card *goquery.Selection, spec CardSpec, base string) (listing.SignalBag, bool) {
	text := selectionText(card)

	bag := listing.SignalBag{
		RawText:                   text,
		Source:                    spec.Source,
		CurrencyMarker:            spec.CurrencyMarker,
		ExplicitSalePriceText:     firstText(card, spec.SalePriceSelectors),
		ExplicitOriginalPriceText: firstText(card, spec.OriginalPriceSelectors),
		ExplicitDiscountText:      firstText(card, spec.DiscountSelectors),
	}
	if spec.Category != "" {
		bag.Category = &spec.Category
	}

	for _, sel := range spec.NoiseSelectors {
		card.Find(sel).Each(func(_ int, s *goquery.Selection) {
			if t := selectionText(s); t != "" {
				bag.NoiseTexts = append(bag.NoiseTexts, t)
			}
		})
	}

	if bag.ExplicitDiscountText == nil && spec.DiscountPattern != nil {
		clean := listing.Clean(bag).String()
		if m := spec.DiscountPattern.FindString(clean); m != "" {
			bag.ExplicitDiscountText = &m
		}
	}

	bag.SourceURL = cardLink(card, spec, base)
	bag.ImageCandidates = cardImages(card, spec, base)

	title := ""
	if t := firstText(card, spec.TitleSelectors); t != nil {
		title = *t
	}
	if title == "" {
		title = linkTitle(card, spec)
	}
	if title == "" && spec.TitleFromCard != nil {
		title = spec.TitleFromCard(card, text)
	}
	if title == "" {
		return listing.SignalBag{}, false
	}
	bag.Title = title
	bag.IdentityKey = title

	if v, ok := card.Attr("data-rating"); ok {
		if r, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			bag.Rating = r
		}
	}
	if m := reviewsRe.FindStringSubmatch(text); m != nil {
		bag.Reviews, _ = strconv.Atoi(m[1])
	}
	if spec.Badges != nil {
		bag.Badges = spec.Badges(card, text)
	}
	return bag, true
}

// firstText returns the trimmed text of the first selector that has any. Nil
// means no selector matched at all; a pointer to "" means one matched empty.
func firstText(card *goquery.Selection, selectors []string) *string {
	var empty *string
	for _, sel := range selectors {
		found := card.Find(sel).First()
		if found.Length() == 0 {
			continue
		}
		t := selectionText(found)
		if t != "" {
			return &t
		}
		if empty == nil {
			empty = new(string)
		}
	}
	return empty
}

func cardLink(card *goquery.Selection, spec CardSpec, base string) string {
	candidates := card.Find("a[href]")
	if goquery.NodeName(card) == "a" {
		candidates = card.AddSelection(candidates)
	}
	for _, sel := range spec.LinkSelectors {
		candidates = candidates.AddSelection(card.Find(sel))
	}

	var link string
	candidates.EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if spec.LinkContains != "" && !strings.Contains(href, spec.LinkContains) {
			return true
		}
		if abs, err := urlutil.Resolve(base, href); err == nil {
			link = abs
			return false
		}
		return true
	})
	if link == "" && spec.LinkFromCard != nil {
		link = spec.LinkFromCard(card)
	}
	return link
}

func linkTitle(card *goquery.Selection, spec CardSpec) string {
	var title string
	card.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if spec.LinkContains != "" && !strings.Contains(href, spec.LinkContains) {
			return true
		}
		t, _ := a.Attr("title")
		if t == "" {
			t = selectionText(a)
		}
		if looksLikeTitle(t) {
			title = t
			return false
		}
		return true
	})
	return title
}

var imageExtRe = regexp.MustCompile(`(?i)\.(jpe?g|png|webp|gif)`)

func looksLikeTitle(t string) bool {
	t = strings.TrimSpace(t)
	return len(t) > 10 &&
		!strings.HasPrefix(t, "http") &&
		!imageExtRe.MatchString(t) &&
		!strings.Contains(t, "Rs.")
}

func cardImages(card *goquery.Selection, spec CardSpec, base string) []string {
	attrs := spec.ImageAttrs
	if len(attrs) == 0 {
		attrs = []string{"src", "data-src"}
	}
	selectors := append(append([]string(nil), spec.ImageSelectors...), "img")

	var out []string
	seen := map[string]struct{}{}
	for _, sel := range selectors {
		card.Find(sel).Each(func(_ int, img *goquery.Selection) {
			for _, attr := range attrs {
				v, ok := img.Attr(attr)
				if !ok {
					continue
				}
				abs, ok := urlutil.ImageURL(base, v)
				if !ok {
					continue
				}
				if _, dup := seen[abs]; dup {
					continue
				}
				seen[abs] = struct{}{}
				out = append(out, abs)
			}
		})
	}
	return out
}

func selectionText(s *goquery.Selection) string {
	parts := make([]string, 0, s.Length())
	for _, n := range s.Nodes {
		if t := ExtractText(n); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " ")
}
