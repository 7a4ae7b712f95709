package listing

import (
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultTolerance is the relative distance under which a raw-text price is
// considered the same reading as the sale price.
var DefaultTolerance = decimal.NewFromFloat(0.005)

// Engine reconciles one SignalBag at a time. It holds no mutable state and is
// safe for concurrent use.
type Engine struct {
	marker    string
	tolerance decimal.Decimal
	sale      []PriceStrategy
	original  []PriceStrategy
	discount  []DiscountStrategy
}

type EngineOption func(*Engine)

func WithCurrencyMarker(marker string) EngineOption {
	return func(e *Engine) {
		if strings.TrimSpace(marker) != "" {
			e.marker = strings.TrimSpace(marker)
		}
	}
}

func WithTolerance(t float64) EngineOption {
	return func(e *Engine) {
		if t >= 0 {
			e.tolerance = decimal.NewFromFloat(t)
		}
	}
}

func WithSaleStrategies(s ...PriceStrategy) EngineOption {
	return func(e *Engine) { e.sale = s }
}

func WithOriginalStrategies(s ...PriceStrategy) EngineOption {
	return func(e *Engine) { e.original = s }
}

func WithDiscountStrategies(s ...DiscountStrategy) EngineOption {
	return func(e *Engine) { e.discount = s }
}

func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		marker:    DefaultCurrencyMarker,
		tolerance: DefaultTolerance,
		sale:      DefaultSaleStrategies(),
		original:  DefaultOriginalStrategies(),
		discount:  DefaultDiscountStrategies(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile turns a bag into a candidate listing. Strategies for each field
// are tried in order and the first one that finds a value wins.
func (e *Engine) Reconcile(bag SignalBag) Candidate {
	in := Input{
		Bag:       &bag,
		Text:      Clean(bag),
		Marker:    e.marker,
		Tolerance: e.tolerance,
	}
	if bag.CurrencyMarker != "" {
		in.Marker = bag.CurrencyMarker
	}

	out := NormalizedListing{
		IdentityKey: bag.IdentityKey,
		Provenance:  Inferred,
		ImageURL:    pickImage(bag.ImageCandidates),
		Source:      bag.Source,
		Title:       strings.TrimSpace(bag.Title),
		Rating:      bag.Rating,
		Reviews:     bag.Reviews,
	}
	if bag.Category != nil && strings.TrimSpace(*bag.Category) != "" {
		out.Category = strPtr(strings.TrimSpace(*bag.Category))
	}
	if bag.SourceURL != "" {
		out.SourceURL = strPtr(bag.SourceURL)
	}
	if len(bag.Badges) > 0 {
		out.Badges = append([]string(nil), bag.Badges...)
	}

	sale, saleName := e.firstPrice(e.sale, in, &out.Evidence)
	if saleName == "" || !sale.IsPositive() {
		return Candidate{Listing: out, Missing: true}
	}
	in.Sale = sale
	out.Evidence.SaleStrategy = saleName

	original, originalName := e.firstPrice(e.original, in, &out.Evidence)
	if originalName == "" {
		original, originalName = sale, StrategyDefaultedToSale
	}

	discount, discountStrategy := e.firstDiscount(in, original, &out.Evidence)

	switch {
	case discountStrategy.Name == "":
		discount = DiscountFromPrices(sale, original)
		discountStrategy = DiscountStrategy{Name: StrategyDerivedFromPrices, Derived: true}
	case discountStrategy.Derived:
	case originalName == StrategyDefaultedToSale:
		// Only a badge is visible: the discount is the primary evidence.
		if derived, ok := OriginalFromDiscount(sale, discount); ok {
			original, originalName = derived, StrategyDerivedFromBadge
		}
	default:
		fromPrices := DiscountFromPrices(sale, original)
		if fromPrices == discount {
			break
		}
		conflict := &Conflict{
			Reason:           ReasonInconsistentEvidence,
			BadgeDiscount:    discount,
			PriceDiscount:    fromPrices,
			ObservedOriginal: original,
		}
		if discount > fromPrices {
			conflict.Kept = "badge"
			if derived, ok := OriginalFromDiscount(sale, discount); ok {
				original, originalName = derived, StrategyDerivedFromBadge
			}
		} else {
			conflict.Kept = "prices"
			discount = fromPrices
			discountStrategy = DiscountStrategy{Name: StrategyDerivedFromPrices, Derived: true}
		}
		out.Evidence.Conflict = conflict
	}

	out.SalePrice = sale
	out.OriginalPrice = original
	out.DiscountPercent = clampPercent(discount)
	out.Evidence.OriginalStrategy = originalName
	out.Evidence.DiscountStrategy = discountStrategy.Name

	if saleName == StrategyExplicitSale &&
		originalName == StrategyExplicitOriginal &&
		!discountStrategy.Derived &&
		out.Evidence.Conflict == nil {
		out.Provenance = Observed
	}

	return Candidate{Listing: out}
}

func (e *Engine) firstPrice(strategies []PriceStrategy, in Input, ev *Evidence) (decimal.Decimal, string) {
	for _, s := range strategies {
		v, outcome := s.Resolve(in)
		switch outcome {
		case Found:
			return v, s.Name
		case Unparsable:
			ev.Unparsable = append(ev.Unparsable, s.Name)
		}
	}
	return decimal.Zero, ""
}

func (e *Engine) firstDiscount(in Input, original decimal.Decimal, ev *Evidence) (int, DiscountStrategy) {
	for _, s := range e.discount {
		v, outcome := s.Resolve(in, original)
		switch outcome {
		case Found:
			return v, s
		case Unparsable:
			ev.Unparsable = append(ev.Unparsable, s.Name)
		}
	}
	return 0, DiscountStrategy{}
}

func pickImage(candidates []string) *string {
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || strings.HasPrefix(c, "data:") {
			continue
		}
		if strings.HasPrefix(c, "//") {
			c = "https:" + c
		}
		u, err := url.Parse(c)
		if err != nil || u.Host == "" {
			continue
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			continue
		}
		return strPtr(c)
	}
	return nil
}
