package listing

import (
	"github.com/shopspring/decimal"
)

const DefaultCurrencyMarker = "Rs."

const (
	StrategyExplicitSale      = "explicit-sale-selector"
	StrategyFirstTextPrice    = "first-currency-price-in-text"
	StrategyExplicitOriginal  = "explicit-original-selector"
	StrategyMaxOtherTextPrice = "max-other-currency-price-in-text"
	StrategyDefaultedToSale   = "defaulted-to-sale"
	StrategyDerivedFromBadge  = "derived-from-badge"
	StrategyExplicitBadge     = "explicit-badge"
	StrategyDerivedFromPrices = "derived-from-prices"
	StrategyRandomEstimate    = "random-estimate"
)

// Outcome is the result of one strategy attempt.
type Outcome int

const (
	Absent Outcome = iota
	Unparsable
	Found
)

// Input is everything a strategy may look at. Sale is only set for
// original-price strategies.
type Input struct {
	Bag       *SignalBag
	Text      CleanedText
	Marker    string
	Sale      decimal.Decimal
	Tolerance decimal.Decimal
}

type PriceStrategy struct {
	Name    string
	Resolve func(in Input) (decimal.Decimal, Outcome)
}

type DiscountStrategy struct {
	Name string
	// Derived strategies compute the discount from prices instead of
	// reading it; they never take part in conflict resolution.
	Derived bool
	Resolve func(in Input, original decimal.Decimal) (int, Outcome)
}

func DefaultSaleStrategies() []PriceStrategy {
	return []PriceStrategy{
		{Name: StrategyExplicitSale, Resolve: explicitSale},
		{Name: StrategyFirstTextPrice, Resolve: firstTextPrice},
	}
}

func DefaultOriginalStrategies() []PriceStrategy {
	return []PriceStrategy{
		{Name: StrategyExplicitOriginal, Resolve: explicitOriginal},
		{Name: StrategyMaxOtherTextPrice, Resolve: maxOtherTextPrice},
		{Name: StrategyDefaultedToSale, Resolve: defaultedToSale},
	}
}

func DefaultDiscountStrategies() []DiscountStrategy {
	return []DiscountStrategy{
		{Name: StrategyExplicitBadge, Resolve: explicitBadge},
		{Name: StrategyDerivedFromPrices, Derived: true, Resolve: derivedFromPrices},
	}
}

func explicitSale(in Input) (decimal.Decimal, Outcome) {
	return explicitPrice(in.Bag.ExplicitSalePriceText)
}

func firstTextPrice(in Input) (decimal.Decimal, Outcome) {
	prices := CurrencyPrices(in.Text.String(), in.Marker)
	if len(prices) == 0 {
		return decimal.Zero, Absent
	}
	return prices[0], Found
}

func explicitOriginal(in Input) (decimal.Decimal, Outcome) {
	v, outcome := explicitPrice(in.Bag.ExplicitOriginalPriceText)
	if outcome != Found {
		return v, outcome
	}
	// "Rs. 0" is how some retailers render a missing list price.
	if v.IsZero() {
		return decimal.Zero, Absent
	}
	if v.LessThan(in.Sale) {
		return decimal.Zero, Unparsable
	}
	return v, Found
}

func maxOtherTextPrice(in Input) (decimal.Decimal, Outcome) {
	margin := in.Sale.Mul(in.Tolerance)
	var (
		best  decimal.Decimal
		found bool
	)
	for _, p := range CurrencyPrices(in.Text.String(), in.Marker) {
		if p.Sub(in.Sale).Abs().LessThanOrEqual(margin) || p.LessThan(in.Sale) {
			continue
		}
		if !found || p.GreaterThan(best) {
			best, found = p, true
		}
	}
	if !found {
		return decimal.Zero, Absent
	}
	return best, Found
}

func defaultedToSale(in Input) (decimal.Decimal, Outcome) {
	return in.Sale, Found
}

func explicitBadge(in Input, _ decimal.Decimal) (int, Outcome) {
	if in.Bag.ExplicitDiscountText == nil {
		return 0, Absent
	}
	v, ok := DiscountFromBadge(*in.Bag.ExplicitDiscountText)
	if !ok {
		return 0, Absent
	}
	// A 100% badge cannot be reconciled with a positive sale price.
	if v >= 100 {
		return 0, Unparsable
	}
	return v, Found
}

func derivedFromPrices(in Input, original decimal.Decimal) (int, Outcome) {
	return DiscountFromPrices(in.Sale, original), Found
}

func explicitPrice(text *string) (decimal.Decimal, Outcome) {
	if text == nil {
		return decimal.Zero, Absent
	}
	v, ok := ResolvePrice(*text)
	if !ok {
		return decimal.Zero, Unparsable
	}
	return v, Found
}
