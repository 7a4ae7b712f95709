package listing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Provenance string

const (
	Observed  Provenance = "Observed"
	Inferred  Provenance = "Inferred"
	Estimated Provenance = "Estimated"
)

// Real reports whether the record is backed by scraped evidence.
func (p Provenance) Real() bool {
	return p == Observed || p == Inferred
}

// SignalBag is the raw evidence a collector gathered for one listing.
// Nil explicit fields mean no selector matched.
type SignalBag struct {
	IdentityKey string
	RawText     string

	ExplicitSalePriceText     *string
	ExplicitOriginalPriceText *string
	ExplicitDiscountText      *string

	Category        *string
	ImageCandidates []string

	SourceURL      string
	Source         string
	Title          string
	CurrencyMarker string
	NoiseTexts     []string
	Rating         float64
	Reviews        int
	Badges         []string
}

// NormalizedListing is the engine's output unit. Treat it as a value: it is
// never mutated after construction.
type NormalizedListing struct {
	IdentityKey     string          `json:"identity_key"`
	SalePrice       decimal.Decimal `json:"sale_price"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountPercent int             `json:"discount_percent"`
	Provenance      Provenance      `json:"provenance"`
	ImageURL        *string         `json:"image_url,omitempty"`
	Category        *string         `json:"category,omitempty"`
	SourceURL       *string         `json:"source_url,omitempty"`

	Source   string   `json:"source,omitempty"`
	Title    string   `json:"title,omitempty"`
	Rating   float64  `json:"rating,omitempty"`
	Reviews  int      `json:"reviews,omitempty"`
	Badges   []string `json:"badges,omitempty"`
	Evidence Evidence `json:"evidence"`
}

// Evidence records which strategy produced each field.
type Evidence struct {
	SaleStrategy     string    `json:"sale_strategy,omitempty"`
	OriginalStrategy string    `json:"original_strategy,omitempty"`
	DiscountStrategy string    `json:"discount_strategy,omitempty"`
	Unparsable       []string  `json:"unparsable,omitempty"`
	Conflict         *Conflict `json:"conflict,omitempty"`
}

// Conflict keeps both readings of a disagreement between the badge and the
// prices so that neither is lost.
type Conflict struct {
	Reason           Reason          `json:"reason"`
	BadgeDiscount    int             `json:"badge_discount"`
	PriceDiscount    int             `json:"price_discount"`
	ObservedOriginal decimal.Decimal `json:"observed_original"`
	Kept             string          `json:"kept"`
}

type Reason string

const (
	ReasonUnparsablePrice       Reason = "UnparsablePrice"
	ReasonMissingMandatoryField Reason = "MissingMandatoryField"
	ReasonBelowThreshold        Reason = "BelowThreshold"
	ReasonInconsistentEvidence  Reason = "InconsistentEvidence"
	ReasonProcessingFailure     Reason = "ProcessingFailure"
)

// Rejection is the terminal state of a listing that did not pass the gate.
type Rejection struct {
	IdentityKey string `json:"identity_key"`
	Reason      Reason `json:"reason"`
	Detail      string `json:"detail,omitempty"`
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return fmt.Sprintf("listing %q rejected: %s", r.IdentityKey, r.Reason)
	}
	return fmt.Sprintf("listing %q rejected: %s (%s)", r.IdentityKey, r.Reason, r.Detail)
}

// Candidate is a reconciled listing that has not been through the gate yet.
type Candidate struct {
	Listing NormalizedListing
	Missing bool
}

type DiscountRange struct {
	Low  int `json:"low" yaml:"low"`
	High int `json:"high" yaml:"high"`
}

func (r DiscountRange) normalized() DiscountRange {
	low, high := clampPercent(r.Low), clampPercent(r.High)
	if low > high {
		low, high = high, low
	}
	return DiscountRange{Low: low, High: high}
}

func (r DiscountRange) Contains(v int) bool {
	n := r.normalized()
	return v >= n.Low && v <= n.High
}

type KnownEntity struct {
	IdentityKey string
	Category    string
	FallbackURL string
}

type RunConfig struct {
	MinDiscountThreshold  int
	KnownEntities         []KnownEntity
	FallbackDiscountRange DiscountRange
}

type Report struct {
	Listings   []NormalizedListing `json:"listings"`
	Rejections []Rejection         `json:"rejections"`
	Accepted   int                 `json:"accepted"`
	Rejected   int                 `json:"rejected"`
	Estimated  int                 `json:"estimated"`
	Duplicates int                 `json:"duplicates"`
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func strPtr(s string) *string {
	return &s
}
