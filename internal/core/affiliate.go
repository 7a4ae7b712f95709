package core

import (
	"net/url"

	"github.com/baxromumarov/sale-hunter/internal/urlutil"
)

const (
	darazDomain    = "daraz.pk"
	priceOyeDomain = "priceoye.pk"
)

// Affiliate appends partner parameters to retailer links. Empty ids disable
// decoration for that retailer.
type Affiliate struct {
	DarazID    string
	PriceOyeID string
	UTMSource  string
	UTMMedium  string
}

// Decorate never overrides parameters the link already carries, so an
// existing aff_id is kept and decorating twice changes nothing.
func (a Affiliate) Decorate(raw string) string {
	switch {
	case raw == "":
		return raw
	case a.DarazID != "" && urlutil.HostMatches(raw, darazDomain):
		return urlutil.WithParams(raw, url.Values{"aff_id": {a.DarazID}})
	case a.PriceOyeID != "" && urlutil.HostMatches(raw, priceOyeDomain):
		return urlutil.WithParams(raw, url.Values{
			"utm_source": {a.UTMSource},
			"utm_medium": {a.UTMMedium},
			"aff_id":     {a.PriceOyeID},
		})
	}
	return raw
}
