package listing

import "fmt"

// Gate accepts or rejects reconciled candidates. It never modifies them.
type Gate struct {
	MinDiscount int
}

func (g Gate) Check(c Candidate) error {
	if c.Missing {
		return &Rejection{
			IdentityKey: c.Listing.IdentityKey,
			Reason:      ReasonMissingMandatoryField,
			Detail:      "no sale price found by any strategy",
		}
	}
	if c.Listing.DiscountPercent < g.MinDiscount {
		return &Rejection{
			IdentityKey: c.Listing.IdentityKey,
			Reason:      ReasonBelowThreshold,
			Detail:      fmt.Sprintf("discount %d%% below minimum %d%%", c.Listing.DiscountPercent, g.MinDiscount),
		}
	}
	return nil
}
