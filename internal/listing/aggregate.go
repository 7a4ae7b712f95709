package listing

import "sort"

// Aggregate deduplicates listings by identity key and ranks them: scraped
// records before estimates, then by discount descending. Within one class the
// first record seen for a key wins; a scraped record always replaces an
// estimate regardless of arrival order. The sort is stable.
func Aggregate(in []NormalizedListing) []NormalizedListing {
	out := make([]NormalizedListing, 0, len(in))
	index := make(map[string]int, len(in))

	for _, l := range in {
		i, seen := index[l.IdentityKey]
		if !seen {
			index[l.IdentityKey] = len(out)
			out = append(out, l)
			continue
		}
		if !out[i].Provenance.Real() && l.Provenance.Real() {
			out[i] = l
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := out[i].Provenance.Real(), out[j].Provenance.Real()
		if ri != rj {
			return ri
		}
		return out[i].DiscountPercent > out[j].DiscountPercent
	})
	return out
}
