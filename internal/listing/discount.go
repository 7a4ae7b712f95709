package listing

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var (
	percentRe = regexp.MustCompile(`(-?)\s*(\d+(?:\.\d+)?)\s*%`)
	offCueRe  = regexp.MustCompile(`\b(off|save|saving|discount|flat|less)\b`)

	hundred = decimal.NewFromInt(100)
)

// DiscountFromBadge reads a percentage from badge text. When several values
// are present the one nearest to a "-" or "off"-style cue wins; without a
// cue, or on equal distance, the first occurrence wins. Fractional values
// such as "45.5%" round half away from zero.
func DiscountFromBadge(text string) (int, bool) {
	text = strings.ToLower(norm.NFKC.String(text))
	matches := percentRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return 0, false
	}

	cues := offCueRe.FindAllStringIndex(text, -1)

	best, bestDist := -1, -1
	for _, m := range matches {
		d, err := decimal.NewFromString(text[m[4]:m[5]])
		if err != nil {
			continue
		}
		v := int(d.Round(0).IntPart())
		if v > 100 {
			continue
		}
		dist := cueDistance(m, cues)
		if best == -1 {
			best, bestDist = v, dist
			continue
		}
		if dist >= 0 && (bestDist < 0 || dist < bestDist) {
			best, bestDist = v, dist
		}
	}
	if best == -1 {
		return 0, false
	}
	return best, true
}

// cueDistance returns the byte distance from a percent match to the closest
// cue, 0 for a leading minus sign, or -1 when there is no cue at all.
func cueDistance(m []int, cues [][]int) int {
	if m[3] > m[2] {
		return 0
	}
	dist := -1
	for _, c := range cues {
		var d int
		switch {
		case c[0] >= m[1]:
			d = c[0] - m[1]
		case c[1] <= m[0]:
			d = m[0] - c[1]
		default:
			d = 0
		}
		if dist < 0 || d < dist {
			dist = d
		}
	}
	return dist
}

// DiscountFromPrices computes round(100*(1-sale/original)), rounding half
// away from zero. It returns 0 when there is no markdown.
func DiscountFromPrices(sale, original decimal.Decimal) int {
	if original.IsZero() || original.LessThanOrEqual(sale) {
		return 0
	}
	pct := hundred.Mul(decimal.NewFromInt(1).Sub(sale.Div(original))).Round(0)
	return clampPercent(int(pct.IntPart()))
}

// OriginalFromDiscount back-derives the pre-sale price, rounded to cents.
func OriginalFromDiscount(sale decimal.Decimal, discount int) (decimal.Decimal, bool) {
	if discount <= 0 || discount >= 100 {
		return decimal.Zero, false
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromInt(int64(discount)).Div(hundred))
	return sale.Div(factor).Round(2), true
}
