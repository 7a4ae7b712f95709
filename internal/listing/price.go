package listing

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

// numberToken matches one run of digits with embedded separators. A plain
// space never joins digits: "Rs. 999 250 sold" is a price and a count.
// No-break and thin spaces between digits are folded to an apostrophe by
// foldDigitSpaces before NFKC would turn them into plain spaces.
const numberToken = `\d(?:[\d,.']*\d)?`

var (
	numberRe = regexp.MustCompile(numberToken)

	markerMu sync.RWMutex
	markerRe = map[string]*regexp.Regexp{}
)

// ResolvePrice extracts the first price-looking number from text. Currency
// markers, thousands separators and surrounding whitespace are ignored.
func ResolvePrice(text string) (decimal.Decimal, bool) {
	text = strings.TrimSpace(norm.NFKC.String(foldDigitSpaces(text)))
	if text == "" {
		return decimal.Zero, false
	}
	token := numberRe.FindString(text)
	if token == "" {
		return decimal.Zero, false
	}
	return parseNumber(token)
}

// CurrencyPrices returns every number in text that directly follows the
// currency marker, in text order. Tokens that do not parse are skipped.
func CurrencyPrices(text, marker string) []decimal.Decimal {
	re := currencyPattern(marker)
	matches := re.FindAllStringSubmatch(norm.NFKC.String(foldDigitSpaces(text)), -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]decimal.Decimal, 0, len(matches))
	for _, m := range matches {
		if v, ok := parseNumber(m[1]); ok {
			out = append(out, v)
		}
	}
	return out
}

func currencyPattern(marker string) *regexp.Regexp {
	marker = strings.TrimSpace(marker)
	if marker == "" {
		marker = DefaultCurrencyMarker
	}

	markerMu.RLock()
	re, ok := markerRe[marker]
	markerMu.RUnlock()
	if ok {
		return re
	}

	// "Rs." also matches "Rs" and "rs." since cards are inconsistent about it.
	quoted := regexp.QuoteMeta(strings.TrimSuffix(marker, "."))
	if strings.HasSuffix(marker, ".") {
		quoted += `\.?`
	}
	if isWordStart(marker) {
		quoted = `\b` + quoted
	}
	re = regexp.MustCompile(`(?i)` + quoted + `\s*(` + numberToken + `)`)

	markerMu.Lock()
	markerRe[marker] = re
	markerMu.Unlock()
	return re
}

func isWordStart(s string) bool {
	c := s[0]
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// foldDigitSpaces rewrites a no-break, narrow or thin space sitting between
// two digits as an apostrophe, which numberToken accepts as a grouping mark.
func foldDigitSpaces(s string) string {
	if !strings.ContainsAny(s, "\u00a0\u202f\u2009\u2007") {
		return s
	}
	runes := []rune(s)
	for i := 1; i < len(runes)-1; i++ {
		switch runes[i] {
		case '\u00a0', '\u202f', '\u2009', '\u2007':
			if unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
				runes[i] = '\''
			}
		}
	}
	return string(runes)
}

func parseNumber(token string) (decimal.Decimal, bool) {
	token = strings.Map(func(r rune) rune {
		switch r {
		case '\'':
			return -1
		}
		return r
	}, token)

	dots := strings.Count(token, ".")
	commas := strings.Count(token, ",")

	switch {
	case dots > 0 && commas > 0:
		// The right-most separator is the decimal one.
		if strings.LastIndex(token, ".") > strings.LastIndex(token, ",") {
			if dots > 1 {
				return decimal.Zero, false
			}
			token = strings.ReplaceAll(token, ",", "")
		} else {
			if commas > 1 {
				return decimal.Zero, false
			}
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		}
	case commas == 1 && decimalTail(token, ','):
		token = strings.Replace(token, ",", ".", 1)
	case commas > 0:
		if !thousandsGrouped(token, ',') {
			return decimal.Zero, false
		}
		token = strings.ReplaceAll(token, ",", "")
	case dots > 1:
		if !thousandsGrouped(token, '.') {
			return decimal.Zero, false
		}
		token = strings.ReplaceAll(token, ".", "")
	}

	v, err := decimal.NewFromString(token)
	if err != nil || v.IsNegative() {
		return decimal.Zero, false
	}
	return v, true
}

// decimalTail reports whether sep is followed by one or two trailing digits.
func decimalTail(token string, sep byte) bool {
	i := strings.LastIndexByte(token, sep)
	tail := len(token) - i - 1
	return tail == 1 || tail == 2
}

// thousandsGrouped accepts western (1,234,567) and south asian (12,34,567)
// digit grouping.
func thousandsGrouped(token string, sep byte) bool {
	parts := strings.Split(token, string(sep))
	if len(parts[0]) == 0 || len(parts[0]) > 3 {
		return false
	}
	if len(parts[len(parts)-1]) != 3 {
		return false
	}
	for _, p := range parts[1 : len(parts)-1] {
		if len(p) != 2 && len(p) != 3 {
			return false
		}
	}
	return true
}
