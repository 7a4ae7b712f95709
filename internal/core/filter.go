package core

import "strings"

func MatchesKeywords(text string, keywords []string) bool {
	lowerText := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lowerText, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// ParseKeywords splits a comma separated keyword list, dropping blanks.
func ParseKeywords(raw string) []string {
	var out []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

// categoryAliases folds the names retailers use for the same shelf.
var categoryAliases = map[string]string{
	"mobiles":      "Mobile",
	"mobile":       "Mobile",
	"smart phones": "Mobile",
	"smartphones":  "Mobile",
}

func NormalizeCategory(category string) string {
	category = strings.TrimSpace(category)
	if alias, ok := categoryAliases[strings.ToLower(category)]; ok {
		return alias
	}
	return category
}
