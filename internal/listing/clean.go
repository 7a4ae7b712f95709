package listing

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanedText is the read-only view of a bag's raw text that strategies work
// on. Noise fragments (coin widgets, installment offers) are already removed.
type CleanedText struct {
	text string
}

func (c CleanedText) String() string {
	return c.text
}

// Clean builds the cleaned view of bag.RawText. The bag itself is not touched.
// Digit groups joined by no-break spaces survive whitespace collapsing.
func Clean(bag SignalBag) CleanedText {
	text := norm.NFKC.String(foldDigitSpaces(bag.RawText))
	for _, noise := range bag.NoiseTexts {
		noise = strings.TrimSpace(norm.NFKC.String(foldDigitSpaces(noise)))
		if noise == "" {
			continue
		}
		text = strings.ReplaceAll(text, noise, " ")
	}
	return CleanedText{text: strings.Join(strings.Fields(text), " ")}
}
