package scraper

import (
	"strings"

	"golang.org/x/net/html"
)

// TextNormalizer turns an HTML document into its visible text.
type TextNormalizer struct{}

func NewTextNormalizer() *TextNormalizer {
	return &TextNormalizer{}
}

func (n *TextNormalizer) Normalize(htmlContent string) (string, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", err
	}
	return ExtractText(doc), nil
}

// ExtractText returns the visible text under n with whitespace collapsed.
// Text nodes are separated so adjacent prices do not run together.
func ExtractText(n *html.Node) string {
	var parts []string
	collectText(n, &parts)
	return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
}

func collectText(n *html.Node, out *[]string) {
	if n == nil {
		return
	}
	switch n.Type {
	case html.TextNode:
		if s := strings.TrimSpace(n.Data); s != "" {
			*out = append(*out, s)
		}
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		switch n.Data {
		case "script", "style", "noscript", "template", "svg":
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, out)
	}
}
