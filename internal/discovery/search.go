package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// PageFetcher is satisfied by *httpx.CollyFetcher.
type PageFetcher interface {
	FetchBytes(ctx context.Context, rawURL string) ([]byte, int, error)
}

const DefaultEndpoint = "https://html.duckduckgo.com/html/"

// duckDuckSearch fetches a small set of result URLs from the DuckDuckGo html
// endpoint for a query.
func duckDuckSearch(ctx context.Context, fetcher PageFetcher, endpoint, query string, limit int) ([]string, error) {
	reqURL := endpoint + "?q=" + url.QueryEscape(query)

	body, _, err := fetcher.FetchBytes(ctx, reqURL)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse results: %w", err)
	}

	var urls []string
	seen := make(map[string]struct{})
	doc.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if limit > 0 && len(urls) >= limit {
			return false
		}
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return true
		}

		// DuckDuckGo rewrites links as /l/?uddg=<encoded>
		if strings.Contains(href, "duckduckgo.com/l/?") || strings.HasPrefix(href, "/l/?") {
			if decoded := decodeDDGLink(href); decoded != "" {
				href = decoded
			}
		}

		if !strings.HasPrefix(href, "http") {
			return true
		}
		if strings.Contains(href, "duckduckgo.com") {
			return true
		}
		if _, dup := seen[href]; dup {
			return true
		}
		seen[href] = struct{}{}
		urls = append(urls, href)
		return true
	})

	return urls, nil
}

func decodeDDGLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	// Query() already unescapes the value once.
	return u.Query().Get("uddg")
}
