package scraper

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ldProduct is the part of a schema.org Product we use as price evidence.
type ldProduct struct {
	Name      string
	URL       string
	Image     string
	Price     string
	ListPrice string
	Currency  string
}

func parseJSONLDProducts(raw string) []ldProduct {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var payload any
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	var products []ldProduct
	findProducts(payload, &products)
	return products
}

func findProducts(payload any, out *[]ldProduct) {
	switch t := payload.(type) {
	case map[string]any:
		if p := productFromMap(t); p != nil {
			*out = append(*out, *p)
		}
		if graph, ok := t["@graph"].([]any); ok {
			for _, item := range graph {
				findProducts(item, out)
			}
		}
		// ItemList of products on collection pages.
		if items, ok := t["itemListElement"].([]any); ok {
			for _, item := range items {
				if m, ok := item.(map[string]any); ok {
					if inner, ok := m["item"]; ok {
						findProducts(inner, out)
						continue
					}
				}
				findProducts(item, out)
			}
		}
	case []any:
		for _, item := range t {
			findProducts(item, out)
		}
	}
}

func productFromMap(payload map[string]any) *ldProduct {
	if !isType(payload["@type"], "Product") {
		return nil
	}
	p := &ldProduct{
		Name:  stringField(payload["name"]),
		URL:   stringField(payload["url"]),
		Image: imageField(payload["image"]),
	}
	readOffers(payload["offers"], p)
	if p.Price == "" {
		return nil
	}
	return p
}

func readOffers(v any, p *ldProduct) {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			readOffers(item, p)
			if p.Price != "" {
				return
			}
		}
	case map[string]any:
		price := stringField(t["price"])
		if price == "" {
			price = stringField(t["lowPrice"])
		}
		if price == "" {
			return
		}
		p.Price = price
		p.Currency = stringField(t["priceCurrency"])
		p.ListPrice = listPrice(t["priceSpecification"])
	}
}

// listPrice finds a strikethrough or list price in a priceSpecification.
func listPrice(v any) string {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if lp := listPrice(item); lp != "" {
				return lp
			}
		}
	case map[string]any:
		kind := strings.ToLower(stringField(t["priceType"]))
		if strings.Contains(kind, "listprice") || strings.Contains(kind, "strikethroughprice") {
			return stringField(t["price"])
		}
	}
	return ""
}

func stringField(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if val, ok := t["@value"]; ok {
			return stringField(val)
		}
	}
	return ""
}

func imageField(v any) string {
	switch t := v.(type) {
	case []any:
		for _, item := range t {
			if s := imageField(item); s != "" {
				return s
			}
		}
	case map[string]any:
		return stringField(t["url"])
	}
	return stringField(v)
}

func isType(t any, want string) bool {
	switch v := t.(type) {
	case string:
		return v == want
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}
