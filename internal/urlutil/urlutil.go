package urlutil

import (
	"errors"
	"net/url"
	"path"
	"sort"
	"strings"
)

var staticExtensions = map[string]struct{}{
	".css":   {},
	".gif":   {},
	".ico":   {},
	".jpeg":  {},
	".jpg":   {},
	".js":    {},
	".mp4":   {},
	".pdf":   {},
	".png":   {},
	".svg":   {},
	".webp":  {},
	".woff":  {},
	".woff2": {},
	".zip":   {},
}

// trackingParams are dropped by Normalize. Retailer cards append them to
// every product link, which would otherwise defeat deduplication.
var trackingParams = map[string]struct{}{
	"gclid":          {},
	"fbclid":         {},
	"ref":            {},
	"spm":            {},
	"from":           {},
	"clicktrackinfo": {},
	"search":         {},
}

var ErrNotAbsolute = errors.New("url is not absolute http(s)")

// Normalize returns a canonical form of raw and its host: https default,
// lower-case host without www, no fragment, no tracking parameters, sorted
// query.
func Normalize(raw string) (string, string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	// "daraz.pk/x" parses as a path.
	if u.Scheme == "" && u.Host == "" && !strings.HasPrefix(raw, "/") {
		if u, err = url.Parse("https://" + raw); err != nil {
			return "", "", err
		}
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Fragment = ""
	u.Host = normalizeHost(u.Host)
	u.Path = normalizePath(u.Path)
	u.RawQuery = normalizeQuery(u.RawQuery)
	return u.String(), u.Hostname(), nil
}

// Resolve makes href absolute against base. Protocol-relative links are
// upgraded to https.
func Resolve(base, href string) (string, error) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", ErrNotAbsolute
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", err
	}
	if !ref.IsAbs() {
		b, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		ref = b.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" || ref.Host == "" {
		return "", ErrNotAbsolute
	}
	return ref.String(), nil
}

// ImageURL resolves an image attribute value. Inline data URIs and lazy-load
// placeholders are rejected.
func ImageURL(base, raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return "", false
	}
	// srcset style values: keep the first candidate.
	if i := strings.IndexByte(raw, ' '); i > 0 {
		raw = raw[:i]
	}
	abs, err := Resolve(base, raw)
	if err != nil {
		return "", false
	}
	return abs, true
}

// WithParams appends params to raw. Keys already present in raw are left
// untouched, so decorating twice is a no-op.
func WithParams(raw string, params url.Values) string {
	if len(params) == 0 {
		return raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	changed := false
	for _, k := range keys {
		if q.Has(k) || params.Get(k) == "" {
			continue
		}
		q.Set(k, params.Get(k))
		changed = true
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// HostMatches reports whether raw points at domain or one of its subdomains.
func HostMatches(raw, domain string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := normalizeHost(u.Hostname())
	domain = normalizeHost(domain)
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// IsPage reports whether raw is an absolute http(s) URL that is not a static
// asset.
func IsPage(raw string) bool {
	normalized, host, err := Normalize(raw)
	if err != nil || host == "" {
		return false
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return !isStaticAssetPath(u.Path)
}

func normalizeHost(host string) string {
	host = strings.ToLower(host)
	return strings.TrimPrefix(host, "www.")
}

func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	clean := path.Clean(p)
	if clean == "." {
		return "/"
	}
	return clean
}

func normalizeQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	for key := range values {
		lk := strings.ToLower(key)
		if _, drop := trackingParams[lk]; drop || strings.HasPrefix(lk, "utm_") {
			delete(values, key)
		}
	}
	if len(values) == 0 {
		return ""
	}
	// Encode sorts by key.
	return values.Encode()
}

func isStaticAssetPath(p string) bool {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return false
	}
	_, ok := staticExtensions[ext]
	return ok
}
