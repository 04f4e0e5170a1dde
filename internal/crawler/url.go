package crawler

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultOrigin is the site every relative link is resolved against.
const DefaultOrigin = "https://www.hemnet.se"

// DefaultUserAgent is the fixed client identity used for robots evaluation and fetches.
const DefaultUserAgent = "Mozilla/5.0 (platform; rv:geckoversion) Gecko/geckotrail Firefox/90.0.2 (64-bit)"

// IsRemote reports whether address points at the network rather than a local file.
func IsRemote(address string) bool {
	return strings.HasPrefix(address, "http")
}

// NormalizeAddress rewrites relative paths to absolute form against origin.
// Absolute http(s) addresses are returned unchanged; protocol-relative ones take
// the origin's scheme.
func NormalizeAddress(origin, address string) string {
	address = strings.TrimSpace(address)
	if address == "" || IsRemote(address) {
		return address
	}
	origin = strings.TrimRight(origin, "/")
	if strings.HasPrefix(address, "//") {
		scheme := "https"
		if u, err := url.Parse(origin); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + address
	}
	if !strings.HasPrefix(address, "/") {
		address = "/" + address
	}
	return origin + address
}

// ResultPageAddress builds the address of the page-th search-results page for seed.
func ResultPageAddress(origin, seed string, page int) string {
	base := seed
	if strings.HasPrefix(base, "/") {
		base = NormalizeAddress(origin, base)
	}
	sep := "&"
	if !strings.Contains(base, "?") {
		sep = "?"
	}
	return fmt.Sprintf("%s%spage=%d", base, sep, page)
}

// RobotsPath returns the path and query robots rules are tested against.
func RobotsPath(address string) (string, error) {
	u, err := url.Parse(address)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p, nil
}
