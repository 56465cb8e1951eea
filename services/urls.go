package services

import (
	"regexp"
	"strings"
)

var listingIDRegexp = regexp.MustCompile(`^\d+$`)

// URLNormalizer rewrites the known alternate host/protocol prefixes of the
// source site to its canonical https prefix. Every identity comparison
// between listing or message URLs goes through it first.
type URLNormalizer struct {
	root       string
	alternates []string
}

// NewURLNormalizer builds the alternates from root, e.g. "https://www.spareroom.co.uk":
// "http://www.spareroom.co.uk", "www.spareroom.co.uk", "https://m.spareroom.co.uk",
// "http://m.spareroom.co.uk" and "m.spareroom.co.uk".
func NewURLNormalizer(root string) *URLNormalizer {
	root = strings.TrimRight(strings.TrimSpace(root), "/")
	host := strings.TrimPrefix(strings.TrimPrefix(root, "https://"), "http://")
	mobile := "m." + strings.TrimPrefix(host, "www.")

	// Longest prefixes first so "http://m." wins over "m.".
	return &URLNormalizer{
		root: "https://" + host,
		alternates: []string{
			"http://" + host,
			"https://" + mobile,
			"http://" + mobile,
			host,
			mobile,
		},
	}
}

// Root returns the canonical prefix.
func (n *URLNormalizer) Root() string { return n.root }

// Normalize trims url and rewrites an alternate prefix to the canonical one.
func (n *URLNormalizer) Normalize(url string) string {
	url = strings.TrimSpace(url)
	if strings.HasPrefix(url, n.root) {
		return url
	}
	for _, alt := range n.alternates {
		if strings.HasPrefix(url, alt) {
			return n.root + strings.TrimPrefix(url, alt)
		}
	}
	return url
}

// IsSource reports whether url belongs to the source site.
func (n *URLNormalizer) IsSource(url string) bool {
	return strings.HasPrefix(url, n.root)
}

// Resolve accepts a URL in any known form or a bare numeric listing id and
// returns the canonical URL, or false when it is neither.
func (n *URLNormalizer) Resolve(input string) (string, bool) {
	input = strings.TrimSpace(input)
	if listingIDRegexp.MatchString(input) {
		return n.root + "/" + input, true
	}
	url := n.Normalize(input)
	return url, n.IsSource(url)
}
