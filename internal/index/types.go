// Package index defines the inverted-index data model shared by the crawl and search paths.
package index

import (
	"net/url"
	"strings"
	"time"
)

// SiteStatus tracks a site's position in the crawl lifecycle.
type SiteStatus string

// Site lifecycle states. Indexed and Failed are terminal for one crawl cycle.
const (
	StatusQueued   SiteStatus = "QUEUED"
	StatusCrawling SiteStatus = "CRAWLING"
	StatusIndexed  SiteStatus = "INDEXED"
	StatusFailed   SiteStatus = "FAILED"
)

// IsTerminal reports whether the status ends a crawl cycle.
func (s SiteStatus) IsTerminal() bool {
	return s == StatusIndexed || s == StatusFailed
}

// SiteConfig is an operator-configured root URL and display name.
type SiteConfig struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

// Site is one configured site as persisted by the store.
type Site struct {
	ID         int64
	URL        string
	Name       string
	Status     SiteStatus
	StatusTime time.Time
	// LastError is only set when Status is StatusFailed.
	LastError string
}

// RelativePath strips the site root from an absolute page path.
func (s Site) RelativePath(path string) string {
	rel := strings.TrimPrefix(path, s.URL)
	if rel == "" {
		return "/"
	}
	return rel
}

// Page is a fetched document. Path holds the absolute URL and is unique per site.
type Page struct {
	ID      int64
	SiteID  int64
	Path    string
	Code    int
	Content string
}

// Lemma is the canonical (site, term) row. Frequency is the summed occurrence count of the
// term over every page of the site.
type Lemma struct {
	ID        int64
	SiteID    int64
	Term      string
	Frequency int
}

// Posting links a page to a lemma with the term's local weight on that page.
type Posting struct {
	ID      int64
	PageID  int64
	LemmaID int64
	Rank    float64
}

// HasRoot reports whether rawURL equals root or extends it at a path, query or fragment boundary.
func HasRoot(rawURL, root string) bool {
	root = NormalizeRoot(root)
	if root == "" || !strings.HasPrefix(rawURL, root) {
		return false
	}
	rest := rawURL[len(root):]
	return rest == "" || rest[0] == '/' || rest[0] == '?' || rest[0] == '#'
}

// NormalizeRoot trims surrounding whitespace and trailing slashes from a site root URL.
func NormalizeRoot(root string) string {
	return strings.TrimRight(strings.TrimSpace(root), "/")
}

// CanonicalURL returns the form of a page URL used as its identity: a URL with a host but an
// empty path gets "/", so "https://example.com" and "https://example.com/" are one page.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || u.Path != "" || u.Opaque != "" {
		return raw
	}
	u.Path = "/"
	return u.String()
}
