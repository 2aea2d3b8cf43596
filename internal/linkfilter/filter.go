// Package linkfilter decides which discovered links a site crawl follows.
package linkfilter

import (
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/site-search/internal/index"
)

var defaultExtensions = []string{
	".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".odt", ".ods", ".rtf",
	".zip", ".rar", ".7z", ".gz", ".tar", ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg",
	".webp", ".ico", ".mp3", ".wav", ".ogg", ".mp4", ".avi", ".mov", ".webm", ".xml",
	".shtml", ".css", ".js", ".json", ".exe", ".apk", ".dmg",
}

// query parameters that mark pagination and tracking links
var (
	defaultQueryParams        = []string{"page", "ref", "main_click"}
	defaultQueryParamPrefixes = []string{"utm_"}
)

// Filter accepts in-scope, fetchable page links.
type Filter struct {
	extensions    map[string]struct{}
	queryParams   map[string]struct{}
	queryPrefixes []string
}

// Option customizes a Filter.
type Option func(*Filter)

// WithExtraExtensions rejects additional file extensions (leading dot optional).
func WithExtraExtensions(exts ...string) Option {
	return func(f *Filter) {
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				continue
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			f.extensions[ext] = struct{}{}
		}
	}
}

// New returns a Filter with the default rejection rules.
func New(opts ...Option) *Filter {
	f := &Filter{
		extensions:    make(map[string]struct{}, len(defaultExtensions)),
		queryParams:   make(map[string]struct{}, len(defaultQueryParams)),
		queryPrefixes: defaultQueryParamPrefixes,
	}
	for _, ext := range defaultExtensions {
		f.extensions[ext] = struct{}{}
	}
	for _, param := range defaultQueryParams {
		f.queryParams[param] = struct{}{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Accept reports whether candidate is an http(s) page under siteRoot worth fetching.
func (f *Filter) Accept(candidate, siteRoot string) bool {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" || strings.Contains(candidate, "#") {
		return false
	}
	if !index.HasRoot(candidate, siteRoot) {
		return false
	}
	u, err := url.Parse(candidate)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return false
	}
	if f.trackingQuery(u.Query()) {
		return false
	}
	if _, rejected := f.extensions[strings.ToLower(path.Ext(u.Path))]; rejected {
		return false
	}
	return true
}

func (f *Filter) trackingQuery(query url.Values) bool {
	for key := range query {
		key = strings.ToLower(key)
		if _, rejected := f.queryParams[key]; rejected {
			return true
		}
		for _, prefix := range f.queryPrefixes {
			if strings.HasPrefix(key, prefix) {
				return true
			}
		}
	}
	return false
}

// Select returns the accepted links in canonical form, in order, without duplicates.
func (f *Filter) Select(candidates []string, siteRoot string) []string {
	seen := make(map[string]struct{}, len(candidates))
	var out []string
	for _, link := range candidates {
		link = index.CanonicalURL(strings.TrimSpace(link))
		if _, dup := seen[link]; dup || !f.Accept(link, siteRoot) {
			continue
		}
		seen[link] = struct{}{}
		out = append(out, link)
	}
	return out
}
