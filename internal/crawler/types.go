package crawler

import (
	"mime"
	"net/http"
	"strings"
	"time"
)

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Referer string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	// URL is the final URL after redirects.
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// MediaType returns the lowercased response media type without parameters.
func (r FetchResponse) MediaType() string {
	raw := r.Headers.Get("Content-Type")
	if raw == "" {
		return ""
	}
	mediaType, _, err := mime.ParseMediaType(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.SplitN(raw, ";", 2)[0]))
	}
	return mediaType
}

// IsText reports whether the response carries HTML or another textual document.
// A missing Content-Type is treated as text.
func (r FetchResponse) IsText() bool {
	mediaType := r.MediaType()
	switch {
	case mediaType == "":
		return true
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case mediaType == "application/xhtml+xml":
		return true
	}
	return false
}
