package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/site-search/internal/config"
	"github.com/JakeFAU/site-search/internal/index"
	"github.com/JakeFAU/site-search/internal/logging"
)

type fruitSite struct {
	mu   sync.Mutex
	hits map[string]int
}

func (f *fruitSite) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.hits[r.URL.Path]++
	f.mu.Unlock()

	pages := map[string]string{
		"/": `<html><head><title>Stand</title></head><body>
<a href="/apple">fruit one</a> <a href="/banana">fruit two</a>
<a href="/doc.pdf">leaflet</a> <a href="https://other.example/x">elsewhere</a></body></html>`,
		"/apple":  `<html><head><title>Apples</title></head><body><p>apple apple pie</p><a href="/">home</a></body></html>`,
		"/banana": `<html><head><title>Bananas</title></head><body><p>banana bread with apple</p><a href="/apple">more</a></body></html>`,
	}
	body, ok := pages[r.URL.Path]
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(body))
}

func (f *fruitSite) count(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[path]
}

func testConfig(siteURL string) *config.Config {
	return &config.Config{
		Server:  config.ServerConfig{Port: 8080, RequestTimeout: 10 * time.Second},
		Logging: logging.Config{Level: "error"},
		Sites:   []index.SiteConfig{{URL: siteURL, Name: "Fruit"}},
		Crawler: config.CrawlerConfig{
			Parallelism:    2,
			Timeout:        30 * time.Second,
			RequestTimeout: 5 * time.Second,
			VisitedBackend: config.BackendMemory,
		},
		Storage: config.StorageConfig{Backend: config.BackendMemory},
		Search:  config.SearchConfig{DefaultLimit: 20},
		Metrics: config.MetricsConfig{Enabled: true},
	}
}

type searchBody struct {
	Result bool `json:"result"`
	Count  int  `json:"count"`
	Data   []struct {
		URI       string  `json:"uri"`
		Title     string  `json:"title"`
		Relevance float64 `json:"relevance"`
	} `json:"data"`
}

func get(t *testing.T, h http.Handler, target string, out any) int {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	if out != nil {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
	}
	return rec.Code
}

func TestCrawlIndexSearchEndToEnd(t *testing.T) {
	t.Parallel()

	site := &fruitSite{hits: map[string]int{}}
	ts := httptest.NewServer(site)
	defer ts.Close()

	ctx := context.Background()
	app, err := Build(ctx, testConfig(ts.URL))
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()
	h := app.Handler()

	require.Equal(t, http.StatusOK, get(t, h, "/api/startIndexing", nil))
	waitCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	require.NoError(t, app.indexing.Wait(waitCtx))

	for _, path := range []string{"/", "/apple", "/banana"} {
		require.Equal(t, 1, site.count(path), path)
	}
	require.Zero(t, site.count("/doc.pdf"))

	var stats struct {
		Statistics struct {
			Total struct {
				Pages    int  `json:"pages"`
				Indexing bool `json:"indexing"`
			} `json:"total"`
			Detailed []struct {
				Status string `json:"status"`
			} `json:"detailed"`
		} `json:"statistics"`
	}
	require.Equal(t, http.StatusOK, get(t, h, "/api/statistics", &stats))
	require.Equal(t, 3, stats.Statistics.Total.Pages)
	require.False(t, stats.Statistics.Total.Indexing)
	require.Equal(t, "INDEXED", stats.Statistics.Detailed[0].Status)

	var res searchBody
	require.Equal(t, http.StatusOK, get(t, h, "/api/search?query=apple", &res))
	require.Equal(t, 2, res.Count)
	require.Equal(t, "/apple", res.Data[0].URI)
	require.Equal(t, "Apples", res.Data[0].Title)
	require.Equal(t, 3.0, res.Data[0].Relevance)
	require.Equal(t, "/banana", res.Data[1].URI)

	res = searchBody{}
	require.Equal(t, http.StatusOK, get(t, h, "/api/search?query="+url.QueryEscape("apple banana"), &res))
	require.Equal(t, 1, res.Count)
	require.Equal(t, "/banana", res.Data[0].URI)

	var failure map[string]any
	require.Equal(t, http.StatusConflict, get(t, h, "/api/stopIndexing", &failure))
	require.Equal(t, "indexing is not running", failure["error"])
}

func TestIndexPageThroughAPI(t *testing.T) {
	t.Parallel()

	site := &fruitSite{hits: map[string]int{}}
	ts := httptest.NewServer(site)
	defer ts.Close()

	ctx := context.Background()
	app, err := Build(ctx, testConfig(ts.URL))
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close(ctx)) }()
	h := app.Handler()

	post := func(target string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
		return rec
	}

	for range 2 {
		rec := post("/api/indexPage?url=" + url.QueryEscape(ts.URL+"/apple"))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	require.Equal(t, 0, site.count("/"), "single-page indexing must not follow links")

	var res searchBody
	require.Equal(t, http.StatusOK, get(t, h, "/api/search?query=pie&site="+url.QueryEscape(ts.URL), &res))
	require.Equal(t, 1, res.Count)

	rec := post("/api/indexPage?url=" + url.QueryEscape(ts.URL+"/missing"))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	rec = post("/api/indexPage?url=" + url.QueryEscape("https://elsewhere.example/"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
