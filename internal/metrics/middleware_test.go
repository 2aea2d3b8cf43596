package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	Init()
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/api/search", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Post("/api/indexPage", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	before200 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200"))
	before502 := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "502"))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/search?query=x", nil))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/indexPage?url=x", nil))

	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")); got != before200+1 {
		t.Errorf("expected one GET 200, got %f", got-before200)
	}
	if got := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("POST", "502")); got != before502+1 {
		t.Errorf("expected one POST 502, got %f", got-before502)
	}
	if n := testutil.CollectAndCount(httpRequestDurationSeconds, "searchengine_http_request_duration_seconds"); n < 2 {
		t.Errorf("expected duration series for both routes, got %d", n)
	}
}

func TestMiddlewareWithoutRouter(t *testing.T) {
	Init()
	handler := Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bare", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status passthrough, got %d", rec.Code)
	}
}
