// Package api hosts the HTTP server, middleware, and handlers for operator access.
// Notable routes:
//   - GET /healthz for liveness checks.
//   - GET /metrics for Prometheus scraping, when enabled.
//   - GET /api/statistics, /api/startIndexing and /api/stopIndexing for the indexing lifecycle.
//   - POST /api/indexPage?url= to reindex one page.
//   - GET /api/search?query=&site=&offset=&limit= for ranked search.
//
// Every /api response is a JSON envelope with a boolean "result" field; failures add "error".
package api
