package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/documents"
	"github.com/odyssey-erp/odyssey-books/internal/observability"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
	"github.com/odyssey-erp/odyssey-books/jobs"
)

func newTestServer(t *testing.T, ready func(context.Context) error) http.Handler {
	t.Helper()
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000, MetricsEnabled: true}
	logger := slog.Default()
	mw := rbac.Middleware{Logger: logger}
	metrics := observability.NewMetrics()

	catalogService := catalog.NewService(catalog.NewMemoryRepository())
	engine := documents.NewEngine(documents.NewMemoryRepository(), documents.Options{
		Taxes:   catalogService,
		Metrics: metrics,
		Logger:  logger,
	})

	return NewRouter(RouterParams{
		Logger:           logger,
		Config:           cfg,
		RBACMiddleware:   mw,
		DocumentsHandler: documents.NewHandler(logger, documents.NewServices(engine), mw, shared.NewMemoryIdempotencyStore()),
		CatalogHandler:   catalog.NewHandler(logger, catalogService, mw),
		JobHandler:       jobs.NewHandler(nil, logger),
		Metrics:          metrics,
		Ready:            ready,
	})
}

func serve(h http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set(rbac.HeaderRole, role)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	router := newTestServer(t, nil)

	rec := serve(router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))

	rec = serve(router, http.MethodPost, "/sales-orders", rbac.RoleAdmin,
		`{"party_name":"Globex","lines":[{"product_name":"Desk","quantity":"1","unit_price":"50","tax_percent":"0"}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = serve(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "odyssey_http_requests_total")
}

func TestRouterMountsDomainRoutes(t *testing.T) {
	router := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/purchase-orders", rbac.RoleViewer, "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/catalog/taxes", rbac.RoleViewer, "").Code)
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/jobs/health", "", "").Code)
	assert.Equal(t, http.StatusForbidden, serve(router, http.MethodGet, "/payments", "", "").Code)
}

func TestRouterHealthReportsBackendFailure(t *testing.T) {
	router := newTestServer(t, func(context.Context) error { return errors.New("pool closed") })

	rec := serve(router, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
