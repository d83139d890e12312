package catalog

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

func newCatalogRouter() http.Handler {
	mw := rbac.Middleware{}
	h := NewHandler(slog.Default(), NewService(NewMemoryRepository()), mw)
	r := chi.NewRouter()
	r.Use(mw.Identify)
	r.Route("/catalog", h.MountRoutes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, path, role, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(rbac.HeaderRole, role)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCatalogHandlerFlow(t *testing.T) {
	router := newCatalogRouter()

	rec := doJSON(t, router, http.MethodPost, "/catalog/taxes", rbac.RoleAdmin,
		`{"name":"GST 18%","computation":"percentage","value":"18","on_sales":true,"on_purchase":true}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/catalog/products", rbac.RoleAdmin,
		`{"name":"Office Chair","sale_price":"150","purchase_price":"100","tax_name":"GST 18%"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/catalog/products", rbac.RoleAdmin,
		`{"name":"Office Chair","sale_price":"150","purchase_price":"100"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/catalog/products", rbac.RoleViewer, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []Product `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "GST 18%", body.Data[0].TaxName)
}

func TestCatalogHandlerRejects(t *testing.T) {
	router := newCatalogRouter()

	rec := doJSON(t, router, http.MethodPost, "/catalog/taxes", rbac.RoleViewer, `{"name":"VAT","computation":"percentage","value":"10"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/catalog/taxes", rbac.RoleAdmin, `{"name":"VAT","computation":"compound"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/catalog/products", rbac.RoleAdmin, `{"name":"Desk","tax_name":"Missing"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
