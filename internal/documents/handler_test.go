package documents

import (
	"context"
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
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

func newTestRouter(t *testing.T) (http.Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	mw := rbac.Middleware{}
	h := NewHandler(slog.Default(), f.svc, mw, shared.NewMemoryIdempotencyStore())
	r := chi.NewRouter()
	r.Use(mw.Identify)
	h.MountRoutes(r)
	return r, f
}

type call struct {
	method string
	path   string
	role   string
	body   string
	key    string
}

func (c call) do(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(c.method, c.path, strings.NewReader(c.body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(rbac.HeaderRole, c.role)
	req.Header.Set(rbac.HeaderActor, "tester")
	if c.key != "" {
		req.Header.Set(IdempotencyHeader, c.key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const orderBody = `{"party_name":"Acme","lines":[{"product_name":"Office Chair","quantity":"2","unit_price":"100","tax_percent":"18"}]}`

func TestHandlerPurchaseToPayment(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := rbac.RoleAdmin

	rec := call{http.MethodPost, "/purchase-orders", admin, orderBody, ""}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	po := decodeBody[Document](t, rec)
	assertDecimal(t, "236", po.Totals.Total)

	rec = call{http.MethodPut, "/purchase-orders/" + po.ID.String(), admin, `{"note":"rush","status":"confirmed"}`, ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	po = decodeBody[Document](t, rec)
	assert.Equal(t, StatusConfirmed, po.Status)
	assert.Equal(t, "rush", po.Note)

	rec = call{http.MethodPost, "/purchase-orders/" + po.ID.String() + "/bill", admin, "", "bill-1"}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	bill := decodeBody[Document](t, rec)

	rec = call{http.MethodPost, "/purchase-orders/" + po.ID.String() + "/bill", admin, "", "bill-1"}.do(t, router)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = call{http.MethodPut, "/vendor-bills/" + bill.ID.String(), admin, `{"status":"posted"}`, ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call{http.MethodPost, "/payments", rbac.RoleAccountant,
		`{"target_kind":"vendor_bill","target_id":"` + bill.ID.String() + `","method":"bank"}`, "pay-1"}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	payment := decodeBody[Payment](t, rec)
	assertDecimal(t, "236", payment.Amount)

	rec = call{http.MethodPut, "/payments/" + payment.ID.String(), rbac.RoleAccountant, `{"status":"posted"}`, ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = call{http.MethodGet, "/vendor-bills/" + bill.ID.String(), rbac.RoleViewer, "", ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code)
	bill = decodeBody[Document](t, rec)
	assert.Equal(t, StatusPaid, bill.Status)

	rec = call{http.MethodGet, "/payments/summary?from=2025-01-01&to=2025-12-31", rbac.RoleViewer, "", ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[struct {
		Data []MonthlyCashFlow `json:"data"`
	}](t, rec)
	require.Len(t, summary.Data, 1)
	assertDecimal(t, "236", summary.Data[0].Sent)
}

func TestHandlerErrorMapping(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := call{http.MethodPost, "/sales-orders", rbac.RoleAccountant, `{"party_name":"Globex"}`, ""}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code)
	so := decodeBody[Document](t, rec)
	path := "/sales-orders/" + so.ID.String()

	cases := []struct {
		name   string
		c      call
		status int
	}{
		{"viewer cannot create", call{http.MethodPost, "/sales-orders", rbac.RoleViewer, orderBody, ""}, http.StatusForbidden},
		{"no role", call{http.MethodGet, "/sales-orders", "", "", ""}, http.StatusForbidden},
		{"accountant cannot delete", call{http.MethodDelete, path, rbac.RoleAccountant, "", ""}, http.StatusForbidden},
		{"missing party", call{http.MethodPost, "/sales-orders", rbac.RoleAdmin, `{"lines":[]}`, ""}, http.StatusBadRequest},
		{"malformed body", call{http.MethodPost, "/sales-orders", rbac.RoleAdmin, `{`, ""}, http.StatusBadRequest},
		{"bad id", call{http.MethodGet, "/sales-orders/nope", rbac.RoleAdmin, "", ""}, http.StatusBadRequest},
		{"unknown id", call{http.MethodGet, "/sales-orders/00000000-0000-0000-0000-000000000001", rbac.RoleAdmin, "", ""}, http.StatusNotFound},
		{"confirm without quantity", call{http.MethodPut, path, rbac.RoleAdmin, `{"status":"confirmed"}`, ""}, http.StatusBadRequest},
		{"system edge", call{http.MethodPut, path, rbac.RoleAdmin, `{"status":"invoiced"}`, ""}, http.StatusConflict},
		{"derive from draft", call{http.MethodPost, path + "/invoice", rbac.RoleAdmin, "", ""}, http.StatusConflict},
	}
	for _, tc := range cases {
		rec := tc.c.do(t, router)
		assert.Equal(t, tc.status, rec.Code, "%s: %s", tc.name, rec.Body.String())
	}

	rec = call{http.MethodDelete, path, rbac.RoleAdmin, "", ""}.do(t, router)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHandlerOverpaymentRejected(t *testing.T) {
	f := newFixture(t, func(o *Options) { o.Overpayment = OverpaymentReject })
	mw := rbac.Middleware{}
	r := chi.NewRouter()
	r.Use(mw.Identify)
	NewHandler(slog.Default(), f.svc, mw, nil).MountRoutes(r)

	inv := postedInvoice(t, f, fiveHundred())
	rec := call{http.MethodPost, "/payments", rbac.RoleAdmin,
		`{"target_kind":"customer_invoice","target_id":"` + inv.ID.String() + `","amount":"900","method":"cash"}`, ""}.do(t, r)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
}

func TestHandlerRejectedStatusKeepsPatch(t *testing.T) {
	router, _ := newTestRouter(t)
	admin := rbac.RoleAdmin

	rec := call{http.MethodPost, "/purchase-orders", admin, orderBody, ""}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	po := decodeBody[Document](t, rec)
	path := "/purchase-orders/" + po.ID.String()

	rec = call{http.MethodPut, path, admin,
		`{"note":"swap","lines":[{"product_name":"Desk","quantity":"1","unit_price":"50","tax_percent":"0"}],"status":"billed"}`, ""}.do(t, router)
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	rec = call{http.MethodGet, path, rbac.RoleViewer, "", ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code)
	po = decodeBody[Document](t, rec)
	assert.Equal(t, StatusDraft, po.Status)
	assert.Empty(t, po.Note)
	require.Len(t, po.Lines, 1)
	assert.Equal(t, "Office Chair", po.Lines[0].ProductName)
	assertDecimal(t, "236", po.Totals.Total)
	assert.Equal(t, int64(1), po.Version)

	rec = call{http.MethodPost, "/sales-orders", admin, `{"party_name":"Globex"}`, ""}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code)
	so := decodeBody[Document](t, rec)
	rec = call{http.MethodPut, "/sales-orders/" + so.ID.String(), admin,
		`{"lines":[{"product_name":"Desk","quantity":"1","unit_price":"50"}],"status":"confirmed"}`, ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	so = decodeBody[Document](t, rec)
	assert.Equal(t, StatusConfirmed, so.Status)
	assert.Equal(t, int64(2), so.Version)
}

func TestHandlerRejectedPostKeepsPaymentPatch(t *testing.T) {
	router, f := newTestRouter(t)
	bill := postedBill(t, f, chairLines())

	rec := call{http.MethodPost, "/payments", rbac.RoleAccountant,
		`{"target_kind":"vendor_bill","target_id":"` + bill.ID.String() + `","amount":"100","method":"cash"}`, ""}.do(t, router)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	early := decodeBody[Payment](t, rec)

	full, err := f.svc.Payments.Create(context.Background(), PaymentInput{TargetKind: KindVendorBill, TargetID: bill.ID, Amount: dec("236"), Method: MethodBank})
	require.NoError(t, err)
	_, err = f.svc.Payments.Transition(context.Background(), full.ID, StatusPosted)
	require.NoError(t, err)

	path := "/payments/" + early.ID.String()
	rec = call{http.MethodPut, path, rbac.RoleAccountant, `{"note":"late","method":"bank","status":"posted"}`, ""}.do(t, router)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = call{http.MethodGet, path, rbac.RoleViewer, "", ""}.do(t, router)
	require.Equal(t, http.StatusOK, rec.Code)
	early = decodeBody[Payment](t, rec)
	assert.Equal(t, StatusDraft, early.Status)
	assert.Equal(t, MethodCash, early.Method)
	assert.Empty(t, early.Note)
	assertDecimal(t, "0", early.AppliedAmount)
}
