package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// IdempotencyHeader carries the client supplied replay key.
const IdempotencyHeader = "Idempotency-Key"

// IdempotencyPort records processed request keys.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Handler exposes document and payment endpoints as JSON.
type Handler struct {
	logger      *slog.Logger
	services    Services
	rbac        rbac.Middleware
	idempotency IdempotencyPort
	validator   *validator.Validate
}

// NewHandler builds Handler instance. idempotency may be nil.
func NewHandler(logger *slog.Logger, services Services, rbac rbac.Middleware, idempotency IdempotencyPort) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		services:    services,
		rbac:        rbac,
		idempotency: idempotency,
		validator:   validator.New(),
	}
}

var (
	readRoles   = []string{rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleViewer}
	writeRoles  = []string{rbac.RoleAdmin, rbac.RoleAccountant}
	deleteRoles = []string{rbac.RoleAdmin}
)

// MountRoutes registers document and payment routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders", func(r chi.Router) {
		h.mountDocument(r, KindPurchaseOrder)
		r.With(h.rbac.RequireAny(writeRoles...)).Post("/{id}/bill", h.deriveBill)
	})
	r.Route("/vendor-bills", func(r chi.Router) {
		h.mountDocument(r, KindVendorBill)
	})
	r.Route("/sales-orders", func(r chi.Router) {
		h.mountDocument(r, KindSalesOrder)
		r.With(h.rbac.RequireAny(writeRoles...)).Post("/{id}/invoice", h.deriveInvoice)
	})
	r.Route("/customer-invoices", func(r chi.Router) {
		h.mountDocument(r, KindCustomerInvoice)
	})
	r.Route("/payments", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(readRoles...))
			r.Get("/", h.listPayments)
			r.Get("/summary", h.paymentSummary)
			r.Get("/{id}", h.showPayment)
		})
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireAny(writeRoles...))
			r.Post("/", h.createPayment)
			r.Put("/{id}", h.updatePayment)
		})
		r.With(h.rbac.RequireAny(deleteRoles...)).Delete("/{id}", h.deletePayment)
	})
}

func (h *Handler) mountDocument(r chi.Router, kind Kind) {
	svc, _ := h.services.Service(kind)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(readRoles...))
		r.Get("/", h.listDocuments(svc))
		r.Get("/{id}", h.showDocument(svc))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(writeRoles...))
		r.Post("/", h.createDocument(svc))
		r.Put("/{id}", h.updateDocument(svc))
	})
	r.With(h.rbac.RequireAny(deleteRoles...)).Delete("/{id}", h.deleteDocument(svc))
}

type documentRequest struct {
	PartyID   string      `json:"party_id" validate:"max=64"`
	PartyName string      `json:"party_name" validate:"required,max=200"`
	Reference string      `json:"reference" validate:"max=64"`
	Date      *time.Time  `json:"date"`
	DueDate   *time.Time  `json:"due_date"`
	Note      string      `json:"note" validate:"max=2000"`
	Lines     []LineInput `json:"lines"`
}

type documentPatchRequest struct {
	PartyID   *string      `json:"party_id" validate:"omitempty,max=64"`
	PartyName *string      `json:"party_name" validate:"omitempty,max=200"`
	Reference *string      `json:"reference" validate:"omitempty,max=64"`
	DueDate   *time.Time   `json:"due_date"`
	Note      *string      `json:"note" validate:"omitempty,max=2000"`
	Lines     *[]LineInput `json:"lines"`
	Status    *Status      `json:"status"`
}

func (p documentPatchRequest) patch() (Patch, bool) {
	out := Patch{
		PartyID:   p.PartyID,
		PartyName: p.PartyName,
		Reference: p.Reference,
		DueDate:   p.DueDate,
		Note:      p.Note,
		Lines:     p.Lines,
	}
	changed := out.PartyID != nil || out.PartyName != nil || out.Reference != nil ||
		out.DueDate != nil || out.Note != nil || out.Lines != nil
	return out, changed
}

type paymentRequest struct {
	TargetKind Kind             `json:"target_kind" validate:"required,oneof=vendor_bill customer_invoice"`
	TargetID   uuid.UUID        `json:"target_id"`
	Amount     *decimal.Decimal `json:"amount"`
	Method     Method           `json:"method" validate:"required,oneof=cash bank"`
	Date       *time.Time       `json:"date"`
	Note       string           `json:"note" validate:"max=2000"`
}

type paymentPatchRequest struct {
	Amount *decimal.Decimal `json:"amount"`
	Method *Method          `json:"method" validate:"omitempty,oneof=cash bank"`
	Note   *string          `json:"note" validate:"omitempty,max=2000"`
	Status *Status          `json:"status"`
}

func (h *Handler) listDocuments(svc *DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := shared.PageFromQuery(r.URL.Query(), defaultListLimit, maxListLimit)
		docs, err := svc.List(r.Context(), Status(r.URL.Query().Get("status")), page.Limit, page.Offset)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		if docs == nil {
			docs = []Document{}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"data": docs, "limit": page.Limit, "offset": page.Offset})
	}
}

func (h *Handler) showDocument(svc *DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		doc, err := svc.Get(r.Context(), id)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) createDocument(svc *DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req documentRequest
		if !h.decode(w, r, &req) {
			return
		}
		doc, err := svc.Create(r.Context(), CreateInput{
			PartyID:   req.PartyID,
			PartyName: req.PartyName,
			Reference: req.Reference,
			Date:      req.Date,
			DueDate:   req.DueDate,
			Note:      req.Note,
			Lines:     req.Lines,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, doc)
	}
}

func (h *Handler) updateDocument(svc *DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		var req documentPatchRequest
		if !h.decode(w, r, &req) {
			return
		}
		var patch *Patch
		if p, changed := req.patch(); changed {
			patch = &p
		}
		doc, err := svc.Change(r.Context(), id, patch, req.Status)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		httpx.JSON(w, http.StatusOK, doc)
	}
}

func (h *Handler) deleteDocument(svc *DocumentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.pathID(w, r)
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) deriveBill(w http.ResponseWriter, r *http.Request) {
	h.derive(w, r, "documents.bill", h.services.PurchaseOrders.Bill)
}

func (h *Handler) deriveInvoice(w http.ResponseWriter, r *http.Request) {
	h.derive(w, r, "documents.invoice", h.services.SalesOrders.Invoice)
}

func (h *Handler) derive(w http.ResponseWriter, r *http.Request, module string, fn func(context.Context, uuid.UUID) (Document, error)) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	release, ok := h.claim(w, r, module)
	if !ok {
		return
	}
	doc, err := fn(r.Context(), id)
	if err != nil {
		release()
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, doc)
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page := shared.PageFromQuery(q, defaultListLimit, maxListLimit)
	filter := PaymentFilter{
		Status:     Status(q.Get("status")),
		TargetKind: Kind(q.Get("target_kind")),
		Limit:      page.Limit,
		Offset:     page.Offset,
	}
	if raw := q.Get("target_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: target_id: %v", ErrValidation, err))
			return
		}
		filter.TargetID = &id
	}
	payments, err := h.services.Payments.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if payments == nil {
		payments = []Payment{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": payments, "limit": page.Limit, "offset": page.Offset})
}

func (h *Handler) showPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	p, err := h.services.Payments.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) createPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.TargetID == uuid.Nil {
		h.fail(w, r, fmt.Errorf("%w: target_id is required", ErrValidation))
		return
	}
	release, ok := h.claim(w, r, "documents.payment")
	if !ok {
		return
	}
	var (
		p   Payment
		err error
	)
	if req.Amount == nil {
		p, err = h.services.Payments.Derive(r.Context(), req.TargetKind, req.TargetID, req.Method)
	} else {
		p, err = h.services.Payments.Create(r.Context(), PaymentInput{
			TargetKind: req.TargetKind,
			TargetID:   req.TargetID,
			Amount:     *req.Amount,
			Method:     req.Method,
			Date:       req.Date,
			Note:       req.Note,
		})
	}
	if err != nil {
		release()
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

func (h *Handler) updatePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req paymentPatchRequest
	if !h.decode(w, r, &req) {
		return
	}
	var patch *PaymentPatch
	if req.Amount != nil || req.Method != nil || req.Note != nil {
		patch = &PaymentPatch{Amount: req.Amount, Method: req.Method, Note: req.Note}
	}
	p, err := h.services.Payments.Change(r.Context(), id, patch, req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) deletePayment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.services.Payments.Delete(r.Context(), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) paymentSummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
	to := now.AddDate(0, 0, 1)
	var err error
	if raw := r.URL.Query().Get("from"); raw != "" {
		if from, err = time.Parse(time.DateOnly, raw); err != nil {
			h.fail(w, r, fmt.Errorf("%w: from: %v", ErrValidation, err))
			return
		}
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = time.Parse(time.DateOnly, raw); err != nil {
			h.fail(w, r, fmt.Errorf("%w: to: %v", ErrValidation, err))
			return
		}
	}
	months, err := h.services.Payments.Summary(r.Context(), from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if months == nil {
		months = []MonthlyCashFlow{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"from": from.Format(time.DateOnly),
		"to":   to.Format(time.DateOnly),
		"data": months,
	})
}

// claim records the idempotency key of r, if any. The returned release
// forgets the key so a failed request can be retried.
func (h *Handler) claim(w http.ResponseWriter, r *http.Request, module string) (func(), bool) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if key == "" || h.idempotency == nil {
		return func() {}, true
	}
	if err := h.idempotency.CheckAndInsert(r.Context(), key, module); err != nil {
		h.fail(w, r, err)
		return nil, false
	}
	return func() {
		if err := h.idempotency.Delete(context.WithoutCancel(r.Context()), key); err != nil {
			h.logger.Warn("idempotency release", slog.String("key", key), slog.Any("error", err))
		}
	}, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		h.fail(w, r, fmt.Errorf("%w: malformed body: %v", ErrValidation, err))
		return false
	}
	if err := h.validator.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			h.fail(w, r, fmt.Errorf("%w: %v", ErrValidation, err))
			return false
		}
		fields := make([]string, 0, len(verrs))
		for _, fieldErr := range verrs {
			fields = append(fields, fieldErr.Field()+" "+fieldErr.Tag())
		}
		h.fail(w, r, fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", ")))
		return false
	}
	return true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: invalid id", ErrValidation))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	mapped, known := classify(err)
	if !known {
		h.logger.Error("documents request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, mapped)
}

// classify tags domain errors with their HTTP category.
func classify(err error) (error, bool) {
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, catalog.ErrValidation):
		return httpx.Wrap(httpx.ErrValidation, err), true
	case errors.Is(err, ErrNotFound), errors.Is(err, catalog.ErrNotFound):
		return httpx.Wrap(httpx.ErrNotFound, err), true
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrConflict), errors.Is(err, shared.ErrIdempotencyConflict):
		return httpx.Wrap(httpx.ErrConflict, err), true
	case errors.Is(err, ErrOverpayment):
		return httpx.Wrap(httpx.ErrUnprocessable, err), true
	}
	return err, false
}
