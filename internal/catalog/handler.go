package catalog

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/rbac"
)

// Handler manages catalog endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin, rbac.RoleAccountant, rbac.RoleViewer))
		r.Get("/taxes", h.listTaxes)
		r.Get("/products", h.listProducts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(rbac.RoleAdmin))
		r.Post("/taxes", h.createTax)
		r.Post("/products", h.createProduct)
	})
}

func (h *Handler) listTaxes(w http.ResponseWriter, r *http.Request) {
	taxes, err := h.service.ListTaxes(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if taxes == nil {
		taxes = []Tax{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": taxes})
}

func (h *Handler) createTax(w http.ResponseWriter, r *http.Request) {
	var input TaxInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, err)
		return
	}
	tax, err := h.service.CreateTax(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, tax)
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": products})
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var input ProductInput
	if err := h.decode(r, &input); err != nil {
		h.fail(w, err)
		return
	}
	product, err := h.service.CreateProduct(r.Context(), input)
	if err != nil {
		h.fail(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, product)
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed body: %v", ErrValidation, err)
	}
	if err := h.validator.Struct(target); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrValidation, err))
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrNotFound, err))
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.Wrap(httpx.ErrDuplicate, err))
	default:
		h.logger.Error("catalog request failed", slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
