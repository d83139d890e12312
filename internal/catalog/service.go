package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Repository persists taxes and products.
type Repository interface {
	InsertTax(ctx context.Context, tax Tax) error
	ListTaxes(ctx context.Context) ([]Tax, error)
	GetTaxByName(ctx context.Context, name string) (Tax, error)
	InsertProduct(ctx context.Context, product Product) error
	ListProducts(ctx context.Context) ([]Product, error)
	FindProduct(ctx context.Context, ref string) (Product, error)
}

// Service exposes catalog operations and tax resolution for line items.
type Service struct {
	repo  Repository
	group singleflight.Group
}

// NewService constructs the catalog service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateTax stores a new tax.
func (s *Service) CreateTax(ctx context.Context, input TaxInput) (Tax, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Tax{}, fmt.Errorf("%w: tax name is required", ErrValidation)
	}
	if input.Computation != ComputationPercentage && input.Computation != ComputationFixed {
		return Tax{}, fmt.Errorf("%w: unknown computation %q", ErrValidation, input.Computation)
	}
	if input.Value.IsNegative() {
		return Tax{}, fmt.Errorf("%w: tax value cannot be negative", ErrValidation)
	}
	if input.Computation == ComputationPercentage && input.Value.GreaterThan(decimal.NewFromInt(100)) {
		return Tax{}, fmt.Errorf("%w: percentage cannot exceed 100", ErrValidation)
	}
	tax := Tax{
		ID:          uuid.New(),
		Name:        name,
		Computation: input.Computation,
		Value:       input.Value,
		OnSales:     input.OnSales,
		OnPurchase:  input.OnPurchase,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.InsertTax(ctx, tax); err != nil {
		return Tax{}, err
	}
	return tax, nil
}

// ListTaxes returns every tax ordered by name.
func (s *Service) ListTaxes(ctx context.Context) ([]Tax, error) {
	return s.repo.ListTaxes(ctx)
}

// CreateProduct stores a new product. A tax name must refer to an existing tax.
func (s *Service) CreateProduct(ctx context.Context, input ProductInput) (Product, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return Product{}, fmt.Errorf("%w: product name is required", ErrValidation)
	}
	if input.SalePrice.IsNegative() || input.PurchasePrice.IsNegative() {
		return Product{}, fmt.Errorf("%w: prices cannot be negative", ErrValidation)
	}
	taxName := strings.TrimSpace(input.TaxName)
	if taxName != "" {
		if _, err := s.repo.GetTaxByName(ctx, taxName); err != nil {
			return Product{}, fmt.Errorf("product tax %q: %w", taxName, err)
		}
	}
	product := Product{
		ID:            uuid.New(),
		Name:          name,
		SalePrice:     input.SalePrice,
		PurchasePrice: input.PurchasePrice,
		TaxName:       taxName,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.InsertProduct(ctx, product); err != nil {
		return Product{}, err
	}
	return product, nil
}

// ListProducts returns every product ordered by name.
func (s *Service) ListProducts(ctx context.Context) ([]Product, error) {
	return s.repo.ListProducts(ctx)
}

// TaxPercent resolves the default line tax percent of a product, by id or
// name. Products without a tax resolve to zero. Concurrent lookups of the same
// key share one repository call that outlives any single caller's context.
func (s *Service) TaxPercent(ctx context.Context, side Side, product string) (decimal.Decimal, error) {
	ref := strings.TrimSpace(product)
	if ref == "" {
		return decimal.Zero, fmt.Errorf("%w: product reference is required", ErrValidation)
	}
	lookup := context.WithoutCancel(ctx)
	ch := s.group.DoChan(string(side)+"|"+ref, func() (any, error) {
		p, err := s.repo.FindProduct(lookup, ref)
		if err != nil {
			return decimal.Zero, err
		}
		if p.TaxName == "" {
			return decimal.Zero, nil
		}
		tax, err := s.repo.GetTaxByName(lookup, p.TaxName)
		if err != nil {
			return decimal.Zero, err
		}
		return tax.Percent(side), nil
	})
	select {
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return decimal.Zero, res.Err
		}
		return res.Val.(decimal.Decimal), nil
	}
}
