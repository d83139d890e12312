// Package catalog holds products and the taxes they carry by default.
package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates an unknown product or tax.
	ErrNotFound = errors.New("catalog: not found")
	// ErrValidation indicates malformed catalog input.
	ErrValidation = errors.New("catalog: validation failed")
	// ErrDuplicate indicates a name already in use.
	ErrDuplicate = errors.New("catalog: duplicate name")
)

// Side is the trading side a tax applies to.
type Side string

const (
	SideSales    Side = "sales"
	SidePurchase Side = "purchase"
)

// Computation is how a tax value is interpreted.
type Computation string

const (
	ComputationPercentage Computation = "percentage"
	ComputationFixed      Computation = "fixed"
)

// Tax is a named tax rate.
type Tax struct {
	ID          uuid.UUID       `json:"id"`
	Name        string          `json:"name"`
	Computation Computation     `json:"computation"`
	Value       decimal.Decimal `json:"value"`
	OnSales     bool            `json:"on_sales"`
	OnPurchase  bool            `json:"on_purchase"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Percent returns the line percent the tax contributes on side. Fixed taxes
// and taxes not applicable on side contribute zero.
func (t Tax) Percent(side Side) decimal.Decimal {
	if t.Computation != ComputationPercentage {
		return decimal.Zero
	}
	if side == SideSales && !t.OnSales {
		return decimal.Zero
	}
	if side == SidePurchase && !t.OnPurchase {
		return decimal.Zero
	}
	return t.Value
}

// Product is a sellable or purchasable item.
type Product struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	TaxName       string          `json:"tax_name,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TaxInput describes a new tax.
type TaxInput struct {
	Name        string          `json:"name" validate:"required,max=120"`
	Computation Computation     `json:"computation" validate:"required,oneof=percentage fixed"`
	Value       decimal.Decimal `json:"value"`
	OnSales     bool            `json:"on_sales"`
	OnPurchase  bool            `json:"on_purchase"`
}

// ProductInput describes a new product.
type ProductInput struct {
	Name          string          `json:"name" validate:"required,max=200"`
	SalePrice     decimal.Decimal `json:"sale_price"`
	PurchasePrice decimal.Decimal `json:"purchase_price"`
	TaxName       string          `json:"tax_name"`
}
