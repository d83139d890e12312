// Package sequence allocates human-readable document numbers.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Scope identifies a numbering series.
type Scope string

const (
	ScopePurchaseOrder    Scope = "purchase_order"
	ScopePurchaseOrderRef Scope = "purchase_order_ref"
	ScopeVendorBill       Scope = "vendor_bill"
	ScopeVendorBillRef    Scope = "vendor_bill_ref"
	ScopeSalesOrder       Scope = "sales_order"
	ScopeCustomerInvoice  Scope = "customer_invoice"
	ScopePayment          Scope = "payment"
)

// ErrUnknownScope is returned for scopes without a format.
var ErrUnknownScope = errors.New("sequence: unknown scope")

// Store performs the atomic counter increment for a scope. Implementations
// must reset the counter to 1 when year differs from the stored year.
type Store interface {
	Increment(ctx context.Context, scope Scope, year int) (int64, error)
}

type format struct {
	yearly bool
	render func(year int, counter int64) string
}

var formats = map[Scope]format{
	ScopePurchaseOrder: {render: func(_ int, n int64) string {
		return fmt.Sprintf("P%05d", n)
	}},
	ScopePurchaseOrderRef: {yearly: true, render: func(y int, n int64) string {
		return fmt.Sprintf("REQ-%02d-%04d", y%100, n)
	}},
	ScopeVendorBill: {yearly: true, render: func(y int, n int64) string {
		return fmt.Sprintf("BILL/%04d/%04d", y, n)
	}},
	ScopeVendorBillRef: {yearly: true, render: func(y int, n int64) string {
		return fmt.Sprintf("SUP-%02d-%04d", y%100, n)
	}},
	ScopeSalesOrder: {render: func(_ int, n int64) string {
		return fmt.Sprintf("S%05d", n)
	}},
	ScopeCustomerInvoice: {yearly: true, render: func(y int, n int64) string {
		return fmt.Sprintf("INV/%04d/%04d", y, n)
	}},
	ScopePayment: {yearly: true, render: func(y int, n int64) string {
		return fmt.Sprintf("PAY/%02d/%04d", y%100, n)
	}},
}

// Yearly reports whether the scope resets every calendar year.
func (s Scope) Yearly() bool {
	return formats[s].yearly
}

// Generator formats counters handed out by a Store.
type Generator struct {
	now func() time.Time
}

// NewGenerator constructs a generator using the UTC wall clock.
func NewGenerator() *Generator {
	return &Generator{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock overrides the clock, mainly for tests.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Next allocates the next number for scope from store. Yearly series take
// their year from the clock in UTC. Unscoped series always use year 0 so
// their counter never resets.
func (g *Generator) Next(ctx context.Context, store Store, scope Scope) (string, error) {
	f, ok := formats[scope]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownScope, scope)
	}
	if store == nil {
		return "", errors.New("sequence: store not configured")
	}
	year := g.now().UTC().Year()
	storeYear := 0
	if f.yearly {
		storeYear = year
	}
	counter, err := store.Increment(ctx, scope, storeYear)
	if err != nil {
		return "", fmt.Errorf("sequence: increment %s: %w", scope, err)
	}
	return f.render(year, counter), nil
}
