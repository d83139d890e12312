package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/sequence"
	"github.com/odyssey-erp/odyssey-books/internal/tax"
)

// Kind discriminates the document union.
type Kind string

const (
	KindPurchaseOrder   Kind = "purchase_order"
	KindVendorBill      Kind = "vendor_bill"
	KindSalesOrder      Kind = "sales_order"
	KindCustomerInvoice Kind = "customer_invoice"
)

// Kinds lists every document kind in display order.
var Kinds = []Kind{KindPurchaseOrder, KindVendorBill, KindSalesOrder, KindCustomerInvoice}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPurchaseOrder, KindVendorBill, KindSalesOrder, KindCustomerInvoice:
		return true
	}
	return false
}

// Payable reports whether payments can target the kind.
func (k Kind) Payable() bool {
	return k == KindVendorBill || k == KindCustomerInvoice
}

// Side maps the kind to the catalog side used for tax inheritance.
func (k Kind) Side() catalog.Side {
	if k == KindSalesOrder || k == KindCustomerInvoice {
		return catalog.SideSales
	}
	return catalog.SidePurchase
}

func (k Kind) numberScope() sequence.Scope {
	switch k {
	case KindPurchaseOrder:
		return sequence.ScopePurchaseOrder
	case KindVendorBill:
		return sequence.ScopeVendorBill
	case KindSalesOrder:
		return sequence.ScopeSalesOrder
	default:
		return sequence.ScopeCustomerInvoice
	}
}

func (k Kind) referenceScope() (sequence.Scope, bool) {
	switch k {
	case KindPurchaseOrder:
		return sequence.ScopePurchaseOrderRef, true
	case KindVendorBill:
		return sequence.ScopeVendorBillRef, true
	}
	return "", false
}

// Status is the lifecycle state shared by documents and payments.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusConfirmed Status = "confirmed"
	StatusBilled    Status = "billed"
	StatusInvoiced  Status = "invoiced"
	StatusPosted    Status = "posted"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Line is a tax-aware line item. Untaxed, Tax and Total are derived.
type Line struct {
	ID          uuid.UUID       `json:"id"`
	ProductID   string          `json:"product_id,omitempty"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxPercent  decimal.Decimal `json:"tax_percent"`
	Untaxed     decimal.Decimal `json:"untaxed"`
	Tax         decimal.Decimal `json:"tax"`
	Total       decimal.Decimal `json:"total"`
}

func (l Line) calc() tax.Line {
	return tax.Line{Quantity: l.Quantity, UnitPrice: l.UnitPrice, TaxPercent: l.TaxPercent}
}

// Document is one purchase order, vendor bill, sales order or customer invoice.
type Document struct {
	ID         uuid.UUID       `json:"id"`
	Kind       Kind            `json:"kind"`
	Number     string          `json:"number"`
	Reference  string          `json:"reference,omitempty"`
	PartyID    string          `json:"party_id,omitempty"`
	PartyName  string          `json:"party_name"`
	Status     Status          `json:"status"`
	Date       time.Time       `json:"date"`
	DueDate    *time.Time      `json:"due_date,omitempty"`
	Lines      []Line          `json:"lines"`
	Totals     tax.Amounts     `json:"totals"`
	SourceID   *uuid.UUID      `json:"source_id,omitempty"`
	PaidAmount decimal.Decimal `json:"paid_amount"`
	PaidCash   decimal.Decimal `json:"paid_cash"`
	PaidBank   decimal.Decimal `json:"paid_bank"`
	Note       string          `json:"note,omitempty"`
	Version    int64           `json:"version"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Remaining is the unpaid part of the total.
func (d Document) Remaining() decimal.Decimal {
	rem := d.Totals.Total.Sub(d.PaidAmount)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// recompute refreshes every derived amount from quantities, prices and percents.
func (d *Document) recompute() {
	calc := make([]tax.Line, len(d.Lines))
	for i := range d.Lines {
		amounts := tax.ComputeLine(d.Lines[i].calc())
		d.Lines[i].Untaxed = amounts.Untaxed
		d.Lines[i].Tax = amounts.Tax
		d.Lines[i].Total = amounts.Total
		calc[i] = d.Lines[i].calc()
	}
	d.Totals = tax.ComputeTotals(calc)
}

// clone returns a deep copy so callers never share line slices.
func (d Document) clone() Document {
	out := d
	out.Lines = append([]Line(nil), d.Lines...)
	if d.DueDate != nil {
		due := *d.DueDate
		out.DueDate = &due
	}
	if d.SourceID != nil {
		src := *d.SourceID
		out.SourceID = &src
	}
	return out
}

// Method is how a payment is settled.
type Method string

const (
	MethodCash Method = "cash"
	MethodBank Method = "bank"
)

// Valid reports whether m is a known method.
func (m Method) Valid() bool {
	return m == MethodCash || m == MethodBank
}

// Direction is implied by the payment target.
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

func directionFor(kind Kind) Direction {
	if kind == KindCustomerInvoice {
		return DirectionReceive
	}
	return DirectionSend
}

// Payment settles a vendor bill or customer invoice. AppliedAmount is what
// reconciliation actually added to the target.
type Payment struct {
	ID            uuid.UUID       `json:"id"`
	Number        string          `json:"number"`
	Amount        decimal.Decimal `json:"amount"`
	AppliedAmount decimal.Decimal `json:"applied_amount"`
	Method        Method          `json:"method"`
	Direction     Direction       `json:"direction"`
	Status        Status          `json:"status"`
	TargetKind    Kind            `json:"target_kind"`
	TargetID      uuid.UUID       `json:"target_id"`
	PartnerName   string          `json:"partner_name"`
	Date          time.Time       `json:"date"`
	Note          string          `json:"note,omitempty"`
	Version       int64           `json:"version"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LineInput is a caller supplied line. A nil TaxPercent inherits from the
// product's catalog tax.
type LineInput struct {
	ProductID   string           `json:"product_id"`
	ProductName string           `json:"product_name"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	TaxPercent  *decimal.Decimal `json:"tax_percent"`
}

// CreateInput describes a new draft document.
type CreateInput struct {
	PartyID   string
	PartyName string
	Reference string
	Date      *time.Time
	DueDate   *time.Time
	Note      string
	Lines     []LineInput
}

// Patch updates a draft. Nil fields are left untouched.
type Patch struct {
	PartyID   *string
	PartyName *string
	Reference *string
	DueDate   *time.Time
	Note      *string
	Lines     *[]LineInput
}

// ListFilter narrows document listings.
type ListFilter struct {
	Kind   Kind
	Status Status
	Limit  int
	Offset int
}

// PaymentInput creates a payment with an explicit amount.
type PaymentInput struct {
	TargetKind Kind
	TargetID   uuid.UUID
	Amount     decimal.Decimal
	Method     Method
	Date       *time.Time
	Note       string
}

// PaymentPatch updates a draft payment.
type PaymentPatch struct {
	Amount *decimal.Decimal
	Method *Method
	Note   *string
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	Status     Status
	TargetKind Kind
	TargetID   *uuid.UUID
	Limit      int
	Offset     int
}

// MonthlyCashFlow aggregates posted payments for one month.
type MonthlyCashFlow struct {
	Month    string          `json:"month"`
	Received decimal.Decimal `json:"received"`
	Sent     decimal.Decimal `json:"sent"`
}
