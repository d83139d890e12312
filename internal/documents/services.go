package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DocumentService binds the engine to one document kind.
type DocumentService struct {
	engine *Engine
	kind   Kind
}

// Kind returns the bound kind.
func (s *DocumentService) Kind() Kind { return s.kind }

// Create stores a new draft.
func (s *DocumentService) Create(ctx context.Context, input CreateInput) (Document, error) {
	return s.engine.Create(ctx, s.kind, input)
}

// Update patches a draft.
func (s *DocumentService) Update(ctx context.Context, id uuid.UUID, patch Patch) (Document, error) {
	return s.engine.Update(ctx, s.kind, id, patch)
}

// SetLines replaces the lines of a draft.
func (s *DocumentService) SetLines(ctx context.Context, id uuid.UUID, lines []LineInput) (Document, error) {
	return s.engine.SetLines(ctx, s.kind, id, lines)
}

// Transition requests a status change.
func (s *DocumentService) Transition(ctx context.Context, id uuid.UUID, target Status) (Document, error) {
	return s.engine.Transition(ctx, s.kind, id, target)
}

// Change applies an optional patch and status change atomically.
func (s *DocumentService) Change(ctx context.Context, id uuid.UUID, patch *Patch, target *Status) (Document, error) {
	return s.engine.Change(ctx, s.kind, id, patch, target)
}

// Get loads one document.
func (s *DocumentService) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.engine.Get(ctx, s.kind, id)
}

// List returns documents of the bound kind.
func (s *DocumentService) List(ctx context.Context, status Status, limit, offset int) ([]Document, error) {
	return s.engine.List(ctx, ListFilter{Kind: s.kind, Status: status, Limit: limit, Offset: offset})
}

// Delete removes a draft.
func (s *DocumentService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.engine.Delete(ctx, s.kind, id)
}

// PurchaseOrders manages purchase orders.
type PurchaseOrders struct{ DocumentService }

// Bill derives a vendor bill from a confirmed order.
func (s *PurchaseOrders) Bill(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.engine.DeriveBill(ctx, id)
}

// VendorBills manages vendor bills.
type VendorBills struct{ DocumentService }

// Pay prepares a draft payment for the remaining balance.
func (s *VendorBills) Pay(ctx context.Context, id uuid.UUID, method Method) (Payment, error) {
	return s.engine.DerivePayment(ctx, KindVendorBill, id, method)
}

// SalesOrders manages sales orders.
type SalesOrders struct{ DocumentService }

// Invoice derives a customer invoice from a confirmed order.
func (s *SalesOrders) Invoice(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.engine.DeriveInvoice(ctx, id)
}

// CustomerInvoices manages customer invoices.
type CustomerInvoices struct{ DocumentService }

// Pay prepares a draft payment for the remaining balance.
func (s *CustomerInvoices) Pay(ctx context.Context, id uuid.UUID, method Method) (Payment, error) {
	return s.engine.DerivePayment(ctx, KindCustomerInvoice, id, method)
}

// Payments manages payments and their reconciliation.
type Payments struct {
	engine *Engine
}

// Create stores a draft payment with an explicit amount.
func (s *Payments) Create(ctx context.Context, input PaymentInput) (Payment, error) {
	return s.engine.CreatePayment(ctx, input)
}

// Derive prepares a draft payment for the target's remaining balance.
func (s *Payments) Derive(ctx context.Context, targetKind Kind, targetID uuid.UUID, method Method) (Payment, error) {
	return s.engine.DerivePayment(ctx, targetKind, targetID, method)
}

// Update edits a draft payment.
func (s *Payments) Update(ctx context.Context, id uuid.UUID, patch PaymentPatch) (Payment, error) {
	return s.engine.UpdatePayment(ctx, id, patch)
}

// Transition posts or cancels a payment.
func (s *Payments) Transition(ctx context.Context, id uuid.UUID, target Status) (Payment, error) {
	return s.engine.TransitionPayment(ctx, id, target)
}

// Change applies an optional draft patch and post or cancel atomically.
func (s *Payments) Change(ctx context.Context, id uuid.UUID, patch *PaymentPatch, target *Status) (Payment, error) {
	return s.engine.ChangePayment(ctx, id, patch, target)
}

// Get loads one payment.
func (s *Payments) Get(ctx context.Context, id uuid.UUID) (Payment, error) {
	return s.engine.GetPayment(ctx, id)
}

// List returns payments matching filter.
func (s *Payments) List(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	return s.engine.ListPayments(ctx, filter)
}

// Delete removes a draft payment.
func (s *Payments) Delete(ctx context.Context, id uuid.UUID) error {
	return s.engine.DeletePayment(ctx, id)
}

// Summary aggregates posted payments per month within [from, to).
func (s *Payments) Summary(ctx context.Context, from, to time.Time) ([]MonthlyCashFlow, error) {
	return s.engine.CashFlow(ctx, from, to)
}

// Services groups the per-kind services built on one engine.
type Services struct {
	PurchaseOrders   *PurchaseOrders
	VendorBills      *VendorBills
	SalesOrders      *SalesOrders
	CustomerInvoices *CustomerInvoices
	Payments         *Payments
}

// NewServices builds every document service on engine.
func NewServices(engine *Engine) Services {
	return Services{
		PurchaseOrders:   &PurchaseOrders{DocumentService{engine: engine, kind: KindPurchaseOrder}},
		VendorBills:      &VendorBills{DocumentService{engine: engine, kind: KindVendorBill}},
		SalesOrders:      &SalesOrders{DocumentService{engine: engine, kind: KindSalesOrder}},
		CustomerInvoices: &CustomerInvoices{DocumentService{engine: engine, kind: KindCustomerInvoice}},
		Payments:         &Payments{engine: engine},
	}
}

// Service returns the document service for kind.
func (s Services) Service(kind Kind) (*DocumentService, bool) {
	switch kind {
	case KindPurchaseOrder:
		return &s.PurchaseOrders.DocumentService, true
	case KindVendorBill:
		return &s.VendorBills.DocumentService, true
	case KindSalesOrder:
		return &s.SalesOrders.DocumentService, true
	case KindCustomerInvoice:
		return &s.CustomerInvoices.DocumentService, true
	}
	return nil, false
}
