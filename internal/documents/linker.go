package documents

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/sequence"
)

// derivation describes one source -> dependent pair.
type derivation struct {
	source   Kind
	target   Kind
	advance  Status
	auditTag string
}

var (
	billFromOrder    = derivation{source: KindPurchaseOrder, target: KindVendorBill, advance: StatusBilled, auditTag: "BILL_DERIVE"}
	invoiceFromOrder = derivation{source: KindSalesOrder, target: KindCustomerInvoice, advance: StatusInvoiced, auditTag: "INVOICE_DERIVE"}
)

// DeriveBill creates a draft vendor bill from a confirmed purchase order and
// marks the order billed.
func (e *Engine) DeriveBill(ctx context.Context, purchaseOrderID uuid.UUID) (Document, error) {
	return e.derive(ctx, billFromOrder, purchaseOrderID)
}

// DeriveInvoice creates a draft customer invoice from a confirmed sales order
// and marks the order invoiced.
func (e *Engine) DeriveInvoice(ctx context.Context, salesOrderID uuid.UUID) (Document, error) {
	return e.derive(ctx, invoiceFromOrder, salesOrderID)
}

func (e *Engine) derive(ctx context.Context, d derivation, sourceID uuid.UUID) (Document, error) {
	sourceMachine, err := machineFor(d.source)
	if err != nil {
		return Document{}, err
	}
	var derived Document
	var from Status
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		src, err := tx.GetDocument(ctx, d.source, sourceID)
		if err != nil {
			return err
		}
		if err := sourceMachine.Apply(src.Status, d.advance, src); err != nil {
			return fmt.Errorf("derive %s from %s %s: %w", d.target, d.source, src.Number, err)
		}
		now := e.now()
		doc := Document{
			ID:        uuid.New(),
			Kind:      d.target,
			PartyID:   src.PartyID,
			PartyName: src.PartyName,
			Status:    StatusDraft,
			Date:      now,
			Lines:     copyLines(src.Lines),
			Note:      src.Note,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		sourceRef := src.ID
		doc.SourceID = &sourceRef
		doc.DueDate = e.dueDate(now, nil)
		doc.recompute()
		if err := e.assignNumbers(ctx, tx, &doc); err != nil {
			return err
		}
		if err := tx.InsertDocument(ctx, doc); err != nil {
			return err
		}

		from = src.Status
		expected := src.Version
		src.Status = d.advance
		src.Version = expected + 1
		src.UpdatedAt = now
		if err := tx.UpdateDocument(ctx, src, expected); err != nil {
			return err
		}
		derived = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	e.recordTransition(ctx, d.source, sourceID, from, d.advance)
	e.recordAudit(ctx, d.auditTag, d.target, derived.ID, map[string]any{"number": derived.Number, "source_id": sourceID.String()})
	return derived, nil
}

// copyLines deep copies lines under fresh ids.
func copyLines(src []Line) []Line {
	out := make([]Line, len(src))
	for i, line := range src {
		line.ID = uuid.New()
		out[i] = line
	}
	return out
}

// DerivePayment prepares a draft payment for the remaining balance of a
// posted bill or invoice. An existing draft for the same target is reused.
func (e *Engine) DerivePayment(ctx context.Context, targetKind Kind, targetID uuid.UUID, method Method) (Payment, error) {
	if !targetKind.Payable() {
		return Payment{}, fmt.Errorf("%w: %q cannot be paid", ErrValidation, targetKind)
	}
	if !method.Valid() {
		return Payment{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, method)
	}
	var (
		payment Payment
		reused  bool
	)
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.GetDocument(ctx, targetKind, targetID)
		if err != nil {
			return err
		}
		if target.Status != StatusPosted {
			return fmt.Errorf("%w: %s %s is %s, only posted documents accept payments", ErrInvalidTransition, target.Kind, target.Number, target.Status)
		}
		remaining := target.Remaining()
		if !remaining.IsPositive() {
			return fmt.Errorf("%w: %s %s has nothing left to pay", ErrOverpayment, target.Kind, target.Number)
		}
		existing, found, err := tx.FindDraftPayment(ctx, targetKind, targetID)
		if err != nil {
			return err
		}
		if found {
			payment, reused = existing, true
			return nil
		}
		now := e.now()
		payment = Payment{
			ID:            uuid.New(),
			Amount:        remaining,
			AppliedAmount: decimal.Zero,
			Method:        method,
			Direction:     directionFor(targetKind),
			Status:        StatusDraft,
			TargetKind:    targetKind,
			TargetID:      targetID,
			PartnerName:   target.PartyName,
			Date:          now,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		number, err := e.seq.Next(ctx, e.store(tx), sequence.ScopePayment)
		if err != nil {
			return err
		}
		payment.Number = number
		return tx.InsertPayment(ctx, payment)
	})
	if err != nil {
		return Payment{}, err
	}
	if !reused {
		e.recordAudit(ctx, "PAYMENT_DERIVE", targetKind, targetID, map[string]any{"payment": payment.Number, "amount": payment.Amount.String()})
	}
	return payment, nil
}
