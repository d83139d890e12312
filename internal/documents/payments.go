package documents

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/sequence"
)

// CreatePayment stores a draft payment with an explicit amount. With the
// reject policy the amount may not exceed the target's remaining balance.
func (e *Engine) CreatePayment(ctx context.Context, input PaymentInput) (Payment, error) {
	if !input.TargetKind.Payable() {
		return Payment{}, fmt.Errorf("%w: %q cannot be paid", ErrValidation, input.TargetKind)
	}
	if input.TargetID == uuid.Nil {
		return Payment{}, fmt.Errorf("%w: target id is required", ErrValidation)
	}
	if !input.Amount.IsPositive() {
		return Payment{}, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
	}
	if !input.Method.Valid() {
		return Payment{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, input.Method)
	}
	var payment Payment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		target, err := tx.GetDocument(ctx, input.TargetKind, input.TargetID)
		if err != nil {
			return err
		}
		if target.Status == StatusDraft || target.Status == StatusCancelled {
			return fmt.Errorf("%w: cannot pay a %s %s", ErrInvalidTransition, target.Status, target.Kind)
		}
		if err := settled(target); err != nil {
			return err
		}
		if e.policy == OverpaymentReject && input.Amount.GreaterThan(target.Remaining()) {
			return fmt.Errorf("%w: amount %s, remaining %s", ErrOverpayment, input.Amount, target.Remaining())
		}
		now := e.now()
		payment = Payment{
			ID:            uuid.New(),
			Amount:        input.Amount,
			AppliedAmount: decimal.Zero,
			Method:        input.Method,
			Direction:     directionFor(input.TargetKind),
			Status:        StatusDraft,
			TargetKind:    input.TargetKind,
			TargetID:      input.TargetID,
			PartnerName:   target.PartyName,
			Date:          now,
			Note:          input.Note,
			Version:       1,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if input.Date != nil {
			payment.Date = *input.Date
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
	e.recordAudit(ctx, "PAYMENT_CREATE", input.TargetKind, input.TargetID, map[string]any{"payment": payment.Number, "amount": payment.Amount.String()})
	return payment, nil
}

// UpdatePayment edits a draft payment.
func (e *Engine) UpdatePayment(ctx context.Context, id uuid.UUID, patch PaymentPatch) (Payment, error) {
	return e.ChangePayment(ctx, id, &patch, nil)
}

// TransitionPayment posts or cancels a payment. Posting reconciles the
// target; cancelling a posted payment reverses what it applied.
func (e *Engine) TransitionPayment(ctx context.Context, id uuid.UUID, target Status) (Payment, error) {
	return e.ChangePayment(ctx, id, nil, &target)
}

// ChangePayment applies an optional draft patch and then an optional post or
// cancel in one transaction. A failed transition discards the patch.
func (e *Engine) ChangePayment(ctx context.Context, id uuid.UUID, patch *PaymentPatch, target *Status) (Payment, error) {
	if patch != nil {
		if patch.Amount != nil && !patch.Amount.IsPositive() {
			return Payment{}, fmt.Errorf("%w: payment amount must be positive", ErrValidation)
		}
		if patch.Method != nil && !patch.Method.Valid() {
			return Payment{}, fmt.Errorf("%w: unknown payment method %q", ErrValidation, *patch.Method)
		}
	}
	if target != nil && *target != StatusPosted && *target != StatusCancelled {
		return Payment{}, fmt.Errorf("%w: payments cannot move to %q", ErrInvalidTransition, *target)
	}

	var (
		out  settlement
		from Status
	)
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		from = p.Status
		if patch != nil {
			if err := e.patchPayment(ctx, tx, &p, *patch); err != nil {
				return err
			}
		}
		switch {
		case target == nil:
			if patch == nil {
				out = settlement{payment: p}
				return nil
			}
			expected := p.Version
			p.Version = expected + 1
			p.UpdatedAt = e.now()
			if err := tx.UpdatePayment(ctx, p, expected); err != nil {
				return err
			}
			out = settlement{payment: p}
			return nil
		case *target == StatusPosted:
			out, err = e.postPayment(ctx, tx, p)
			return err
		default:
			out, err = e.cancelPayment(ctx, tx, p)
			return err
		}
	})
	if err != nil {
		return Payment{}, err
	}

	if target == nil {
		return out.payment, nil
	}
	if *target == StatusPosted {
		e.afterPost(ctx, out)
		return out.payment, nil
	}
	if from == StatusPosted {
		e.afterSettlement(ctx, out, StatusPosted)
	} else {
		e.recordPaymentTransition(ctx, out.payment, from)
	}
	return out.payment, nil
}

// patchPayment applies patch to a draft in place without bumping its version.
func (e *Engine) patchPayment(ctx context.Context, tx TxRepository, p *Payment, patch PaymentPatch) error {
	if p.Status != StatusDraft {
		return fmt.Errorf("%w: payment %s is %s and can no longer be edited", ErrInvalidTransition, p.Number, p.Status)
	}
	if patch.Amount != nil && e.policy == OverpaymentReject {
		target, err := tx.GetDocument(ctx, p.TargetKind, p.TargetID)
		if err != nil {
			return err
		}
		if patch.Amount.GreaterThan(target.Remaining()) {
			return fmt.Errorf("%w: amount %s, remaining %s", ErrOverpayment, *patch.Amount, target.Remaining())
		}
	}
	if patch.Amount != nil {
		p.Amount = *patch.Amount
	}
	if patch.Method != nil {
		p.Method = *patch.Method
	}
	if patch.Note != nil {
		p.Note = *patch.Note
	}
	return nil
}

// GetPayment returns one payment.
func (e *Engine) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return e.repo.GetPayment(ctx, id)
}

// ListPayments returns payments matching filter.
func (e *Engine) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	if filter.TargetKind != "" && !filter.TargetKind.Payable() {
		return nil, fmt.Errorf("%w: %q cannot be paid", ErrValidation, filter.TargetKind)
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return e.repo.ListPayments(ctx, filter)
}

// DeletePayment removes a draft payment.
func (e *Engine) DeletePayment(ctx context.Context, id uuid.UUID) error {
	var deleted Payment
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != StatusDraft {
			return fmt.Errorf("%w: only draft payments can be deleted", ErrInvalidTransition)
		}
		deleted = p
		return tx.DeletePayment(ctx, id, p.Version)
	})
	if err != nil {
		return err
	}
	e.recordAudit(ctx, "PAYMENT_DELETE", deleted.TargetKind, deleted.TargetID, map[string]any{"payment": deleted.Number})
	return nil
}

// CashFlow summarises posted payments per month within [from, to).
func (e *Engine) CashFlow(ctx context.Context, from, to time.Time) ([]MonthlyCashFlow, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: empty period", ErrValidation)
	}
	return e.repo.CashFlowByMonth(ctx, from, to)
}
