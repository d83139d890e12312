package documents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"
)

// settlement is the outcome of applying or reversing one payment.
type settlement struct {
	payment    Payment
	target     Document
	fromStatus Status
	clamped    bool
}

// postPayment reconciles p against its target inside tx.
func (e *Engine) postPayment(ctx context.Context, tx TxRepository, p Payment) (settlement, error) {
	if err := paymentMachine.Request(p.Status, StatusPosted, p); err != nil {
		return settlement{}, err
	}
	target, err := tx.GetDocument(ctx, p.TargetKind, p.TargetID)
	if err != nil {
		return settlement{}, err
	}
	s, err := e.apply(p, target)
	if err != nil {
		return settlement{}, err
	}
	if err := e.persistSettlement(ctx, tx, p.Version, target.Version, &s); err != nil {
		return settlement{}, err
	}
	return s, nil
}

func (e *Engine) afterPost(ctx context.Context, out settlement) {
	if out.clamped {
		e.logger.Warn("payment amount clamped to remaining balance",
			slog.String("payment", out.payment.Number),
			slog.String("amount", out.payment.Amount.String()),
			slog.String("applied", out.payment.AppliedAmount.String()),
			slog.String("target", out.target.Number))
		if e.metrics != nil {
			e.metrics.RecordOverpaymentClamp(string(out.target.Kind))
		}
	}
	e.afterSettlement(ctx, out, StatusDraft)
	if e.events != nil {
		if err := e.events.PaymentPosted(ctx, out.payment, out.target); err != nil {
			e.logger.Warn("publish payment posted", slog.String("payment", out.payment.Number), slog.Any("error", err))
		}
	}
}

// settled rejects targets with nothing left to pay.
func settled(target Document) error {
	if target.Status == StatusPaid || !target.Remaining().IsPositive() {
		return fmt.Errorf("%w: %s %s is already settled", ErrOverpayment, target.Kind, target.Number)
	}
	return nil
}

// apply computes the reconciliation of p against target without persisting.
func (e *Engine) apply(p Payment, target Document) (settlement, error) {
	if !target.Kind.Payable() {
		return settlement{}, fmt.Errorf("%w: %s cannot be paid", ErrValidation, target.Kind)
	}
	if target.Status != StatusPosted && target.Status != StatusPaid {
		return settlement{}, fmt.Errorf("%w: cannot pay a %s %s", ErrInvalidTransition, target.Status, target.Kind)
	}
	if err := settled(target); err != nil {
		return settlement{}, err
	}
	remaining := target.Remaining()
	applied := decimal.Min(p.Amount, remaining)
	clamped := applied.LessThan(p.Amount)
	if clamped && e.policy == OverpaymentReject {
		return settlement{}, fmt.Errorf("%w: amount %s, remaining %s on %s", ErrOverpayment, p.Amount, remaining, target.Number)
	}

	s := settlement{fromStatus: target.Status, clamped: clamped}
	target.PaidAmount = target.PaidAmount.Add(applied)
	if p.Method == MethodCash {
		target.PaidCash = target.PaidCash.Add(applied)
	} else {
		target.PaidBank = target.PaidBank.Add(applied)
	}
	if target.Status == StatusPosted && target.PaidAmount.GreaterThanOrEqual(target.Totals.Total) {
		if err := machines[target.Kind].Apply(StatusPosted, StatusPaid, target); err != nil {
			return settlement{}, err
		}
		target.Status = StatusPaid
	}
	p.AppliedAmount = applied
	p.Status = StatusPosted
	s.payment = p
	s.target = target
	return s, nil
}

// cancelPayment cancels a draft or reverses a posted payment inside tx.
func (e *Engine) cancelPayment(ctx context.Context, tx TxRepository, p Payment) (settlement, error) {
	if err := paymentMachine.Request(p.Status, StatusCancelled, p); err != nil {
		return settlement{}, err
	}
	if p.Status == StatusDraft {
		expected := p.Version
		p.Status = StatusCancelled
		p.Version = expected + 1
		p.UpdatedAt = e.now()
		if err := tx.UpdatePayment(ctx, p, expected); err != nil {
			return settlement{}, err
		}
		return settlement{payment: p}, nil
	}
	target, err := tx.GetDocument(ctx, p.TargetKind, p.TargetID)
	if err != nil {
		return settlement{}, err
	}
	s, err := reverse(p, target)
	if err != nil {
		return settlement{}, err
	}
	if err := e.persistSettlement(ctx, tx, p.Version, target.Version, &s); err != nil {
		return settlement{}, err
	}
	return s, nil
}

// reverse undoes what p applied to target and rolls a paid target back.
func reverse(p Payment, target Document) (settlement, error) {
	s := settlement{fromStatus: target.Status}
	applied := p.AppliedAmount
	target.PaidAmount = decimal.Max(decimal.Zero, target.PaidAmount.Sub(applied))
	if p.Method == MethodCash {
		target.PaidCash = decimal.Max(decimal.Zero, target.PaidCash.Sub(applied))
	} else {
		target.PaidBank = decimal.Max(decimal.Zero, target.PaidBank.Sub(applied))
	}
	if target.Status == StatusPaid && target.PaidAmount.LessThan(target.Totals.Total) {
		if err := machines[target.Kind].Apply(StatusPaid, StatusPosted, target); err != nil {
			return settlement{}, err
		}
		target.Status = StatusPosted
	}
	p.Status = StatusCancelled
	s.payment = p
	s.target = target
	return s, nil
}

// persistSettlement writes payment and target under their read versions.
func (e *Engine) persistSettlement(ctx context.Context, tx TxRepository, paymentVersion, targetVersion int64, s *settlement) error {
	now := e.now()
	s.payment.Version = paymentVersion + 1
	s.payment.UpdatedAt = now
	if err := tx.UpdatePayment(ctx, s.payment, paymentVersion); err != nil {
		return err
	}
	s.target.Version = targetVersion + 1
	s.target.UpdatedAt = now
	return tx.UpdateDocument(ctx, s.target, targetVersion)
}

func (e *Engine) afterSettlement(ctx context.Context, s settlement, paymentFrom Status) {
	e.recordPaymentTransition(ctx, s.payment, paymentFrom)
	if s.target.Status != s.fromStatus {
		e.recordTransition(ctx, s.target.Kind, s.target.ID, s.fromStatus, s.target.Status)
	}
}

func (e *Engine) recordPaymentTransition(ctx context.Context, p Payment, from Status) {
	if e.metrics != nil {
		e.metrics.RecordTransition("payment", string(from), string(p.Status))
	}
	e.recordAudit(ctx, "PAYMENT_TRANSITION", p.TargetKind, p.TargetID, map[string]any{
		"payment": p.Number,
		"from":    string(from),
		"to":      string(p.Status),
		"applied": p.AppliedAmount.String(),
	})
}
