package documents

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-books/internal/workflow"
)

type documentMachine = workflow.Machine[Status, Document]

// machines holds one transition table per kind.
var machines = map[Kind]*documentMachine{
	KindPurchaseOrder: workflow.New[Status, Document]().
		Allow(StatusDraft, StatusConfirmed, StatusCancelled).
		AllowSystem(StatusConfirmed, StatusBilled).
		Guard(StatusDraft, StatusConfirmed, requireQuantity),

	KindSalesOrder: workflow.New[Status, Document]().
		Allow(StatusDraft, StatusConfirmed, StatusCancelled).
		AllowSystem(StatusConfirmed, StatusInvoiced).
		Guard(StatusDraft, StatusConfirmed, requireQuantity),

	KindVendorBill:      payableMachine(),
	KindCustomerInvoice: payableMachine(),
}

func payableMachine() *documentMachine {
	return workflow.New[Status, Document]().
		Allow(StatusDraft, StatusPosted, StatusCancelled).
		AllowSystem(StatusPosted, StatusPaid).
		AllowSystem(StatusPaid, StatusPosted).
		Guard(StatusDraft, StatusPosted, requirePositiveTotal).
		Guard(StatusPosted, StatusPaid, requireCovered)
}

var paymentMachine = workflow.New[Status, Payment]().
	Allow(StatusDraft, StatusPosted, StatusCancelled).
	Allow(StatusPosted, StatusCancelled).
	Guard(StatusDraft, StatusPosted, func(p Payment) error {
		if !p.Amount.IsPositive() {
			return fmt.Errorf("%w: payment amount must be positive", ErrValidation)
		}
		return nil
	})

func machineFor(kind Kind) (*documentMachine, error) {
	m, ok := machines[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	return m, nil
}

func requireQuantity(d Document) error {
	for _, line := range d.Lines {
		if line.Quantity.IsPositive() {
			return nil
		}
	}
	return fmt.Errorf("%w: at least one line with quantity > 0 is required", ErrValidation)
}

func requirePositiveTotal(d Document) error {
	if !d.Totals.Total.IsPositive() {
		return fmt.Errorf("%w: cannot post %s %s with zero total", ErrInvalidTransition, d.Kind, d.Number)
	}
	return nil
}

func requireCovered(d Document) error {
	if d.PaidAmount.LessThan(d.Totals.Total) {
		return fmt.Errorf("%w: %s %s is not fully paid", ErrInvalidTransition, d.Kind, d.Number)
	}
	return nil
}

// editable rejects mutation of anything past draft.
func editable(d Document) error {
	if d.Status != StatusDraft {
		return fmt.Errorf("%w: %s %s is %s and can no longer be edited", ErrInvalidTransition, d.Kind, d.Number, d.Status)
	}
	return nil
}
