package documents

import (
	"errors"

	"github.com/odyssey-erp/odyssey-books/internal/workflow"
)

var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("documents: validation failed")
	// ErrInvalidTransition is shared with the workflow engine.
	ErrInvalidTransition = workflow.ErrInvalidTransition
	// ErrNotFound indicates an unknown document or payment id.
	ErrNotFound = errors.New("documents: not found")
	// ErrConflict signals a concurrent writer changed the row since it was read.
	ErrConflict = errors.New("documents: concurrent modification")
	// ErrOverpayment rejects a payment larger than the remaining balance.
	ErrOverpayment = errors.New("documents: payment exceeds remaining balance")
)
