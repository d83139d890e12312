package documents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/sequence"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// RepositoryPort describes repository operations used by the engine.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetDocument(ctx context.Context, kind Kind, id uuid.UUID) (Document, error)
	ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error)
	ListOverdue(ctx context.Context, kind Kind, asOf time.Time) ([]Document, error)
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	CashFlowByMonth(ctx context.Context, from, to time.Time) ([]MonthlyCashFlow, error)
}

// TxRepository exposes transactional operations. Update and delete calls
// carry the version read earlier and fail with ErrConflict when the stored
// row moved on.
type TxRepository interface {
	sequence.Store
	GetDocument(ctx context.Context, kind Kind, id uuid.UUID) (Document, error)
	InsertDocument(ctx context.Context, doc Document) error
	UpdateDocument(ctx context.Context, doc Document, expectedVersion int64) error
	ReplaceLines(ctx context.Context, documentID uuid.UUID, lines []Line) error
	DeleteDocument(ctx context.Context, kind Kind, id uuid.UUID, expectedVersion int64) error
	GetPayment(ctx context.Context, id uuid.UUID) (Payment, error)
	FindDraftPayment(ctx context.Context, targetKind Kind, targetID uuid.UUID) (Payment, bool, error)
	InsertPayment(ctx context.Context, payment Payment) error
	UpdatePayment(ctx context.Context, payment Payment, expectedVersion int64) error
	DeletePayment(ctx context.Context, id uuid.UUID, expectedVersion int64) error
}

// TaxResolver supplies the default tax percent of a product.
type TaxResolver interface {
	TaxPercent(ctx context.Context, side catalog.Side, product string) (decimal.Decimal, error)
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// EventPublisher is notified after a payment commit.
type EventPublisher interface {
	PaymentPosted(ctx context.Context, payment Payment, target Document) error
}

// MetricsPort records engine counters.
type MetricsPort interface {
	RecordTransition(kind, from, to string)
	RecordOverpaymentClamp(kind string)
}
