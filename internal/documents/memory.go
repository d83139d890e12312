package documents

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/sequence"
)

// MemoryRepository keeps documents in process memory. Transactions are
// serialised and rolled back by restoring a snapshot.
type MemoryRepository struct {
	mu       sync.Mutex
	docs     map[uuid.UUID]Document
	payments map[uuid.UUID]Payment
	counters *sequence.MemoryStore
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		docs:     make(map[uuid.UUID]Document),
		payments: make(map[uuid.UUID]Payment),
		counters: sequence.NewMemoryStore(),
	}
}

type memoryTx struct {
	repo *MemoryRepository
}

// WithTx runs fn under the repository lock.
func (r *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make(map[uuid.UUID]Document, len(r.docs))
	for id, d := range r.docs {
		docs[id] = d
	}
	payments := make(map[uuid.UUID]Payment, len(r.payments))
	for id, p := range r.payments {
		payments[id] = p
	}
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.docs = docs
		r.payments = payments
		return err
	}
	return nil
}

// GetDocument implements RepositoryPort.
func (r *MemoryRepository) GetDocument(_ context.Context, kind Kind, id uuid.UUID) (Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getDocument(kind, id)
}

func (r *MemoryRepository) getDocument(kind Kind, id uuid.UUID) (Document, error) {
	doc, ok := r.docs[id]
	if !ok || doc.Kind != kind {
		return Document{}, ErrNotFound
	}
	out := doc.clone()
	out.recompute()
	return out, nil
}

// ListDocuments implements RepositoryPort.
func (r *MemoryRepository) ListDocuments(_ context.Context, filter ListFilter) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, doc := range r.docs {
		if doc.Kind != filter.Kind {
			continue
		}
		if filter.Status != "" && doc.Status != filter.Status {
			continue
		}
		out = append(out, doc.clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return page(out, filter.Limit, filter.Offset), nil
}

// ListOverdue implements RepositoryPort.
func (r *MemoryRepository) ListOverdue(_ context.Context, kind Kind, asOf time.Time) ([]Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Document
	for _, doc := range r.docs {
		if doc.Kind != kind || doc.Status != StatusPosted || doc.DueDate == nil {
			continue
		}
		if doc.DueDate.Before(asOf) {
			out = append(out, doc.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueDate.Before(*out[j].DueDate) })
	return out, nil
}

// GetPayment implements RepositoryPort.
func (r *MemoryRepository) GetPayment(_ context.Context, id uuid.UUID) (Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getPayment(id)
}

func (r *MemoryRepository) getPayment(id uuid.UUID) (Payment, error) {
	p, ok := r.payments[id]
	if !ok {
		return Payment{}, ErrNotFound
	}
	return p, nil
}

// ListPayments implements RepositoryPort.
func (r *MemoryRepository) ListPayments(_ context.Context, filter PaymentFilter) ([]Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Payment
	for _, p := range r.payments {
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.TargetKind != "" && p.TargetKind != filter.TargetKind {
			continue
		}
		if filter.TargetID != nil && p.TargetID != *filter.TargetID {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Number > out[j].Number
	})
	return page(out, filter.Limit, filter.Offset), nil
}

// CashFlowByMonth implements RepositoryPort.
func (r *MemoryRepository) CashFlowByMonth(_ context.Context, from, to time.Time) ([]MonthlyCashFlow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	months := make(map[string]*MonthlyCashFlow)
	for _, p := range r.payments {
		if p.Status != StatusPosted || p.Date.Before(from) || !p.Date.Before(to) {
			continue
		}
		key := p.Date.Format("2006-01")
		m, ok := months[key]
		if !ok {
			m = &MonthlyCashFlow{Month: key, Received: decimal.Zero, Sent: decimal.Zero}
			months[key] = m
		}
		if p.Direction == DirectionReceive {
			m.Received = m.Received.Add(p.AppliedAmount)
		} else {
			m.Sent = m.Sent.Add(p.AppliedAmount)
		}
	}
	out := make([]MonthlyCashFlow, 0, len(months))
	for _, m := range months {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// Increment implements sequence.Store.
func (t *memoryTx) Increment(ctx context.Context, scope sequence.Scope, year int) (int64, error) {
	return t.repo.counters.Increment(ctx, scope, year)
}

func (t *memoryTx) GetDocument(_ context.Context, kind Kind, id uuid.UUID) (Document, error) {
	return t.repo.getDocument(kind, id)
}

func (t *memoryTx) InsertDocument(_ context.Context, doc Document) error {
	if _, exists := t.repo.docs[doc.ID]; exists {
		return ErrConflict
	}
	for _, other := range t.repo.docs {
		if other.Kind == doc.Kind && other.Number == doc.Number {
			return ErrConflict
		}
	}
	t.repo.docs[doc.ID] = doc.clone()
	return nil
}

func (t *memoryTx) UpdateDocument(_ context.Context, doc Document, expectedVersion int64) error {
	current, ok := t.repo.docs[doc.ID]
	if !ok || current.Kind != doc.Kind {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	doc.Lines = current.Lines
	t.repo.docs[doc.ID] = doc.clone()
	return nil
}

func (t *memoryTx) ReplaceLines(_ context.Context, documentID uuid.UUID, lines []Line) error {
	current, ok := t.repo.docs[documentID]
	if !ok {
		return ErrNotFound
	}
	current.Lines = append([]Line(nil), lines...)
	t.repo.docs[documentID] = current
	return nil
}

func (t *memoryTx) DeleteDocument(_ context.Context, kind Kind, id uuid.UUID, expectedVersion int64) error {
	current, ok := t.repo.docs[id]
	if !ok || current.Kind != kind {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	delete(t.repo.docs, id)
	return nil
}

func (t *memoryTx) GetPayment(_ context.Context, id uuid.UUID) (Payment, error) {
	return t.repo.getPayment(id)
}

func (t *memoryTx) FindDraftPayment(_ context.Context, targetKind Kind, targetID uuid.UUID) (Payment, bool, error) {
	for _, p := range t.repo.payments {
		if p.Status == StatusDraft && p.TargetKind == targetKind && p.TargetID == targetID {
			return p, true, nil
		}
	}
	return Payment{}, false, nil
}

func (t *memoryTx) InsertPayment(_ context.Context, payment Payment) error {
	if _, exists := t.repo.payments[payment.ID]; exists {
		return ErrConflict
	}
	t.repo.payments[payment.ID] = payment
	return nil
}

func (t *memoryTx) UpdatePayment(_ context.Context, payment Payment, expectedVersion int64) error {
	current, ok := t.repo.payments[payment.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	t.repo.payments[payment.ID] = payment
	return nil
}

func (t *memoryTx) DeletePayment(_ context.Context, id uuid.UUID, expectedVersion int64) error {
	current, ok := t.repo.payments[id]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion {
		return ErrConflict
	}
	delete(t.repo.payments, id)
	return nil
}
