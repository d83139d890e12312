// Package documents implements the lifecycle of purchase orders, vendor
// bills, sales orders, customer invoices and payments.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/catalog"
	"github.com/odyssey-erp/odyssey-books/internal/sequence"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// OverpaymentPolicy selects how reconciliation treats amounts above the
// remaining balance.
type OverpaymentPolicy string

const (
	OverpaymentClamp  OverpaymentPolicy = "clamp"
	OverpaymentReject OverpaymentPolicy = "reject"
)

var hundred = decimal.NewFromInt(100)

// Options wires optional collaborators into the engine.
type Options struct {
	Sequences   *sequence.Generator
	Counters    sequence.Store
	Taxes       TaxResolver
	Audit       AuditPort
	Events      EventPublisher
	Metrics     MetricsPort
	Logger      *slog.Logger
	Overpayment OverpaymentPolicy
	DueDays     int
	Clock       func() time.Time
}

// Engine is the single implementation behind every document service.
type Engine struct {
	repo     RepositoryPort
	seq      *sequence.Generator
	counters sequence.Store
	taxes    TaxResolver
	audit    AuditPort
	events   EventPublisher
	metrics  MetricsPort
	logger   *slog.Logger
	policy   OverpaymentPolicy
	dueDays  int
	now      func() time.Time
}

// NewEngine constructs the engine. A nil Counters store allocates numbers
// inside the repository transaction.
func NewEngine(repo RepositoryPort, opts Options) *Engine {
	e := &Engine{
		repo:     repo,
		seq:      opts.Sequences,
		counters: opts.Counters,
		taxes:    opts.Taxes,
		audit:    opts.Audit,
		events:   opts.Events,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		policy:   opts.Overpayment,
		dueDays:  opts.DueDays,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.policy == "" {
		e.policy = OverpaymentClamp
	}
	if e.dueDays <= 0 {
		e.dueDays = 7
	}
	if clock := opts.Clock; clock != nil {
		e.now = func() time.Time { return clock().UTC() }
	} else {
		e.now = func() time.Time { return time.Now().UTC() }
	}
	if e.seq == nil {
		e.seq = sequence.NewGenerator().WithClock(e.now)
	} else if opts.Clock != nil {
		e.seq.WithClock(e.now)
	}
	return e
}

// Create stores a new draft document of kind.
func (e *Engine) Create(ctx context.Context, kind Kind, input CreateInput) (Document, error) {
	if !kind.Valid() {
		return Document{}, fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	if strings.TrimSpace(input.PartyName) == "" {
		return Document{}, fmt.Errorf("%w: party name is required", ErrValidation)
	}
	lines, err := e.buildLines(ctx, kind, input.Lines)
	if err != nil {
		return Document{}, err
	}
	now := e.now()
	doc := Document{
		ID:        uuid.New(),
		Kind:      kind,
		Reference: strings.TrimSpace(input.Reference),
		PartyID:   input.PartyID,
		PartyName: strings.TrimSpace(input.PartyName),
		Status:    StatusDraft,
		Date:      now,
		Lines:     lines,
		Note:      input.Note,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if input.Date != nil {
		doc.Date = *input.Date
	}
	if kind.Payable() {
		doc.DueDate = e.dueDate(doc.Date, input.DueDate)
	}
	doc.recompute()

	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := e.assignNumbers(ctx, tx, &doc); err != nil {
			return err
		}
		return tx.InsertDocument(ctx, doc)
	})
	if err != nil {
		return Document{}, err
	}
	e.recordAudit(ctx, "DOC_CREATE", doc.Kind, doc.ID, map[string]any{"number": doc.Number, "total": doc.Totals.Total.String()})
	return doc, nil
}

// Update applies patch to a draft and recomputes totals when lines change.
func (e *Engine) Update(ctx context.Context, kind Kind, id uuid.UUID, patch Patch) (Document, error) {
	return e.Change(ctx, kind, id, &patch, nil)
}

// SetLines replaces the whole line set of a draft.
func (e *Engine) SetLines(ctx context.Context, kind Kind, id uuid.UUID, lines []LineInput) (Document, error) {
	return e.Update(ctx, kind, id, Patch{Lines: &lines})
}

// Transition moves a document along a user edge of its table.
func (e *Engine) Transition(ctx context.Context, kind Kind, id uuid.UUID, target Status) (Document, error) {
	return e.Change(ctx, kind, id, nil, &target)
}

// Change applies an optional patch and then an optional status transition in
// one transaction. The transition guards see the patched document, and a
// rejected transition discards the patch.
func (e *Engine) Change(ctx context.Context, kind Kind, id uuid.UUID, patch *Patch, target *Status) (Document, error) {
	machine, err := machineFor(kind)
	if err != nil {
		return Document{}, err
	}
	var lines []Line
	if patch != nil {
		if lines, err = e.prepareLines(ctx, kind, *patch); err != nil {
			return Document{}, err
		}
	}

	var (
		updated Document
		from    Status
	)
	err = e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocument(ctx, kind, id)
		if err != nil {
			return err
		}
		expected := doc.Version
		from = doc.Status
		if patch == nil && target == nil {
			updated = doc
			return nil
		}
		if patch != nil {
			if err := editable(doc); err != nil {
				return err
			}
			applyPatch(&doc, *patch, lines)
		}
		if target != nil {
			if err := machine.Request(doc.Status, *target, doc); err != nil {
				return err
			}
			doc.Status = *target
		}
		doc.Version = expected + 1
		doc.UpdatedAt = e.now()
		if err := tx.UpdateDocument(ctx, doc, expected); err != nil {
			return err
		}
		if patch != nil && patch.Lines != nil {
			if err := tx.ReplaceLines(ctx, doc.ID, doc.Lines); err != nil {
				return err
			}
		}
		updated = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	if patch != nil {
		e.recordAudit(ctx, "DOC_UPDATE", kind, id, map[string]any{"lines_replaced": patch.Lines != nil})
	}
	if target != nil {
		e.recordTransition(ctx, kind, id, from, *target)
	}
	return updated, nil
}

// prepareLines validates patch outside the transaction and builds its lines.
func (e *Engine) prepareLines(ctx context.Context, kind Kind, patch Patch) ([]Line, error) {
	if patch.PartyName != nil && strings.TrimSpace(*patch.PartyName) == "" {
		return nil, fmt.Errorf("%w: party name is required", ErrValidation)
	}
	if patch.DueDate != nil && !kind.Payable() {
		return nil, fmt.Errorf("%w: %s has no due date", ErrValidation, kind)
	}
	if patch.Lines == nil {
		return nil, nil
	}
	return e.buildLines(ctx, kind, *patch.Lines)
}

func applyPatch(doc *Document, patch Patch, lines []Line) {
	if patch.PartyID != nil {
		doc.PartyID = *patch.PartyID
	}
	if patch.PartyName != nil {
		doc.PartyName = strings.TrimSpace(*patch.PartyName)
	}
	if patch.Reference != nil {
		doc.Reference = strings.TrimSpace(*patch.Reference)
	}
	if patch.DueDate != nil {
		due := *patch.DueDate
		doc.DueDate = &due
	}
	if patch.Note != nil {
		doc.Note = *patch.Note
	}
	if patch.Lines != nil {
		doc.Lines = lines
	}
	doc.recompute()
}

// Get returns one document.
func (e *Engine) Get(ctx context.Context, kind Kind, id uuid.UUID) (Document, error) {
	return e.repo.GetDocument(ctx, kind, id)
}

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// List returns documents of one kind.
func (e *Engine) List(ctx context.Context, filter ListFilter) ([]Document, error) {
	if !filter.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrValidation, filter.Kind)
	}
	if filter.Limit <= 0 || filter.Limit > maxListLimit {
		filter.Limit = defaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return e.repo.ListDocuments(ctx, filter)
}

// Delete removes a draft.
func (e *Engine) Delete(ctx context.Context, kind Kind, id uuid.UUID) error {
	err := e.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		doc, err := tx.GetDocument(ctx, kind, id)
		if err != nil {
			return err
		}
		if doc.Status != StatusDraft {
			return fmt.Errorf("%w: only draft documents can be deleted", ErrInvalidTransition)
		}
		return tx.DeleteDocument(ctx, kind, id, doc.Version)
	})
	if err != nil {
		return err
	}
	e.recordAudit(ctx, "DOC_DELETE", kind, id, nil)
	return nil
}

// ListOverdue returns posted documents of kind whose due date is before asOf.
func (e *Engine) ListOverdue(ctx context.Context, kind Kind, asOf time.Time) ([]Document, error) {
	if !kind.Payable() {
		return nil, fmt.Errorf("%w: %s has no due date", ErrValidation, kind)
	}
	return e.repo.ListOverdue(ctx, kind, asOf)
}

func (e *Engine) buildLines(ctx context.Context, kind Kind, inputs []LineInput) ([]Line, error) {
	lines := make([]Line, 0, len(inputs))
	for i, in := range inputs {
		name := strings.TrimSpace(in.ProductName)
		if name == "" && in.ProductID == "" {
			return nil, fmt.Errorf("%w: line %d: product is required", ErrValidation, i+1)
		}
		if !in.Quantity.IsPositive() {
			return nil, fmt.Errorf("%w: line %d: quantity must be greater than zero", ErrValidation, i+1)
		}
		if in.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("%w: line %d: unit price cannot be negative", ErrValidation, i+1)
		}
		percent, err := e.linePercent(ctx, kind, in)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if percent.IsNegative() || percent.GreaterThan(hundred) {
			return nil, fmt.Errorf("%w: line %d: tax percent must be between 0 and 100", ErrValidation, i+1)
		}
		lines = append(lines, Line{
			ID:          uuid.New(),
			ProductID:   in.ProductID,
			ProductName: name,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TaxPercent:  percent,
		})
	}
	return lines, nil
}

func (e *Engine) linePercent(ctx context.Context, kind Kind, in LineInput) (decimal.Decimal, error) {
	if in.TaxPercent != nil {
		return *in.TaxPercent, nil
	}
	if e.taxes == nil {
		return decimal.Zero, nil
	}
	ref := in.ProductID
	if ref == "" {
		ref = strings.TrimSpace(in.ProductName)
	}
	percent, err := e.taxes.TaxPercent(ctx, kind.Side(), ref)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: unknown product %q", ErrValidation, ref)
		}
		return decimal.Zero, err
	}
	return percent, nil
}

func (e *Engine) dueDate(from time.Time, explicit *time.Time) *time.Time {
	if explicit != nil {
		due := *explicit
		return &due
	}
	due := from.AddDate(0, 0, e.dueDays)
	return &due
}

func (e *Engine) store(tx TxRepository) sequence.Store {
	if e.counters != nil {
		return e.counters
	}
	return tx
}

func (e *Engine) assignNumbers(ctx context.Context, tx TxRepository, doc *Document) error {
	number, err := e.seq.Next(ctx, e.store(tx), doc.Kind.numberScope())
	if err != nil {
		return err
	}
	doc.Number = number
	if scope, ok := doc.Kind.referenceScope(); ok && doc.Reference == "" {
		ref, err := e.seq.Next(ctx, e.store(tx), scope)
		if err != nil {
			return err
		}
		doc.Reference = ref
	}
	return nil
}

func (e *Engine) recordTransition(ctx context.Context, kind Kind, id uuid.UUID, from, to Status) {
	if e.metrics != nil {
		e.metrics.RecordTransition(string(kind), string(from), string(to))
	}
	e.recordAudit(ctx, "DOC_TRANSITION", kind, id, map[string]any{"from": string(from), "to": string(to)})
}

func (e *Engine) recordAudit(ctx context.Context, action string, kind Kind, id uuid.UUID, meta map[string]any) {
	if e.audit == nil {
		return
	}
	entry := shared.AuditLog{
		ActorID:  shared.ActorFromContext(ctx).ID,
		Action:   action,
		Entity:   string(kind),
		EntityID: id.String(),
		Meta:     meta,
		At:       e.now(),
	}
	if err := e.audit.Record(ctx, entry); err != nil {
		e.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}
