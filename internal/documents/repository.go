package documents

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-books/internal/platform/db"
	"github.com/odyssey-erp/odyssey-books/internal/sequence"
)

// Repository provides PostgreSQL backed persistence, one table per kind.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx  pgx.Tx
	seq *sequence.PGStore
}

var tables = map[Kind]string{
	KindPurchaseOrder:   "purchase_orders",
	KindVendorBill:      "vendor_bills",
	KindSalesOrder:      "sales_orders",
	KindCustomerInvoice: "customer_invoices",
}

func tableFor(kind Kind) (string, error) {
	table, ok := tables[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown kind %q", ErrValidation, kind)
	}
	return table, nil
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return mapPgError(db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx, seq: sequence.NewPGStore(tx)})
	}))
}

// mapPgError folds serialization failures and duplicate keys into ErrConflict.
func mapPgError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		}
	}
	return err
}

const documentColumns = `id, number, reference, party_id, party_name, status, doc_date, due_date,
	untaxed, tax, total, source_id, paid_amount, paid_cash, paid_bank, note, version, created_at, updated_at`

func scanDocument(row pgx.Row, kind Kind) (Document, error) {
	doc := Document{Kind: kind}
	err := row.Scan(&doc.ID, &doc.Number, &doc.Reference, &doc.PartyID, &doc.PartyName, &doc.Status,
		&doc.Date, &doc.DueDate, &doc.Totals.Untaxed, &doc.Totals.Tax, &doc.Totals.Total, &doc.SourceID,
		&doc.PaidAmount, &doc.PaidCash, &doc.PaidBank, &doc.Note, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func getDocument(ctx context.Context, q querier, kind Kind, id uuid.UUID) (Document, error) {
	table, err := tableFor(kind)
	if err != nil {
		return Document{}, err
	}
	doc, err := scanDocument(q.QueryRow(ctx, `SELECT `+documentColumns+` FROM `+table+` WHERE id = $1`, id), kind)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	lines, err := loadLines(ctx, q, []uuid.UUID{doc.ID})
	if err != nil {
		return Document{}, err
	}
	doc.Lines = lines[doc.ID]
	doc.recompute()
	return doc, nil
}

func loadLines(ctx context.Context, q querier, ids []uuid.UUID) (map[uuid.UUID][]Line, error) {
	out := make(map[uuid.UUID][]Line, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `SELECT document_id, id, product_id, product_name, quantity, unit_price, tax_percent
		FROM document_lines WHERE document_id = ANY($1) ORDER BY document_id, position`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var docID uuid.UUID
		var line Line
		if err := rows.Scan(&docID, &line.ID, &line.ProductID, &line.ProductName, &line.Quantity, &line.UnitPrice, &line.TaxPercent); err != nil {
			return nil, err
		}
		out[docID] = append(out[docID], line)
	}
	return out, rows.Err()
}

func collectDocuments(ctx context.Context, q querier, kind Kind, rows pgx.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows, kind)
		if err != nil {
			rows.Close()
			return nil, err
		}
		docs = append(docs, doc)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	lines, err := loadLines(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	for i := range docs {
		docs[i].Lines = lines[docs[i].ID]
		docs[i].recompute()
	}
	return docs, nil
}

// GetDocument returns one document with its lines.
func (r *Repository) GetDocument(ctx context.Context, kind Kind, id uuid.UUID) (Document, error) {
	return getDocument(ctx, r.pool, kind, id)
}

// ListDocuments returns one page of documents, newest first.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, error) {
	table, err := tableFor(filter.Kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM `+table+`
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, number DESC
		LIMIT $2 OFFSET $3`, string(filter.Status), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return collectDocuments(ctx, r.pool, filter.Kind, rows)
}

// ListOverdue returns posted documents due before asOf.
func (r *Repository) ListOverdue(ctx context.Context, kind Kind, asOf time.Time) ([]Document, error) {
	table, err := tableFor(kind)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+documentColumns+` FROM `+table+`
		WHERE status = $1 AND due_date IS NOT NULL AND due_date < $2
		ORDER BY due_date`, string(StatusPosted), asOf)
	if err != nil {
		return nil, err
	}
	return collectDocuments(ctx, r.pool, kind, rows)
}

const paymentColumns = `id, number, amount, applied_amount, method, direction, status, target_kind, target_id,
	partner_name, pay_date, note, version, created_at, updated_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.Number, &p.Amount, &p.AppliedAmount, &p.Method, &p.Direction, &p.Status,
		&p.TargetKind, &p.TargetID, &p.PartnerName, &p.Date, &p.Note, &p.Version, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getPayment(ctx context.Context, q querier, id uuid.UUID) (Payment, error) {
	p, err := scanPayment(q.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

// GetPayment returns one payment.
func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return getPayment(ctx, r.pool, id)
}

// ListPayments returns one page of payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR target_kind = $2)
		  AND ($3::uuid IS NULL OR target_id = $3)
		ORDER BY created_at DESC, number DESC
		LIMIT $4 OFFSET $5`, string(filter.Status), string(filter.TargetKind), filter.TargetID, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CashFlowByMonth aggregates posted payments by month and direction.
func (r *Repository) CashFlowByMonth(ctx context.Context, from, to time.Time) ([]MonthlyCashFlow, error) {
	rows, err := r.pool.Query(ctx, `SELECT to_char(date_trunc('month', pay_date), 'YYYY-MM') AS month,
		COALESCE(SUM(applied_amount) FILTER (WHERE direction = 'receive'), 0),
		COALESCE(SUM(applied_amount) FILTER (WHERE direction = 'send'), 0)
		FROM payments
		WHERE status = $1 AND pay_date >= $2 AND pay_date < $3
		GROUP BY 1 ORDER BY 1`, string(StatusPosted), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []MonthlyCashFlow
	for rows.Next() {
		var m MonthlyCashFlow
		if err := rows.Scan(&m.Month, &m.Received, &m.Sent); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// Increment implements sequence.Store on the open transaction.
func (t *txRepo) Increment(ctx context.Context, scope sequence.Scope, year int) (int64, error) {
	return t.seq.Increment(ctx, scope, year)
}

func (t *txRepo) GetDocument(ctx context.Context, kind Kind, id uuid.UUID) (Document, error) {
	return getDocument(ctx, t.tx, kind, id)
}

func (t *txRepo) InsertDocument(ctx context.Context, doc Document) error {
	table, err := tableFor(doc.Kind)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO `+table+` (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		doc.ID, doc.Number, doc.Reference, doc.PartyID, doc.PartyName, string(doc.Status), doc.Date, doc.DueDate,
		doc.Totals.Untaxed, doc.Totals.Tax, doc.Totals.Total, doc.SourceID,
		doc.PaidAmount, doc.PaidCash, doc.PaidBank, doc.Note, doc.Version, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert %s: %w", doc.Kind, err)
	}
	return t.insertLines(ctx, doc.ID, doc.Lines)
}

func (t *txRepo) UpdateDocument(ctx context.Context, doc Document, expectedVersion int64) error {
	table, err := tableFor(doc.Kind)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE `+table+` SET
		reference = $3, party_id = $4, party_name = $5, status = $6, due_date = $7,
		untaxed = $8, tax = $9, total = $10, paid_amount = $11, paid_cash = $12, paid_bank = $13,
		note = $14, version = $15, updated_at = $16
		WHERE id = $1 AND version = $2`,
		doc.ID, expectedVersion, doc.Reference, doc.PartyID, doc.PartyName, string(doc.Status), doc.DueDate,
		doc.Totals.Untaxed, doc.Totals.Tax, doc.Totals.Total, doc.PaidAmount, doc.PaidCash, doc.PaidBank,
		doc.Note, doc.Version, doc.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *txRepo) ReplaceLines(ctx context.Context, documentID uuid.UUID, lines []Line) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	return t.insertLines(ctx, documentID, lines)
}

func (t *txRepo) insertLines(ctx context.Context, documentID uuid.UUID, lines []Line) error {
	if len(lines) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for i, line := range lines {
		batch.Queue(`INSERT INTO document_lines (id, document_id, position, product_id, product_name, quantity, unit_price, tax_percent)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			line.ID, documentID, i, line.ProductID, line.ProductName, line.Quantity, line.UnitPrice, line.TaxPercent)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *txRepo) DeleteDocument(ctx context.Context, kind Kind, id uuid.UUID, expectedVersion int64) error {
	table, err := tableFor(kind)
	if err != nil {
		return err
	}
	if _, err := t.tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM `+table+` WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *txRepo) GetPayment(ctx context.Context, id uuid.UUID) (Payment, error) {
	return getPayment(ctx, t.tx, id)
}

func (t *txRepo) FindDraftPayment(ctx context.Context, targetKind Kind, targetID uuid.UUID) (Payment, bool, error) {
	p, err := scanPayment(t.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments
		WHERE status = $1 AND target_kind = $2 AND target_id = $3
		ORDER BY created_at LIMIT 1`, string(StatusDraft), string(targetKind), targetID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, false, nil
		}
		return Payment{}, false, err
	}
	return p, true, nil
}

func (t *txRepo) InsertPayment(ctx context.Context, p Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		p.ID, p.Number, p.Amount, p.AppliedAmount, string(p.Method), string(p.Direction), string(p.Status),
		string(p.TargetKind), p.TargetID, p.PartnerName, p.Date, p.Note, p.Version, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	return nil
}

func (t *txRepo) UpdatePayment(ctx context.Context, p Payment, expectedVersion int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payments SET
		amount = $3, applied_amount = $4, method = $5, status = $6, note = $7, version = $8, updated_at = $9
		WHERE id = $1 AND version = $2`,
		p.ID, expectedVersion, p.Amount, p.AppliedAmount, string(p.Method), string(p.Status), p.Note, p.Version, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func (t *txRepo) DeletePayment(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM payments WHERE id = $1 AND version = $2`, id, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}
