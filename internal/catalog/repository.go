package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository stores the catalog in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs the repository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func duplicate(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
	}
	return err
}

// InsertTax implements Repository.
func (r *PGRepository) InsertTax(ctx context.Context, tax Tax) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO taxes (id, name, computation, value, on_sales, on_purchase, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tax.ID, tax.Name, string(tax.Computation), tax.Value, tax.OnSales, tax.OnPurchase, tax.CreatedAt)
	return duplicate(err)
}

const taxColumns = `id, name, computation, value, on_sales, on_purchase, created_at`

func scanTax(row pgx.Row) (Tax, error) {
	var t Tax
	err := row.Scan(&t.ID, &t.Name, &t.Computation, &t.Value, &t.OnSales, &t.OnPurchase, &t.CreatedAt)
	return t, err
}

// ListTaxes implements Repository.
func (r *PGRepository) ListTaxes(ctx context.Context) ([]Tax, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+taxColumns+` FROM taxes ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tax
	for rows.Next() {
		t, err := scanTax(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTaxByName implements Repository.
func (r *PGRepository) GetTaxByName(ctx context.Context, name string) (Tax, error) {
	t, err := scanTax(r.pool.QueryRow(ctx, `SELECT `+taxColumns+` FROM taxes WHERE name = $1`, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return Tax{}, ErrNotFound
	}
	return t, err
}

// InsertProduct implements Repository.
func (r *PGRepository) InsertProduct(ctx context.Context, p Product) error {
	var taxName *string
	if p.TaxName != "" {
		taxName = &p.TaxName
	}
	_, err := r.pool.Exec(ctx, `INSERT INTO products (id, name, sale_price, purchase_price, tax_name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, p.ID, p.Name, p.SalePrice, p.PurchasePrice, taxName, p.CreatedAt)
	return duplicate(err)
}

const productColumns = `id, name, sale_price, purchase_price, COALESCE(tax_name, ''), created_at`

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.SalePrice, &p.PurchasePrice, &p.TaxName, &p.CreatedAt)
	return p, err
}

// ListProducts implements Repository.
func (r *PGRepository) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+productColumns+` FROM products ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// FindProduct implements Repository, matching an id first and then a name.
func (r *PGRepository) FindProduct(ctx context.Context, ref string) (Product, error) {
	var row pgx.Row
	if id, err := uuid.Parse(ref); err == nil {
		row = r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	} else {
		row = r.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE lower(name) = lower($1)`, ref)
	}
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// MemoryRepository keeps the catalog in process memory.
type MemoryRepository struct {
	mu       sync.RWMutex
	taxes    map[string]Tax
	products map[uuid.UUID]Product
}

// NewMemoryRepository constructs an empty catalog.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{taxes: make(map[string]Tax), products: make(map[uuid.UUID]Product)}
}

// InsertTax implements Repository.
func (r *MemoryRepository) InsertTax(_ context.Context, tax Tax) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.taxes[tax.Name]; ok {
		return fmt.Errorf("%w: tax %s", ErrDuplicate, tax.Name)
	}
	r.taxes[tax.Name] = tax
	return nil
}

// ListTaxes implements Repository.
func (r *MemoryRepository) ListTaxes(_ context.Context) ([]Tax, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tax, 0, len(r.taxes))
	for _, t := range r.taxes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetTaxByName implements Repository.
func (r *MemoryRepository) GetTaxByName(_ context.Context, name string) (Tax, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.taxes[name]
	if !ok {
		return Tax{}, ErrNotFound
	}
	return t, nil
}

// InsertProduct implements Repository.
func (r *MemoryRepository) InsertProduct(_ context.Context, p Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.products {
		if strings.EqualFold(existing.Name, p.Name) {
			return fmt.Errorf("%w: product %s", ErrDuplicate, p.Name)
		}
	}
	r.products[p.ID] = p
	return nil
}

// ListProducts implements Repository.
func (r *MemoryRepository) ListProducts(_ context.Context) ([]Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// FindProduct implements Repository.
func (r *MemoryRepository) FindProduct(_ context.Context, ref string) (Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, err := uuid.Parse(ref); err == nil {
		if p, ok := r.products[id]; ok {
			return p, nil
		}
		return Product{}, ErrNotFound
	}
	for _, p := range r.products {
		if strings.EqualFold(p.Name, ref) {
			return p, nil
		}
	}
	return Product{}, ErrNotFound
}
