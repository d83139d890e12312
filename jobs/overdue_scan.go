package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-books/internal/documents"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

// OverdueLister returns posted documents past their due date.
type OverdueLister interface {
	ListOverdue(ctx context.Context, kind documents.Kind, asOf time.Time) ([]documents.Document, error)
}

// OverdueGauges publishes overdue figures per kind.
type OverdueGauges interface {
	SetOverdue(kind string, count int, amount float64)
}

// OverdueTotals summarises the outstanding balance of one document kind.
type OverdueTotals struct {
	Kind   documents.Kind
	Count  int
	Amount decimal.Decimal
}

// OverdueScanJob refreshes overdue counters for bills and invoices.
type OverdueScanJob struct {
	Lister  OverdueLister
	Gauges  OverdueGauges
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewOverdueScanJob initialises the scan handler.
func NewOverdueScanJob(lister OverdueLister, gauges OverdueGauges, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Lister: lister, Gauges: gauges, Logger: logger, Metrics: metrics, clock: time.Now}
}

var overdueKinds = []documents.Kind{documents.KindVendorBill, documents.KindCustomerInvoice}

// Handle executes the overdue scan task.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Lister == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	tracker := j.metrics().Track(TaskOverdueScan)
	defer func() { err = tracker.End(err) }()

	asOf := payload.AsOf
	if asOf.IsZero() {
		asOf = j.now()
	}
	totals, err := j.Scan(ctx, asOf)
	if err != nil {
		return err
	}
	processed := 0
	for _, total := range totals {
		processed += total.Count
		j.logger().Info("overdue documents",
			slog.String("kind", string(total.Kind)),
			slog.Int("count", total.Count),
			slog.String("amount", total.Amount.StringFixed(2)),
			slog.Time("as_of", asOf))
	}
	j.metrics().AddProcessed(TaskOverdueScan, processed)
	return nil
}

// Scan computes overdue totals as of asOf and updates the gauges.
func (j *OverdueScanJob) Scan(ctx context.Context, asOf time.Time) ([]OverdueTotals, error) {
	totals := make([]OverdueTotals, len(overdueKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range overdueKinds {
		g.Go(func() error {
			docs, err := j.Lister.ListOverdue(gctx, kind, asOf)
			if err != nil {
				return fmt.Errorf("list overdue %s: %w", kind, err)
			}
			sum := decimal.Zero
			for _, doc := range docs {
				sum = sum.Add(doc.Remaining())
			}
			totals[i] = OverdueTotals{Kind: kind, Count: len(docs), Amount: sum}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if j.Gauges != nil {
		for _, total := range totals {
			j.Gauges.SetOverdue(string(total.Kind), total.Count, total.Amount.InexactFloat64())
		}
	}
	return totals, nil
}

func (j *OverdueScanJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskOverdueScan))
	}
	return slog.Default().With(slog.String("job", TaskOverdueScan))
}

func (j *OverdueScanJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *OverdueScanJob) now() time.Time {
	if j.clock != nil {
		return j.clock().UTC()
	}
	return time.Now().UTC()
}
