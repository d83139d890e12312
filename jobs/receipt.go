package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

// Receipt is the rendered form of a payment receipt.
type Receipt struct {
	Number  string
	Partner string
	Subject string
	Body    string
}

// ReceiptSink delivers rendered receipts.
type ReceiptSink interface {
	Deliver(ctx context.Context, receipt Receipt) error
}

// LogSink writes receipts to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

// Deliver implements ReceiptSink.
func (s LogSink) Deliver(_ context.Context, r Receipt) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("payment receipt", slog.String("number", r.Number), slog.String("partner", r.Partner), slog.String("subject", r.Subject), slog.String("body", r.Body))
	return nil
}

// ReceiptJob renders receipts for posted payments.
type ReceiptJob struct {
	Sink    ReceiptSink
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	printer *message.Printer
}

// NewReceiptJob initialises the receipt handler. Amounts are formatted for
// locale, falling back to English when the tag cannot be parsed.
func NewReceiptJob(sink ReceiptSink, locale string, logger *slog.Logger, metrics *jobmetrics.Metrics) *ReceiptJob {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.English
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	return &ReceiptJob{Sink: sink, Logger: logger, Metrics: metrics, printer: message.NewPrinter(tag)}
}

// Handle executes the receipt task.
func (j *ReceiptJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil {
		return errors.New("payment receipt: handler not configured")
	}
	var payload PaymentReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	tracker := j.metrics().Track(TaskPaymentReceipt)
	defer func() { err = tracker.End(err) }()

	receipt, err := j.Render(payload)
	if err != nil {
		j.logger().Warn("invalid receipt payload", slog.String("payment", payload.Number), slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := j.Sink.Deliver(ctx, receipt); err != nil {
		return fmt.Errorf("payment receipt %s: %w", payload.Number, err)
	}
	j.metrics().AddProcessed(TaskPaymentReceipt, 1)
	return nil
}

// Render formats the receipt text of payload.
func (j *ReceiptJob) Render(payload PaymentReceiptPayload) (Receipt, error) {
	applied, err := decimal.NewFromString(payload.Applied)
	if err != nil {
		return Receipt{}, fmt.Errorf("applied amount: %w", err)
	}
	remaining, err := decimal.NewFromString(payload.Remaining)
	if err != nil {
		return Receipt{}, fmt.Errorf("remaining amount: %w", err)
	}
	verb := "paid to"
	if payload.Direction == "receive" {
		verb = "received from"
	}
	p := j.printer
	subject := p.Sprintf("Payment %s %s %s", payload.Number, verb, payload.PartnerName)
	body := p.Sprintf("%s %.2f by %s against %s. Remaining balance %.2f (%s).",
		payload.Number, applied.InexactFloat64(), payload.Method, payload.TargetNumber,
		remaining.InexactFloat64(), payload.TargetStatus)
	return Receipt{Number: payload.Number, Partner: payload.PartnerName, Subject: subject, Body: body}, nil
}

func (j *ReceiptJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPaymentReceipt))
	}
	return slog.Default().With(slog.String("job", TaskPaymentReceipt))
}

func (j *ReceiptJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
