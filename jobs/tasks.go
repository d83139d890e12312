package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-books/internal/documents"
	jobmetrics "github.com/odyssey-erp/odyssey-books/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPaymentReceipt renders the receipt of a posted payment.
	TaskPaymentReceipt = "payments:receipt"
	// TaskOverdueScan refreshes overdue bill and invoice figures.
	TaskOverdueScan = "documents:overdue_scan"
)

// PaymentReceiptPayload describes a posted payment and the document it settled.
type PaymentReceiptPayload struct {
	PaymentID    string    `json:"payment_id"`
	Number       string    `json:"number"`
	Direction    string    `json:"direction"`
	Method       string    `json:"method"`
	Amount       string    `json:"amount"`
	Applied      string    `json:"applied"`
	PartnerName  string    `json:"partner_name"`
	TargetKind   string    `json:"target_kind"`
	TargetNumber string    `json:"target_number"`
	TargetStatus string    `json:"target_status"`
	Remaining    string    `json:"remaining"`
	PostedAt     time.Time `json:"posted_at"`
}

// ReceiptPayload builds the receipt payload of p settling target.
func ReceiptPayload(p documents.Payment, target documents.Document) PaymentReceiptPayload {
	return PaymentReceiptPayload{
		PaymentID:    p.ID.String(),
		Number:       p.Number,
		Direction:    string(p.Direction),
		Method:       string(p.Method),
		Amount:       p.Amount.String(),
		Applied:      p.AppliedAmount.String(),
		PartnerName:  p.PartnerName,
		TargetKind:   string(target.Kind),
		TargetNumber: target.Number,
		TargetStatus: string(target.Status),
		Remaining:    target.Remaining().String(),
		PostedAt:     p.UpdatedAt,
	}
}

// NewPaymentReceiptTask constructs an Asynq task for a payment receipt.
func NewPaymentReceiptTask(payload PaymentReceiptPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentReceipt, body, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// OverdueScanPayload carries the reference instant of a scan. A zero AsOf
// means the moment the task runs.
type OverdueScanPayload struct {
	AsOf time.Time `json:"as_of,omitempty"`
}

// NewOverdueScanTask constructs an Asynq task for the overdue scan.
func NewOverdueScanTask(asOf time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(OverdueScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, body, asynq.Queue(QueueDefault)), nil
}
