package documents

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postedBill(t *testing.T, f *fixture, lines []LineInput) Document {
	t.Helper()
	ctx := context.Background()
	bill, err := f.svc.VendorBills.Create(ctx, CreateInput{PartyName: "Acme", Lines: lines})
	require.NoError(t, err)
	bill, err = f.svc.VendorBills.Transition(ctx, bill.ID, StatusPosted)
	require.NoError(t, err)
	return bill
}

func postedInvoice(t *testing.T, f *fixture, lines []LineInput) Document {
	t.Helper()
	ctx := context.Background()
	inv, err := f.svc.CustomerInvoices.Create(ctx, CreateInput{PartyName: "Globex", Lines: lines})
	require.NoError(t, err)
	inv, err = f.svc.CustomerInvoices.Transition(ctx, inv.ID, StatusPosted)
	require.NoError(t, err)
	return inv
}

func fiveHundred() []LineInput {
	return []LineInput{{ProductName: "Consulting", Quantity: dec("5"), UnitPrice: dec("100")}}
}

func TestBillPaidInFull(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bill := postedBill(t, f, chairLines())

	payment, err := f.svc.VendorBills.Pay(ctx, bill.ID, MethodBank)
	require.NoError(t, err)
	assert.Equal(t, "PAY/25/0001", payment.Number)
	assert.Equal(t, StatusDraft, payment.Status)
	assert.Equal(t, DirectionSend, payment.Direction)
	assert.Equal(t, "Acme", payment.PartnerName)
	assertDecimal(t, "236", payment.Amount)

	again, err := f.svc.VendorBills.Pay(ctx, bill.ID, MethodCash)
	require.NoError(t, err)
	assert.Equal(t, payment.ID, again.ID)

	payment, err = f.svc.Payments.Transition(ctx, payment.ID, StatusPosted)
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, payment.Status)
	assertDecimal(t, "236", payment.AppliedAmount)

	bill, err = f.svc.VendorBills.Get(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, bill.Status)
	assertDecimal(t, "236", bill.PaidAmount)
	assertDecimal(t, "236", bill.PaidBank)
	assertDecimal(t, "0", bill.PaidCash)
	assertDecimal(t, "0", bill.Remaining())

	require.Len(t, f.events.payments, 1)
	assert.Equal(t, payment.ID, f.events.payments[0].ID)
	assert.Contains(t, f.metrics.transitions, "vendor_bill:posted->paid")
	assert.Contains(t, f.metrics.transitions, "payment:draft->posted")

	_, err = f.svc.VendorBills.Pay(ctx, bill.ID, MethodBank)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPartialPaymentsAccumulate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := postedInvoice(t, f, fiveHundred())

	first, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: inv.ID, Amount: dec("120.25"), Method: MethodCash})
	require.NoError(t, err)
	assert.Equal(t, DirectionReceive, first.Direction)
	_, err = f.svc.Payments.Transition(ctx, first.ID, StatusPosted)
	require.NoError(t, err)

	inv, err = f.svc.CustomerInvoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, inv.Status)
	assertDecimal(t, "379.75", inv.Remaining())

	derived, err := f.svc.CustomerInvoices.Pay(ctx, inv.ID, MethodBank)
	require.NoError(t, err)
	assertDecimal(t, "379.75", derived.Amount)
}

func TestOverpaymentIsClamped(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := postedInvoice(t, f, fiveHundred())

	first, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: inv.ID, Amount: dec("300"), Method: MethodCash})
	require.NoError(t, err)
	second, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: inv.ID, Amount: dec("300"), Method: MethodBank})
	require.NoError(t, err)

	_, err = f.svc.Payments.Transition(ctx, first.ID, StatusPosted)
	require.NoError(t, err)
	second, err = f.svc.Payments.Transition(ctx, second.ID, StatusPosted)
	require.NoError(t, err)
	assertDecimal(t, "300", second.Amount)
	assertDecimal(t, "200", second.AppliedAmount)

	inv, err = f.svc.CustomerInvoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
	assertDecimal(t, "500", inv.PaidAmount)
	assertDecimal(t, "300", inv.PaidCash)
	assertDecimal(t, "200", inv.PaidBank)
	assert.Equal(t, 1, f.metrics.clamps[string(KindCustomerInvoice)])
}

func TestOverpaymentRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, func(o *Options) { o.Overpayment = OverpaymentReject })
	inv := postedInvoice(t, f, fiveHundred())

	_, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: inv.ID, Amount: dec("600"), Method: MethodBank})
	require.ErrorIs(t, err, ErrOverpayment)

	first, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: inv.ID, Amount: dec("300"), Method: MethodBank})
	require.NoError(t, err)
	second, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: inv.ID, Amount: dec("300"), Method: MethodBank})
	require.NoError(t, err)

	_, err = f.svc.Payments.Transition(ctx, first.ID, StatusPosted)
	require.NoError(t, err)
	_, err = f.svc.Payments.Transition(ctx, second.ID, StatusPosted)
	require.ErrorIs(t, err, ErrOverpayment)

	too := dec("250")
	_, err = f.svc.Payments.Update(ctx, second.ID, PaymentPatch{Amount: &too})
	require.ErrorIs(t, err, ErrOverpayment)

	second, err = f.svc.Payments.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, second.Status)
	inv, err = f.svc.CustomerInvoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assertDecimal(t, "200", inv.Remaining())
	assert.Empty(t, f.metrics.clamps)
}

func TestSettledTargetRefusesPayments(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bill := postedBill(t, f, fiveHundred())

	early, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: bill.ID, Amount: dec("300"), Method: MethodCash})
	require.NoError(t, err)
	full, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: bill.ID, Amount: dec("500"), Method: MethodBank})
	require.NoError(t, err)
	_, err = f.svc.Payments.Transition(ctx, full.ID, StatusPosted)
	require.NoError(t, err)

	_, err = f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: bill.ID, Amount: dec("300"), Method: MethodCash})
	require.ErrorIs(t, err, ErrOverpayment)

	note, post := "late", StatusPosted
	_, err = f.svc.Payments.Change(ctx, early.ID, &PaymentPatch{Note: &note}, &post)
	require.ErrorIs(t, err, ErrOverpayment)

	early, err = f.svc.Payments.Get(ctx, early.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, early.Status)
	assert.Empty(t, early.Note)
	assertDecimal(t, "0", early.AppliedAmount)

	bill, err = f.svc.VendorBills.Get(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, bill.Status)
	assertDecimal(t, "500", bill.PaidAmount)
	assert.Empty(t, f.metrics.clamps)

	cancelled, err := f.svc.Payments.Transition(ctx, early.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestPaymentReversal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	inv := postedInvoice(t, f, chairLines())

	payment, err := f.svc.CustomerInvoices.Pay(ctx, inv.ID, MethodCash)
	require.NoError(t, err)
	_, err = f.svc.Payments.Transition(ctx, payment.ID, StatusPosted)
	require.NoError(t, err)

	payment, err = f.svc.Payments.Transition(ctx, payment.ID, StatusCancelled)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, payment.Status)

	inv, err = f.svc.CustomerInvoices.Get(ctx, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPosted, inv.Status)
	assertDecimal(t, "0", inv.PaidAmount)
	assertDecimal(t, "0", inv.PaidCash)
	assertDecimal(t, "236", inv.Remaining())
	assert.Contains(t, f.metrics.transitions, "customer_invoice:paid->posted")

	_, err = f.svc.Payments.Transition(ctx, payment.ID, StatusCancelled)
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Payments.Transition(ctx, payment.ID, StatusPosted)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDraftPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	bill := postedBill(t, f, chairLines())

	payment, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: bill.ID, Amount: dec("50"), Method: MethodCash})
	require.NoError(t, err)

	amount := dec("75")
	method := MethodBank
	payment, err = f.svc.Payments.Update(ctx, payment.ID, PaymentPatch{Amount: &amount, Method: &method})
	require.NoError(t, err)
	assertDecimal(t, "75", payment.Amount)
	assert.Equal(t, MethodBank, payment.Method)

	zero := dec("0")
	_, err = f.svc.Payments.Update(ctx, payment.ID, PaymentPatch{Amount: &zero})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Payments.Transition(ctx, payment.ID, StatusPaid)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Payments.Transition(ctx, payment.ID, StatusPosted)
	require.NoError(t, err)
	_, err = f.svc.Payments.Update(ctx, payment.ID, PaymentPatch{Amount: &amount})
	require.ErrorIs(t, err, ErrInvalidTransition)
	require.ErrorIs(t, f.svc.Payments.Delete(ctx, payment.ID), ErrInvalidTransition)

	draft, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: bill.ID, Amount: dec("10"), Method: MethodCash})
	require.NoError(t, err)
	require.NoError(t, f.svc.Payments.Delete(ctx, draft.ID))
	_, err = f.svc.Payments.Get(ctx, draft.ID)
	require.ErrorIs(t, err, ErrNotFound)

	listed, err := f.svc.Payments.List(ctx, PaymentFilter{TargetID: &bill.ID})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, payment.ID, listed[0].ID)
}

func TestPaymentTargetChecks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	draftBill, err := f.svc.VendorBills.Create(ctx, CreateInput{PartyName: "Acme", Lines: chairLines()})
	require.NoError(t, err)
	_, err = f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: draftBill.ID, Amount: dec("1"), Method: MethodCash})
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.VendorBills.Pay(ctx, draftBill.ID, MethodCash)
	require.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindPurchaseOrder, TargetID: uuid.New(), Amount: dec("1"), Method: MethodCash})
	require.ErrorIs(t, err, ErrValidation)
	_, err = f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: uuid.New(), Amount: dec("1"), Method: MethodCash})
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindVendorBill, TargetID: draftBill.ID, Amount: dec("1"), Method: "cheque"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCashFlowSummary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bill := postedBill(t, f, chairLines())
	out, err := f.svc.VendorBills.Pay(ctx, bill.ID, MethodBank)
	require.NoError(t, err)
	_, err = f.svc.Payments.Transition(ctx, out.ID, StatusPosted)
	require.NoError(t, err)

	inv := postedInvoice(t, f, fiveHundred())
	in, err := f.svc.CustomerInvoices.Pay(ctx, inv.ID, MethodCash)
	require.NoError(t, err)
	_, err = f.svc.Payments.Transition(ctx, in.ID, StatusPosted)
	require.NoError(t, err)

	unpaid := postedInvoice(t, f, fiveHundred())
	draft, err := f.svc.Payments.Create(ctx, PaymentInput{TargetKind: KindCustomerInvoice, TargetID: unpaid.ID, Amount: dec("5"), Method: MethodCash})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, draft.Status)

	months, err := f.svc.Payments.Summary(ctx, testNow.AddDate(0, -1, 0), testNow.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, months, 1)
	assert.Equal(t, "2025-03", months[0].Month)
	assertDecimal(t, "500", months[0].Received)
	assertDecimal(t, "236", months[0].Sent)

	_, err = f.svc.Payments.Summary(ctx, testNow, testNow)
	require.ErrorIs(t, err, ErrValidation)
}
