// Package ledger keeps the append-only audit trail of financing payments.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
)

// ErrDuplicatePayment is returned when an idempotency key was already used
// for the same expense.
var ErrDuplicatePayment = core.ErrDuplicatePayment

// Store is the slice of storage the ledger needs.
type Store interface {
	AppendTransaction(ctx context.Context, t core.PaymentTransaction) error
	ListTransactions(ctx context.Context, userID, expenseID string) ([]core.PaymentTransaction, error)
}

type Ledger struct {
	store  Store
	logger *log.Logger
	now    func() time.Time
}

func New(store Store, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Discard()
	}
	return &Ledger{
		store:  store,
		logger: logger.WithComponent(log.ComponentLedger),
		now:    time.Now,
	}
}

// In returns a ledger writing through store, typically a transaction view.
func (l *Ledger) In(store Store) *Ledger {
	c := *l
	c.store = store
	return &c
}

// Record validates tx, stamps its id and creation time when missing and
// appends it. Entries are never modified afterwards.
func (l *Ledger) Record(ctx context.Context, tx core.PaymentTransaction) (core.PaymentTransaction, error) {
	if err := tx.Validate(); err != nil {
		return core.PaymentTransaction{}, fmt.Errorf("invalid payment transaction: %w", err)
	}
	if tx.ID == "" {
		tx.ID = core.NewID()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = l.now().UTC()
	}
	if err := l.store.AppendTransaction(ctx, tx); err != nil {
		return core.PaymentTransaction{}, fmt.Errorf("append payment transaction: %w", err)
	}
	l.logger.InfoContext(ctx, "Payment transaction recorded",
		log.NewFields().
			WithUser(tx.UserID).
			WithPayment(tx.PaymentAmount.String(), tx.DiscountAmount.String(), string(tx.PaymentType)).
			WithOperation(log.OpAppend).
			ToSlice()...)
	return tx, nil
}

// History returns the expense's transactions, newest first.
func (l *Ledger) History(ctx context.Context, userID, expenseID string) ([]core.PaymentTransaction, error) {
	txs, err := l.store.ListTransactions(ctx, userID, expenseID)
	if err != nil {
		return nil, fmt.Errorf("list payment transactions: %w", err)
	}
	return txs, nil
}

// Totals sums a set of transactions.
type Totals struct {
	Count              int             `json:"count"`
	Payments           decimal.Decimal `json:"payments"`
	Discounts          decimal.Decimal `json:"discounts"`
	AutomaticDiscounts decimal.Decimal `json:"automatic_discounts"`
}

// Settled is payments plus discounts.
func (t Totals) Settled() decimal.Decimal {
	return t.Payments.Add(t.Discounts)
}

func Sum(txs []core.PaymentTransaction) Totals {
	t := Totals{Payments: decimal.Zero, Discounts: decimal.Zero, AutomaticDiscounts: decimal.Zero}
	for _, tx := range txs {
		t.Count++
		t.Payments = t.Payments.Add(tx.PaymentAmount)
		t.Discounts = t.Discounts.Add(tx.DiscountAmount)
		t.AutomaticDiscounts = t.AutomaticDiscounts.Add(tx.AutomaticDiscount)
	}
	return t
}

func (l *Ledger) Totals(ctx context.Context, userID, expenseID string) (Totals, error) {
	txs, err := l.History(ctx, userID, expenseID)
	if err != nil {
		return Totals{}, err
	}
	return Sum(txs), nil
}

// Reconciliation compares the ledger with the aggregates on the record.
// The record is authoritative; drift is reported, never corrected.
type Reconciliation struct {
	ExpenseID      string          `json:"expense_id"`
	Ledger         Totals          `json:"ledger"`
	RecordPaid     decimal.Decimal `json:"record_paid"`
	RecordDiscount decimal.Decimal `json:"record_discount"`
	PaidDrift      decimal.Decimal `json:"paid_drift"`
	DiscountDrift  decimal.Decimal `json:"discount_drift"`
	Consistent     bool            `json:"consistent"`
}

func (l *Ledger) Reconcile(ctx context.Context, rec core.ExpenseRecord) (Reconciliation, error) {
	totals, err := l.Totals(ctx, rec.UserID, rec.ID)
	if err != nil {
		return Reconciliation{}, err
	}
	r := Reconciliation{
		ExpenseID:      rec.ID,
		Ledger:         totals,
		RecordPaid:     rec.FinancingPaidAmount,
		RecordDiscount: rec.FinancingDiscountAmount,
		PaidDrift:      rec.FinancingPaidAmount.Sub(totals.Payments),
		DiscountDrift:  rec.FinancingDiscountAmount.Sub(totals.Discounts),
	}
	r.Consistent = r.PaidDrift.IsZero() && r.DiscountDrift.IsZero()
	if !r.Consistent {
		l.logger.WarnContext(ctx, "Ledger drifted from financing aggregates",
			log.NewFields().
				WithExpense(rec.ID, rec.Title, string(rec.Kind())).
				WithUser(rec.UserID).
				ToSlice()...)
	}
	return r, nil
}
