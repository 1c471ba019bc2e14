package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/storage/memory"
)

func seeded(t *testing.T) (*memory.Store, core.ExpenseRecord) {
	t.Helper()
	s := memory.New()
	rec := core.ExpenseRecord{
		ID: "fin", UserID: "u1", Title: "Car", DueDate: core.NewDate(2024, 1, 10),
		IsFinancing: true, FinancingTotalAmount: decimal.NewFromInt(1200), FinancingMonthsTotal: 12,
	}
	if err := s.CreateExpense(context.Background(), rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s, rec
}

func TestRecordStampsAndAppends(t *testing.T) {
	s, rec := seeded(t)
	l := New(s, nil)
	fixed := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	tx, err := l.Record(context.Background(), core.PaymentTransaction{
		ExpenseID:      rec.ID,
		UserID:         rec.UserID,
		PaymentAmount:  decimal.NewFromInt(250),
		DiscountAmount: decimal.Zero,
		PaymentType:    core.PartialPayment,
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if tx.ID == "" || !tx.CreatedAt.Equal(fixed) {
		t.Fatalf("expected stamped transaction, got %+v", tx)
	}
	history, err := l.History(context.Background(), rec.UserID, rec.ID)
	if err != nil || len(history) != 1 || history[0].ID != tx.ID {
		t.Fatalf("history: %+v %v", history, err)
	}
}

func TestRecordRejectsInvalid(t *testing.T) {
	s, rec := seeded(t)
	l := New(s, nil)
	cases := []struct {
		name string
		tx   core.PaymentTransaction
	}{
		{"negative payment", core.PaymentTransaction{ExpenseID: rec.ID, UserID: rec.UserID, PaymentAmount: decimal.NewFromInt(-1), PaymentType: core.PartialPayment}},
		{"unknown type", core.PaymentTransaction{ExpenseID: rec.ID, UserID: rec.UserID, PaymentAmount: decimal.NewFromInt(1), PaymentType: "refund"}},
		{"no expense", core.PaymentTransaction{UserID: rec.UserID, PaymentAmount: decimal.NewFromInt(1), PaymentType: core.PartialPayment}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := l.Record(context.Background(), tc.tx); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if txs, _ := l.History(context.Background(), rec.UserID, rec.ID); len(txs) != 0 {
		t.Fatalf("invalid transactions must not be stored, got %d", len(txs))
	}
}

func TestRecordDuplicateKey(t *testing.T) {
	s, rec := seeded(t)
	l := New(s, nil)
	tx := core.PaymentTransaction{ExpenseID: rec.ID, UserID: rec.UserID, PaymentAmount: decimal.NewFromInt(10),
		PaymentType: core.PartialPayment, IdempotencyKey: "abc"}
	if _, err := l.Record(context.Background(), tx); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := l.Record(context.Background(), tx); !errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("expected duplicate, got %v", err)
	}
}

func TestReconcile(t *testing.T) {
	s, rec := seeded(t)
	l := New(s, nil)
	ctx := context.Background()
	for _, amt := range []int64{250, 300} {
		if _, err := l.Record(ctx, core.PaymentTransaction{ExpenseID: rec.ID, UserID: rec.UserID,
			PaymentAmount: decimal.NewFromInt(amt), DiscountAmount: decimal.NewFromInt(5), PaymentType: core.PartialPayment}); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	rec.FinancingPaidAmount = decimal.NewFromInt(550)
	rec.FinancingDiscountAmount = decimal.NewFromInt(10)
	r, err := l.Reconcile(ctx, rec)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !r.Consistent || r.Ledger.Count != 2 || !r.Ledger.Settled().Equal(decimal.NewFromInt(560)) {
		t.Fatalf("expected consistent ledger, got %+v", r)
	}

	rec.FinancingDiscountAmount = decimal.NewFromInt(60)
	r, _ = l.Reconcile(ctx, rec)
	if r.Consistent || !r.DiscountDrift.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("expected discount drift of 50, got %+v", r)
	}
}
