// Package storagetest holds the behaviour every storage.Store must share.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// Factory returns an empty store for one subtest.
type Factory func(t *testing.T) storage.Store

func financing(id, user string) core.ExpenseRecord {
	now := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	return core.ExpenseRecord{
		ID:                       id,
		UserID:                   user,
		Title:                    "Car",
		Tags:                     []string{"vehicle"},
		DueDate:                  core.NewDate(2024, 1, 10),
		IsFinancing:              true,
		FinancingTotalAmount:     decimal.NewFromInt(1200),
		FinancingMonthsTotal:     12,
		FinancingPaidAmount:      decimal.Zero,
		FinancingDiscountAmount:  decimal.Zero,
		EarlyPaymentDiscountRate: decimal.NewFromInt(10),
		CreatedAt:                now,
		UpdatedAt:                now,
	}
}

func instance(expenseID, user string, n int, paid bool) core.ExpenseInstance {
	return core.ExpenseInstance{
		ID:                core.NewID(),
		ExpenseID:         expenseID,
		UserID:            user,
		Type:              core.InstanceFinancing,
		InstallmentNumber: n,
		Amount:            decimal.NewFromInt(100),
		InstanceDate:      core.NewDate(2024, 1, 10).AddMonths(n - 1),
		IsPaid:            paid,
	}
}

// Run exercises the store contract.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("expense crud scoped by user", func(t *testing.T) {
		s := newStore(t)
		e := financing("e1", "u1")
		if err := s.CreateExpense(ctx, e); err != nil {
			t.Fatalf("create: %v", err)
		}
		got, err := s.GetExpense(ctx, "u1", "e1")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "Car" || got.DueDate != e.DueDate || !got.FinancingTotalAmount.Equal(e.FinancingTotalAmount) {
			t.Fatalf("unexpected record %+v", got)
		}
		if len(got.Tags) != 1 || got.Tags[0] != "vehicle" {
			t.Fatalf("tags not kept: %v", got.Tags)
		}
		if _, err := s.GetExpense(ctx, "u2", "e1"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("other user should not see record, got %v", err)
		}

		e.Title = "Car loan"
		e.FinancingPaidAmount = decimal.NewFromInt(999)
		if err := s.UpdateExpense(ctx, e); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ = s.GetExpense(ctx, "u1", "e1")
		if got.Title != "Car loan" || !got.FinancingPaidAmount.IsZero() {
			t.Fatalf("update should change title only, got %+v", got)
		}

		list, err := s.ListExpenses(ctx, "u1", storage.ExpenseFilter{Kind: core.KindFinancing})
		if err != nil || len(list) != 1 {
			t.Fatalf("list: %d %v", len(list), err)
		}
		list, _ = s.ListExpenses(ctx, "u1", storage.ExpenseFilter{Kind: core.KindRecurring})
		if len(list) != 0 {
			t.Fatalf("kind filter: expected none, got %d", len(list))
		}
	})

	t.Run("natural key is unique", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		first := instance("e1", "u1", 1, true)
		if err := s.InsertInstances(ctx, []core.ExpenseInstance{first}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		again := instance("e1", "u1", 1, false)
		if err := s.InsertInstances(ctx, []core.ExpenseInstance{again}); !errors.Is(err, core.ErrDuplicateInstance) {
			t.Fatalf("expected duplicate instance, got %v", err)
		}
		got, err := s.FindInstance(ctx, "u1", first.Key())
		if err != nil || got.ID != first.ID || !got.IsPaid || !got.Persisted {
			t.Fatalf("find: %+v %v", got, err)
		}
		if _, err := s.FindInstance(ctx, "u1", instance("e1", "u1", 2, false).Key()); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("bulk insert is all or nothing", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		a := instance("e1", "u1", 1, false)
		b := instance("e1", "u1", 1, false)
		if err := s.InsertInstances(ctx, []core.ExpenseInstance{a, b}); err == nil {
			t.Fatal("expected duplicate error")
		}
		rows, _ := s.ListInstances(ctx, "u1", storage.InstanceFilter{ExpenseID: "e1"})
		if len(rows) != 0 {
			t.Fatalf("expected no rows after failed batch, got %d", len(rows))
		}
	})

	t.Run("instance queries", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		rows := []core.ExpenseInstance{
			instance("e1", "u1", 1, true),
			instance("e1", "u1", 2, true),
			instance("e1", "u1", 3, false),
		}
		if err := s.InsertInstances(ctx, rows); err != nil {
			t.Fatalf("insert: %v", err)
		}
		march, err := s.ListInstances(ctx, "u1", storage.InstanceFilter{From: core.NewDate(2024, 3, 1), To: core.NewDate(2024, 3, 31)})
		if err != nil || len(march) != 1 || march[0].InstallmentNumber != 3 {
			t.Fatalf("range: %+v %v", march, err)
		}
		paid, _ := s.ListInstances(ctx, "u1", storage.InstanceFilter{IsPaid: storage.Bool(true)})
		if len(paid) != 2 {
			t.Fatalf("paid filter: expected 2, got %d", len(paid))
		}
		n, err := s.CountPaidInstances(ctx, "u1", "e1", core.InstanceFinancing)
		if err != nil || n != 2 {
			t.Fatalf("count: %d %v", n, err)
		}
		at := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)
		if err := s.SetInstancePaid(ctx, "u1", rows[2].ID, true, &at); err != nil {
			t.Fatalf("set paid: %v", err)
		}
		if n, _ := s.CountPaidInstances(ctx, "u1", "e1", core.InstanceFinancing); n != 3 {
			t.Fatalf("count after set: %d", n)
		}
		reset, err := s.ResetInstances(ctx, "u1", "e1")
		if err != nil || reset != 3 {
			t.Fatalf("reset: %d %v", reset, err)
		}
		if n, _ := s.CountPaidInstances(ctx, "u1", "e1", core.InstanceFinancing); n != 0 {
			t.Fatalf("count after reset: %d", n)
		}
		if err := s.SetInstancePaid(ctx, "u2", rows[0].ID, true, nil); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("other user update: %v", err)
		}
	})

	t.Run("financing aggregates", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		err := s.UpdateFinancingTotals(ctx, "u1", "e1", core.FinancingTotals{
			PaidAmount:     decimal.RequireFromString("1150.5"),
			DiscountAmount: decimal.RequireFromString("49.5"),
			IsPaid:         true,
			PaidAt:         &at,
		})
		if err != nil {
			t.Fatalf("update totals: %v", err)
		}
		if err := s.SetFinancingMonthsPaid(ctx, "u1", "e1", 4); err != nil {
			t.Fatalf("months paid: %v", err)
		}
		got, _ := s.GetExpense(ctx, "u1", "e1")
		if !got.FinancingPaidAmount.Equal(decimal.RequireFromString("1150.5")) || !got.IsPaid || got.FinancingMonthsPaid != 4 {
			t.Fatalf("unexpected %+v", got)
		}
		if got.PaidAt == nil || !got.PaidAt.Equal(at) {
			t.Fatalf("paid at: %v", got.PaidAt)
		}
		if err := s.ResetFinancing(ctx, "u1", "e1"); err != nil {
			t.Fatalf("reset: %v", err)
		}
		got, _ = s.GetExpense(ctx, "u1", "e1")
		if !got.FinancingPaidAmount.IsZero() || !got.FinancingDiscountAmount.IsZero() || got.IsPaid || got.PaidAt != nil || got.FinancingMonthsPaid != 0 {
			t.Fatalf("reset left %+v", got)
		}
		if err := s.ResetFinancing(ctx, "u1", "missing"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("expected not found, got %v", err)
		}
	})

	t.Run("transactions", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		for i, key := range []string{"k1", "k2", ""} {
			tx := core.PaymentTransaction{
				ID:             core.NewID(),
				ExpenseID:      "e1",
				UserID:         "u1",
				PaymentAmount:  decimal.NewFromInt(int64(100 * (i + 1))),
				DiscountAmount: decimal.Zero,
				PaymentType:    core.PartialPayment,
				IdempotencyKey: key,
				CreatedAt:      base.Add(time.Duration(i) * time.Hour),
			}
			if err := s.AppendTransaction(ctx, tx); err != nil {
				t.Fatalf("append %d: %v", i, err)
			}
		}
		dup := core.PaymentTransaction{ID: core.NewID(), ExpenseID: "e1", UserID: "u1", PaymentAmount: decimal.NewFromInt(1),
			PaymentType: core.PartialPayment, IdempotencyKey: "k1", CreatedAt: base}
		if err := s.AppendTransaction(ctx, dup); !errors.Is(err, core.ErrDuplicatePayment) {
			t.Fatalf("expected duplicate payment, got %v", err)
		}
		list, err := s.ListTransactions(ctx, "u1", "e1")
		if err != nil || len(list) != 3 {
			t.Fatalf("list: %d %v", len(list), err)
		}
		if !list[0].PaymentAmount.Equal(decimal.NewFromInt(300)) {
			t.Fatalf("expected newest first, got %s", list[0].PaymentAmount)
		}
		if n, err := s.DeleteTransactions(ctx, "u1", "e1"); err != nil || n != 3 {
			t.Fatalf("delete: %d %v", n, err)
		}
		if list, _ := s.ListTransactions(ctx, "u1", "e1"); len(list) != 0 {
			t.Fatalf("expected empty ledger, got %d", len(list))
		}
	})

	t.Run("delete cascades", func(t *testing.T) {
		s := newStore(t)
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		if err := s.InsertInstances(ctx, []core.ExpenseInstance{instance("e1", "u1", 1, true)}); err != nil {
			t.Fatalf("insert: %v", err)
		}
		if err := s.AppendTransaction(ctx, core.PaymentTransaction{ID: core.NewID(), ExpenseID: "e1", UserID: "u1",
			PaymentAmount: decimal.NewFromInt(1), PaymentType: core.PartialPayment, CreatedAt: time.Now()}); err != nil {
			t.Fatalf("append: %v", err)
		}
		if err := s.DeleteExpense(ctx, "u2", "e1"); !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("other user delete: %v", err)
		}
		if err := s.DeleteExpense(ctx, "u1", "e1"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		rows, _ := s.ListInstances(ctx, "u1", storage.InstanceFilter{ExpenseID: "e1"})
		txs, _ := s.ListTransactions(ctx, "u1", "e1")
		if len(rows) != 0 || len(txs) != 0 {
			t.Fatalf("cascade left %d instances, %d transactions", len(rows), len(txs))
		}
	})

	t.Run("transaction rollback", func(t *testing.T) {
		s := newStore(t)
		txr, ok := s.(storage.Transactor)
		if !ok {
			t.Skip("store is not transactional")
		}
		if err := s.CreateExpense(ctx, financing("e1", "u1")); err != nil {
			t.Fatalf("create: %v", err)
		}
		boom := errors.New("boom")
		err := txr.WithinTx(ctx, func(tx storage.Store) error {
			if err := tx.SetFinancingMonthsPaid(ctx, "u1", "e1", 7); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
		got, _ := s.GetExpense(ctx, "u1", "e1")
		if got.FinancingMonthsPaid != 0 {
			t.Fatalf("rollback failed, months paid %d", got.FinancingMonthsPaid)
		}
		err = txr.WithinTx(ctx, func(tx storage.Store) error {
			return tx.SetFinancingMonthsPaid(ctx, "u1", "e1", 7)
		})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		got, _ = s.GetExpense(ctx, "u1", "e1")
		if got.FinancingMonthsPaid != 7 {
			t.Fatalf("commit lost, months paid %d", got.FinancingMonthsPaid)
		}
	})
}
