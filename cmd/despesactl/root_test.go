package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/backend"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/services"
)

type ctlFixture struct {
	t   *testing.T
	svc backend.Services
}

func newCtlFixture(t *testing.T) *ctlFixture {
	t.Helper()
	b, err := backend.NewFactory(nil).CreateBackend(context.Background(), backend.Config{Type: backend.MemoryBackend})
	if err != nil {
		t.Fatalf("CreateBackend: %v", err)
	}
	return &ctlFixture{t: t, svc: b.Services(nil)}
}

func (f *ctlFixture) opener(context.Context, *log.Logger) (backend.Services, func() error, error) {
	return f.svc, nil, nil
}

func (f *ctlFixture) run(args ...string) (string, error) {
	f.t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd(f.opener)
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func (f *ctlFixture) create(rec core.ExpenseRecord) core.ExpenseRecord {
	f.t.Helper()
	rec.UserID = "alice"
	out, err := f.svc.Expenses.Create(context.Background(), rec)
	if err != nil {
		f.t.Fatalf("Create(%s): %v", rec.Title, err)
	}
	return out
}

func (f *ctlFixture) carLoan() core.ExpenseRecord {
	return f.create(core.ExpenseRecord{
		Title:                    "Car loan",
		DueDate:                  core.NewDate(2024, 1, 10),
		IsFinancing:              true,
		FinancingTotalAmount:     decimal.NewFromInt(1200),
		FinancingMonthsTotal:     12,
		EarlyPaymentDiscountRate: decimal.NewFromInt(10),
	})
}

func TestRequiresUser(t *testing.T) {
	t.Setenv("DEFAULT_USER_ID", "")
	f := newCtlFixture(t)
	if _, err := f.run("project", "2024-03"); err == nil || !strings.Contains(err.Error(), "no user") {
		t.Fatalf("expected missing user error, got %v", err)
	}
}

func TestDefaultUserFromEnv(t *testing.T) {
	t.Setenv("DEFAULT_USER_ID", "alice")
	f := newCtlFixture(t)
	f.create(core.ExpenseRecord{Title: "Gym", Amount: decimal.NewFromInt(40), DueDate: core.NewDate(2024, 1, 5), IsRecurring: true})

	out, err := f.run("project", "2024-03", "--today", "2024-03-01")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	if !strings.Contains(out, "Gym") || !strings.Contains(out, "2024-03-05") {
		t.Fatalf("unexpected output:\n%s", out)
	}
}

func TestProjectJSON(t *testing.T) {
	f := newCtlFixture(t)
	f.create(core.ExpenseRecord{Title: "Gym", Amount: decimal.NewFromInt(40), DueDate: core.NewDate(2024, 1, 5), IsRecurring: true})
	f.create(core.ExpenseRecord{Title: "Dentist", Amount: decimal.NewFromInt(60), DueDate: core.NewDate(2024, 3, 20)})

	out, err := f.run("project", "2024-03", "--user", "alice", "--today", "2024-03-10", "--json")
	if err != nil {
		t.Fatalf("project: %v", err)
	}
	var view services.MonthView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if view.Month != "2024-03" || len(view.Instances) != 2 {
		t.Fatalf("unexpected view %+v", view)
	}
	if view.Instances[0].Title != "Gym" || view.Instances[0].Status != services.StatusOverdue {
		t.Errorf("first instance = %+v, want overdue Gym", view.Instances[0])
	}
}

func TestProjectRejectsBadMonth(t *testing.T) {
	f := newCtlFixture(t)
	if _, err := f.run("project", "March", "--user", "alice"); err == nil {
		t.Fatal("expected error for invalid month")
	}
	if _, err := f.run("project", "--user", "alice", "--today", "soon"); err == nil {
		t.Fatal("expected error for invalid --today")
	}
}

func TestPayLedgerQuoteReconcile(t *testing.T) {
	f := newCtlFixture(t)
	loan := f.carLoan()

	out, err := f.run("pay", loan.ID, "--user", "alice", "--amount", "250", "--key", "k1", "--json")
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	var result financing.PaymentResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if !result.RemainingAfter.Equal(decimal.NewFromInt(950)) {
		t.Errorf("remaining after = %s, want 950", result.RemainingAfter)
	}
	// Months paid counts toggled rows; payments only cover installments
	// in the projection.
	if result.Expense.FinancingMonthsPaid != 0 {
		t.Errorf("months paid = %d, want 0", result.Expense.FinancingMonthsPaid)
	}

	if _, err := f.run("pay", loan.ID, "--user", "alice", "--amount", "10", "--key", "k1"); !errors.Is(err, core.ErrDuplicatePayment) {
		t.Fatalf("repeated key: got %v, want duplicate payment", err)
	}
	if _, err := f.run("pay", loan.ID, "--user", "alice", "--amount", "abc"); err == nil {
		t.Fatal("expected error for invalid amount")
	}
	if _, err := f.run("pay", loan.ID, "--user", "alice", "--payoff", "--amount", "5"); err == nil {
		t.Fatal("expected error mixing --payoff and --amount")
	}

	out, err = f.run("ledger", loan.ID, "--user", "alice")
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	if !strings.Contains(out, "250.00") || !strings.Contains(out, string(core.PartialPayment)) {
		t.Errorf("ledger output:\n%s", out)
	}

	if out, err = f.run("quote", loan.ID, "--user", "alice"); err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !strings.Contains(out, "payoff") {
		t.Errorf("quote output:\n%s", out)
	}

	if out, err = f.run("reconcile", loan.ID, "--user", "alice"); err != nil {
		t.Fatalf("reconcile: %v\n%s", err, out)
	}
}

func TestPayOffSettlesLoan(t *testing.T) {
	f := newCtlFixture(t)
	loan := f.carLoan()

	out, err := f.run("pay", loan.ID, "--user", "alice", "--payoff", "--note", "bonus")
	if err != nil {
		t.Fatalf("payoff: %v", err)
	}
	if !strings.Contains(out, "Settled") || !strings.Contains(out, "yes") {
		t.Errorf("payoff output:\n%s", out)
	}

	if _, err := f.run("pay", loan.ID, "--user", "alice", "--amount", "1"); err == nil {
		t.Fatal("expected error paying a settled loan")
	}
}

func TestResetNeedsConfirmation(t *testing.T) {
	f := newCtlFixture(t)
	loan := f.carLoan()
	if _, err := f.run("pay", loan.ID, "--user", "alice", "--amount", "100"); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if _, err := f.run("reset", loan.ID, "--user", "alice"); err == nil {
		t.Fatal("expected confirmation error")
	}
	if _, err := f.run("reset", loan.ID, "--user", "alice", "--yes"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	rec, err := f.svc.Expenses.Get(context.Background(), "alice", loan.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !rec.FinancingPaidAmount.IsZero() || rec.FinancingMonthsPaid != 0 {
		t.Errorf("aggregates not reset: %+v", rec)
	}
}

func TestScheduleAndToggle(t *testing.T) {
	f := newCtlFixture(t)
	phone := f.create(core.ExpenseRecord{
		Title:        "Phone",
		Amount:       decimal.NewFromInt(300),
		DueDate:      core.NewDate(2024, 1, 15),
		Installments: 3,
	})

	out, err := f.run("schedule", phone.ID, "--user", "alice")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if !strings.Contains(out, "2024-03-15") {
		t.Errorf("schedule output:\n%s", out)
	}

	out, err = f.run("toggle", phone.ID, "--user", "alice", "--date", "2024-02-15", "--json")
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	var inst core.ExpenseInstance
	if err := json.Unmarshal([]byte(out), &inst); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if !inst.IsPaid || inst.InstallmentNumber != 2 {
		t.Errorf("toggled instance = %+v", inst)
	}

	if _, err := f.run("toggle", phone.ID, "--user", "alice", "--date", "2024-02-16"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("toggle on wrong date: got %v, want not found", err)
	}
	if _, err := f.run("toggle", phone.ID, "--user", "alice"); err == nil {
		t.Fatal("expected error without --date")
	}
}

func TestSummary(t *testing.T) {
	f := newCtlFixture(t)
	f.create(core.ExpenseRecord{Title: "Gym", Amount: decimal.NewFromInt(40), DueDate: core.NewDate(2024, 1, 5), IsRecurring: true})

	out, err := f.run("summary", "2024-03", "--user", "alice", "--today", "2024-03-10", "--json")
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	var s core.MonthSummary
	if err := json.Unmarshal([]byte(out), &s); err != nil {
		t.Fatalf("decode %s: %v", out, err)
	}
	if !s.Total.Equal(decimal.NewFromInt(40)) || s.OverdueCount != 1 {
		t.Errorf("summary = %+v", s)
	}
}
