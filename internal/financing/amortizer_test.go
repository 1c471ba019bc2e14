package financing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func carLoan() core.ExpenseRecord {
	return core.ExpenseRecord{
		ID:                   "fin",
		UserID:               "u1",
		Title:                "Car",
		DueDate:              core.NewDate(2024, 1, 10),
		IsFinancing:          true,
		FinancingTotalAmount: dec("1200"),
		FinancingMonthsTotal: 12,
	}
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestApplyPartialPayment(t *testing.T) {
	out, err := Apply(carLoan(), Payment{Amount: dec("250")}, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.Totals.PaidAmount.Equal(dec("250")) {
		t.Errorf("paid = %s, want 250", out.Totals.PaidAmount)
	}
	if !out.Totals.DiscountAmount.IsZero() {
		t.Errorf("discount = %s, want 0", out.Totals.DiscountAmount)
	}
	if out.Totals.IsPaid || out.Totals.PaidAt != nil {
		t.Errorf("expected unpaid totals, got %+v", out.Totals)
	}
	if out.Transaction.PaymentType != core.PartialPayment {
		t.Errorf("payment type = %s", out.Transaction.PaymentType)
	}
	if !out.RemainingBefore.Equal(dec("1200")) || !out.RemainingAfter.Equal(dec("950")) {
		t.Errorf("remaining %s -> %s", out.RemainingBefore, out.RemainingAfter)
	}
}

func TestApplyEarlyPayoffWithRate(t *testing.T) {
	rec := carLoan()
	rec.FinancingPaidAmount = dec("700")
	rec.EarlyPaymentDiscountRate = dec("10")

	out, err := Apply(rec, Payment{Amount: dec("500")}, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.AutomaticDiscount.Equal(dec("50")) {
		t.Errorf("automatic discount = %s, want 50", out.AutomaticDiscount)
	}
	if !out.Totals.DiscountAmount.Equal(dec("50")) {
		t.Errorf("discount = %s, want 50", out.Totals.DiscountAmount)
	}
	if !out.Totals.IsPaid || out.Totals.PaidAt == nil || !out.Totals.PaidAt.Equal(now) {
		t.Errorf("expected paid totals, got %+v", out.Totals)
	}
	if !out.Transaction.DiscountAmount.Equal(dec("50")) || !out.Transaction.AutomaticDiscount.Equal(dec("50")) {
		t.Errorf("ledger entry does not carry the automatic discount: %+v", out.Transaction)
	}
	if out.Transaction.PaymentType != core.EarlyPayment {
		t.Errorf("payment type = %s", out.Transaction.PaymentType)
	}
	if !out.RemainingAfter.IsZero() {
		t.Errorf("remaining after = %s", out.RemainingAfter)
	}
}

func TestApplyCustomDiscountSettles(t *testing.T) {
	rec := carLoan()
	rec.FinancingPaidAmount = dec("1000")

	out, err := Apply(rec, Payment{Amount: dec("150"), CustomDiscount: dec("50")}, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.Totals.IsPaid {
		t.Fatal("expected financing to be settled")
	}
	if !out.AutomaticDiscount.IsZero() || !out.DiscountApplied.Equal(dec("50")) {
		t.Errorf("auto %s applied %s", out.AutomaticDiscount, out.DiscountApplied)
	}
}

func TestApplyRateNotUsedOnPartialPayment(t *testing.T) {
	rec := carLoan()
	rec.EarlyPaymentDiscountRate = dec("10")

	out, err := Apply(rec, Payment{Amount: dec("100")}, now)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !out.AutomaticDiscount.IsZero() {
		t.Errorf("automatic discount = %s, want 0", out.AutomaticDiscount)
	}
}

func TestApplyRejects(t *testing.T) {
	settled := carLoan()
	settled.FinancingPaidAmount = dec("1200")

	tests := []struct {
		name string
		rec  core.ExpenseRecord
		p    Payment
		want error
	}{
		{"not financing", core.ExpenseRecord{ID: "x", UserID: "u1", Amount: dec("10")}, Payment{Amount: dec("1")}, ErrNotFinancing},
		{"zero amount", carLoan(), Payment{Amount: decimal.Zero}, ErrNonPositivePayment},
		{"negative amount", carLoan(), Payment{Amount: dec("-5")}, ErrNonPositivePayment},
		{"negative discount", carLoan(), Payment{Amount: dec("5"), CustomDiscount: dec("-1")}, ErrNegativeDiscount},
		{"already settled", settled, Payment{Amount: dec("1")}, ErrAlreadySettled},
		{"overpay", carLoan(), Payment{Amount: dec("1200.01")}, ErrPaymentExceedsBalance},
		{"discount pushes over", carLoan(), Payment{Amount: dec("1100"), CustomDiscount: dec("101")}, ErrPaymentExceedsBalance},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Apply(tt.rec, tt.p, now)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestApplyIsPure(t *testing.T) {
	rec := carLoan()
	if _, err := Apply(rec, Payment{Amount: dec("300")}, now); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if !rec.FinancingPaidAmount.IsZero() {
		t.Fatal("Apply must not mutate the record")
	}
}
