// Package financing applies payments and discounts to financing expenses
// and keeps their aggregates in step with the payment ledger.
package financing

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

var (
	ErrNotFinancing          = errors.New("expense is not a financing")
	ErrNonPositivePayment    = errors.New("payment amount must be greater than zero")
	ErrNegativeDiscount      = errors.New("discount must not be negative")
	ErrAlreadySettled        = errors.New("financing is already settled")
	ErrPaymentExceedsBalance = errors.New("payment exceeds the remaining balance")
)

// Payment is a user request to pay part or all of a financing.
type Payment struct {
	Amount         decimal.Decimal `json:"amount"`
	CustomDiscount decimal.Decimal `json:"custom_discount"`
	Note           string          `json:"note,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

// Outcome is the effect of a payment, computed before anything is written.
type Outcome struct {
	RemainingBefore   decimal.Decimal
	RemainingAfter    decimal.Decimal
	AutomaticDiscount decimal.Decimal
	DiscountApplied   decimal.Decimal
	Totals            core.FinancingTotals
	Transaction       core.PaymentTransaction
}

// Validate checks the payment against the record without touching it.
func (p Payment) Validate(rec core.ExpenseRecord) error {
	if !rec.IsFinancing {
		return ErrNotFinancing
	}
	if !p.Amount.IsPositive() {
		return ErrNonPositivePayment
	}
	if p.CustomDiscount.IsNegative() {
		return ErrNegativeDiscount
	}
	remaining := rec.FinancingRemaining()
	if !remaining.IsPositive() {
		return ErrAlreadySettled
	}
	if p.Amount.Add(p.CustomDiscount).GreaterThan(remaining) {
		return fmt.Errorf("%w: %s + %s > %s", ErrPaymentExceedsBalance, p.Amount, p.CustomDiscount, remaining)
	}
	return nil
}

// Apply computes the new financing aggregates for a payment.
//
// remaining = max(0, total - paid - discount). The custom discount is always
// added; when the record has a rate and the payment covers the remaining
// balance, remaining*rate/100 is added as an automatic discount. The
// financing is fully paid once paid >= total - discount.
func Apply(rec core.ExpenseRecord, p Payment, now time.Time) (Outcome, error) {
	if err := p.Validate(rec); err != nil {
		return Outcome{}, err
	}

	remaining := rec.FinancingRemaining()
	auto := decimal.Zero
	if rec.EarlyPaymentDiscountRate.IsPositive() && p.Amount.GreaterThanOrEqual(remaining) {
		auto = core.Percent(remaining, rec.EarlyPaymentDiscountRate)
	}
	applied := p.CustomDiscount.Add(auto)

	newDiscount := rec.FinancingDiscountAmount.Add(applied)
	newPaid := rec.FinancingPaidAmount.Add(p.Amount)
	fullyPaid := newPaid.GreaterThanOrEqual(rec.FinancingTotalAmount.Sub(newDiscount))

	totals := core.FinancingTotals{
		PaidAmount:     newPaid,
		DiscountAmount: newDiscount,
		IsPaid:         fullyPaid,
	}
	if fullyPaid {
		at := now.UTC()
		totals.PaidAt = &at
	}

	paymentType := core.PartialPayment
	if fullyPaid {
		paymentType = core.EarlyPayment
	}

	return Outcome{
		RemainingBefore:   remaining,
		RemainingAfter:    core.ClampZero(rec.FinancingTotalAmount.Sub(newPaid).Sub(newDiscount)),
		AutomaticDiscount: auto,
		DiscountApplied:   applied,
		Totals:            totals,
		Transaction: core.PaymentTransaction{
			ExpenseID:         rec.ID,
			UserID:            rec.UserID,
			PaymentAmount:     p.Amount,
			DiscountAmount:    applied,
			AutomaticDiscount: auto,
			PaymentType:       paymentType,
			IdempotencyKey:    p.IdempotencyKey,
			Note:              p.Note,
			CreatedAt:         now.UTC(),
		},
	}, nil
}
