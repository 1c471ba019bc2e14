package financing

import (
	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

// Quote is a discount preview. Nothing is persisted.
type Quote struct {
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Discount        decimal.Decimal `json:"discount"`
	FinalAmount     decimal.Decimal `json:"final_amount"`
}

// CalculateDiscount previews paying off the unpaid months at rate percent:
// remaining = total/months * (months - monthsPaid).
func CalculateDiscount(total decimal.Decimal, monthsTotal, monthsPaid int, rate decimal.Decimal) Quote {
	if monthsTotal <= 0 {
		return Quote{RemainingAmount: decimal.Zero, Discount: decimal.Zero, FinalAmount: decimal.Zero}
	}
	if monthsPaid < 0 {
		monthsPaid = 0
	}
	if monthsPaid > monthsTotal {
		monthsPaid = monthsTotal
	}
	monthly := total.Div(decimal.NewFromInt(int64(monthsTotal)))
	remaining := core.ClampZero(monthly.Mul(decimal.NewFromInt(int64(monthsTotal - monthsPaid))))
	discount := core.ClampZero(core.Percent(remaining, rate))
	return Quote{
		RemainingAmount: remaining,
		Discount:        discount,
		FinalAmount:     core.ClampZero(remaining.Sub(discount)),
	}
}

// QuoteFor previews the record's payoff by months paid.
func QuoteFor(rec core.ExpenseRecord) Quote {
	return CalculateDiscount(rec.FinancingTotalAmount, rec.FinancingMonthsTotal, rec.FinancingMonthsPaid, rec.EarlyPaymentDiscountRate)
}

// PayoffQuote previews settling the record's money balance now: the rate
// applies to total - paid - discount.
func PayoffQuote(rec core.ExpenseRecord) Quote {
	remaining := rec.FinancingRemaining()
	discount := core.ClampZero(core.Percent(remaining, rec.EarlyPaymentDiscountRate))
	return Quote{
		RemainingAmount: remaining,
		Discount:        discount,
		FinalAmount:     core.ClampZero(remaining.Sub(discount)),
	}
}
