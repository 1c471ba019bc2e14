// Package sheets mirrors the payment ledger to a spreadsheet so it can be
// audited outside the application.
package sheets

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

const (
	EventPayment = "payment"
	EventReset   = "reset"
)

// Header is the first row of a ledger sheet, one entry per Row column.
var Header = []string{"Date", "Event", "Expense", "Title", "Payment", "Discount", "Type", "Note", "Ref"}

// Row is one line of the ledger mirror. Ref identifies the source
// transaction or event so a redelivered message can be recognised.
type Row struct {
	Date        core.Date
	Event       string
	ExpenseID   string
	Title       string
	Payment     decimal.Decimal
	Discount    decimal.Decimal
	PaymentType core.PaymentType
	Note        string
	Ref         string
}

// Values renders the row in Header order.
func (r Row) Values() []any {
	return []any{
		r.Date.String(),
		r.Event,
		r.ExpenseID,
		r.Title,
		r.Payment.StringFixed(2),
		r.Discount.StringFixed(2),
		string(r.PaymentType),
		r.Note,
		r.Ref,
	}
}

// Ports for outbound adapters.
type (
	LedgerWriter interface {
		Append(ctx context.Context, r Row) (rowRef string, err error)
	}

	LedgerReader interface {
		// Rows returns the mirrored rows in sheet order.
		Rows(ctx context.Context) ([]Row, error)
	}
)
