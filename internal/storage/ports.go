// Package storage defines the persistence ports of the engine. Implementations
// live in the sqlite and memory subpackages.
package storage

import (
	"context"
	"time"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

// ExpenseFilter narrows ListExpenses. Zero values match everything.
type ExpenseFilter struct {
	Kind   core.Kind
	IsPaid *bool
}

// InstanceFilter narrows ListInstances. Zero values match everything; From
// and To are inclusive.
type InstanceFilter struct {
	ExpenseID string
	From      core.Date
	To        core.Date
	Type      core.InstanceType
	IsPaid    *bool
}

// ExpenseStore persists expense records. Every call is scoped by user; a
// record owned by another user is reported as core.ErrNotFound.
type ExpenseStore interface {
	CreateExpense(ctx context.Context, e core.ExpenseRecord) error
	GetExpense(ctx context.Context, userID, id string) (core.ExpenseRecord, error)
	ListExpenses(ctx context.Context, userID string, f ExpenseFilter) ([]core.ExpenseRecord, error)
	// UpdateExpense writes the user-editable fields only. Financing
	// aggregates are owned by the amortization flow.
	UpdateExpense(ctx context.Context, e core.ExpenseRecord) error
	// DeleteExpense removes the record with its instances and transactions.
	DeleteExpense(ctx context.Context, userID, id string) error
	SetExpensePaid(ctx context.Context, userID, id string, paid bool, paidAt *time.Time) error
	UpdateFinancingTotals(ctx context.Context, userID, id string, t core.FinancingTotals) error
	SetFinancingMonthsPaid(ctx context.Context, userID, id string, months int) error
	// ResetFinancing zeroes paid/discount/months paid and clears the paid flag.
	ResetFinancing(ctx context.Context, userID, id string) error
}

// InstanceStore persists materialized instances. At most one row exists per
// natural key; inserting a second one fails with core.ErrDuplicateInstance.
type InstanceStore interface {
	InsertInstances(ctx context.Context, rows []core.ExpenseInstance) error
	FindInstance(ctx context.Context, userID string, key core.NaturalKey) (core.ExpenseInstance, error)
	SetInstancePaid(ctx context.Context, userID, id string, paid bool, paidAt *time.Time) error
	ListInstances(ctx context.Context, userID string, f InstanceFilter) ([]core.ExpenseInstance, error)
	CountPaidInstances(ctx context.Context, userID, expenseID string, typ core.InstanceType) (int, error)
	// ResetInstances marks every instance of the expense unpaid.
	ResetInstances(ctx context.Context, userID, expenseID string) (int, error)
}

// TransactionStore is the append-only payment ledger. A repeated
// (expense, idempotency key) pair fails with core.ErrDuplicatePayment.
type TransactionStore interface {
	AppendTransaction(ctx context.Context, t core.PaymentTransaction) error
	ListTransactions(ctx context.Context, userID, expenseID string) ([]core.PaymentTransaction, error)
	DeleteTransactions(ctx context.Context, userID, expenseID string) (int, error)
}

// Store is the full persistence surface.
type Store interface {
	ExpenseStore
	InstanceStore
	TransactionStore
}

// Transactor is implemented by stores that can run several writes as one
// atomic unit. fn receives a Store bound to the transaction; returning an
// error rolls everything back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx Store) error) error
}

// Pinger reports store health for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Bool returns a pointer to b, for filters.
func Bool(b bool) *bool { return &b }
