package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// MonthsRecounter refreshes the paid month count of a financing through st.
type MonthsRecounter interface {
	RecountPaidMonthsIn(ctx context.Context, st storage.Store, userID, expenseID string) (int, error)
}

// InstanceMutator flips the paid state of instances. Projected instances
// are materialized on their first toggle.
type InstanceMutator struct {
	store     storage.Store
	recounter MonthsRecounter
	publisher financing.EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

func NewInstanceMutator(store storage.Store, recounter MonthsRecounter, publisher financing.EventPublisher, logger *log.Logger) *InstanceMutator {
	if logger == nil {
		logger = log.Discard()
	}
	return &InstanceMutator{
		store:     store,
		recounter: recounter,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentMutator),
		now:       time.Now,
	}
}

// TogglePaid inverts the paid state of inst and returns the stored result.
// A row materialized for the first time takes the opposite of the state the
// caller was shown. The flip and the financing recount run in one
// transaction when the store supports it; on error the caller's instance is
// returned unchanged so a display can be reverted. Without transactions a
// failed recount after a successful flip returns the stored instance with a
// *financing.PartialFailureError.
func (m *InstanceMutator) TogglePaid(ctx context.Context, userID string, inst core.ExpenseInstance) (core.ExpenseInstance, error) {
	fields := log.NewFields().
		WithUser(userID).
		WithInstance(inst.ExpenseID, string(inst.Type), inst.InstanceDate.String(), inst.InstallmentNumber).
		WithOperation(log.OpToggle)

	inst.InstanceDate = core.DateOf(inst.InstanceDate.Time)
	if err := inst.Validate(); err != nil {
		return inst, err
	}

	var (
		out     core.ExpenseInstance
		flipped bool
	)
	toggle := func(st storage.Store) error {
		var err error
		if inst.IsOneOff() {
			out, err = m.toggleRecord(ctx, st, userID, inst)
		} else {
			out, err = m.toggleInstance(ctx, st, userID, inst)
		}
		if err != nil {
			return err
		}
		flipped = true
		if out.Type == core.InstanceFinancing && m.recounter != nil {
			if _, err := m.recounter.RecountPaidMonthsIn(ctx, st, userID, out.ExpenseID); err != nil {
				return fmt.Errorf("recount paid months: %w", err)
			}
		}
		return nil
	}

	var err error
	if txr, ok := m.store.(storage.Transactor); ok {
		err = txr.WithinTx(ctx, toggle)
	} else if err = toggle(m.store); err != nil && flipped {
		m.logger.ErrorContext(ctx, "Toggle partially applied", fields.WithError(err).ToSlice()...)
		return out, &financing.PartialFailureError{
			Operation: "toggle paid",
			Completed: []string{"set paid"},
			Failed:    "recount paid months",
			Err:       err,
		}
	}
	if err != nil {
		m.logger.WarnContext(ctx, "Toggle failed", fields.WithError(err).ToSlice()...)
		return inst, err
	}

	m.logger.InfoContext(ctx, "Instance toggled", append(fields.ToSlice(), "is_paid", out.IsPaid)...)

	ev := amqp.NewEvent(amqp.InstanceToggled, userID, out.ExpenseID)
	ev.Instance = &out
	publishEvent(ctx, m.publisher, m.logger, ev)

	return out, nil
}

// toggleRecord flips the paid flag of a one-off record.
func (m *InstanceMutator) toggleRecord(ctx context.Context, st storage.Store, userID string, inst core.ExpenseInstance) (core.ExpenseInstance, error) {
	rec, err := st.GetExpense(ctx, userID, inst.ExpenseID)
	if err != nil {
		return core.ExpenseInstance{}, err
	}
	paid := !rec.IsPaid
	var paidAt *time.Time
	if paid {
		at := m.now().UTC()
		paidAt = &at
	}
	if err := st.SetExpensePaid(ctx, userID, rec.ID, paid, paidAt); err != nil {
		return core.ExpenseInstance{}, fmt.Errorf("set expense paid: %w", err)
	}

	out := inst
	out.UserID = userID
	out.ID = out.Key().SyntheticID()
	out.IsPaid = paid
	out.PaidAt = paidAt
	out.Persisted = false
	return out, nil
}

// toggleInstance flips the persisted row of the natural key. Without one it
// inserts a row holding the inverse of the displayed state, so an
// installment shown as settled by payment is stored unpaid. Losing an insert
// race flips the winning row.
func (m *InstanceMutator) toggleInstance(ctx context.Context, st storage.Store, userID string, inst core.ExpenseInstance) (core.ExpenseInstance, error) {
	if _, err := st.GetExpense(ctx, userID, inst.ExpenseID); err != nil {
		return core.ExpenseInstance{}, err
	}

	row, err := st.FindInstance(ctx, userID, inst.Key())
	switch {
	case err == nil:
		return m.flip(ctx, st, userID, row)
	case !errors.Is(err, core.ErrNotFound):
		return core.ExpenseInstance{}, fmt.Errorf("find instance: %w", err)
	}

	at := m.now().UTC()
	row = inst
	row.ID = core.NewID()
	row.UserID = userID
	row.IsPaid = !inst.IsPaid
	row.PaidAt = nil
	if row.IsPaid {
		row.PaidAt = &at
	}
	row.SettledByPayment = false
	row.CreatedAt = at
	err = st.InsertInstances(ctx, []core.ExpenseInstance{row})
	if err == nil {
		row.Persisted = true
		return row, nil
	}
	if !errors.Is(err, core.ErrDuplicateInstance) {
		return core.ExpenseInstance{}, fmt.Errorf("materialize instance: %w", err)
	}

	winner, err := st.FindInstance(ctx, userID, inst.Key())
	if err != nil {
		return core.ExpenseInstance{}, fmt.Errorf("find instance after conflict: %w", err)
	}
	return m.flip(ctx, st, userID, winner)
}

func (m *InstanceMutator) flip(ctx context.Context, st storage.Store, userID string, row core.ExpenseInstance) (core.ExpenseInstance, error) {
	paid := !row.IsPaid
	var paidAt *time.Time
	if paid {
		at := m.now().UTC()
		paidAt = &at
	}
	if err := st.SetInstancePaid(ctx, userID, row.ID, paid, paidAt); err != nil {
		return core.ExpenseInstance{}, fmt.Errorf("set instance paid: %w", err)
	}
	row.IsPaid = paid
	row.PaidAt = paidAt
	row.Persisted = true
	return row, nil
}
