package projection

import (
	"errors"
	"fmt"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

// ErrNoSchedule is returned by Schedule for one-off and recurring records.
var ErrNoSchedule = errors.New("expense has no installment schedule")

// Schedule returns every installment of a financing or installment record,
// merged with its persisted rows. Financing installments covered by the
// aggregate paid amount are marked paid. Settled financings still list all
// their installments.
func Schedule(rec core.ExpenseRecord, persisted []core.ExpenseInstance) ([]core.ExpenseInstance, error) {
	if err := rec.DueDate.Validate(); err != nil {
		return nil, fmt.Errorf("invalid due date: %w", err)
	}

	var (
		count int
		typ   core.InstanceType
	)
	switch rec.Kind() {
	case core.KindFinancing:
		if rec.FinancingMonthsTotal < 1 {
			return nil, core.ErrInvalidFinancing
		}
		count, typ = rec.FinancingMonthsTotal, core.InstanceFinancing
	case core.KindInstallment:
		count, typ = rec.Installments, core.InstanceNormal
	default:
		return nil, fmt.Errorf("expense %s of kind %s: %w", rec.ID, rec.Kind(), ErrNoSchedule)
	}

	byKey := indexPersisted(persisted, func(i core.ExpenseInstance) bool {
		return i.ExpenseID == rec.ID
	})
	out := make([]core.ExpenseInstance, 0, count)
	for n := 1; n <= count; n++ {
		inst := newInstance(rec, typ, n, rec.DueDate.AddMonths(n-1))
		if typ == core.InstanceFinancing {
			inst.Amount = rec.MonthlyFinancingAmount()
		}
		out = append(out, settle(rec, merge(inst, byKey)))
	}
	return out, nil
}

// InstallmentRows returns the unpaid rows to materialize when an
// installment record is created. Other kinds materialize nothing.
func InstallmentRows(rec core.ExpenseRecord) []core.ExpenseInstance {
	if rec.Kind() != core.KindInstallment {
		return nil
	}
	rows := make([]core.ExpenseInstance, 0, rec.Installments)
	for n := 1; n <= rec.Installments; n++ {
		inst := newInstance(rec, core.InstanceNormal, n, rec.DueDate.AddMonths(n-1))
		inst.ID = core.NewID()
		rows = append(rows, inst)
	}
	return rows
}
