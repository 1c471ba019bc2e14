// Package projection computes the concrete monthly occurrences of expense
// records. Everything here is pure: callers load records and persisted
// instances and get back a fresh slice.
package projection

import (
	"sort"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
)

// Projector turns expense records into instances.
type Projector struct {
	logger *log.Logger
}

func New(logger *log.Logger) *Projector {
	if logger == nil {
		logger = log.Discard()
	}
	return &Projector{logger: logger.WithComponent(log.ComponentProjector)}
}

// ProjectMonth returns the instances of every record that fall in the
// month containing month. Persisted instances override the computed paid
// state and amount of the occurrence with the same natural key; persisted
// rows outside the month are ignored. The result is unique by natural key
// and ordered by date, then expense id.
func (p *Projector) ProjectMonth(month core.Date, records []core.ExpenseRecord, persisted []core.ExpenseInstance) []core.ExpenseInstance {
	month = month.MonthStart()
	byKey := indexPersisted(persisted, func(i core.ExpenseInstance) bool {
		return i.InstanceDate.SameMonth(month)
	})

	out := make([]core.ExpenseInstance, 0, len(records))
	for _, rec := range records {
		if !p.projectable(rec) {
			continue
		}
		inst, ok := p.occurrence(rec, month)
		if !ok {
			continue
		}
		out = append(out, settle(rec, merge(inst, byKey)))
	}

	out = dedupe(out)
	sortInstances(out)
	return out
}

func (p *Projector) occurrence(rec core.ExpenseRecord, month core.Date) (core.ExpenseInstance, bool) {
	switch rec.Kind() {
	case core.KindFinancing:
		return financingOccurrence(rec, month)
	case core.KindRecurring:
		return recurringOccurrence(rec, month)
	case core.KindInstallment:
		return installmentOccurrence(rec, month)
	default:
		return oneOffOccurrence(rec, month)
	}
}

// projectable rejects records the projection cannot reason about. They are
// skipped with a warning so one bad row does not hide a whole month.
func (p *Projector) projectable(rec core.ExpenseRecord) bool {
	fields := log.NewFields().WithExpense(rec.ID, rec.Title, string(rec.Kind())).WithUser(rec.UserID)
	if err := rec.DueDate.Validate(); err != nil {
		p.logger.Warn("Skipping expense with malformed due date", fields.WithError(err).ToSlice()...)
		return false
	}
	if rec.HasConflictingKinds() {
		p.logger.Warn("Skipping expense with conflicting kinds", fields.WithError(core.ErrConflictingKinds).ToSlice()...)
		return false
	}
	if rec.IsFinancing && rec.FinancingMonthsTotal < 1 {
		p.logger.Warn("Skipping financing without months total", fields.WithError(core.ErrInvalidFinancing).ToSlice()...)
		return false
	}
	return true
}

func oneOffOccurrence(rec core.ExpenseRecord, month core.Date) (core.ExpenseInstance, bool) {
	if !rec.DueDate.SameMonth(month) {
		return core.ExpenseInstance{}, false
	}
	inst := newInstance(rec, core.InstanceNormal, 0, rec.DueDate)
	inst.IsPaid = rec.IsPaid
	inst.PaidAt = rec.PaidAt
	return inst, true
}

func installmentOccurrence(rec core.ExpenseRecord, month core.Date) (core.ExpenseInstance, bool) {
	offset := core.MonthsBetween(rec.DueDate, month)
	if offset < 0 || offset >= rec.Installments {
		return core.ExpenseInstance{}, false
	}
	return newInstance(rec, core.InstanceNormal, offset+1, rec.DueDate.AddMonths(offset)), true
}

func recurringOccurrence(rec core.ExpenseRecord, month core.Date) (core.ExpenseInstance, bool) {
	if core.MonthsBetween(rec.RecurringStart(), month) < 0 {
		return core.ExpenseInstance{}, false
	}
	if !rec.RecurringEndDate.IsZero() && core.MonthsBetween(rec.RecurringEndDate, month) > 0 {
		return core.ExpenseInstance{}, false
	}
	return newInstance(rec, core.InstanceRecurring, 0, rec.DueDate.InMonth(month)), true
}

func financingOccurrence(rec core.ExpenseRecord, month core.Date) (core.ExpenseInstance, bool) {
	offset := core.MonthsBetween(rec.DueDate, month)
	if offset < 0 || offset >= rec.FinancingMonthsTotal {
		return core.ExpenseInstance{}, false
	}
	if rec.FinancingSettled() {
		return core.ExpenseInstance{}, false
	}
	inst := newInstance(rec, core.InstanceFinancing, offset+1, rec.DueDate.InMonth(month))
	inst.Amount = rec.MonthlyFinancingAmount()
	return inst, true
}

func newInstance(rec core.ExpenseRecord, typ core.InstanceType, number int, date core.Date) core.ExpenseInstance {
	return core.ExpenseInstance{
		ExpenseID:         rec.ID,
		UserID:            rec.UserID,
		Type:              typ,
		InstallmentNumber: number,
		Amount:            rec.Amount,
		InstanceDate:      date,
	}
}

// merge applies the persisted row with the same natural key, or assigns the
// synthetic id when there is none.
func merge(inst core.ExpenseInstance, byKey map[core.NaturalKey]core.ExpenseInstance) core.ExpenseInstance {
	row, ok := byKey[inst.Key()]
	if !ok {
		inst.ID = inst.Key().SyntheticID()
		return inst
	}
	inst.ID = row.ID
	inst.IsPaid = row.IsPaid
	inst.PaidAt = row.PaidAt
	inst.Amount = row.Amount
	inst.CreatedAt = row.CreatedAt
	inst.Persisted = true
	return inst
}

// settle marks financing installments covered by the aggregate paid amount.
// A persisted row was toggled explicitly and is left as stored.
func settle(rec core.ExpenseRecord, inst core.ExpenseInstance) core.ExpenseInstance {
	if inst.Type != core.InstanceFinancing || inst.IsPaid || inst.Persisted {
		return inst
	}
	if inst.InstallmentNumber <= rec.InstallmentsCoveredByPayments() {
		inst.IsPaid = true
		inst.SettledByPayment = true
	}
	return inst
}

func indexPersisted(persisted []core.ExpenseInstance, keep func(core.ExpenseInstance) bool) map[core.NaturalKey]core.ExpenseInstance {
	byKey := make(map[core.NaturalKey]core.ExpenseInstance, len(persisted))
	for _, row := range persisted {
		if keep != nil && !keep(row) {
			continue
		}
		row.InstanceDate = core.DateOf(row.InstanceDate.Time)
		if _, dup := byKey[row.Key()]; dup {
			continue
		}
		byKey[row.Key()] = row
	}
	return byKey
}

func dedupe(in []core.ExpenseInstance) []core.ExpenseInstance {
	seen := make(map[core.NaturalKey]struct{}, len(in))
	out := in[:0]
	for _, inst := range in {
		if _, ok := seen[inst.Key()]; ok {
			continue
		}
		seen[inst.Key()] = struct{}{}
		out = append(out, inst)
	}
	return out
}

func sortInstances(in []core.ExpenseInstance) {
	sort.SliceStable(in, func(i, j int) bool {
		a, b := in[i], in[j]
		if !a.InstanceDate.Equal(b.InstanceDate.Time) {
			return a.InstanceDate.Before(b.InstanceDate.Time)
		}
		if a.ExpenseID != b.ExpenseID {
			return a.ExpenseID < b.ExpenseID
		}
		return a.InstallmentNumber < b.InstallmentNumber
	})
}
