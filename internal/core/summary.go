package core

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DueSoonWindowDays is how far ahead an unpaid instance counts as due soon.
const DueSoonWindowDays = 7

// MonthSummary is a compact summary of the instances of one month.
type MonthSummary struct {
	Month        string                           `json:"month"`
	Total        decimal.Decimal                  `json:"total"`
	PaidTotal    decimal.Decimal                  `json:"paid_total"`
	PendingTotal decimal.Decimal                  `json:"pending_total"`
	OverdueTotal decimal.Decimal                  `json:"overdue_total"`
	PaidCount    int                              `json:"paid_count"`
	PendingCount int                              `json:"pending_count"`
	OverdueCount int                              `json:"overdue_count"`
	DueSoonCount int                              `json:"due_soon_count"`
	NextDue      *ExpenseInstance                 `json:"next_due,omitempty"`
	ByType       map[InstanceType]decimal.Decimal `json:"by_type"`
}

// Summarize aggregates the instances of month as seen on today.
// Overdue means unpaid with a date before today; due soon means unpaid
// within DueSoonWindowDays from today.
func Summarize(month Date, instances []ExpenseInstance, today Date) MonthSummary {
	s := MonthSummary{
		Month:        month.Format(MonthLayout),
		Total:        decimal.Zero,
		PaidTotal:    decimal.Zero,
		PendingTotal: decimal.Zero,
		OverdueTotal: decimal.Zero,
		ByType:       make(map[InstanceType]decimal.Decimal),
	}
	soon := today.AddDate(0, 0, DueSoonWindowDays)

	var upcoming []ExpenseInstance
	for _, inst := range instances {
		s.Total = s.Total.Add(inst.Amount)
		s.ByType[inst.Type] = s.ByType[inst.Type].Add(inst.Amount)
		if inst.IsPaid {
			s.PaidCount++
			s.PaidTotal = s.PaidTotal.Add(inst.Amount)
			continue
		}
		s.PendingCount++
		s.PendingTotal = s.PendingTotal.Add(inst.Amount)
		if inst.InstanceDate.Before(today.Time) {
			s.OverdueCount++
			s.OverdueTotal = s.OverdueTotal.Add(inst.Amount)
			continue
		}
		if !inst.InstanceDate.After(soon) {
			s.DueSoonCount++
		}
		upcoming = append(upcoming, inst)
	}

	if len(upcoming) > 0 {
		sort.SliceStable(upcoming, func(i, j int) bool {
			return upcoming[i].InstanceDate.Before(upcoming[j].InstanceDate.Time)
		})
		next := upcoming[0]
		s.NextDue = &next
	}
	return s
}
