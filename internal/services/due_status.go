// This file implements the Strategy Pattern for instance due status.
// Each instance type has a classifier that decides how an occurrence is
// presented on a given day.

package services

import (
	"fmt"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

type DueStatus string

const (
	StatusPaid     DueStatus = "paid"
	StatusSettled  DueStatus = "settled"
	StatusOverdue  DueStatus = "overdue"
	StatusDueSoon  DueStatus = "due_soon"
	StatusUpcoming DueStatus = "upcoming"
)

// StatusClassifier is the strategy interface for instance due status.
type StatusClassifier interface {
	Classify(inst core.ExpenseInstance, today core.Date) DueStatus
}

// DateClassifier classifies by paid flag and distance from today.
type DateClassifier struct{}

func (DateClassifier) Classify(inst core.ExpenseInstance, today core.Date) DueStatus {
	if inst.IsPaid {
		return StatusPaid
	}
	return byDate(inst.InstanceDate, today)
}

// FinancingClassifier additionally reports installments covered by the
// financing's paid amount as settled.
type FinancingClassifier struct{}

func (FinancingClassifier) Classify(inst core.ExpenseInstance, today core.Date) DueStatus {
	if inst.SettledByPayment {
		return StatusSettled
	}
	if inst.IsPaid {
		return StatusPaid
	}
	return byDate(inst.InstanceDate, today)
}

func byDate(date, today core.Date) DueStatus {
	if date.Before(today.Time) {
		return StatusOverdue
	}
	if !date.After(today.AddDate(0, 0, core.DueSoonWindowDays)) {
		return StatusDueSoon
	}
	return StatusUpcoming
}

var statusClassifiers = map[core.InstanceType]StatusClassifier{
	core.InstanceNormal:    DateClassifier{},
	core.InstanceRecurring: DateClassifier{},
	core.InstanceFinancing: FinancingClassifier{},
}

// GetStatusClassifier returns the classifier for an instance type.
func GetStatusClassifier(t core.InstanceType) (StatusClassifier, error) {
	c, ok := statusClassifiers[t]
	if !ok {
		return nil, fmt.Errorf("unknown instance type: %s", t)
	}
	return c, nil
}

// RegisterStatusClassifier replaces or adds the classifier for an instance type.
func RegisterStatusClassifier(t core.InstanceType, c StatusClassifier) {
	statusClassifiers[t] = c
}
