package services

import (
	"context"
	"fmt"
	"sort"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/projection"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// InstanceView is an instance with the display data of its record looked
// up by expense id.
type InstanceView struct {
	core.ExpenseInstance
	Title  string    `json:"title"`
	Kind   core.Kind `json:"kind"`
	Status DueStatus `json:"status"`
}

// MonthView is the projected content of one month.
type MonthView struct {
	Month     string         `json:"month"`
	Instances []InstanceView `json:"instances"`
}

// CalendarService loads records and persisted instances and runs the
// projection over them.
type CalendarService struct {
	store     storage.Store
	projector *projection.Projector
	logger    *log.Logger
}

func NewCalendarService(store storage.Store, projector *projection.Projector, logger *log.Logger) *CalendarService {
	if logger == nil {
		logger = log.Discard()
	}
	if projector == nil {
		projector = projection.New(logger)
	}
	return &CalendarService{
		store:     store,
		projector: projector,
		logger:    logger.WithComponent(log.ComponentProjector),
	}
}

// Instances projects the user's records into month, ordered by date, then
// title.
func (c *CalendarService) Instances(ctx context.Context, userID string, month core.Date) ([]core.ExpenseInstance, map[string]core.ExpenseRecord, error) {
	month = month.MonthStart()
	records, err := c.store.ListExpenses(ctx, userID, storage.ExpenseFilter{})
	if err != nil {
		return nil, nil, fmt.Errorf("list expenses: %w", err)
	}
	persisted, err := c.store.ListInstances(ctx, userID, storage.InstanceFilter{
		From: month,
		To:   month.MonthEnd(),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("list instances: %w", err)
	}

	byID := make(map[string]core.ExpenseRecord, len(records))
	for _, r := range records {
		byID[r.ID] = r
	}

	instances := c.projector.ProjectMonth(month, records, persisted)
	sort.SliceStable(instances, func(i, j int) bool {
		a, b := instances[i], instances[j]
		if !a.InstanceDate.Equal(b.InstanceDate.Time) {
			return a.InstanceDate.Before(b.InstanceDate.Time)
		}
		return byID[a.ExpenseID].Title < byID[b.ExpenseID].Title
	})

	c.logger.DebugContext(ctx, "Projected month",
		log.NewFields().WithUser(userID).WithOperation(log.OpProject).ToSlice()...,
	)
	return instances, byID, nil
}

// Month returns the month's instances annotated for display as of today.
func (c *CalendarService) Month(ctx context.Context, userID string, month, today core.Date) (MonthView, error) {
	instances, byID, err := c.Instances(ctx, userID, month)
	if err != nil {
		return MonthView{}, err
	}
	view := MonthView{
		Month:     month.Format(core.MonthLayout),
		Instances: make([]InstanceView, 0, len(instances)),
	}
	for _, inst := range instances {
		rec := byID[inst.ExpenseID]
		view.Instances = append(view.Instances, InstanceView{
			ExpenseInstance: inst,
			Title:           rec.Title,
			Kind:            rec.Kind(),
			Status:          c.status(inst, today),
		})
	}
	return view, nil
}

// Summary aggregates the month's instances as of today.
func (c *CalendarService) Summary(ctx context.Context, userID string, month, today core.Date) (core.MonthSummary, error) {
	instances, _, err := c.Instances(ctx, userID, month)
	if err != nil {
		return core.MonthSummary{}, err
	}
	return core.Summarize(month.MonthStart(), instances, today), nil
}

// Schedule lists every installment of a financing or installment record.
func (c *CalendarService) Schedule(ctx context.Context, userID, expenseID string) ([]core.ExpenseInstance, error) {
	rec, err := c.store.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return nil, err
	}
	persisted, err := c.store.ListInstances(ctx, userID, storage.InstanceFilter{ExpenseID: expenseID})
	if err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return projection.Schedule(rec, persisted)
}

func (c *CalendarService) status(inst core.ExpenseInstance, today core.Date) DueStatus {
	classifier, err := GetStatusClassifier(inst.Type)
	if err != nil {
		c.logger.Warn("No status classifier", log.FieldInstanceType, string(inst.Type))
		return DateClassifier{}.Classify(inst, today)
	}
	return classifier.Classify(inst, today)
}
