package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/projection"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// ExpenseService orchestrates expense record operations across the store
// and the event bus.
type ExpenseService struct {
	store     storage.Store
	publisher financing.EventPublisher
	logger    *log.Logger
	now       func() time.Time
}

func NewExpenseService(store storage.Store, publisher financing.EventPublisher, logger *log.Logger) *ExpenseService {
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		store:     store,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentExpense),
		now:       time.Now,
	}
}

// Create validates and saves a new record. Installment records get all
// their instance rows materialized in the same unit of work.
func (s *ExpenseService) Create(ctx context.Context, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	if s.store == nil {
		return core.ExpenseRecord{}, errors.New("expense service has no store")
	}
	rec.Title = strings.TrimSpace(rec.Title)
	if rec.ID == "" {
		rec.ID = core.NewID()
	}
	now := s.now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	if rec.IsRecurring && rec.RecurringStartDate.IsZero() {
		rec.RecurringStartDate = rec.DueDate
	}
	if err := rec.Validate(); err != nil {
		return core.ExpenseRecord{}, err
	}

	rows := projection.InstallmentRows(rec)
	for i := range rows {
		rows[i].CreatedAt = now
	}

	save := func(st storage.Store) error {
		if err := st.CreateExpense(ctx, rec); err != nil {
			return fmt.Errorf("save expense: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := st.InsertInstances(ctx, rows); err != nil {
			return fmt.Errorf("materialize installments: %w", err)
		}
		return nil
	}
	var err error
	if txr, ok := s.store.(storage.Transactor); ok {
		err = txr.WithinTx(ctx, save)
	} else {
		err = save(s.store)
	}
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	s.logger.InfoContext(ctx, "Expense created",
		log.NewFields().
			WithUser(rec.UserID).
			WithExpense(rec.ID, rec.Title, string(rec.Kind())).
			WithOperation(log.OpCreate).
			ToSlice()...)

	ev := amqp.NewEvent(amqp.ExpenseCreated, rec.UserID, rec.ID)
	ev.Title = rec.Title
	s.publish(ctx, ev)

	return rec, nil
}

func (s *ExpenseService) Get(ctx context.Context, userID, id string) (core.ExpenseRecord, error) {
	return s.store.GetExpense(ctx, userID, id)
}

func (s *ExpenseService) List(ctx context.Context, userID string, f storage.ExpenseFilter) ([]core.ExpenseRecord, error) {
	return s.store.ListExpenses(ctx, userID, f)
}

// Update rewrites the user-editable fields of an existing record. Payment
// aggregates and the paid flag are left to the payment and toggle flows.
// Schedule fields are locked once the record has stored instance rows,
// since those rows are keyed on the old dates and numbers.
func (s *ExpenseService) Update(ctx context.Context, rec core.ExpenseRecord) (core.ExpenseRecord, error) {
	var cur core.ExpenseRecord
	save := func(st storage.Store) error {
		var err error
		cur, err = st.GetExpense(ctx, rec.UserID, rec.ID)
		if err != nil {
			return err
		}
		before := cur

		cur.Title = strings.TrimSpace(rec.Title)
		cur.Description = rec.Description
		cur.CategoryID = rec.CategoryID
		cur.Tags = rec.Tags
		cur.Notes = rec.Notes
		cur.Amount = rec.Amount
		cur.DueDate = rec.DueDate
		cur.IsRecurring = rec.IsRecurring
		cur.RecurringStartDate = rec.RecurringStartDate
		cur.RecurringEndDate = rec.RecurringEndDate
		cur.Installments = rec.Installments
		cur.CurrentInstallment = rec.CurrentInstallment
		cur.IsFinancing = rec.IsFinancing
		cur.FinancingTotalAmount = rec.FinancingTotalAmount
		cur.FinancingMonthsTotal = rec.FinancingMonthsTotal
		cur.EarlyPaymentDiscountRate = rec.EarlyPaymentDiscountRate
		if cur.IsRecurring && cur.RecurringStartDate.IsZero() {
			cur.RecurringStartDate = cur.DueDate
		}
		cur.UpdatedAt = s.now().UTC()

		if err := cur.Validate(); err != nil {
			return err
		}
		if scheduleChanged(before, cur) {
			rows, err := st.ListInstances(ctx, cur.UserID, storage.InstanceFilter{ExpenseID: cur.ID})
			if err != nil {
				return fmt.Errorf("list instances: %w", err)
			}
			if len(rows) > 0 {
				return &core.ValidationError{Err: fmt.Errorf("%w: %d stored", core.ErrScheduleLocked, len(rows))}
			}
		}
		if err := st.UpdateExpense(ctx, cur); err != nil {
			return fmt.Errorf("update expense: %w", err)
		}
		return nil
	}

	var err error
	if txr, ok := s.store.(storage.Transactor); ok {
		err = txr.WithinTx(ctx, save)
	} else {
		err = save(s.store)
	}
	if err != nil {
		return core.ExpenseRecord{}, err
	}

	s.logger.InfoContext(ctx, "Expense updated",
		log.NewFields().
			WithUser(cur.UserID).
			WithExpense(cur.ID, cur.Title, string(cur.Kind())).
			WithOperation(log.OpUpdate).
			ToSlice()...)
	return cur, nil
}

// scheduleChanged reports whether b would place instances under other
// natural keys than a.
func scheduleChanged(a, b core.ExpenseRecord) bool {
	return !a.DueDate.Equal(b.DueDate.Time) ||
		a.Installments != b.Installments ||
		a.IsRecurring != b.IsRecurring ||
		a.IsFinancing != b.IsFinancing ||
		a.FinancingMonthsTotal != b.FinancingMonthsTotal ||
		!a.RecurringStartDate.Equal(b.RecurringStartDate.Time) ||
		!a.RecurringEndDate.Equal(b.RecurringEndDate.Time)
}

// Delete removes the record together with its instances and ledger.
func (s *ExpenseService) Delete(ctx context.Context, userID, id string) error {
	rec, err := s.store.GetExpense(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteExpense(ctx, userID, id); err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}

	s.logger.InfoContext(ctx, "Expense deleted",
		log.NewFields().
			WithUser(userID).
			WithExpense(id, rec.Title, string(rec.Kind())).
			WithOperation(log.OpDelete).
			ToSlice()...)

	ev := amqp.NewEvent(amqp.ExpenseDeleted, userID, id)
	ev.Title = rec.Title
	s.publish(ctx, ev)
	return nil
}

func (s *ExpenseService) publish(ctx context.Context, ev *amqp.Event) {
	publishEvent(ctx, s.publisher, s.logger, ev)
}

// Close closes the store and the publisher when they hold resources.
func (s *ExpenseService) Close() error {
	var errs []error

	if c, ok := s.store.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := s.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close expense service: %v", errs)
	}

	return nil
}

// publishEvent sends ev when a publisher is configured. Failures are
// logged; the write that produced the event has already succeeded.
func publishEvent(ctx context.Context, pub financing.EventPublisher, logger *log.Logger, ev *amqp.Event) {
	if pub == nil {
		logger.DebugContext(ctx, "No event publisher configured, skipping event", log.FieldEvent, string(ev.Type))
		return
	}
	if err := pub.Publish(ctx, *ev); err != nil {
		logger.ErrorContext(ctx, "Failed to publish event",
			log.NewFields().
				WithUser(ev.UserID).
				WithExpense(ev.ExpenseID, "", "").
				WithOperation(log.OpPublish).
				WithError(err).
				ToSlice()...)
	}
}
