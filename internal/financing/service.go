package financing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/ledger"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// EventPublisher receives domain events after a successful write.
type EventPublisher interface {
	Publish(ctx context.Context, ev amqp.Event) error
}

// Service runs payments, recounts and resets against the store.
type Service struct {
	store     storage.Store
	ledger    *ledger.Ledger
	publisher EventPublisher
	logger    *log.Logger
	inflight  singleflight.Group
	now       func() time.Time
}

func NewService(store storage.Store, l *ledger.Ledger, publisher EventPublisher, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Discard()
	}
	if l == nil {
		l = ledger.New(store, logger)
	}
	return &Service{
		store:     store,
		ledger:    l,
		publisher: publisher,
		logger:    logger.WithComponent(log.ComponentFinancing),
		now:       time.Now,
	}
}

// PaymentResult is the state after a payment was recorded.
type PaymentResult struct {
	Expense           core.ExpenseRecord      `json:"expense"`
	Transaction       core.PaymentTransaction `json:"transaction"`
	RemainingBefore   decimal.Decimal         `json:"remaining_before"`
	RemainingAfter    decimal.Decimal         `json:"remaining_after"`
	AutomaticDiscount decimal.Decimal         `json:"automatic_discount"`
}

// ApplyPayment records a payment on a financing. The ledger entry is
// written before the record aggregates, then paid months are recounted.
// Concurrent calls with the same idempotency key share one execution; a
// key already in the ledger fails with ledger.ErrDuplicatePayment.
func (s *Service) ApplyPayment(ctx context.Context, userID, expenseID string, p Payment) (PaymentResult, error) {
	if p.IdempotencyKey == "" {
		return s.applyPayment(ctx, userID, expenseID, p)
	}
	v, err, _ := s.inflight.Do(expenseID+"|"+p.IdempotencyKey, func() (interface{}, error) {
		return s.applyPayment(ctx, userID, expenseID, p)
	})
	if err != nil {
		return PaymentResult{}, err
	}
	return v.(PaymentResult), nil
}

func (s *Service) applyPayment(ctx context.Context, userID, expenseID string, p Payment) (PaymentResult, error) {
	var result PaymentResult
	err := s.within(ctx, "apply payment", func(st storage.Store, run *plan) error {
		rec, err := st.GetExpense(ctx, userID, expenseID)
		if err != nil {
			return err
		}
		outcome, err := Apply(rec, p, s.now())
		if err != nil {
			return err
		}

		var tx core.PaymentTransaction
		if err := run.step("append transaction", func() error {
			tx, err = s.ledger.In(st).Record(ctx, outcome.Transaction)
			return err
		}); err != nil {
			return err
		}
		if err := run.step("update financing totals", func() error {
			return st.UpdateFinancingTotals(ctx, userID, expenseID, outcome.Totals)
		}); err != nil {
			return err
		}
		var months int
		if err := run.step("recount paid months", func() error {
			months, err = recount(ctx, st, userID, expenseID)
			return err
		}); err != nil {
			return err
		}

		rec.FinancingPaidAmount = outcome.Totals.PaidAmount
		rec.FinancingDiscountAmount = outcome.Totals.DiscountAmount
		rec.IsPaid = outcome.Totals.IsPaid
		rec.PaidAt = outcome.Totals.PaidAt
		rec.FinancingMonthsPaid = months
		result = PaymentResult{
			Expense:           rec,
			Transaction:       tx,
			RemainingBefore:   outcome.RemainingBefore,
			RemainingAfter:    outcome.RemainingAfter,
			AutomaticDiscount: outcome.AutomaticDiscount,
		}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Payment not applied",
			log.NewFields().WithUser(userID).WithExpense(expenseID, "", "").WithOperation(log.OpPay).WithError(err).ToSlice()...)
		return PaymentResult{}, err
	}

	log.NewStructuredLogger(s.logger).LogPaymentApplied(ctx, userID, expenseID,
		result.Transaction.PaymentAmount.String(), result.Transaction.DiscountAmount.String(), string(result.Transaction.PaymentType))

	ev := amqp.NewEvent(amqp.PaymentApplied, userID, expenseID)
	ev.Title = result.Expense.Title
	payment := result.Transaction
	ev.Payment = &payment
	s.publish(ctx, ev)

	return result, nil
}

// PayOff settles the remaining balance at the record's discount rate.
func (s *Service) PayOff(ctx context.Context, userID, expenseID, note, idempotencyKey string) (PaymentResult, error) {
	rec, err := s.store.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return PaymentResult{}, err
	}
	if !rec.IsFinancing {
		return PaymentResult{}, ErrNotFinancing
	}
	q := PayoffQuote(rec)
	return s.ApplyPayment(ctx, userID, expenseID, Payment{
		Amount:         q.FinalAmount,
		CustomDiscount: q.Discount,
		Note:           note,
		IdempotencyKey: idempotencyKey,
	})
}

// RecountPaidMonths sets financing_months_paid to the number of persisted
// paid financing instances and returns it.
func (s *Service) RecountPaidMonths(ctx context.Context, userID, expenseID string) (int, error) {
	return s.RecountPaidMonthsIn(ctx, s.store, userID, expenseID)
}

// RecountPaidMonthsIn is RecountPaidMonths against st, so callers holding a
// transaction can recount inside it.
func (s *Service) RecountPaidMonthsIn(ctx context.Context, st storage.Store, userID, expenseID string) (int, error) {
	n, err := recount(ctx, st, userID, expenseID)
	if err != nil {
		return 0, err
	}
	s.logger.DebugContext(ctx, "Recounted paid months",
		log.NewFields().WithUser(userID).WithExpense(expenseID, "", "").WithOperation(log.OpRecount).ToSlice()...)
	return n, nil
}

func recount(ctx context.Context, st storage.Store, userID, expenseID string) (int, error) {
	n, err := st.CountPaidInstances(ctx, userID, expenseID, core.InstanceFinancing)
	if err != nil {
		return 0, fmt.Errorf("count paid instances: %w", err)
	}
	if err := st.SetFinancingMonthsPaid(ctx, userID, expenseID, n); err != nil {
		return 0, fmt.Errorf("set months paid: %w", err)
	}
	return n, nil
}

// ResetAllPayments deletes the ledger of a financing, zeroes its aggregates
// and marks all its instances unpaid, in that order.
func (s *Service) ResetAllPayments(ctx context.Context, userID, expenseID string) error {
	var removed int
	var title string
	err := s.within(ctx, "reset payments", func(st storage.Store, run *plan) error {
		rec, err := st.GetExpense(ctx, userID, expenseID)
		if err != nil {
			return err
		}
		if !rec.IsFinancing {
			return ErrNotFinancing
		}
		title = rec.Title

		if err := run.step("delete transactions", func() error {
			removed, err = st.DeleteTransactions(ctx, userID, expenseID)
			return err
		}); err != nil {
			return err
		}
		if err := run.step("reset financing", func() error {
			return st.ResetFinancing(ctx, userID, expenseID)
		}); err != nil {
			return err
		}
		return run.step("reset instances", func() error {
			_, err := st.ResetInstances(ctx, userID, expenseID)
			return err
		})
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Reset payments failed",
			log.NewFields().WithUser(userID).WithExpense(expenseID, "", "").WithOperation(log.OpReset).WithError(err).ToSlice()...)
		return err
	}

	s.logger.InfoContext(ctx, "Payments reset",
		log.NewFields().WithUser(userID).WithExpense(expenseID, title, string(core.KindFinancing)).WithOperation(log.OpReset).ToSlice()...)

	ev := amqp.NewEvent(amqp.PaymentsReset, userID, expenseID)
	ev.Title = title
	ev.Removed = removed
	s.publish(ctx, ev)
	return nil
}

// Quote previews the payoff discount of a stored financing.
func (s *Service) Quote(ctx context.Context, userID, expenseID string) (Quote, Quote, error) {
	rec, err := s.store.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return Quote{}, Quote{}, err
	}
	if !rec.IsFinancing {
		return Quote{}, Quote{}, ErrNotFinancing
	}
	return QuoteFor(rec), PayoffQuote(rec), nil
}

// History lists the payment ledger of an expense, newest first.
func (s *Service) History(ctx context.Context, userID, expenseID string) ([]core.PaymentTransaction, error) {
	if _, err := s.store.GetExpense(ctx, userID, expenseID); err != nil {
		return nil, err
	}
	return s.ledger.In(s.store).History(ctx, userID, expenseID)
}

// Reconcile compares the record aggregates with the ledger sums.
func (s *Service) Reconcile(ctx context.Context, userID, expenseID string) (ledger.Reconciliation, error) {
	rec, err := s.store.GetExpense(ctx, userID, expenseID)
	if err != nil {
		return ledger.Reconciliation{}, err
	}
	return s.ledger.In(s.store).Reconcile(ctx, rec)
}

func (s *Service) publish(ctx context.Context, ev *amqp.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, *ev); err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish event",
			log.NewFields().WithExpense(ev.ExpenseID, "", "").WithOperation(log.OpPublish).WithError(err).ToSlice()...)
	}
}

// plan tracks the completed steps of a multi-step write.
type plan struct {
	done []string
}

type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string { return e.step + ": " + e.err.Error() }
func (e *stepError) Unwrap() error { return e.err }

func (p *plan) step(name string, fn func() error) error {
	if err := fn(); err != nil {
		return &stepError{step: name, err: err}
	}
	p.done = append(p.done, name)
	return nil
}

// within runs fn atomically when the store supports transactions. Otherwise
// the steps run in order and a failure after the first completed step is
// returned as *PartialFailureError.
func (s *Service) within(ctx context.Context, op string, fn func(st storage.Store, run *plan) error) error {
	if txr, ok := s.store.(storage.Transactor); ok {
		return txr.WithinTx(ctx, func(tx storage.Store) error {
			return fn(tx, &plan{})
		})
	}

	run := &plan{}
	err := fn(s.store, run)
	if err == nil {
		return nil
	}
	var se *stepError
	if len(run.done) > 0 && errors.As(err, &se) {
		return &PartialFailureError{
			Operation: op,
			Completed: run.done,
			Failed:    se.step,
			Err:       se.err,
		}
	}
	return err
}
