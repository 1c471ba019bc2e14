// Package worker consumes domain events and mirrors financing payments to
// the ledger sheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/cache"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/sheets"
)

const (
	seenCacheSize = 4096
	seenCacheTTL  = 24 * time.Hour
)

// Consumer delivers events to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler func(context.Context, *amqp.Event) error) error
}

// LedgerWorker writes one sheet row per payment and per reset. Rows already
// written by this process are skipped when a message is redelivered.
type LedgerWorker struct {
	writer sheets.LedgerWriter
	seen   *cache.LRUCache[struct{}]
	logger *log.Logger
}

func NewLedgerWorker(writer sheets.LedgerWriter, logger *log.Logger) *LedgerWorker {
	if logger == nil {
		logger = log.Discard()
	}
	return &LedgerWorker{
		writer: writer,
		seen:   cache.NewLRUCache[struct{}](seenCacheSize, seenCacheTTL),
		logger: logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent mirrors payment events and ignores the rest. A returned error
// makes the consumer requeue the message.
func (w *LedgerWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	if ev == nil {
		return errors.New("nil event")
	}

	var row sheets.Row
	switch ev.Type {
	case amqp.PaymentApplied:
		if ev.Payment == nil {
			return fmt.Errorf("event %s: payment payload missing", ev.ID)
		}
		row = paymentRow(ev)
	case amqp.PaymentsReset:
		row = resetRow(ev)
	default:
		w.logger.DebugContext(ctx, "Ignoring event", log.FieldEvent, string(ev.Type), log.FieldExpenseID, ev.ExpenseID)
		return nil
	}

	if _, dup := w.seen.Get(row.Ref); dup {
		w.logger.InfoContext(ctx, "Skipping already mirrored event", log.FieldEvent, string(ev.Type), "ref", row.Ref)
		return nil
	}

	ref, err := w.writer.Append(ctx, row)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to mirror ledger row",
			log.NewFields().WithUser(ev.UserID).WithExpense(ev.ExpenseID, ev.Title, "").WithOperation(log.OpSync).WithError(err).ToSlice()...)
		return fmt.Errorf("append ledger row: %w", err)
	}
	w.seen.Set(row.Ref, struct{}{})

	w.logger.InfoContext(ctx, "Mirrored ledger row",
		log.NewFields().WithUser(ev.UserID).WithExpense(ev.ExpenseID, ev.Title, "").WithOperation(log.OpSync).ToSlice()...,
	)
	w.logger.DebugContext(ctx, "Ledger row reference", "sheets_ref", ref)
	return nil
}

func paymentRow(ev *amqp.Event) sheets.Row {
	tx := ev.Payment
	at := tx.CreatedAt
	if at.IsZero() {
		at = ev.Timestamp
	}
	return sheets.Row{
		Date:        core.DateOf(at),
		Event:       sheets.EventPayment,
		ExpenseID:   ev.ExpenseID,
		Title:       ev.Title,
		Payment:     tx.PaymentAmount,
		Discount:    tx.DiscountAmount,
		PaymentType: tx.PaymentType,
		Note:        tx.Note,
		Ref:         tx.ID,
	}
}

func resetRow(ev *amqp.Event) sheets.Row {
	return sheets.Row{
		Date:      core.DateOf(ev.Timestamp),
		Event:     sheets.EventReset,
		ExpenseID: ev.ExpenseID,
		Title:     ev.Title,
		Note:      fmt.Sprintf("%d transactions removed", ev.Removed),
		Ref:       ev.ID,
	}
}

// Run consumes events until ctx is cancelled or the consumer fails, and
// expires the redelivery cache in the background.
func (w *LedgerWorker) Run(ctx context.Context, consumer Consumer, cleanupEvery time.Duration) error {
	if cleanupEvery <= 0 {
		cleanupEvery = time.Hour
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := consumer.Consume(ctx, w.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(cleanupEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if n := w.seen.CleanExpired(); n > 0 {
					w.logger.Debug("Expired mirrored refs", log.FieldCount, n)
				}
			}
		}
	})

	return g.Wait()
}
