package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/renezit0/despesa-agil-93/internal/amqp"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/sheets"
	"github.com/renezit0/despesa-agil-93/internal/sheets/memory"
)

func paymentEvent() *amqp.Event {
	ev := amqp.NewEvent(amqp.PaymentApplied, "u1", "fin")
	ev.Title = "Car"
	ev.Payment = &core.PaymentTransaction{
		ID:             "tx1",
		ExpenseID:      "fin",
		UserID:         "u1",
		PaymentAmount:  decimal.NewFromInt(450),
		DiscountAmount: decimal.NewFromInt(50),
		PaymentType:    core.EarlyPayment,
		Note:           "payoff",
		CreatedAt:      time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC),
	}
	return ev
}

func TestHandleEventPayment(t *testing.T) {
	store := memory.New()
	w := NewLedgerWorker(store, nil)
	ctx := context.Background()

	if err := w.HandleEvent(ctx, paymentEvent()); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	rows, _ := store.Rows(ctx)
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	r := rows[0]
	if r.Event != sheets.EventPayment || r.Ref != "tx1" || r.Date != core.NewDate(2024, 3, 1) {
		t.Fatalf("unexpected row %+v", r)
	}
	if !r.Payment.Equal(decimal.NewFromInt(450)) || !r.Discount.Equal(decimal.NewFromInt(50)) || r.PaymentType != core.EarlyPayment {
		t.Fatalf("unexpected amounts %+v", r)
	}
}

func TestHandleEventSkipsRedelivery(t *testing.T) {
	store := memory.New()
	w := NewLedgerWorker(store, nil)
	ctx := context.Background()

	ev := paymentEvent()
	for i := 0; i < 3; i++ {
		if err := w.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("HandleEvent: %v", err)
		}
	}
	rows, _ := store.Rows(ctx)
	if len(rows) != 1 {
		t.Fatalf("expected redeliveries to be skipped, got %d rows", len(rows))
	}
}

func TestHandleEventReset(t *testing.T) {
	store := memory.New()
	w := NewLedgerWorker(store, nil)
	ctx := context.Background()

	ev := amqp.NewEvent(amqp.PaymentsReset, "u1", "fin")
	ev.Removed = 3
	if err := w.HandleEvent(ctx, ev); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	rows, _ := store.Rows(ctx)
	if len(rows) != 1 || rows[0].Event != sheets.EventReset || rows[0].Ref != ev.ID || rows[0].Note != "3 transactions removed" {
		t.Fatalf("unexpected rows %+v", rows)
	}
}

func TestHandleEventIgnoresOtherTypes(t *testing.T) {
	store := memory.New()
	w := NewLedgerWorker(store, nil)
	ctx := context.Background()

	for _, typ := range []amqp.EventType{amqp.ExpenseCreated, amqp.ExpenseDeleted, amqp.InstanceToggled} {
		if err := w.HandleEvent(ctx, amqp.NewEvent(typ, "u1", "e1")); err != nil {
			t.Fatalf("HandleEvent(%s): %v", typ, err)
		}
	}
	rows, _ := store.Rows(ctx)
	if len(rows) != 0 {
		t.Fatalf("expected no rows, got %d", len(rows))
	}
}

func TestHandleEventErrors(t *testing.T) {
	w := NewLedgerWorker(memory.New(), nil)
	if err := w.HandleEvent(context.Background(), nil); err == nil {
		t.Error("expected error for nil event")
	}
	if err := w.HandleEvent(context.Background(), amqp.NewEvent(amqp.PaymentApplied, "u1", "fin")); err == nil {
		t.Error("expected error for payment event without payload")
	}
}

type failingWriter struct{ calls int }

func (f *failingWriter) Append(context.Context, sheets.Row) (string, error) {
	f.calls++
	return "", errors.New("quota exceeded")
}

func TestHandleEventRetriesAfterWriteFailure(t *testing.T) {
	fw := &failingWriter{}
	w := NewLedgerWorker(fw, nil)
	ev := paymentEvent()
	for i := 0; i < 2; i++ {
		if err := w.HandleEvent(context.Background(), ev); err == nil {
			t.Fatal("expected write error")
		}
	}
	if fw.calls != 2 {
		t.Fatalf("failed rows must not be marked as mirrored, writer called %d times", fw.calls)
	}
}

type sliceConsumer struct {
	events []*amqp.Event
}

func (c *sliceConsumer) Consume(ctx context.Context, handler func(context.Context, *amqp.Event) error) error {
	for _, ev := range c.events {
		if err := handler(ctx, ev); err != nil {
			return err
		}
	}
	return nil
}

func TestRunDrainsConsumer(t *testing.T) {
	store := memory.New()
	w := NewLedgerWorker(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := &sliceConsumer{events: []*amqp.Event{paymentEvent(), amqp.NewEvent(amqp.PaymentsReset, "u1", "fin")}}
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx, consumer, time.Hour) }()

	deadline := time.After(2 * time.Second)
	for {
		rows, _ := store.Rows(context.Background())
		if len(rows) == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for rows, have %d", len(rows))
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
}
