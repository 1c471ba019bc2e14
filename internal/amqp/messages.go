package amqp

import (
	"encoding/json"
	"time"

	"github.com/renezit0/despesa-agil-93/internal/core"
)

type EventType string

const (
	ExpenseCreated  EventType = "expense.created"
	ExpenseDeleted  EventType = "expense.deleted"
	InstanceToggled EventType = "instance.toggled"
	PaymentApplied  EventType = "payment.applied"
	PaymentsReset   EventType = "payments.reset"
)

// Event is a domain event published after a mutation has been persisted.
// Payloads are copies; consumers never need to read the database.
type Event struct {
	ID        string                   `json:"id"`
	Type      EventType                `json:"type"`
	UserID    string                   `json:"user_id"`
	ExpenseID string                   `json:"expense_id"`
	Title     string                   `json:"title,omitempty"`
	Timestamp time.Time                `json:"timestamp"`
	Payment   *core.PaymentTransaction `json:"payment,omitempty"`
	Instance  *core.ExpenseInstance    `json:"instance,omitempty"`
	Removed   int                      `json:"removed,omitempty"`
}

// NewEvent creates an event stamped with a fresh id and the current time.
func NewEvent(typ EventType, userID, expenseID string) *Event {
	return &Event{
		ID:        core.NewID(),
		Type:      typ,
		UserID:    userID,
		ExpenseID: expenseID,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the event to JSON bytes
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// EventFromJSON decodes an event from JSON bytes
func EventFromJSON(data []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}
