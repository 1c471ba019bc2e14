package backend

import (
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/ledger"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/projection"
	"github.com/renezit0/despesa-agil-93/internal/services"
)

// Services is the set of domain services bound to one backend.
type Services struct {
	Expenses  *services.ExpenseService
	Calendar  *services.CalendarService
	Mutator   *services.InstanceMutator
	Financing *financing.Service
}

// Services wires the domain services over the backend store and publisher.
func (b *Backend) Services(logger *log.Logger) Services {
	if logger == nil {
		logger = log.Discard()
	}
	payments := financing.NewService(b.Store, ledger.New(b.Store, logger), b.Publisher, logger)
	return Services{
		Expenses:  services.NewExpenseService(b.Store, b.Publisher, logger),
		Calendar:  services.NewCalendarService(b.Store, projection.New(logger), logger),
		Mutator:   services.NewInstanceMutator(b.Store, payments, b.Publisher, logger),
		Financing: payments,
	}
}
