package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/log"
)

// quoteBody pairs the by-months discount quote with the payoff quote.
type quoteBody struct {
	ExpenseID string          `json:"expense_id"`
	ByMonths  financing.Quote `json:"by_months"`
	Payoff    financing.Quote `json:"payoff"`
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	history, err := s.svc.Financing.History(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if history == nil {
		history = []core.PaymentTransaction{}
	}
	NewJSONResponse().Body(history).Write(w)
}

// handleApplyPayment records a partial payment, or settles the balance when
// payoff is set. A repeated Idempotency-Key answers 409.
func (s *Server) handleApplyPayment(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	key, err := idempotencyKey(r)
	if err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}

	expenseID := mux.Vars(r)["id"]
	var result financing.PaymentResult
	if req.Payoff {
		result, err = s.svc.Financing.PayOff(r.Context(), userID, expenseID, sanitizeInput(req.Note), key)
	} else {
		result, err = s.svc.Financing.ApplyPayment(r.Context(), userID, expenseID, req.payment(key))
	}
	// a partial failure may already have changed stored state
	if err == nil || StatusFor(err) >= http.StatusInternalServerError {
		s.invalidateUser(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, r, log.OpPay, err)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(result).Write(w)
}

func (s *Server) handleResetPayments(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpReset, err)
		return
	}
	err = s.svc.Financing.ResetAllPayments(r.Context(), userID, mux.Vars(r)["id"])
	if err == nil || StatusFor(err) >= http.StatusInternalServerError {
		s.invalidateUser(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, r, log.OpReset, err)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	expenseID := mux.Vars(r)["id"]
	byMonths, payoff, err := s.svc.Financing.Quote(r.Context(), userID, expenseID)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(quoteBody{ExpenseID: expenseID, ByMonths: byMonths, Payoff: payoff}).Write(w)
}

// handleReconcile compares the ledger sums with the record aggregates.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	rec, err := s.svc.Financing.Reconcile(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(rec).Write(w)
}
