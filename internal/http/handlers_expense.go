package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// parseExpenseFilter reads ?kind= and ?paid= from the query string.
func parseExpenseFilter(r *http.Request) (storage.ExpenseFilter, error) {
	var f storage.ExpenseFilter
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("kind")); v != "" {
		switch k := core.Kind(v); k {
		case core.KindOneOff, core.KindInstallment, core.KindRecurring, core.KindFinancing:
			f.Kind = k
		default:
			return f, badRequest("invalid kind %q", v)
		}
	}
	if v := strings.TrimSpace(q.Get("paid")); v != "" {
		paid, err := strconv.ParseBool(v)
		if err != nil {
			return f, badRequest("invalid paid filter %q", v)
		}
		f.IsPaid = storage.Bool(paid)
	}
	return f, nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	filter, err := parseExpenseFilter(r)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	records, err := s.svc.Expenses.List(r.Context(), userID, filter)
	if err != nil {
		s.fail(w, r, log.OpList, err)
		return
	}
	if records == nil {
		records = []core.ExpenseRecord{}
	}
	NewJSONResponse().Body(records).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}

	rec, err := s.svc.Expenses.Create(r.Context(), req.record(userID, ""))
	if err != nil {
		s.fail(w, r, log.OpCreate, err)
		return
	}
	s.invalidateUser(r.Context(), userID)

	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/expenses/"+rec.ID).
		Body(rec).
		Write(w)
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	rec, err := s.svc.Expenses.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(rec).Write(w)
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	var req expenseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}

	rec, err := s.svc.Expenses.Update(r.Context(), req.record(userID, mux.Vars(r)["id"]))
	if err != nil {
		s.fail(w, r, log.OpUpdate, err)
		return
	}
	s.invalidateUser(r.Context(), userID)
	NewJSONResponse().Body(rec).Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	if err := s.svc.Expenses.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		s.fail(w, r, log.OpDelete, err)
		return
	}
	s.invalidateUser(r.Context(), userID)
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

// handleSchedule lists every installment of a financing or installment record.
func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	schedule, err := s.svc.Calendar.Schedule(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	NewJSONResponse().Body(schedule).Write(w)
}
