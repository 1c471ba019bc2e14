package http

import (
	"net/http"

	"github.com/renezit0/despesa-agil-93/internal/log"
)

// handleMonthInstances returns the projected instances of a month with their
// due status. Results are cached per user, month and day.
func (s *Server) handleMonthInstances(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	month, err := ParseMonthVar(r)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	today, err := ParseToday(r, s.now())
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}

	key := monthCacheKey(userID, month, today)
	if view, ok := s.monthCache.Get(key); ok {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Month cache hit", log.FieldMonth, view.Month)
		NewJSONResponse().Header("X-Cache", "hit").Body(view).Write(w)
		return
	}

	view, err := s.svc.Calendar.Month(r.Context(), userID, month, today)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	s.monthCache.Set(key, view)
	NewJSONResponse().Header("X-Cache", "miss").Body(view).Write(w)
}

func (s *Server) handleMonthSummary(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	month, err := ParseMonthVar(r)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	today, err := ParseToday(r, s.now())
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}

	key := monthCacheKey(userID, month, today)
	if summary, ok := s.summaryCache.Get(key); ok {
		NewJSONResponse().Header("X-Cache", "hit").Body(summary).Write(w)
		return
	}

	summary, err := s.svc.Calendar.Summary(r.Context(), userID, month, today)
	if err != nil {
		s.fail(w, r, log.OpProject, err)
		return
	}
	s.summaryCache.Set(key, summary)
	NewJSONResponse().Header("X-Cache", "miss").Body(summary).Write(w)
}

// handleToggleInstance flips the paid state of one instance. On failure the
// body carries the error only; the client keeps its previous state.
func (s *Server) handleToggleInstance(w http.ResponseWriter, r *http.Request) {
	userID, err := s.userID(r)
	if err != nil {
		s.fail(w, r, log.OpToggle, err)
		return
	}
	var req toggleRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, log.OpToggle, err)
		return
	}

	inst, err := s.svc.Mutator.TogglePaid(r.Context(), userID, req.instance())
	if err == nil || StatusFor(err) >= http.StatusInternalServerError {
		s.invalidateUser(r.Context(), userID)
	}
	if err != nil {
		s.fail(w, r, log.OpToggle, err)
		return
	}
	NewJSONResponse().Body(inst).Write(w)
}
