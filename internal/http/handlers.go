package http

import (
	"context"
	"net/http"
	"time"

	"github.com/renezit0/despesa-agil-93/internal/middleware/ratelimit"
	"github.com/renezit0/despesa-agil-93/internal/middleware/security"
	"github.com/renezit0/despesa-agil-93/internal/middleware/trace"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady checks that the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]any{
		"cache": map[string]int{
			"month_entries":   s.monthCache.Size(),
			"summary_entries": s.summaryCache.Size(),
		},
	}

	switch {
	case s.svc.Expenses == nil || s.svc.Calendar == nil || s.svc.Mutator == nil || s.svc.Financing == nil:
		checks["services"] = "not_configured"
		status, code = "not_ready", http.StatusServiceUnavailable
	case s.svc.Health == nil:
		checks["store"] = "ok"
	default:
		if err := s.svc.Health.Ping(ctx); err != nil {
			checks["store"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["store"] = "ok"
		}
	}

	NewJSONResponse().Status(code).Body(map[string]any{
		"status":    status,
		"timestamp": s.now().UTC().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

type metricsBody struct {
	HTTP          trace.Metrics             `json:"http"`
	RateLimit     ratelimit.Metrics         `json:"rate_limit"`
	Security      security.DetectionMetrics `json:"security"`
	CacheEntries  map[string]int            `json:"cache_entries"`
	UptimeSeconds int64                     `json:"uptime_seconds"`
}

// handleMetrics reports request, rate limit, security and cache counters.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(metricsBody{
		HTTP:      s.traceMiddleware.GetMetrics(),
		RateLimit: s.rateLimiter.GetMetrics(),
		Security:  s.securityDetector.GetMetrics(),
		CacheEntries: map[string]int{
			"month":   s.monthCache.Size(),
			"summary": s.summaryCache.Size(),
		},
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}).Write(w)
}
