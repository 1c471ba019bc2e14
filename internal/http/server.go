package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/renezit0/despesa-agil-93/internal/cache"
	"github.com/renezit0/despesa-agil-93/internal/core"
	"github.com/renezit0/despesa-agil-93/internal/financing"
	"github.com/renezit0/despesa-agil-93/internal/log"
	"github.com/renezit0/despesa-agil-93/internal/middleware/ratelimit"
	"github.com/renezit0/despesa-agil-93/internal/middleware/security"
	"github.com/renezit0/despesa-agil-93/internal/middleware/trace"
	"github.com/renezit0/despesa-agil-93/internal/services"
	"github.com/renezit0/despesa-agil-93/internal/storage"
)

// Options configures the server. Zero values get defaults.
type Options struct {
	Addr               string
	DefaultUserID      string
	RateLimitPerMinute int
	CacheSize          int
	CacheTTL           time.Duration
	TrustedProxies     []string
}

// Services are the application services behind the API.
type Services struct {
	Expenses  *services.ExpenseService
	Calendar  *services.CalendarService
	Mutator   *services.InstanceMutator
	Financing *financing.Service
	// Health is optional; when set /readyz pings it.
	Health storage.Pinger
}

type Server struct {
	http.Server
	opts   Options
	svc    Services
	router *mux.Router
	logger *log.Logger
	now    func() time.Time

	// month projections, keyed user|month|today
	monthCache   *cache.LRUCache[services.MonthView]
	summaryCache *cache.LRUCache[core.MonthSummary]
	cacheManager *cache.Manager

	rateLimiter      *ratelimit.Limiter
	securityDetector *security.Detector
	traceMiddleware  *trace.Middleware

	started      time.Time
	shutdownOnce sync.Once
}

// NewServer wires routes and middleware and starts the background cache
// and rate limiter cleanup. Shutdown stops them.
func NewServer(opts Options, svc Services, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Discard()
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 100
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 5 * time.Minute
	}
	logger = logger.WithComponent(log.ComponentHTTP)

	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = opts.RateLimitPerMinute

	s := &Server{
		opts:             opts,
		svc:              svc,
		router:           mux.NewRouter(),
		logger:           logger,
		now:              time.Now,
		monthCache:       cache.NewLRUCache[services.MonthView](opts.CacheSize, opts.CacheTTL),
		summaryCache:     cache.NewLRUCache[core.MonthSummary](opts.CacheSize, opts.CacheTTL),
		cacheManager:     cache.NewManager(logger),
		rateLimiter:      ratelimit.NewLimiter(limiterCfg),
		securityDetector: security.NewDetector(),
		started:          time.Now(),
	}
	for _, cidr := range opts.TrustedProxies {
		if err := s.securityDetector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err.Error())
		}
	}
	s.traceMiddleware = trace.NewMiddleware(logger, s.securityDetector.ExtractClientIP)

	s.cacheManager.Register(s.monthCache)
	s.cacheManager.Register(s.summaryCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	s.registerRoutes()
	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(
		s.traceMiddleware.Middleware,
		security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware,
		s.securityDetector.Middleware(s.logger),
	)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("no such route").Write(w)
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry later").Write(w)
	}))

	api.HandleFunc("/expenses", s.handleListExpenses).Methods(http.MethodGet)
	api.HandleFunc("/expenses", s.handleCreateExpense).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}", s.handleGetExpense).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}", s.handleUpdateExpense).Methods(http.MethodPut)
	api.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)
	api.HandleFunc("/expenses/{id}/schedule", s.handleSchedule).Methods(http.MethodGet)

	api.HandleFunc("/expenses/{id}/payments", s.handleListPayments).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}/payments", s.handleApplyPayment).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}/payments/reset", s.handleResetPayments).Methods(http.MethodPost)
	api.HandleFunc("/expenses/{id}/quote", s.handleQuote).Methods(http.MethodGet)
	api.HandleFunc("/expenses/{id}/reconcile", s.handleReconcile).Methods(http.MethodGet)

	api.HandleFunc("/months/{month}/instances", s.handleMonthInstances).Methods(http.MethodGet)
	api.HandleFunc("/months/{month}/summary", s.handleMonthSummary).Methods(http.MethodGet)
	api.HandleFunc("/instances/toggle", s.handleToggleInstance).Methods(http.MethodPost)
}

// Shutdown stops the HTTP server and the background cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

// invalidateUser drops every cached projection of userID. Any mutation can
// change any month, so the whole user is cleared.
func (s *Server) invalidateUser(ctx context.Context, userID string) {
	n := s.monthCache.DeletePrefix(userID+"|") + s.summaryCache.DeletePrefix(userID+"|")
	if n > 0 {
		s.logger.DebugContext(ctx, "Month cache invalidated",
			log.NewFields().WithUser(userID).ToSlice()...)
	}
}

func monthCacheKey(userID string, month, today core.Date) string {
	return userID + "|" + month.Format(core.MonthLayout) + "|" + today.String()
}

// fail logs server side failures and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := StatusFor(err)
	fields := log.NewFields().WithOperation(op).WithError(err)
	if status >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", fields.ToSlice()...)
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected", fields.ToSlice()...)
	}
	ErrorFor(err).Write(w)
}
