// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/coder/quartz"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/clauselens/governor/internal/config"
	"github.com/clauselens/governor/internal/governance"
	"github.com/clauselens/governor/internal/health"
	"github.com/clauselens/governor/internal/idgen"
	"github.com/clauselens/governor/internal/ledger"
	"github.com/clauselens/governor/internal/logging"
	"github.com/clauselens/governor/internal/metrics"
	"github.com/clauselens/governor/internal/ratelimit"
	"github.com/clauselens/governor/internal/realtime"
	"github.com/clauselens/governor/internal/security"
	"github.com/clauselens/governor/internal/traces"
	"github.com/clauselens/governor/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	governance   *governance.Service
	sweeper      *governance.Sweeper
	ledgerBridge *ledger.Bridge
	ledgerStore  ledger.Store
	feedHub      *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	healthReg    *health.Registry
	db           *sql.DB // nil if running without durable ledger
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	shutdownOTel func(context.Context) error
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Durable ledger storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		ledgerStore := ledger.NewPostgresStore(db)
		if err := ledgerStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate ledger store", "error", err)
		}
		s.ledgerStore = ledgerStore
		s.logger.Info("using PostgreSQL ledger", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.ledgerStore = ledger.NewMemoryStore()
		s.logger.Info("using in-memory ledger (monthly usage will not persist)")
	}
	s.ledgerBridge = ledger.NewBridge(s.ledgerStore, s.logger)

	// Audit feed hub for admin dashboards
	s.feedHub = realtime.NewHub(s.logger)

	// Governance engine
	s.governance = governance.NewService(
		governance.LimitsFromConfig(cfg),
		governance.WithLogger(s.logger),
		governance.WithLedger(s.ledgerBridge),
		governance.WithEvents(s.feedHub),
	)
	s.sweeper = governance.NewSweeper(s.governance, cfg.SweepInterval, quartz.NewReal(), s.logger)

	// Health checks
	s.healthReg = health.NewRegistry()
	if s.db != nil {
		s.healthReg.Register("database", health.DBChecker("database", s.db))
	}
	// Two missed sweep intervals means the maintenance loop is stuck.
	s.healthReg.Register("sweeper", health.StalenessChecker("sweeper", 2*cfg.SweepInterval, s.sweeper.LastSweep))

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// Body size cap
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Transport-level rate limiting, before any governance logic
	rlCfg := ratelimit.DefaultConfig()
	rlCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rlCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = idgen.Hex(16)
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/healthz", s.healthHandler)
	s.router.GET("/healthz/live", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	govHandler := governance.NewHandler(s.governance, s.sweeper)

	// V1 API group
	v1 := s.router.Group("/v1")
	govHandler.RegisterRoutes(v1)

	// Admin control plane, gated on the shared admin secret
	admin := v1.Group("/admin")
	admin.Use(security.AdminAuthMiddleware(s.cfg.AdminSecret))
	govHandler.RegisterAdminRoutes(admin)

	// Live audit feed for admin dashboards
	admin.GET("/feed", func(c *gin.Context) {
		s.feedHub.HandleWebSocket(c.Writer, c.Request)
	})
	admin.GET("/feed/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.feedHub.Stats())
	})

	// Monthly ledger, read side
	admin.GET("/ledger/:month", validation.MonthParamMiddleware(), s.ledgerMonthHandler)
	admin.GET("/ledger", s.ledgerHistoryHandler)
}

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks,omitempty"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	healthy, statuses := s.healthReg.CheckAll(c.Request.Context())

	checks := make(map[string]string, len(statuses))
	for _, st := range statuses {
		if st.Healthy {
			checks[st.Name] = "healthy"
		} else {
			checks[st.Name] = st.Detail
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// ledgerMonthHandler handles GET /v1/admin/ledger/:month
func (s *Server) ledgerMonthHandler(c *gin.Context) {
	month := c.Param("month")

	bucket, err := s.ledgerStore.Get(c.Request.Context(), ledger.CollectiveAccount, month)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, bucket)
}

// ledgerHistoryHandler handles GET /v1/admin/ledger
func (s *Server) ledgerHistoryHandler(c *gin.Context) {
	history, err := s.ledgerStore.History(c.Request.Context(), ledger.CollectiveAccount, 12)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"months": history})
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Tracing (no-op when OTEL_EXPORTER_OTLP_ENDPOINT is unset)
	shutdownOTel, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.shutdownOTel = shutdownOTel
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start audit feed hub
	go s.feedHub.Run(runCtx)

	// Start maintenance sweeper
	s.sweeper.Start(runCtx)
	s.logger.Info("maintenance sweeper started", "interval", s.cfg.SweepInterval)

	// DB pool gauges
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Wait for the sweeper loop to exit
	s.sweeper.Wait()
	s.logger.Info("sweeper stopped")

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Drain queued ledger writes before closing the database
	if s.ledgerBridge != nil {
		s.ledgerBridge.Close()
		s.logger.Info("ledger bridge drained")
	}

	if s.shutdownOTel != nil {
		if err := s.shutdownOTel(ctx); err != nil {
			s.logger.Warn("tracer shutdown error", "error", err)
		}
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
