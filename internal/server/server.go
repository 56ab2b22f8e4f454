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

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/meterline/meterline/internal/audit"
	"github.com/meterline/meterline/internal/auth"
	"github.com/meterline/meterline/internal/config"
	"github.com/meterline/meterline/internal/flags"
	"github.com/meterline/meterline/internal/health"
	"github.com/meterline/meterline/internal/idgen"
	"github.com/meterline/meterline/internal/logging"
	"github.com/meterline/meterline/internal/metering"
	"github.com/meterline/meterline/internal/metrics"
	"github.com/meterline/meterline/internal/pricing"
	"github.com/meterline/meterline/internal/ratelimit"
	"github.com/meterline/meterline/internal/realtime"
	"github.com/meterline/meterline/internal/reconciliation"
	"github.com/meterline/meterline/internal/security"
	"github.com/meterline/meterline/internal/tenant"
	"github.com/meterline/meterline/internal/topup"
	"github.com/meterline/meterline/internal/traces"
	"github.com/meterline/meterline/internal/validation"
	"github.com/meterline/meterline/internal/wallet"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	tenants      tenant.Store
	flagStore    flags.Store
	gate         *flags.Gate
	pricingStore pricing.Store
	wallets      *wallet.Service
	authMgr      *auth.Manager
	recorder     *audit.Recorder
	metering     *metering.Service
	topups       *topup.Service
	realtimeHub  *realtime.Hub
	reconTimer   *reconciliation.Timer
	rateLimiter  *ratelimit.Limiter
	healthChecks *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	stopTraces   func(context.Context) error
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
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, "json"),
		healthChecks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		rawFlags   flags.Store
		auditStore audit.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		tenantStore := tenant.NewPostgresStore(db)
		if err := tenantStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate tenant store", "error", err)
		}
		s.tenants = tenantStore

		walletStore := wallet.NewPostgresStore(db)
		if err := walletStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate wallet store", "error", err)
		}
		s.wallets = wallet.NewService(walletStore)

		flagStore := flags.NewPostgresStore(db)
		if err := flagStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate flag store", "error", err)
		}
		rawFlags = flagStore

		pricingStore := pricing.NewPostgresStore(db)
		if err := pricingStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate pricing store", "error", err)
		}
		s.pricingStore = pricingStore

		pgAudit := audit.NewPostgresStore(db)
		if err := pgAudit.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate audit store", "error", err)
		}
		auditStore = pgAudit

		authStore := auth.NewPostgresStore(db)
		if err := authStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate auth store", "error", err)
		}
		s.authMgr = auth.NewManager(authStore)
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.tenants = tenant.NewMemoryStore()
		s.wallets = wallet.NewService(wallet.NewMemoryStore())
		rawFlags = flags.NewMemoryStore()
		s.pricingStore = pricing.NewMemoryStore()
		auditStore = audit.NewMemoryStore()
		s.authMgr = auth.NewManager(auth.NewMemoryStore())
	}

	// Flag reads sit on the hot path of every charge, so cache them
	if cfg.FlagCacheTTL > 0 {
		s.flagStore = flags.NewCachedStore(rawFlags, cfg.FlagCacheTTL)
	} else {
		s.flagStore = rawFlags
	}
	s.gate = flags.NewGate(s.flagStore)

	// Seed pricing rules on first boot
	if _, err := pricing.EnsureDefault(ctx, s.pricingStore, cfg.CostPerThousandTokens); err != nil {
		return nil, fmt.Errorf("failed to seed pricing rules: %w", err)
	}
	s.logger.Info("pricing rules ready", "base_rate", cfg.CostPerThousandTokens)

	s.recorder = audit.NewRecorder(auditStore)

	// Metering pipeline (gate -> pricing -> wallet -> audit)
	s.metering = metering.NewService(s.gate, s.pricingStore, s.wallets, s.tenants, s.recorder)
	s.logger.Info("metering enabled")

	// Stripe top-ups (disabled when no API key is configured)
	s.topups = topup.NewService(s.gate, s.wallets, s.recorder,
		cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.CentsPerCredit)
	if cfg.StripeSecretKey != "" {
		s.logger.Info("stripe top-ups enabled", "cents_per_credit", cfg.CentsPerCredit)
	} else {
		s.logger.Info("stripe top-ups disabled (no STRIPE_SECRET_KEY)")
	}

	// Realtime hub for WebSocket ledger streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.metering.SetBroadcaster(s.realtimeHub)
	s.logger.Info("realtime streaming enabled")

	// Periodic ledger reconciliation
	recon := reconciliation.NewService(s.wallets, s.logger)
	s.reconTimer = reconciliation.NewTimer(recon, s.logger)

	// Distributed tracing (no-op when endpoint unset)
	stopTraces, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.stopTraces = stopTraces
	}

	s.registerHealthChecks()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

func (s *Server) registerHealthChecks() {
	if s.db != nil {
		db := s.db
		s.healthChecks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	}

	s.healthChecks.Register("pricing", func(ctx context.Context) health.Status {
		if _, err := s.pricingStore.GetRules(ctx); err != nil {
			return health.Status{Name: "pricing", Healthy: false, Detail: err.Error()}
		}
		return health.Status{Name: "pricing", Healthy: true}
	})
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

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

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

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rlCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPS > 0 {
		rlCfg.RequestsPerMinute = s.cfg.RateLimitRPS * 60
		rlCfg.BurstSize = s.cfg.RateLimitRPS
	}
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

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
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

		// Log level based on status code
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// Live ledger feed page (ops view)
	s.router.GET("/feed", feedPageHandler)

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/v1")

	// PUBLIC ROUTES (no auth required)
	v1.GET("/platform", s.platformHandler)

	pricingHandler := pricing.NewHandler(s.pricingStore)
	pricingHandler.RegisterRoutes(v1)

	// WebSocket for real-time ledger streaming
	v1.GET("/feed", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// Stripe webhook (auth is the signature, not an API key)
	topupHandler := topup.NewHandler(s.topups)
	topupHandler.RegisterWebhook(v1)

	// PROTECTED ROUTES (require API key)
	protected := v1.Group("")
	protected.Use(auth.Middleware(s.authMgr), auth.RequireAuth(s.authMgr))
	{
		meteringHandler := metering.NewHandler(s.metering)
		meteringHandler.RegisterRoutes(protected)
	}

	// TENANT-SCOPED ROUTES (key must belong to the :id tenant)
	tenantHandler := tenant.NewHandler(s.tenants, s.authMgr, s.wallets, s.gate, s.recorder, s.cfg.SignupBonus)
	walletHandler := wallet.NewHandler(s.wallets, s.recorder)

	// Self-serve signup. The signups feature flag closes this off, at which
	// point provisioning is admin-only.
	v1.POST("/tenants", tenantHandler.CreateTenant)

	scoped := v1.Group("")
	scoped.Use(auth.Middleware(s.authMgr), auth.RequireTenant("id"))
	{
		tenantHandler.RegisterProtectedRoutes(scoped)
		walletHandler.RegisterRoutes(scoped)
		topupHandler.RegisterRoutes(scoped)
	}

	// ADMIN ROUTES (X-Admin-Secret, or any authenticated key in demo mode)
	admin := v1.Group("/admin")
	admin.Use(auth.Middleware(s.authMgr), auth.RequireAdmin())
	{
		tenantHandler.RegisterAdminRoutes(admin)
		walletHandler.RegisterAdminRoutes(admin)
		pricingHandler.RegisterAdminRoutes(admin)

		flagsHandler := flags.NewHandler(s.flagStore)
		flagsHandler.RegisterAdminRoutes(admin)

		auditHandler := audit.NewHandler(s.recorder)
		auditHandler.RegisterAdminRoutes(admin)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.healthChecks.CheckAll(ctx)

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

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Meterline",
		"description": "Credit metering and billing for AI employees",
		"version":     "0.1.0",
		"currency":    "credits",
	})
}

// platformHandler returns platform info for new integrators
func (s *Server) platformHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"platform": gin.H{
			"name":    "Meterline",
			"version": "0.1.0",
		},
		"instructions": gin.H{
			"provision": "POST /v1/admin/tenants creates a tenant, wallet, and first API key",
			"charge":    "POST /v1/actions with 'Authorization: Bearer mk_...' meters an action",
			"topup":     "POST /v1/tenants/{id}/topups creates a Stripe PaymentIntent",
		},
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Start reconciliation timer
	go s.reconTimer.Start(runCtx)

	// Start DB stats collector
	if s.db != nil {
		metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
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

	// Cancel the context for all background goroutines (hub, timers)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop reconciliation timer
	if s.reconTimer != nil {
		s.reconTimer.Stop()
		s.logger.Info("reconciliation timer stopped")
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush traces
	if s.stopTraces != nil {
		if err := s.stopTraces(ctx); err != nil {
			s.logger.Error("trace shutdown error", "error", err)
		}
	}

	// Close database connection pool
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

// -----------------------------------------------------------------------------
// Helpers
