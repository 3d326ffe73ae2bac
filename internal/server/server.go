// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/mbd888/fairshare/internal/circuitbreaker"
	"github.com/mbd888/fairshare/internal/config"
	"github.com/mbd888/fairshare/internal/creators"
	"github.com/mbd888/fairshare/internal/health"
	"github.com/mbd888/fairshare/internal/idgen"
	"github.com/mbd888/fairshare/internal/ledger"
	"github.com/mbd888/fairshare/internal/logging"
	"github.com/mbd888/fairshare/internal/metrics"
	"github.com/mbd888/fairshare/internal/ratelimit"
	"github.com/mbd888/fairshare/internal/realtime"
	"github.com/mbd888/fairshare/internal/registry"
	"github.com/mbd888/fairshare/internal/retry"
	"github.com/mbd888/fairshare/internal/risk"
	"github.com/mbd888/fairshare/internal/security"
	"github.com/mbd888/fairshare/internal/seed"
	"github.com/mbd888/fairshare/internal/traces"
	"github.com/mbd888/fairshare/internal/transfers"
	"github.com/mbd888/fairshare/internal/validation"
	"github.com/mbd888/fairshare/migrations"
)

// Version is reported by /health and /api.
const Version = "0.1.0"

const (
	pingTimeout        = 2 * time.Second
	gaugeInterval      = 30 * time.Second
	dbStatsInterval    = 15 * time.Second
	defaultRedisTTL    = 0 // profiles never expire
	startupReadyDelay  = 100 * time.Millisecond
	shutdownDrainDelay = 5 * time.Second

	startupPingAttempts = 5
	startupPingDelay    = 500 * time.Millisecond

	// Consecutive profile store failures before requests fail fast.
	storeBreakerThreshold = 5
	storeBreakerOpen      = 10 * time.Second
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	policy      risk.Policy
	registry    *registry.MemoryRegistry
	ledger      *ledger.Ledger
	profiles    risk.ProfileStore
	transfers   *transfers.Service
	realtimeHub *realtime.Hub
	health      *health.Registry
	rateLimiter *ratelimit.Limiter
	breaker     *circuitbreaker.Breaker
	db          *sql.DB       // nil if using in-memory
	redis       *redis.Client // nil unless REDIS_URL is set
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger
	now         func() time.Time
	rng         *rand.Rand

	cancelRunCtx    context.CancelFunc // cancels background goroutines started in Run
	shutdownTracing func(context.Context) error
	drainDelay      time.Duration

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

// WithClock overrides the pipeline clock (for testing)
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithDrainDelay overrides how long Shutdown waits before closing listeners.
func WithDrainDelay(d time.Duration) Option {
	return func(s *Server) {
		s.drainDelay = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logger:     logging.New(cfg.LogLevel, cfg.LogFormat),
		now:        time.Now,
		health:     health.NewRegistry(pingTimeout),
		drainDelay: shutdownDrainDelay,
	}

	for _, opt := range opts {
		opt(s)
	}
	s.breaker = circuitbreaker.New(storeBreakerThreshold, storeBreakerOpen)
	s.breaker.OnTransition(func(key string, from, to circuitbreaker.State) {
		s.logger.Warn("profile store circuit changed", "store", key, "from", from.String(), "to", to.String())
	})

	ctx := logging.WithLogger(context.Background(), s.logger)

	policy := risk.DefaultPolicy()
	if cfg.RiskPolicyFile != "" {
		p, err := risk.LoadPolicyFile(cfg.RiskPolicyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load risk policy: %w", err)
		}
		policy = p
		s.logger.Info("risk policy loaded", "path", cfg.RiskPolicyFile)
	}
	s.policy = policy

	seedValue := uint64(cfg.RandomSeed)
	if cfg.RandomSeed == 0 {
		seedValue = uint64(time.Now().UnixNano())
	}
	s.rng = rand.New(rand.NewPCG(seedValue, seedValue>>1|1))

	if err := s.initStorage(ctx); err != nil {
		s.closeStores()
		return nil, err
	}

	reg, err := registry.LoadFiles(cfg.ViewersCSV, cfg.CreatorsCSV, cfg.Location(), s.logger)
	if err != nil {
		s.closeStores()
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	s.registry = reg

	if cfg.SeedHistory {
		if _, err := seed.Run(ctx, s.ledger, s.registry, s.rng); err != nil {
			s.closeStores()
			return nil, fmt.Errorf("failed to seed history: %w", err)
		}
	}

	resolver := risk.NewResolver(s.profiles, s.registry,
		risk.WithRand(s.rng),
		risk.WithClock(s.now),
		risk.WithResolverPolicy(policy),
	)
	engine := risk.NewEngine(s.ledger, risk.WithEnginePolicy(policy), risk.WithEngineClock(s.now))

	// Create realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	s.transfers = transfers.NewService(resolver, engine, s.ledger, s.profiles,
		transfers.WithBroadcaster(s.realtimeHub),
	)
	if err := s.transfers.RefreshGauges(ctx); err != nil {
		s.logger.Warn("initial gauge refresh failed", "error", err)
	}

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

// initStorage picks Postgres for the ledger when DATABASE_URL is set, and
// Redis, then Postgres, then memory for trust profiles.
func (s *Server) initStorage(ctx context.Context) error {
	cfg := s.cfg
	var ledgerStore ledger.Store = ledger.NewMemoryStore()
	var profiles risk.ProfileStore = risk.NewMemoryProfileStore()

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		s.db = db

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		if err := s.pingWithRetry(ctx, "postgres", db.PingContext); err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := migrations.Up(ctx, db); err != nil {
			return err
		}

		pg := ledger.NewPostgresStore(db)
		ledgerStore = pg
		profiles = risk.NewGuardedProfileStore(risk.NewPostgresProfileStore(db), s.breaker, "postgres")
		s.health.Register("postgres", pg)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
	}

	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		s.redis = redis.NewClient(opts)
		rs := risk.NewRedisProfileStore(s.redis, defaultRedisTTL)
		if err := s.pingWithRetry(ctx, "redis", rs.Ping); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		profiles = risk.NewGuardedProfileStore(rs, s.breaker, "redis")
		s.health.Register("redis", rs)
		s.logger.Info("trust profiles stored in redis", "addr", opts.Addr)
	}

	s.ledger = ledger.New(ledgerStore, s.cfg.Location(), ledger.WithClock(s.now))
	s.profiles = profiles
	return nil
}

// pingWithRetry gives a backing store a few seconds to come up, as it may
// still be starting next to us under docker compose.
func (s *Server) pingWithRetry(ctx context.Context, name string, ping func(context.Context) error) error {
	return retry.Do(ctx, startupPingAttempts, startupPingDelay, func() error {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		return ping(pctx)
	},
		retry.WithMaxDelay(4*time.Second),
		retry.OnRetry(func(attempt int, err error, wait time.Duration) {
			s.logger.Warn("store not reachable, retrying",
				"store", name, "attempt", attempt, "wait", wait, "error", err)
		}),
	)
}

func (s *Server) closeStores() {
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}
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
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	s.router.Use(security.HeadersMiddleware(s.cfg.IsProduction()))
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = s.cfg.RateLimitRPM
	rl.BurstSize = max(rl.BurstSize, s.cfg.RateLimitRPM/6)
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware())

	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > 64 {
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
			logger.Debug("request completed",
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

	s.router.GET("/", feedPageHandler)
	s.router.GET("/api", s.infoHandler)

	// WebSocket for real-time streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	transfers.NewHandler(s.transfers).RegisterRoutes(v1)
	registry.NewHandler(s.registry).RegisterRoutes(v1)
	creators.NewHandler(s.registry, s.ledger, creators.WithHistory(s.ledger)).RegisterRoutes(v1)
	v1.GET("/stats", s.statsHandler)
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
	healthy, checks := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   Version,
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
		"name":        "FairShare",
		"description": "Trust-adaptive risk engine for creator rewards",
		"version":     Version,
		"timezone":    s.cfg.Timezone,
		"baseLimits": gin.H{
			"suspicious": s.policy.BaseLimits.Suspicious,
			"fraud":      s.policy.BaseLimits.Fraud,
			"hourly":     s.policy.BaseLimits.Hourly,
			"daily":      s.policy.BaseLimits.Daily,
		},
	})
}

func (s *Server) statsHandler(c *gin.Context) {
	sum, err := s.transfers.Summary(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load stats",
		})
		return
	}
	profiles, err := s.profiles.Count(c.Request.Context())
	if err != nil {
		logging.L(c.Request.Context()).Error("stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "Failed to load stats",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ledger":   sum,
		"profiles": profiles,
		"viewers":  len(s.registry.Viewers()),
		"creators": len(s.registry.Creators()),
		"realtime": s.realtimeHub.Stats(),
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(logging.WithLogger(ctx, s.logger))
	s.cancelRunCtx = cancel

	shutdownTracing, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("tracing init failed, continuing without", "error", err)
	} else {
		s.shutdownTracing = shutdownTracing
	}

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

	go func() {
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"timezone", s.cfg.Timezone,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.transfers.StartGaugeCollector(runCtx, gaugeInterval)
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, dbStatsInterval)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(startupReadyDelay)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
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

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(s.drainDelay)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.rateLimiter = nil
		s.logger.Info("rate limiter stopped")
	}

	if s.shutdownTracing != nil {
		if err := s.shutdownTracing(ctx); err != nil {
			s.logger.Error("tracing shutdown error", "error", err)
		}
	}

	s.closeStores()

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}
