// Package server wires the HTTP API: transaction intake, alert queries,
// ledger anchoring, statistics, realtime streaming, and health.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chainguardian-io/chainguardian/internal/anchor"
	"github.com/chainguardian-io/chainguardian/internal/cache"
	"github.com/chainguardian-io/chainguardian/internal/config"
	"github.com/chainguardian-io/chainguardian/internal/emitters"
	"github.com/chainguardian-io/chainguardian/internal/health"
	"github.com/chainguardian-io/chainguardian/internal/logging"
	"github.com/chainguardian-io/chainguardian/internal/metrics"
	"github.com/chainguardian-io/chainguardian/internal/oracle"
	"github.com/chainguardian-io/chainguardian/internal/pipeline"
	"github.com/chainguardian-io/chainguardian/internal/realtime"
	"github.com/chainguardian-io/chainguardian/internal/security"
	"github.com/chainguardian-io/chainguardian/internal/store"
	"github.com/chainguardian-io/chainguardian/internal/validation"
)

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     store.Store
	oracle    oracle.Oracle
	service   *pipeline.Service
	registrar *anchor.Registrar // nil when anchoring is not configured
	hub       *realtime.Hub
	kafka     *emitters.KafkaEmitter
	dedup     *cache.AlertDedup
	checks    *health.Registry
	router    *gin.Engine
	httpSrv   *http.Server

	cancelRunCtx context.CancelFunc

	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithStore injects a store (tests).
func WithStore(st store.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithOracle injects an oracle (tests).
func WithOracle(o oracle.Oracle) Option {
	return func(s *Server) { s.oracle = o }
}

// WithRegistrar injects an anchoring registrar (tests).
func WithRegistrar(r *anchor.Registrar) Option {
	return func(s *Server) { s.registrar = r }
}

// New builds the server. Whether the process can anchor alerts on chain
// is decided here, once, from configuration; request handlers only look
// at whether the registrar is present.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	// Storage: Postgres when DATABASE_URL is set, in-memory otherwise.
	if s.store == nil {
		if cfg.DatabaseURL != "" {
			pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
			if err != nil {
				return nil, err
			}
			s.store = pg
			s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
		} else {
			s.store = store.NewMemoryStore()
			s.logger.Info("using in-memory storage (data will not persist)")
		}
	}
	s.checks.Register("store", func(ctx context.Context) error {
		return s.store.Ping(ctx)
	})

	// Risk oracle. A nil oracle means every transaction gets the
	// fallback assessment; intake never depends on model availability.
	if s.oracle == nil {
		switch cfg.OracleMode {
		case "remote":
			if cfg.OracleURL != "" {
				s.oracle = oracle.NewHTTPOracle(cfg.OracleURL)
				s.logger.Info("remote risk oracle configured", "url", cfg.OracleURL)
			} else {
				s.logger.Warn("ORACLE_MODE=remote but no ORACLE_URL set, running in fallback mode")
			}
		case "embedded":
			s.oracle = oracle.NewEngine()
			s.logger.Info("embedded heuristic risk engine enabled")
		case "off":
			s.logger.Info("risk oracle disabled, all transactions receive fallback assessment")
		}
	}

	// Dedup cache (optional fast path).
	if cfg.RedisURL != "" {
		dedup, err := cache.NewAlertDedup(cfg.RedisURL, logging.Component(s.logger, "dedup"))
		if err != nil {
			s.logger.Warn("failed to configure redis dedup cache", "error", err)
		} else {
			s.dedup = dedup
			s.logger.Info("redis alert dedup cache enabled")
			s.checks.Register("redis", dedup.Ping)
		}
	}

	// Kafka fan-out (optional).
	if cfg.KafkaBrokers != "" {
		s.kafka = emitters.NewKafkaEmitter(splitBrokers(cfg.KafkaBrokers), cfg.KafkaTopic, logging.Component(s.logger, "kafka"))
		s.logger.Info("kafka event emitter enabled", "topic", cfg.KafkaTopic)
	}

	// Realtime hub for WebSocket streaming.
	s.hub = realtime.NewHub(logging.Component(s.logger, "realtime"))

	// Pipeline orchestrator.
	serviceOpts := []pipeline.Option{
		pipeline.WithEvents(&eventFanout{hub: s.hub, kafka: s.kafka}),
	}
	if s.dedup != nil {
		serviceOpts = append(serviceOpts, pipeline.WithDedupCache(s.dedup))
	}
	s.service = pipeline.NewService(s.store, s.oracle, serviceOpts...)

	// Ledger anchoring: a construction-time capability, not a per-call flag.
	if s.registrar == nil && cfg.AnchoringConfigured() {
		reg, err := anchor.New(anchor.Config{
			RPCURL:          cfg.RPCURL,
			PrivateKey:      cfg.PrivateKey,
			ChainID:         cfg.ChainID,
			ContractAddress: cfg.ContractAddress,
		})
		if err != nil {
			return nil, fmt.Errorf("server: configure anchoring: %w", err)
		}
		s.registrar = reg
		s.logger.Info("ledger anchoring enabled",
			"reporter", reg.Reporter(),
			"chain_id", cfg.ChainID,
			"contract", cfg.ContractAddress,
		)
	} else if s.registrar == nil {
		s.logger.Info("ledger anchoring not configured, anchor endpoints disabled")
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides the password in a connection string for logging.
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

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// eventFanout delivers pipeline outcomes to every configured sink.
type eventFanout struct {
	hub   *realtime.Hub
	kafka *emitters.KafkaEmitter
}

func (f *eventFanout) TransactionProcessed(rec *pipeline.TransactionRecord) {
	if f.hub != nil {
		f.hub.TransactionProcessed(rec)
	}
	if f.kafka != nil {
		f.kafka.TransactionProcessed(rec)
	}
}

func (f *eventFanout) AlertRaised(rec *pipeline.AlertRecord) {
	if f.hub != nil {
		f.hub.AlertRaised(rec)
	}
	if f.kafka != nil {
		f.kafka.AlertRaised(rec)
	}
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
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

	s.router.Use(security.HeadersMiddleware())
	s.router.Use(security.CORSMiddleware([]string{"*"}))
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))
	s.router.Use(metrics.Middleware())
	s.router.Use(s.requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
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

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.rootHandler)

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	api := s.router.Group("/api")
	{
		api.POST("/tx", s.ingestTransaction)
		api.GET("/txs", s.listTransactions)
		api.GET("/alerts", s.listAlerts)
		api.GET("/stats", s.getStatistics)
		api.GET("/model/status", s.modelStatus)

		alerts := api.Group("/alerts")
		alerts.Use(validation.SigHashParamMiddleware())
		{
			alerts.GET("/:sigHash", s.getAlert)
			alerts.POST("/:sigHash/anchor", s.anchorAlert)
		}

		chain := api.Group("/chain")
		chain.Use(validation.SigHashParamMiddleware())
		{
			chain.GET("/alerts/:sigHash", s.getChainAlert)
		}
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
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

	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)

	if pg, ok := s.store.(*store.PostgresStore); ok {
		go metrics.StartDBStatsCollector(runCtx, pg.DB(), 15*time.Second)
	}

	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

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

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Error("kafka emitter close error", "error", err)
		}
	}

	if s.dedup != nil {
		if err := s.dedup.Close(); err != nil {
			s.logger.Error("dedup cache close error", "error", err)
		}
	}

	if s.registrar != nil {
		if err := s.registrar.Close(); err != nil {
			s.logger.Error("registrar close error", "error", err)
		}
	}

	if err := s.store.Close(); err != nil {
		s.logger.Error("store close error", "error", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
