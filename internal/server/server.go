// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/blob"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/booking"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/chain"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/config"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/dispute"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/engine"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/evidence"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/logging"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/metrics"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/ratelimit"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/realtime"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/reconciler"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/security"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/traces"
	"github.com/nisargpatel7042lva/SkillSwap-DAO-sub000/internal/validation"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg         *config.Config
	client      chain.Client
	keyring     *chain.Keyring
	engine      *engine.Engine
	notifier    *booking.Notifier
	hub         *realtime.Hub
	worker      *reconciler.Worker
	rateLimiter *ratelimit.Limiter
	blobs       blob.Store
	db          *sql.DB // nil if using in-memory
	router      *gin.Engine
	httpSrv     *http.Server
	logger      *slog.Logger

	cancelRunCtx  context.CancelFunc
	tracerCleanup func(context.Context) error

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

// WithClient sets a custom ledger client (for testing)
func WithClient(c chain.Client) Option {
	return func(s *Server) {
		s.client = c
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
	}
	s.healthy.Store(true)

	for _, opt := range opts {
		opt(s)
	}

	ctx := context.Background()

	if s.client == nil {
		client, err := chain.Dial(cfg.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial ledger rpc: %w", err)
		}
		s.client = client
	}

	signer, err := chain.NewLocalSigner(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	s.keyring = chain.NewKeyring(signer)

	escrowAddr := common.HexToAddress(cfg.EscrowContract)
	checker := chain.NewChecker(s.client, escrowAddr)
	submitter := chain.NewSubmitter(s.client, escrowAddr, cfg.ChainID)
	resolver := chain.NewResolver(s.client, escrowAddr)
	reader := chain.NewStateReader(s.client, escrowAddr)

	// Storage: Postgres if DATABASE_URL set, otherwise in-memory
	var (
		bookingStore  booking.Store
		evidenceStore evidence.Store
		disputeStore  dispute.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		s.db = db
		bookingStore = booking.NewPostgresStore(db)
		evidenceStore = evidence.NewPostgresStore(db)
		disputeStore = dispute.NewPostgresStore(db)
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))
	} else {
		bookingStore = booking.NewMemoryStore()
		evidenceStore = evidence.NewMemoryStore()
		disputeStore = dispute.NewMemoryStore()
		s.logger.Warn("using in-memory storage (set DATABASE_URL for persistence)")
	}

	if cfg.BlobServiceURL != "" {
		s.blobs = blob.NewHTTPStore(cfg.BlobServiceURL)
	} else {
		s.blobs = blob.NewMemoryStore()
		s.logger.Warn("using in-memory blob storage (set BLOB_SERVICE_URL for persistence)")
	}

	s.notifier = booking.NewNotifier()
	syncer := booking.NewSynchronizer(bookingStore, reader, s.notifier)

	s.engine = engine.New(
		checker, submitter, resolver, reader,
		bookingStore, syncer, s.notifier, evidenceStore, disputeStore,
		s.logger,
		engine.WithConfirmTimeout(cfg.ConfirmTimeout),
	)

	s.worker = reconciler.New(bookingStore, syncer, resolver, reader, cfg.ReconcileInterval, s.logger)
	s.hub = realtime.NewHub(s.notifier, s.logger)

	tracerCleanup, err := traces.Init(ctx, cfg.OTLPEndpoint, s.logger)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}
	s.tracerCleanup = tracerCleanup

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

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

	// Request size limit (1MB, except artifact uploads which get the blob cap)
	jsonLimit := validation.RequestSizeMiddleware(validation.MaxRequestSize)
	s.router.Use(func(c *gin.Context) {
		if c.Request.Method == http.MethodPost && c.Request.URL.Path == "/v1/blobs" {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, blob.MaxBlobSize)
			c.Next()
			return
		}
		jsonLimit(c)
	})

	// Rate limiting
	s.rateLimiter = ratelimit.New(ratelimit.DefaultConfig())
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Correlation ID
	s.router.Use(s.correlationIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) correlationIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Honor an existing ID (from load balancer, etc.)
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = generateCorrelationID()
		}

		ctx := logging.WithCorrelationID(c.Request.Context(), id)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func generateCorrelationID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "unknown"
	}
	return hex.EncodeToString(b)
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
	s.router.GET("/healthz", s.livenessHandler)
	s.router.GET("/readyz", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/ws", func(c *gin.Context) {
		s.hub.HandleWebSocket(c.Writer, c.Request)
	})

	v1 := s.router.Group("/v1")
	engine.NewHandler(s.engine, s.keyring).RegisterRoutes(v1)
	v1.POST("/blobs", s.uploadBlob)
}

// uploadBlob handles POST /v1/blobs. Evidence artifacts are uploaded here
// first; the returned URL goes into the evidence submission.
func (s *Server) uploadBlob(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{
				"error":   "too_large",
				"message": fmt.Sprintf("Artifact exceeds %d bytes", blob.MaxBlobSize),
			})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "read_failed",
			"message": "Could not read request body",
		})
		return
	}

	contentType := c.GetHeader("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	url, err := s.blobs.Put(c.Request.Context(), data, contentType)
	if err != nil {
		if errors.Is(err, blob.ErrEmpty) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "empty_payload",
				"message": "Artifact body must not be empty",
			})
			return
		}
		logging.L(c.Request.Context()).Error("blob upload failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "blob_store_unavailable",
			"message": "Artifact storage is unavailable",
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"url": url})
}

type healthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if _, err := s.client.BalanceAt(ctx, common.Address{}, nil); err != nil {
		checks["rpc"] = "unhealthy"
	} else {
		checks["rpc"] = "healthy"
	}

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = "unhealthy"
		} else {
			checks["database"] = "healthy"
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	for _, v := range checks {
		if v != "healthy" {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, healthResponse{
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

// Router exposes the gin engine (for tests)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the server and blocks until shutdown
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
		s.logger.Info("starting server",
			"port", s.cfg.Port,
			"chain_id", s.cfg.ChainID,
			"escrow_contract", s.cfg.EscrowContract,
		)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.hub.Run(runCtx)
	go s.worker.Start(runCtx)

	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
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

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for background goroutines (hub, worker)
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

	s.worker.Stop()
	s.logger.Info("reconciliation worker stopped")

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Wait for in-flight confirmation trackers
	s.engine.Close()

	if s.tracerCleanup != nil {
		if err := s.tracerCleanup(ctx); err != nil {
			s.logger.Error("tracer shutdown error", "error", err)
		}
	}

	s.client.Close()

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
