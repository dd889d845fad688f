package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"liquidity-hunter/config"
	"liquidity-hunter/internal/auth"
	"liquidity-hunter/internal/circuit"
	"liquidity-hunter/internal/engine"
	"liquidity-hunter/internal/events"
	"liquidity-hunter/internal/journal"
	"liquidity-hunter/internal/liquidity"
	"liquidity-hunter/internal/logging"
)

// RateLimiter provides simple in-memory rate limiting per key
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	limit    int           // max requests
	window   time.Duration // time window
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		now:      time.Now,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	windowStart := now.Add(-r.window)

	// Filter out old requests
	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// SignalHistory serves persisted signals, newest first
type SignalHistory interface {
	RecentSignals(ctx context.Context, symbol string, limit int) ([]liquidity.TradingSignal, error)
}

// HistoryFunc adapts a function to SignalHistory
type HistoryFunc func(ctx context.Context, symbol string, limit int) ([]liquidity.TradingSignal, error)

func (f HistoryFunc) RecentSignals(ctx context.Context, symbol string, limit int) ([]liquidity.TradingSignal, error) {
	return f(ctx, symbol, limit)
}

// RunHistory serves journaled analysis runs
type RunHistory interface {
	ListRuns(ctx context.Context, symbol string, limit int) ([]journal.RunRecord, error)
}

// MonitorStatus is the read side of the polling service
type MonitorStatus interface {
	IsRunning() bool
	Runs() int
	BreakerStats() map[string]circuit.Stats
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	registry    *engine.Registry
	eventBus    *events.EventBus
	config      config.ServerConfig
	jwtManager  *auth.JWTManager
	hub         *WSHub
	rateLimiter *RateLimiter
	history     SignalHistory
	runs        RunHistory
	monitor     MonitorStatus
	checks      map[string]HealthCheck
	started     time.Time
}

// Option configures a Server
type Option func(*Server)

// WithAuth protects /api/v1 and /ws with bearer tokens
func WithAuth(m *auth.JWTManager) Option {
	return func(s *Server) { s.jwtManager = m }
}

func WithSignalHistory(h SignalHistory) Option {
	return func(s *Server) { s.history = h }
}

func WithRunHistory(h RunHistory) Option {
	return func(s *Server) { s.runs = h }
}

func WithMonitor(m MonitorStatus) Option {
	return func(s *Server) { s.monitor = m }
}

// WithHealthCheck adds a dependency to /health
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) { s.checks[name] = check }
}

// WithRateLimit limits analyze and import calls per client
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) { s.rateLimiter = NewRateLimiter(limit, window) }
}

// NewServer creates a new API server. Engines of registry must publish on
// eventBus for /ws to stream their events.
func NewServer(cfg config.ServerConfig, registry *engine.Registry, eventBus *events.EventBus, opts ...Option) *Server {
	router := gin.New()

	// Middleware
	router.Use(requestLogger())
	router.Use(gin.Recovery())

	// CORS middleware
	corsConfig := cors.DefaultConfig()
	origins := cfg.Origins()
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
		corsConfig.AllowCredentials = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	if eventBus == nil {
		eventBus = events.NewEventBus()
	}

	server := &Server{
		router:      router,
		registry:    registry,
		eventBus:    eventBus,
		config:      cfg,
		rateLimiter: NewRateLimiter(120, time.Minute),
		checks:      make(map[string]HealthCheck),
		started:     time.Now(),
	}
	for _, opt := range opts {
		opt(server)
	}

	server.hub = NewWSHub()
	server.setupRoutes()
	return server
}

// Router exposes the handler, mainly for tests
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

func (s *Server) setupRoutes() {
	// Health check
	s.router.GET("/health", s.handleHealth)

	// WebSocket endpoint for real-time updates
	s.router.GET("/ws", s.handleWebSocket)

	v1 := s.router.Group("/api/v1")
	if s.jwtManager != nil {
		v1.Use(auth.Middleware(s.jwtManager))
	}

	read := v1.Group("")
	write := v1.Group("")
	if s.jwtManager != nil {
		read.Use(auth.RequireScope(auth.ScopeRead))
		write.Use(auth.RequireScope(auth.ScopeWrite))
	}
	write.Use(s.rateLimitMiddleware())

	read.GET("/symbols", s.handleSymbols)
	read.GET("/state/:symbol", s.handleState)
	read.GET("/pools/:symbol/active", s.handleActivePools)
	read.GET("/signals/:symbol/recent", s.handleRecentSignals)
	read.GET("/statistics/:symbol", s.handleStatistics)
	read.GET("/export/:symbol", s.handleExport)
	read.GET("/history/signals", s.handleSignalHistory)
	read.GET("/history/runs", s.handleRunHistory)
	read.GET("/monitor/status", s.handleMonitorStatus)

	write.POST("/analyze/:symbol", s.handleAnalyze)
	write.POST("/import/:symbol", s.handleImport)
}

// rateLimitMiddleware limits mutating calls per client IP
func (s *Server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.rateLimiter != nil && !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   true,
				"message": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}

// requestLogger replaces gin.Logger with the structured logger
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log := logging.APIContext(c.Request.Method, c.FullPath(), c.Writer.Status()).
			WithDuration(time.Since(start))
		if len(c.Errors) > 0 {
			log.Warn("Request failed", "errors", c.Errors.String())
			return
		}
		log.Debug("Request served")
	}
}

// Start starts the HTTP server and the WebSocket hub. It blocks until the
// server stops.
func (s *Server) Start() error {
	addr := s.config.Addr()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.hub.Start(s.eventBus)
	logging.Info("Starting HTTP server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down HTTP server")
	s.hub.Stop()

	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

// handleHealth returns server health status
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	components := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			status = "degraded"
			continue
		}
		components[name] = "ok"
	}

	body := gin.H{
		"status":     status,
		"components": components,
		"symbols":    len(s.registry.Symbols()),
		"ws_clients": s.hub.GetClientCount(),
		"uptime":     time.Since(s.started).Round(time.Second).String(),
	}
	if status != "healthy" {
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	c.JSON(http.StatusOK, body)
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
