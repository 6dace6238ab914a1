// Package server implements the HTTP surface of the gateway. It wires the
// management API (accounts, projects, credits) and the metered proxy routes
// onto a gin engine and handles server lifecycle.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sorobuild/rpc-gateway/internal/auth"
	"github.com/sorobuild/rpc-gateway/internal/blacklist"
	"github.com/sorobuild/rpc-gateway/internal/config"
	"github.com/sorobuild/rpc-gateway/internal/gateway"
	"github.com/sorobuild/rpc-gateway/internal/keycodec"
	"github.com/sorobuild/rpc-gateway/internal/logging"
	"github.com/sorobuild/rpc-gateway/internal/ratelimit"
	"github.com/sorobuild/rpc-gateway/internal/store"
)

// Version is the application version, following semantic versioning.
const Version = "0.1.0"

// Metrics holds runtime counters for the server.
type Metrics struct {
	StartTime    time.Time
	RequestCount atomic.Int64
	ErrorCount   atomic.Int64
}

// HealthResponse is the response body for the health check endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// Server is the gateway HTTP server.
type Server struct {
	server      *http.Server
	engine      *gin.Engine
	config      *config.Config
	db          *store.DB
	auth        *auth.Service
	codec       *keycodec.Codec
	pipeline    *gateway.Pipeline
	authLimiter *ratelimit.Limiter
	logger      *zap.Logger
	metrics     *Metrics
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, db *store.DB, bl *blacklist.Store) (*Server, error) {
	logger, err := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	codec, err := keycodec.NewCodecFromBase64Key(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize key codec: %w", err)
	}

	authSvc := auth.NewService(auth.Config{
		JWTSecret:  cfg.JWTSecret,
		IDTokenTTL: cfg.IDTokenTTL,
		APIID:      cfg.APIID,
		APIKey:     cfg.APISecret,
	}, db, bl, auth.NewLogMailer(logger))

	limiter := ratelimit.New(map[string]ratelimit.Limit{
		store.PlanFree: {Points: cfg.FreePlanLimit, Window: cfg.RateLimitWindow},
		store.PlanPro:  {Points: cfg.ProPlanLimit, Window: cfg.RateLimitWindow},
	})

	// A separate limiter throttles credential endpoints per client IP
	// to slow down credential stuffing.
	authLimiter := ratelimit.New(map[string]ratelimit.Limit{
		authPlan: {Points: cfg.AuthRateLimit, Window: cfg.RateLimitWindow},
	})

	pipeline := gateway.NewPipeline(
		gateway.NewResolver(db, codec),
		limiter,
		gateway.NewCORSGuard(),
		gateway.NewCreditMeter(db, cfg.CallCost),
		gateway.NewUpstreamProxy(cfg.Upstreams, cfg.UpstreamTimeout, logger),
		logger,
		!cfg.PlaintextKeys,
	)

	if cfg.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()

	s := &Server{
		engine:      engine,
		config:      cfg,
		db:          db,
		auth:        authSvc,
		codec:       codec,
		pipeline:    pipeline,
		authLimiter: authLimiter,
		logger:      logger,
		metrics:     &Metrics{StartTime: time.Now()},
		server: &http.Server{
			Addr:         cfg.ListenAddr,
			Handler:      engine,
			ReadTimeout:  cfg.UpstreamTimeout,
			WriteTimeout: cfg.UpstreamTimeout * 2,
			IdleTimeout:  cfg.UpstreamTimeout * 4,
		},
	}

	engine.Use(gin.Recovery())
	engine.Use(s.requestID())
	engine.Use(s.requestLogger())
	engine.Use(s.renderErrors())

	s.registerRoutes()

	return s, nil
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	if s.config.EnableMetrics {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.engine.GET(path, s.handleMetrics)
	}

	authGroup := s.engine.Group("/auth", s.authThrottle())
	{
		authGroup.POST("/token", s.handleAppToken)
		authGroup.POST("/signup", s.handleSignup)
		authGroup.POST("/signin", s.handleSignin)
		authGroup.POST("/signout", s.handleSignout)
		authGroup.POST("/google", s.handleGoogleSignin)
	}

	manage := s.engine.Group("/", s.requireBearer())
	{
		manage.POST("/projects/:accountId", s.requireAccountAccess(), s.handleCreateProject)
		manage.GET("/projects/:accountId", s.requireAccountAccess(), s.handleListProjects)
		manage.GET("/projects/:accountId/:projectId", s.requireAccountAccess(), s.handleGetProject)
		manage.PUT("/projects/:accountId/:projectId", s.requireAccountAccess(), s.handleUpdateProject)
		manage.DELETE("/projects/:accountId/:projectId", s.requireAccountAccess(), s.handleDeleteProject)

		manage.GET("/rpc-credits/:accountId", s.requireAccountAccess(), s.handleGetCredits)
		manage.PUT("/rpc-credits/:accountId", s.requireAppToken(), s.handleAddCredits)
	}

	// Proxy routes. Horizon uses a single wildcard and parses the
	// optional leading "open" segment in the handler, since gin cannot
	// register both the open and gated shapes side by side.
	s.engine.POST("/rpc/:network", s.handleRPC(true))
	s.engine.POST("/rpc/:network/open", s.handleRPC(false))
	s.engine.GET("/horizon/:network/*resource", s.handleHorizon)
	s.engine.OPTIONS("/rpc/:network", s.handleRPC(true))
	s.engine.OPTIONS("/horizon/:network/*resource", s.handleHorizon)
}

// Handler exposes the route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", zap.String("addr", s.config.ListenAddr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting for in-flight requests
// until the context is canceled.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Version:   Version,
	})
}

func (s *Server) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"uptime_seconds": time.Since(s.metrics.StartTime).Seconds(),
		"request_count":  s.metrics.RequestCount.Load(),
		"error_count":    s.metrics.ErrorCount.Load(),
	})
}
