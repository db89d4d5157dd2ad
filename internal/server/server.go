// Package server wires the HTTP API together: stores, middleware, routes,
// and lifecycle.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"

	"github.com/mbd888/agentshield/internal/alerts"
	"github.com/mbd888/agentshield/internal/auth"
	"github.com/mbd888/agentshield/internal/config"
	"github.com/mbd888/agentshield/internal/idgen"
	"github.com/mbd888/agentshield/internal/logging"
	"github.com/mbd888/agentshield/internal/metrics"
	"github.com/mbd888/agentshield/internal/ratelimit"
	"github.com/mbd888/agentshield/internal/realtime"
	"github.com/mbd888/agentshield/internal/security"
	"github.com/mbd888/agentshield/internal/shield"
	"github.com/mbd888/agentshield/internal/validation"
	"github.com/mbd888/agentshield/internal/webhooks"
)

// Server is the assembled HTTP API.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	router *gin.Engine
	http   *http.Server

	db         *sql.DB
	limiter    *ratelimit.Limiter
	dispatcher *webhooks.Dispatcher
	hub        *realtime.Hub

	statsCancel context.CancelFunc
}

// New builds a server from config. With a DatabaseURL the Postgres stores are
// used and migrated; otherwise everything runs in memory.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{cfg: cfg, logger: logger}

	var (
		shieldStore  shield.Store
		keyStore     auth.KeyStore
		alertStore   alerts.Store
		webhookStore webhooks.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}

		ss := shield.NewPostgresStore(db)
		ks := auth.NewPostgresKeyStore(db)
		as := alerts.NewPostgresStore(db)
		ws := webhooks.NewPostgresStore(db)
		for _, m := range []interface {
			Migrate(context.Context) error
		}{ss, ks, as, ws} {
			if err := m.Migrate(ctx); err != nil {
				db.Close()
				return nil, err
			}
		}

		s.db = db
		shieldStore, keyStore, alertStore, webhookStore = ss, ks, as, ws

		statsCtx, statsCancel := context.WithCancel(context.Background())
		s.statsCancel = statsCancel
		go metrics.StartDBStatsCollector(statsCtx, db, 15*time.Second)

		logger.Info("using postgres stores")
	} else {
		shieldStore = shield.NewMemoryStore()
		keyStore = auth.NewMemoryKeyStore()
		alertStore = alerts.NewMemoryStore()
		webhookStore = webhooks.NewMemoryStore()
		logger.Warn("no DATABASE_URL set, using in-memory stores")
	}

	manager := auth.NewManager(keyStore, logger)

	s.dispatcher = webhooks.NewDispatcher(webhookStore, 4, logger)
	s.hub = realtime.NewHub(logger)
	go s.hub.Run()

	sink := shield.MultiSink{
		webhooks.NewEmitter(s.dispatcher),
		s.hub,
		alerts.NewRecorder(alertStore, logger),
	}
	svc := shield.NewService(shieldStore, sink, logger)

	s.limiter = ratelimit.New(ratelimit.Config{RequestsPerMinute: cfg.RateLimitRPM})

	router := gin.New()
	router.Use(
		gin.Recovery(),
		requestIDMiddleware(logger),
		security.HeadersMiddleware(),
		security.CORSMiddleware(cfg.CORSOrigins),
		validation.RequestSizeMiddleware(validation.MaxRequestSize),
		s.limiter.Middleware(),
		metrics.Middleware(),
	)

	router.GET("/health", s.health)
	router.GET("/health/live", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/health/ready", s.ready)
	router.GET("/metrics", metrics.Handler())
	router.GET("/ws", s.hub.ServeWS)

	authHandler := auth.NewHandler(manager, logger)
	shieldHandler := shield.NewHandler(svc, logger)
	alertHandler := alerts.NewHandler(alertStore, logger)
	webhookHandler := webhooks.NewHandler(webhookStore, logger)

	v1 := router.Group("/v1")
	authHandler.RegisterPublicRoutes(v1)

	authed := v1.Group("", manager.Middleware(), validation.AddressParamMiddleware())
	authHandler.RegisterRoutes(authed)
	shieldHandler.RegisterRoutes(authed)
	alertHandler.RegisterRoutes(authed)
	webhookHandler.RegisterRoutes(authed)

	s.router = router
	s.http = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Router exposes the gin engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves HTTP until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("server listening", "port", s.cfg.Port, "env", s.cfg.Env)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains the server and releases its resources.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.hub.Stop()
	s.dispatcher.Stop()
	s.limiter.Stop()
	if s.statsCancel != nil {
		s.statsCancel()
	}
	if s.db != nil {
		s.db.Close()
	}
	return err
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "agentshield",
		"version": "0.1.0",
	})
}

func (s *Server) ready(c *gin.Context) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// requestIDMiddleware assigns each request an ID, echoes it in the response,
// and attaches a request-scoped logger to the context.
func requestIDMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = idgen.WithPrefix("req_")
		}
		c.Header("X-Request-ID", reqID)

		ctx := logging.WithRequestID(c.Request.Context(), reqID)
		ctx = logging.WithLogger(ctx, logger)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		logger.Info("request",
			"request_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
