package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/adamscao/licenseserver/internal/api/handlers"
	"github.com/adamscao/licenseserver/internal/api/middleware"
	"github.com/adamscao/licenseserver/internal/auth"
	"github.com/adamscao/licenseserver/internal/config"
	"github.com/adamscao/licenseserver/internal/license"
	"github.com/adamscao/licenseserver/internal/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

// Dependencies wires the HTTP server
type Dependencies struct {
	Config        *config.Config
	Service       *license.Service
	Sessions      *auth.SessionIssuer
	Authenticator *auth.Authenticator
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	router *gin.Engine
	config *config.Config
	logger *slog.Logger
}

// NewServer creates a new API server
func NewServer(deps Dependencies) (*Server, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Set Gin mode
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		return nil, fmt.Errorf("invalid server.trusted_proxies: %w", err)
	}

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.SecurityHeaders())

	// Create handlers
	licenseHandler := handlers.NewLicenseHandler(deps.Service, deps.Sessions, logger)
	adminHandler := handlers.NewAdminHandler(deps.Service, deps.Authenticator, logger)

	limiter := newLimiters(cfg.RateLimit, cfg.GetRateLimitWindow(), logger)

	apiGroup := router.Group("/api")
	apiGroup.Use(limiter.general...)
	{
		lic := apiGroup.Group("/license")
		{
			lic.POST("/validate", append(limiter.validate, licenseHandler.Validate)...)
			lic.POST("/heartbeat", middleware.RequireRole(deps.Sessions, auth.RoleLicense), licenseHandler.Heartbeat)
		}

		apiGroup.POST("/admin/login", append(limiter.login, adminHandler.Login)...)

		// Admin endpoints (require admin session)
		admin := apiGroup.Group("/admin")
		admin.Use(middleware.RequireRole(deps.Sessions, auth.RoleAdmin))
		{
			admin.GET("/keys", adminHandler.ListKeys)
			admin.POST("/keys", adminHandler.CreateKey)
			admin.GET("/keys/:id", adminHandler.GetKey)
			admin.PUT("/keys/:id", adminHandler.UpdateKey)
			admin.DELETE("/keys/:id", adminHandler.DeleteKey)
			admin.PUT("/keys/:id/status", adminHandler.UpdateStatus)
			admin.GET("/keys/:id/devices", adminHandler.ListDevices)
			admin.DELETE("/devices/:id", adminHandler.DeleteDevice)
			admin.GET("/logs", adminHandler.ListLogs)
		}

		// Health check
		apiGroup.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":    "ok",
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
		})
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	router.NoRoute(func(c *gin.Context) {
		handlers.RespondError(c, http.StatusNotFound, "not_found", "Route not found")
	})

	return &Server{
		router: router,
		config: cfg,
		logger: logger,
	}, nil
}

type limiters struct {
	general  []gin.HandlerFunc
	validate []gin.HandlerFunc
	login    []gin.HandlerFunc
}

func newLimiters(cfg config.RateLimitConfig, window time.Duration, logger *slog.Logger) limiters {
	if !cfg.Enabled {
		return limiters{}
	}
	return limiters{
		general: []gin.HandlerFunc{
			middleware.NewRateLimiter(cfg.GeneralMax, window, "Too many requests. Try again later.", logger).Handler(),
		},
		validate: []gin.HandlerFunc{
			middleware.NewRateLimiter(cfg.ValidateMax, window, "Too many validation attempts. Try again later.", logger).Handler(),
		},
		login: []gin.HandlerFunc{
			middleware.NewRateLimiter(cfg.LoginMax, window, "Too many login attempts. Try again later.", logger).Handler(),
		},
	}
}

// Run serves until ctx is cancelled, then drains in-flight requests
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.ListenAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("license server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.GetShutdownTimeout())
		defer cancel()
		s.logger.Info("shutting down http server")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Router returns the underlying Gin router
func (s *Server) Router() *gin.Engine {
	return s.router
}
