// Package api wires together all HTTP routes for Formgate.
//
// Route grouping philosophy:
//   - The form routes (/form/) are intentionally unauthenticated. A prospect
//     arrives with nothing but the link token, which is the credential; these
//     routes sit behind the sliding-window rate limiter instead.
//   - The internal routes (/api/v1/) always require the shared service key and
//     are only ever called by collaborating services, never by a browser.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/formgate/formgate/internal/api/form"
	"github.com/formgate/formgate/internal/api/links"
	"github.com/formgate/formgate/internal/audit"
	"github.com/formgate/formgate/internal/auth"
	"github.com/formgate/formgate/internal/config"
	"github.com/formgate/formgate/internal/db/repositories"
	"github.com/formgate/formgate/internal/jobs"
	"github.com/formgate/formgate/internal/middleware"
	"github.com/formgate/formgate/internal/ratelimit"
)

// BackgroundServices holds references to background jobs and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	sweeper *jobs.TokenSweeper
	shipper audit.Shipper
}

// Shutdown stops all background goroutines and flushes audit destinations. It
// should be called after the HTTP server has been shut down so that in-flight
// requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.sweeper != nil {
		bg.sweeper.Stop()
	}
	if bg.shipper != nil {
		if err := bg.shipper.Close(); err != nil {
			slog.Error("failed to close audit shipper", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router. rdb may carry a client
// whose backend is down; the limiter fails open, so the router still serves.
func NewRouter(cfg *config.Config, database *sql.DB, rdb *redis.Client) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()

	// Initialize repositories
	tokenRepo := repositories.NewTokenRepository(database)
	accessLogRepo := repositories.NewAccessLogRepository(database)

	// Initialize the access-control core
	authCfg := auth.Config{
		SigningSecret: cfg.Auth.SigningSecret,
		TokenTTL:      cfg.Auth.TokenTTL,
		Issuer:        cfg.Auth.Issuer,
		StoreTimeout:  cfg.Auth.StoreTimeout,
	}
	issuer := auth.NewIssuer(authCfg, tokenRepo, cfg.Auth.SingleActiveLink)
	verifier := auth.NewVerifier(authCfg, tokenRepo)
	revoker := auth.NewRevocationManager(tokenRepo)

	// Initialize the access trail
	shipper, err := audit.NewShipper(cfg.Audit.Shippers)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize audit shippers: %w", err)
	}
	recorder := audit.NewRecorder(accessLogRepo, shipper, cfg.Audit.Enabled)

	// Initialize and start the retention sweeper
	sweeper := jobs.NewTokenSweeper(tokenRepo, cfg.Retention.SweepInterval)
	go sweeper.Start(context.Background())

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.DefaultSecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/healthz", healthCheckHandler(database))

	// API version
	router.GET("/version", versionHandler())

	// Prospect-facing form endpoints, rate limited per client identifier
	formHandlers := form.NewHandlers(verifier, recorder, cfg.RateLimit.TrustedIPHeader)

	formGroup := router.Group("/form")
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(rdb, cfg.RateLimit.Requests, cfg.RateLimit.Window)
		formGroup.Use(middleware.RateLimitMiddleware(limiter, cfg.RateLimit.TrustedIPHeader))
	}
	{
		formGroup.GET("/access", formHandlers.AccessHandler())
		formGroup.POST("/draft", formHandlers.DraftHandler())
		formGroup.POST("/submit", formHandlers.SubmitHandler())
	}

	// Internal endpoints for collaborating services, service-key protected
	linkHandlers := links.NewHandlers(
		issuer, revoker, tokenRepo, accessLogRepo, sweeper,
		cfg.Server.GetPublicURL(), cfg.Auth.TokenTTL,
	)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.ServiceKeyMiddleware(cfg.Auth.ServiceKey))
	{
		apiV1.POST("/links", linkHandlers.CreateLinkHandler())
		apiV1.DELETE("/links/:token", linkHandlers.RevokeLinkHandler())

		apiV1.GET("/subjects/:id/links", linkHandlers.ListLinksHandler())
		apiV1.DELETE("/subjects/:id/links", linkHandlers.RevokeSubjectLinksHandler())
		apiV1.GET("/subjects/:id/access-log", linkHandlers.AccessLogHandler())

		apiV1.POST("/maintenance/sweep", linkHandlers.SweepHandler())
	}

	bg := &BackgroundServices{
		sweeper: sweeper,
		shipper: shipper,
	}

	return router, bg, nil
}

// healthCheckHandler returns the health status of the service, including
// database connectivity. Redis is deliberately not checked here: the limiter
// fails open, so a Redis outage degrades rather than breaks the service, and
// failing the liveness probe over it would turn a degradation into an outage.
func healthCheckHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured request logging via slog. The output
// format (json or text) follows the global handler configured in
// telemetry.SetupLogger.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		// Path only, never the query string: /form/access carries the link
		// token as a query parameter and it must not end up in log storage.
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
