// Package api wires together all HTTP routes for the agent registry backend.
//
// Route grouping philosophy:
//   - Read routes (listing and fetching artifacts, resolving organizations)
//     use optional authentication: public artifacts must stay reachable
//     without credentials, while a presented token widens visibility to the
//     caller's private artifacts.
//   - Write routes (publish, metadata updates, org and token management)
//     always require a valid bearer token.
//   - Registration and login sit behind a stricter rate limit tier than the
//     rest of the API so credential stuffing burns out quickly.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agent-registry/agent-registry/internal/api/accounts"
	"github.com/agent-registry/agent-registry/internal/api/artifacts"
	"github.com/agent-registry/agent-registry/internal/api/orgs"
	"github.com/agent-registry/agent-registry/internal/config"
	"github.com/agent-registry/agent-registry/internal/db/repositories"
	"github.com/agent-registry/agent-registry/internal/jobs"
	"github.com/agent-registry/agent-registry/internal/middleware"
	"github.com/agent-registry/agent-registry/internal/notify"
	"github.com/agent-registry/agent-registry/internal/services"
	"github.com/agent-registry/agent-registry/internal/storage"
)

// Stricter per-replica budgets for the auth and publish tiers. These stay on
// the in-process limiter even when the general tier is Redis-backed; the
// budgets are small enough that per-replica enforcement suffices, and keeping
// them separate avoids mixing two limit shapes under one Redis key.
const (
	authTierPerMinute = 10
	authTierBurst     = 5

	publishTierPerMinute = 30
	publishTierBurst     = 10
)

// BackgroundServices holds background jobs and resources that must be stopped
// during graceful shutdown. The caller (cmd/server) is responsible for calling
// Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	expiryNotifier *jobs.TokenExpiryNotifier
	limiters       []middleware.Limiter
}

// Shutdown stops all background goroutines. It should be called after the
// HTTP server has been shut down so that in-flight requests drain first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.expiryNotifier != nil {
		bg.expiryNotifier.Stop()
	}
	for _, l := range bg.limiters {
		l.Stop()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize storage backend
	storageBackend, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	log.Printf("Initialized storage backend: %s", cfg.Storage.DefaultBackend)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(database)
	tokenRepo := repositories.NewTokenRepository(database)
	orgRepo := repositories.NewOrganizationRepository(database)
	invitationRepo := repositories.NewInvitationRepository(database)
	artifactRepo := repositories.NewArtifactRepository(database)

	// Outbound mail: a real SMTP mailer when notifications are configured,
	// a no-op otherwise. Services never check the toggle themselves.
	var mailer notify.Mailer = notify.Noop{}
	if cfg.Notifications.Enabled && cfg.Notifications.SMTP.Host != "" {
		mailer = notify.NewSMTPMailer(&cfg.Notifications.SMTP)
	}
	notifier := notify.NewNotifier(mailer, cfg.Notifications.Enabled, cfg.Server.BaseURL)

	// Initialize services
	identitySvc := services.NewIdentityService(userRepo, orgRepo, tokenRepo)
	orgSvc := services.NewOrganizationService(orgRepo)
	invitationSvc := services.NewInvitationService(invitationRepo, orgSvc, userRepo, notifier)
	artifactSvc := services.NewArtifactService(artifactRepo, orgSvc, storageBackend)

	// Start the token expiry notifier
	expiryNotifier := jobs.NewTokenExpiryNotifier(tokenRepo, userRepo, mailer, &cfg.Notifications)
	go expiryNotifier.Start(context.Background())

	// Middleware ordering: Security → RequestID → Metrics → RateLimit → Auth
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))

	// Health check endpoint
	router.GET("/health", healthCheckHandler(database))

	// Readiness check endpoint (includes storage backend probe)
	router.GET("/ready", readinessHandler(database, storageBackend))

	// API version
	router.GET("/version", versionHandler())

	// Rate limiter tiers. When limiting is disabled every tier degrades to a
	// pass-through handler so route registration stays uniform.
	passthrough := gin.HandlerFunc(func(c *gin.Context) { c.Next() })
	var rateLimiters []middleware.Limiter
	generalLimit, authTierLimit, publishLimit := passthrough, passthrough, passthrough
	if cfg.Security.RateLimiting.Enabled {
		general := middleware.NewLimiter(cfg.Security.RateLimiting)
		authTier := middleware.NewMemoryLimiter(authTierPerMinute, authTierBurst)
		publishTier := middleware.NewMemoryLimiter(publishTierPerMinute, publishTierBurst)
		rateLimiters = []middleware.Limiter{general, authTier, publishTier}

		generalLimit = middleware.RateLimitMiddleware(general, cfg.Security.RateLimiting.RequestsPerMinute)
		authTierLimit = middleware.RateLimitMiddleware(authTier, authTierPerMinute)
		publishLimit = middleware.RateLimitMiddleware(publishTier, publishTierPerMinute)
	}

	// Initialize handlers
	accountHandlers := accounts.NewHandlers(identitySvc)
	orgHandlers := orgs.NewHandlers(orgSvc, invitationSvc)
	artifactHandlers := artifacts.NewHandlers(artifactSvc)

	// File serving endpoint for local storage with serve_directly enabled
	if cfg.Storage.DefaultBackend == "local" && cfg.Storage.Local.ServeDirectly {
		router.GET("/v1/files/*filepath", artifacts.ServeFileHandler(storageBackend))
	}

	apiV1 := router.Group("/api/v1")
	{
		// Registration and login: no auth, strict rate limit tier
		authGroup := apiV1.Group("/auth")
		authGroup.Use(authTierLimit)
		{
			authGroup.POST("/register", accountHandlers.RegisterHandler())
			authGroup.POST("/login", accountHandlers.LoginHandler())
		}

		// Artifact reads: optional auth widens visibility to private artifacts
		readGroup := apiV1.Group("")
		readGroup.Use(generalLimit)
		readGroup.Use(middleware.OptionalAuthMiddleware(tokenRepo, userRepo))
		for segment, kind := range artifacts.KindSegments() {
			g := readGroup.Group("/" + segment)
			g.GET("", artifactHandlers.ListAllHandler(kind))
			g.GET("/:org", artifactHandlers.ListOrgHandler(kind))
			g.GET("/:org/:name", artifactHandlers.GetHandler(kind))
			g.GET("/:org/:name/versions", artifactHandlers.ListVersionsHandler(kind))
			g.GET("/:org/:name/versions/:version", artifactHandlers.GetVersionHandler(kind))
		}

		// Authenticated endpoints
		authenticated := apiV1.Group("")
		authenticated.Use(generalLimit)
		authenticated.Use(middleware.AuthMiddleware(tokenRepo, userRepo))
		{
			authenticated.GET("/auth/me", accountHandlers.MeHandler())

			// Token management
			tokensGroup := authenticated.Group("/tokens")
			{
				tokensGroup.GET("", accountHandlers.ListTokensHandler())
				tokensGroup.POST("", accountHandlers.CreateTokenHandler())
				tokensGroup.DELETE("/:id", accountHandlers.DeleteTokenHandler())
			}

			// Organizations and invitations
			orgsGroup := authenticated.Group("/orgs")
			{
				orgsGroup.POST("", orgHandlers.CreateHandler())
				orgsGroup.GET("", orgHandlers.ListHandler())
				orgsGroup.GET("/:org", orgHandlers.GetHandler())
				orgsGroup.GET("/:org/members", orgHandlers.ListMembersHandler())
				orgsGroup.POST("/:org/members", orgHandlers.AddMemberHandler())
				orgsGroup.POST("/:org/invitations", orgHandlers.InviteHandler())
				orgsGroup.GET("/:org/invitations", orgHandlers.ListInvitationsHandler())
				orgsGroup.DELETE("/:org/invitations/:id", orgHandlers.CancelInvitationHandler())
			}

			authenticated.POST("/invitations/accept", orgHandlers.AcceptInvitationHandler())

			// Artifact writes, with the stricter publish rate limit tier
			for segment, kind := range artifacts.KindSegments() {
				authenticated.POST("/"+segment, publishLimit, artifactHandlers.PublishHandler(kind))
				authenticated.PATCH("/"+segment+"/:org/:name", artifactHandlers.UpdateHandler(kind))
			}
		}
	}

	bg := &BackgroundServices{
		expiryNotifier: expiryNotifier,
		limiters:       rateLimiters,
	}

	return router, bg
}

// healthCheckHandler returns the health status of the service
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

// readinessHandler returns the readiness status of the service. Unlike the
// liveness probe (/health), this also checks the storage backend so a
// readiness gate fails when publishes and downloads would error.
func readinessHandler(database *sql.DB, storageBackend storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := database.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Probe with a known-absent sentinel path. Exists() exercises
		// authentication and network connectivity without creating state.
		if _, err := storageBackend.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
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

// LoggerMiddleware provides structured request logging via slog.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}
