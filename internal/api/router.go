// Package api wires together all HTTP routes for the Oneira backend.
//
// Route grouping philosophy:
//   - The access-code and PIN endpoints (/v1/auth/redeem, /v1/auth/pin,
//     /v1/auth/pin/verify) are public but rate limited. They are the only
//     surface that can be brute forced, so they sit behind the strictest
//     limiter in the stack.
//   - Engine and payment webhooks are public and authenticate per-request
//     via a shared secret header instead of a session token.
//   - Everything under /v1/me, /v1/dreams and /v1/photos requires a valid
//     session token. /v1/admin additionally requires the admin role, and
//     every admin request is written to the audit log.
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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/oneira/oneira/internal/api/account"
	"github.com/oneira/oneira/internal/api/admin"
	"github.com/oneira/oneira/internal/api/dreams"
	"github.com/oneira/oneira/internal/api/files"
	"github.com/oneira/oneira/internal/api/photos"
	"github.com/oneira/oneira/internal/api/plans"
	"github.com/oneira/oneira/internal/api/webhooks"
	"github.com/oneira/oneira/internal/audit"
	"github.com/oneira/oneira/internal/billing"
	"github.com/oneira/oneira/internal/config"
	"github.com/oneira/oneira/internal/db/repositories"
	"github.com/oneira/oneira/internal/engine"
	"github.com/oneira/oneira/internal/generation"
	"github.com/oneira/oneira/internal/jobs"
	"github.com/oneira/oneira/internal/middleware"
	"github.com/oneira/oneira/internal/safego"
	"github.com/oneira/oneira/internal/storage"
	"github.com/oneira/oneira/internal/storage/local"

	// Import the s3 backend to register it. The local backend is imported by
	// name above for the file-serving type assertion and registers itself the
	// same way.
	_ "github.com/oneira/oneira/internal/storage/s3"
)

// BackgroundServices holds references to background workers and resources that
// must be stopped during graceful shutdown. The caller (cmd/server) is
// responsible for calling Shutdown() when the process receives a termination
// signal.
type BackgroundServices struct {
	orchestrator *generation.Orchestrator
	reaper       *jobs.StaleJobReaper
	auditShipper audit.Shipper
	rateLimiters []middleware.Limiter
	redisClient  *redis.Client
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first. The
// orchestrator is stopped before the reaper: workers finish their current job
// on stop, and a reaper sweeping concurrently could otherwise fail a job a
// draining worker is about to complete.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.orchestrator != nil {
		bg.orchestrator.Stop()
	}
	if bg.reaper != nil {
		bg.reaper.Stop()
	}
	for _, rl := range bg.rateLimiters {
		if rl != nil {
			rl.Stop()
		}
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("audit shipper close failed", "error", err)
		}
	}
	if bg.redisClient != nil {
		_ = bg.redisClient.Close()
	}
	slog.Info("all background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB) (*gin.Engine, *BackgroundServices) {
	router := gin.New()

	// Initialize storage backend
	store, err := storage.NewStorage(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage backend: %v", err)
	}
	log.Printf("Initialized storage backend: %s", cfg.Storage.DefaultBackend)

	// Initialize repositories
	userRepo := repositories.NewUserRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	jobRepo := repositories.NewGenerationJobRepository(db)
	photoRepo := repositories.NewPhotoRepository(db)

	// The dream repository uses sqlx for its partial-update building.
	sqlxDB := sqlx.NewDb(db, "postgres")
	dreamRepo := repositories.NewDreamRepository(sqlxDB)

	// Plan catalogue and quota checks are shared by the account, dream and
	// photo handlers. The catalogue is immutable after startup, so a broken
	// plans section in the config is a fatal misconfiguration.
	catalogue, err := billing.NewCatalogue(&cfg.Plans)
	if err != nil {
		log.Fatalf("Failed to load plan catalogue: %v", err)
	}
	quota := billing.NewQuota(catalogue, jobRepo, photoRepo)

	// Initialize the generation orchestrator and its worker pool.
	engineClient := engine.NewClient(&cfg.Engine)
	orchestrator := generation.NewOrchestrator(
		jobRepo, dreamRepo, auditRepo, store, engineClient, &cfg.Generation, cfg.Engine.SignedURLTTL)
	orchestrator.Start(context.Background())

	// Initialize and start the stale job reaper.
	reaper := jobs.NewStaleJobReaper(jobRepo, &cfg.Generation)
	safego.GoNamed("stale-job-reaper", func() {
		reaper.Start(context.Background())
	})

	// Optional audit shipper for forwarding admin audit entries to an
	// external collector.
	var shipper audit.Shipper
	if cfg.Audit.Shipper.Enabled {
		ws, err := audit.NewWebhookShipper(&cfg.Audit.Shipper)
		if err != nil {
			log.Fatalf("Failed to initialize audit shipper: %v", err)
		}
		shipper = ws
	}

	// Rate limiters. The auth limiter takes its rate from the config so
	// operators can tighten it without a rebuild; the upload limiter uses the
	// built-in profile.
	var authLimiter, uploadLimiter middleware.Limiter
	var redisClient *redis.Client
	if cfg.Security.RateLimiting.Enabled {
		authCfg := middleware.AuthRateLimitConfig()
		if cfg.Security.RateLimiting.RequestsPerMinute > 0 {
			authCfg.RequestsPerMinute = cfg.Security.RateLimiting.RequestsPerMinute
		}
		if cfg.Security.RateLimiting.Burst > 0 {
			authCfg.BurstSize = cfg.Security.RateLimiting.Burst
		}
		if cfg.Security.RateLimiting.Backend == "redis" {
			redisClient = redis.NewClient(&redis.Options{
				Addr:     cfg.Security.RateLimiting.Redis.Addr,
				Password: cfg.Security.RateLimiting.Redis.Password,
				DB:       cfg.Security.RateLimiting.Redis.DB,
			})
			authLimiter = middleware.NewRedisLimiter(redisClient, authCfg, "auth")
			uploadLimiter = middleware.NewRedisLimiter(redisClient, middleware.UploadRateLimitConfig(), "upload")
			log.Println("Rate limiting enabled (redis backend)")
		} else {
			authLimiter = middleware.NewRateLimiter(authCfg)
			uploadLimiter = middleware.NewRateLimiter(middleware.UploadRateLimitConfig())
			log.Println("Rate limiting enabled (in-memory backend)")
		}
	}

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))

	// Health check endpoint
	router.GET("/healthz", healthCheckHandler(db))

	// Readiness check endpoint (includes storage backend probe)
	router.GET("/readyz", readinessHandler(db, store))

	// API version
	router.GET("/version", versionHandler())

	// Initialize handlers
	accountHandlers := account.NewAccountHandlers(cfg, db, catalogue, quota)
	planHandlers := plans.NewPlanHandlers(catalogue)
	dreamHandlers := dreams.NewDreamHandlers(cfg, sqlxDB, quota, orchestrator)
	photoHandlers := photos.NewPhotoHandlers(cfg, db, store, quota)
	webhookHandlers := webhooks.NewWebhookHandlers(cfg, db, orchestrator)

	// Serve uploaded files directly when the local storage backend is active.
	// S3 deployments hand out presigned URLs instead, so the route would be
	// dead weight there.
	if localStore, ok := store.(*local.LocalStorage); ok {
		router.GET("/v1/files/*path", files.NewFileHandlers(localStore).ServeFileHandler())
	}

	// Public account endpoints: code redemption and PIN login.
	authGroup := router.Group("/v1/auth")
	authGroup.Use(rateLimit(authLimiter))
	{
		authGroup.POST("/redeem", accountHandlers.RedeemHandler())
		authGroup.POST("/pin", accountHandlers.CreatePINHandler())
		authGroup.POST("/pin/verify", accountHandlers.VerifyPINHandler())
	}

	// Public plan catalogue.
	router.GET("/v1/plans", planHandlers.ListPlansHandler())

	// Webhook endpoints (public, authenticated via shared secret headers).
	router.POST("/v1/webhooks/generation", webhookHandlers.GenerationWebhookHandler())
	router.POST("/v1/webhooks/payments", webhookHandlers.PaymentsWebhookHandler())

	// Authenticated endpoints.
	authenticated := router.Group("/v1")
	authenticated.Use(middleware.AuthMiddleware(sessionRepo, userRepo))
	{
		authenticated.POST("/auth/logout", accountHandlers.LogoutHandler())
		authenticated.POST("/auth/logout-all", accountHandlers.LogoutAllHandler())

		authenticated.GET("/me", accountHandlers.MeHandler())
		authenticated.PUT("/me", accountHandlers.UpdateMeHandler())
		authenticated.DELETE("/me", accountHandlers.DeleteMeHandler())
		authenticated.PUT("/me/pin", accountHandlers.ChangePINHandler())
		authenticated.GET("/me/sessions", accountHandlers.ListSessionsHandler())
		authenticated.GET("/me/jobs", dreamHandlers.ListMyJobsHandler())

		authenticated.POST("/dreams", dreamHandlers.CreateDreamHandler())
		authenticated.GET("/dreams", dreamHandlers.ListDreamsHandler())
		authenticated.GET("/dreams/:id", dreamHandlers.GetDreamHandler())
		authenticated.PUT("/dreams/:id", dreamHandlers.UpdateDreamHandler())
		authenticated.DELETE("/dreams/:id", dreamHandlers.DeleteDreamHandler())
		authenticated.POST("/dreams/:id/generate", dreamHandlers.GenerateHandler())
		authenticated.GET("/dreams/:id/jobs/:jobId", dreamHandlers.GetJobHandler())

		authenticated.POST("/photos", rateLimit(uploadLimiter), photoHandlers.UploadHandler())
		authenticated.GET("/photos", photoHandlers.ListPhotosHandler())
		authenticated.GET("/photos/:id", photoHandlers.GetPhotoHandler())
		authenticated.PUT("/photos/:id/enabled", photoHandlers.SetEnabledHandler())
		authenticated.DELETE("/photos/:id", photoHandlers.DeletePhotoHandler())

		// Admin endpoints: role-gated and audited.
		adminGroup := authenticated.Group("/admin")
		adminGroup.Use(middleware.RequireAdmin())
		adminGroup.Use(middleware.AuditMiddlewareWithShipper(auditRepo, shipper, &cfg.Audit))
		{
			codeHandlers := admin.NewAccessCodeHandlers(cfg, db)
			adminGroup.POST("/access-codes", codeHandlers.MintCodesHandler())
			adminGroup.GET("/access-codes", codeHandlers.ListCodesHandler())
			adminGroup.POST("/access-codes/:id/revoke", codeHandlers.RevokeCodeHandler())

			userHandlers := admin.NewUserHandlers(cfg, db, catalogue)
			adminGroup.GET("/users", userHandlers.ListUsersHandler())
			adminGroup.GET("/users/:id", userHandlers.GetUserHandler())
			adminGroup.PUT("/users/:id/status", userHandlers.SetUserStatusHandler())
			adminGroup.PUT("/users/:id/plan", userHandlers.UpdateUserPlanHandler())

			jobHandlers := admin.NewJobHandlers(cfg, db)
			adminGroup.GET("/jobs", jobHandlers.ListJobsHandler())

			auditHandlers := admin.NewAuditLogHandlers(cfg, db)
			adminGroup.GET("/audit-logs", auditHandlers.ListAuditLogsHandler())
		}
	}

	bg := &BackgroundServices{
		orchestrator: orchestrator,
		reaper:       reaper,
		auditShipper: shipper,
		rateLimiters: []middleware.Limiter{authLimiter, uploadLimiter},
		redisClient:  redisClient,
	}

	return router, bg
}

// rateLimit wraps a limiter into gin middleware, or into a pass-through when
// rate limiting is disabled in the config.
func rateLimit(limiter middleware.Limiter) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return middleware.RateLimitMiddleware(limiter)
}

// healthCheckHandler returns the health status of the service
func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check database connection
		if err := db.Ping(); err != nil {
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

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/healthz), this also checks the storage backend
// so that a Kubernetes readiness gate fails when uploads/downloads would error.
func readinessHandler(db *sql.DB, store storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		// Check database connection
		if err := db.Ping(); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Check storage backend with a known-absent sentinel path. Exists()
		// exercises authentication and network connectivity without creating
		// any state.
		if _, err := store.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
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
			"version":    "0.1.0",
			"apiVersion": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		// Log the request
		if cfg.Logging.Format == "json" {
			logJSON(c, latency, path, query)
		} else {
			logText(c, latency, path, query)
		}
	}
}

// logJSON logs a request as a JSON-structured slog record.
func logJSON(c *gin.Context, latency time.Duration, path, query string) {
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

// logText logs a request as a human-readable slog text record.
func logText(c *gin.Context, latency time.Duration, path, query string) {
	// reuse the same structured output; slog will emit text format when the global
	// handler is a TextHandler (configured in telemetry.SetupLogger).
	logJSON(c, latency, path, query)
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		// Check if origin is allowed
		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
