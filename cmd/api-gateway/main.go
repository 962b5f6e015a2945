package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/scout-hq/scout-api/api/swagger"
	"github.com/scout-hq/scout-api/internal/handler"
	"github.com/scout-hq/scout-api/internal/middleware"
	"github.com/scout-hq/scout-api/internal/models"
	"github.com/scout-hq/scout-api/internal/repository"
	"github.com/scout-hq/scout-api/internal/security"
	"github.com/scout-hq/scout-api/internal/service"
	"github.com/scout-hq/scout-api/internal/tenant"
	"github.com/scout-hq/scout-api/pkg/cache"
	"github.com/scout-hq/scout-api/pkg/config"
	"github.com/scout-hq/scout-api/pkg/database"
	"github.com/scout-hq/scout-api/pkg/logger"
	corsmiddleware "github.com/scout-hq/scout-api/pkg/middleware/cors"
	reqidmiddleware "github.com/scout-hq/scout-api/pkg/middleware/requestid"
	"github.com/scout-hq/scout-api/pkg/storage"
)

// @title SCOUT API
// @version 1.0.0
// @description Authentication, session and tenant-isolation core
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	userRepo := repository.NewUserRepository(db)
	subscriptionRepo := repository.NewSubscriptionRepository(db)

	auditRecorder := repository.NewAsyncAuditRecorder(userRepo, logr)
	auditRecorder.Start(context.Background())
	defer auditRecorder.Stop()

	tokenService := security.NewTokenService(redisClient, logr, security.TokenConfig{
		Secret:     cfg.JWT.Secret,
		Issuer:     cfg.JWT.Issuer,
		Audience:   cfg.JWT.Audience,
		AccessTTL:  cfg.JWT.AccessExpiration,
		RefreshTTL: cfg.JWT.RefreshExpiration,
	})
	rateLimiter := security.NewRateLimiter(redisClient, logr)
	loginGuard := security.NewLoginAttemptGuard(redisClient, logr, security.LockoutPolicy{
		MaxAttemptsPerEmail: cfg.Lockout.MaxAttemptsPerEmail,
		MaxAttemptsPerIP:    cfg.Lockout.MaxAttemptsPerIP,
		Duration:            cfg.Lockout.Duration,
	})
	sessionStore := security.NewSessionStore(redisClient, logr)

	resolver := tenant.NewResolver(tokenService, userRepo, subscriptionRepo, redisClient, logr)

	var metricsService *service.MetricsService
	if cfg.Metrics.Enabled {
		metricsService = service.NewMetricsService()
	}

	authService := service.NewAuthService(auditRecorder, tokenService, sessionStore, loginGuard, nil, logr, metricsService, service.AuthConfig{
		AccessTTL:         cfg.JWT.AccessExpiration,
		RememberMeTTL:     cfg.JWT.RememberMeDuration,
		FailureDelay:      cfg.Lockout.FailureDelay,
		GuardAllowOnError: cfg.Lockout.AllowOnError,
	})

	exportStore, err := storage.NewExportStore(cfg.Export.Dir)
	if err != nil {
		logr.Sugar().Fatalw("failed to prepare export directory", "error", err)
	}
	exportSigner := storage.NewDownloadSigner(cfg.Export.SigningSecret, cfg.Export.DownloadTTL)
	exportService := service.NewAuditExportService(userRepo, exportStore, exportSigner, logr)

	authHandler := handler.NewAuthHandler(authService)
	adminHandler := handler.NewAdminHandler(exportService)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))
	if cfg.RateLimit.Enabled {
		policyTable := middleware.NewRatePolicyTable(cfg.RateLimit)
		r.Use(middleware.RateLimit(rateLimiter, policyTable, metricsService, logr, cfg.RateLimit.AllowOnError))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "postgres": err.Error()})
			return
		}
		if err := redisClient.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if metricsService != nil {
		r.GET("/metrics", gin.WrapH(metricsService.Handler()))
	}

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	auth := api.Group("/auth")
	{
		auth.POST("/login", authHandler.Login)
		auth.POST("/refresh", authHandler.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.RequireAuth(resolver))
		{
			authed.POST("/logout", authHandler.Logout)
			authed.POST("/revoke-all", authHandler.RevokeAll)
			authed.POST("/change-password", authHandler.ChangePassword)
			authed.GET("/me", authHandler.Me)
			authed.GET("/sessions", middleware.Audit(auditRecorder, models.AuditActionSessionsViewed, "auth"), authHandler.Sessions)
		}
	}

	admin := api.Group("/admin")
	{
		admin.GET("/audit-export/download", adminHandler.AuditExportDownload)

		adminAuthed := admin.Group("")
		adminAuthed.Use(middleware.RequireAuth(resolver), middleware.RequirePlatformAdmin())
		{
			adminAuthed.POST("/audit-export", adminHandler.AuditExport)
		}
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
