package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/clinic-announcements-api/api/swagger"
	"github.com/noah-isme/clinic-announcements-api/internal/handler"
	internalmiddleware "github.com/noah-isme/clinic-announcements-api/internal/middleware"
	"github.com/noah-isme/clinic-announcements-api/internal/repository"
	"github.com/noah-isme/clinic-announcements-api/internal/service"
	"github.com/noah-isme/clinic-announcements-api/pkg/cache"
	"github.com/noah-isme/clinic-announcements-api/pkg/config"
	"github.com/noah-isme/clinic-announcements-api/pkg/database"
	"github.com/noah-isme/clinic-announcements-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/clinic-announcements-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/clinic-announcements-api/pkg/middleware/requestid"
)

// @title Clinic Announcements API
// @version 1.0.0
// @description Role-targeted announcements with per-recipient read receipts
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey Bearer
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

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(cfg.Database, logr); err != nil {
			logr.Fatal("database migration failed", zap.Error(err))
		}
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := connectRedis(rootCtx, cfg, logr)
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
	}

	metrics := service.NewMetricsService()

	announcementRepo := repository.NewAnnouncementRepository(db)
	userRepo := repository.NewUserRepository(db)

	var cacheRepo service.CacheRepository
	var redisRepo *repository.CacheRepository
	if redisClient != nil {
		redisRepo = repository.NewCacheRepository(redisClient)
		cacheRepo = redisRepo
	}
	cacheService := service.NewCacheService(cacheRepo, metrics, "ann", cfg.Announcements.StatsCacheTTL, logr, redisClient != nil)

	roles := service.NewRoleDirectory(userRepo, cfg.Announcements.RoleCacheSize, cfg.Announcements.RoleCacheTTL)
	statsService := service.NewAnnouncementStatsService(announcementRepo, roles, cacheService, metrics, logr, cfg.Announcements.StatsCacheTTL)
	announcementService := service.NewAnnouncementService(announcementRepo, validator.New(), statsService, metrics, logr, service.AnnouncementServiceConfig{
		DefaultPageSize: cfg.Announcements.DefaultPageSize,
		MaxPageSize:     cfg.Announcements.MaxPageSize,
	})

	tokens := service.NewTokenService(service.TokenConfig{
		Secret:   cfg.JWT.Secret,
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
	})
	publishers := service.NewPublisherPolicy(cfg.Announcements.Publishers)

	if cfg.Announcements.StatsRefreshOn {
		refresher, err := service.NewStatsRefresher(statsService, metrics, logr, service.StatsRefresherConfig{
			Schedule:   cfg.Announcements.StatsRefreshCron,
			Workers:    cfg.Announcements.RefreshWorkers,
			MaxRetries: cfg.Announcements.RefreshMaxRetries,
			RetryDelay: cfg.Announcements.RefreshRetryDelay,
			Timeout:    30 * time.Second,
		})
		if err != nil {
			logr.Fatal("invalid stats refresh configuration", zap.Error(err))
		}
		refresher.Start(rootCtx)
		defer refresher.Stop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, []string{"/health", "/ready", "/metrics"}))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))
	r.Use(internalmiddleware.WithResponseMeta())

	health := handler.NewHealthHandler(metrics.Handler(), readinessChecks(db, redisRepo))
	r.GET("/health", health.Health)
	r.GET("/ready", health.Ready)
	r.GET("/metrics", health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	announcements := handler.NewAnnouncementHandler(announcementService, statsService)
	api := r.Group(cfg.APIPrefix, internalmiddleware.JWT(tokens, publishers))
	{
		group := api.Group("/announcements")
		publisherOnly := internalmiddleware.RequirePublisher()

		group.GET("", announcements.List)
		group.GET("/unread-count", announcements.UnreadCount)
		group.GET("/mine", publisherOnly, announcements.Mine)
		group.GET("/stats", publisherOnly, announcements.Stats)
		group.GET("/stats/export", publisherOnly, announcements.ExportStats)
		group.POST("", publisherOnly, internalmiddleware.Audit(logr, "announcement.create"), announcements.Create)
		group.GET("/:id", announcements.Get)
		group.PATCH("/:id", publisherOnly, internalmiddleware.Audit(logr, "announcement.update"), announcements.Update)
		group.DELETE("/:id", publisherOnly, internalmiddleware.Audit(logr, "announcement.delete"), announcements.Delete)
		group.POST("/:id/read", announcements.MarkRead)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-rootCtx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

// connectRedis returns nil when Redis is disabled or unreachable; the API then
// serves statistics straight from Postgres.
func connectRedis(ctx context.Context, cfg *config.Config, logr *zap.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	client, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, statistics cache disabled", zap.Error(err))
		return nil
	}
	return client
}

func readinessChecks(db *sqlx.DB, redisRepo *repository.CacheRepository) map[string]handler.Pinger {
	checks := map[string]handler.Pinger{
		"postgres": handler.PingFunc(db.PingContext),
	}
	if redisRepo != nil {
		checks["redis"] = redisRepo
	}
	return checks
}
