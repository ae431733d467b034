package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-promotion-api/api/swagger"
	"github.com/noah-isme/sma-promotion-api/internal/handler"
	"github.com/noah-isme/sma-promotion-api/internal/middleware"
	"github.com/noah-isme/sma-promotion-api/internal/models"
	"github.com/noah-isme/sma-promotion-api/internal/repository"
	"github.com/noah-isme/sma-promotion-api/internal/service"
	"github.com/noah-isme/sma-promotion-api/internal/staging"
	"github.com/noah-isme/sma-promotion-api/pkg/cache"
	"github.com/noah-isme/sma-promotion-api/pkg/config"
	"github.com/noah-isme/sma-promotion-api/pkg/database"
	"github.com/noah-isme/sma-promotion-api/pkg/export"
	"github.com/noah-isme/sma-promotion-api/pkg/jobs"
	"github.com/noah-isme/sma-promotion-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-promotion-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-promotion-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-promotion-api/pkg/storage"
)

// @title SMA Promotion API
// @version 1.0.0
// @description Stages, commits and locks the promotion of students into the next school year.
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const previewCleanupJob = "preview_cleanup"

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck

	var redisClient *redis.Client
	if cfg.Staging.Backend == config.StagingBackendRedis || cfg.Roster.CacheEnabled {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return err
		}
		defer redisClient.Close() //nolint:errcheck
	}

	var metrics *service.MetricsService
	if cfg.Metrics.Enabled {
		metrics = service.NewMetricsService()
	}

	rosters := repository.NewRosterRepository(db)
	classes := repository.NewClassRepository(db)
	enrollments := repository.NewEnrollmentRepository(db)
	years := repository.NewSchoolYearRepository(db)
	audits := repository.NewAuditRepository(db)

	var store staging.Store
	var ledger staging.Ledger
	if cfg.Staging.Backend == config.StagingBackendRedis {
		store = staging.NewRedisStore(redisClient, cfg.Staging.TTL)
		ledger = staging.NewRedisLedger(redisClient, cfg.Staging.TTL)
	} else {
		store = staging.NewMemoryStore()
		ledger = staging.NewMemoryLedger()
	}
	logr.Info("staging backend selected", zap.String("backend", cfg.Staging.Backend))

	var cacheSvc *service.CacheService
	if redisClient != nil {
		cacheSvc = service.NewCacheService(repository.NewCacheRepository(redisClient), metrics, cfg.Roster.CacheTTL, logr, cfg.Roster.CacheEnabled)
	}

	eligibility := service.NewEligibilityService(rosters, enrollments, cacheSvc, cfg.Roster.CacheTTL, nil, logr)
	detector := service.NewConflictDetector(eligibility, enrollments, classes, store, nil)
	placements := service.NewPlacementService(service.PlacementDeps{
		Eligibility: eligibility,
		Detector:    detector,
		Classes:     classes,
		Enrollments: enrollments,
		Years:       years,
		Store:       store,
		Undo:        staging.NewUndoLedger(store, ledger),
		Audit:       audits,
		Metrics:     metrics,
		Logger:      logr,
	})
	locks := service.NewLockService(years, store, audits, metrics, logr)

	fileStore, err := storage.NewLocalStorage(cfg.Preview.StorageDir)
	if err != nil {
		return err
	}
	previews := service.NewPreviewService(eligibility, classes, store, fileStore, export.NewCSVExporter(),
		storage.NewSignedURLSigner(cfg.Preview.SignedURLSecret, cfg.Preview.SignedURLTTL), metrics, logr,
		service.PreviewConfig{APIPrefix: cfg.APIPrefix, Retention: cfg.Preview.Retention})

	cleanup := jobs.NewQueue(previewCleanupJob, func(ctx context.Context, _ jobs.Job) error {
		_, err := previews.Cleanup(ctx)
		return err
	}, jobs.QueueConfig{Workers: 1, Logger: logr})
	cleanup.Start(ctx)
	defer cleanup.Stop()
	cleanup.Every(ctx, cfg.Preview.CleanupInterval, func() jobs.Job {
		return jobs.Job{ID: uuid.NewString(), Type: previewCleanupJob}
	})

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	metricsHandler := handler.NewMetricsHandler(metrics, readinessChecks(db, redisClient))
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	if metrics != nil {
		r.GET("/metrics", metricsHandler.Prometheus)
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), cfg,
		handler.NewPromotionHandler(placements, eligibility, previews),
		handler.NewSchoolYearHandler(locks),
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func registerRoutes(api *gin.RouterGroup, cfg *config.Config, promotions *handler.PromotionHandler, years *handler.SchoolYearHandler) {
	// The signed token authorises the download on its own.
	api.GET("/promotions/previews/:token", promotions.DownloadPreview)

	secured := api.Group("")
	secured.Use(middleware.JWT(service.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)))
	secured.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin))
	secured.Use(middleware.AuditOrigin())

	workspace := secured.Group("/promotions/:sourceYearId/:targetYearId")
	workspace.GET("/candidates", promotions.Candidates)
	workspace.GET("/staged", promotions.Staged)
	workspace.GET("/classes", promotions.Classes)
	workspace.GET("/stats", promotions.Stats)
	workspace.POST("/assignments", promotions.Assign)
	workspace.DELETE("/assignments/:studentId", promotions.Remove)
	workspace.POST("/undo", promotions.Undo)
	workspace.POST("/commit", promotions.Commit)
	workspace.DELETE("/staging", promotions.Discard)
	workspace.POST("/preview", promotions.Preview)

	secured.POST("/school-years/:id/lock", years.Lock)
}

func readinessChecks(db *sqlx.DB, redisClient *redis.Client) map[string]handler.ReadinessCheck {
	checks := map[string]handler.ReadinessCheck{
		"postgres": db.PingContext,
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	return checks
}
