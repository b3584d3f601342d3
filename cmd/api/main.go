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
	"go.uber.org/zap"

	_ "github.com/gurukul-lms/gurukul-api/api/swagger"
	"github.com/gurukul-lms/gurukul-api/internal/handler"
	"github.com/gurukul-lms/gurukul-api/internal/middleware"
	"github.com/gurukul-lms/gurukul-api/internal/repository"
	"github.com/gurukul-lms/gurukul-api/internal/router"
	"github.com/gurukul-lms/gurukul-api/internal/service"
	"github.com/gurukul-lms/gurukul-api/migrations"
	"github.com/gurukul-lms/gurukul-api/pkg/cache"
	"github.com/gurukul-lms/gurukul-api/pkg/config"
	"github.com/gurukul-lms/gurukul-api/pkg/database"
	"github.com/gurukul-lms/gurukul-api/pkg/jobs"
	"github.com/gurukul-lms/gurukul-api/pkg/logger"
	corsmiddleware "github.com/gurukul-lms/gurukul-api/pkg/middleware/cors"
	"github.com/gurukul-lms/gurukul-api/pkg/storage"
)

// @title Gurukul API
// @version 1.0.0
// @description Course catalog, lecture progress, notifications and admin tooling for the Gurukul LMS.
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg, "api")
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, db, migrations.FS, ".", "up"); err != nil {
			logr.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	metrics := service.NewMetricsService()
	validate := validator.New()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, running without cache and rate limiting", zap.Error(err))
		redisClient = nil
	}
	var cacheRepo service.CacheRepository
	readyChecks := map[string]handler.Pinger{"postgres": db}
	var limiter *middleware.RateLimiter
	if redisClient != nil {
		defer redisClient.Close() //nolint:errcheck
		repo := repository.NewCacheRepository(redisClient, cfg.Redis.KeyPrefix, logr)
		cacheRepo = repo
		readyChecks["redis"] = handler.PingFunc(repo.Ping)
		if cfg.RateLimit.Enabled {
			limiter = middleware.NewRateLimiter(middleware.NewRedisWindowCounter(redisClient), cfg.RateLimit.Requests, cfg.RateLimit.Window, metrics, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Stats.CacheTTL, logr, cacheRepo != nil)

	userRepo := repository.NewUserRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	announcementRepo := repository.NewAnnouncementRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	statsRepo := repository.NewStatsRepository(db)
	exportJobRepo := repository.NewExportJobRepository(db)

	authSvc := service.NewAuthService(logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		Issuer:            cfg.JWT.Issuer,
		Audience:          cfg.JWT.Audience,
	})
	userSvc := service.NewUserService(userRepo, cacheSvc, validate, logr)
	courseSvc := service.NewCourseService(courseRepo, userRepo, cacheSvc, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, courseRepo, metrics, validate, logr)
	lectureSvc := service.NewLectureService(courseRepo, enrollmentRepo, metrics, validate, logr, service.LectureServiceConfig{
		MaxRetries: cfg.Progress.MaxRetries,
	})
	notificationSvc := service.NewNotificationService(notificationRepo, metrics, logr, service.NotificationConfig{
		Window:       cfg.Notifications.Window,
		DefaultLimit: cfg.Notifications.DefaultLimit,
		MaxLimit:     cfg.Notifications.MaxLimit,
	})
	announcementSvc := service.NewAnnouncementService(announcementRepo, userRepo, userRepo, cacheSvc, validate, logr)
	statsSvc := service.NewStatsService(statsRepo, cacheSvc, metrics, logr, service.StatsConfig{
		CacheTTL:     cfg.Stats.CacheTTL,
		MockFallback: cfg.Stats.MockFallback,
	})

	fileStore, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		logr.Fatal("failed to prepare export storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	exportSvc := service.NewExportService(enrollmentRepo, courseRepo, fileStore, signer, service.ExportConfig{
		APIPrefix: cfg.APIPrefix,
		ResultTTL: cfg.Exports.SignedURLTTL,
	}, logr)
	worker := service.NewExportWorker(exportJobRepo, exportSvc, notificationSvc, metrics, logr)
	queue := jobs.NewQueue("exports", worker.Handle, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		JobTimeout: cfg.Exports.JobTimeout,
		OnFailure:  worker.Fail,
		Observe:    metrics.ObserveJob,
		Logger:     logr,
	})
	metrics.TrackQueue(queue.Name(), queue.Depth)
	exportJobSvc := service.NewExportJobService(exportJobRepo, queue, exportSvc, userRepo, validate, logr, service.ExportJobServiceConfig{
		ResultTTL: cfg.Exports.SignedURLTTL,
	})

	if cfg.Exports.Enabled {
		queue.Start(ctx)
		defer queue.Stop()
		exportJobSvc.RecoverPendingJobs(ctx)
		scheduler, err := exportJobSvc.StartCleanup(ctx, cfg.Exports.CleanupSchedule)
		if err != nil {
			logr.Fatal("invalid export cleanup schedule", zap.Error(err))
		}
		if scheduler != nil {
			defer scheduler.Stop()
		}
	}

	engine := router.New(router.Handlers{
		Auth:          handler.NewAuthHandler(userSvc),
		Courses:       handler.NewCourseHandler(courseSvc),
		Enrollments:   handler.NewEnrollmentHandler(enrollmentSvc),
		Lectures:      handler.NewLectureHandler(lectureSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Announcements: handler.NewAnnouncementHandler(announcementSvc),
		Stats:         handler.NewStatsHandler(statsSvc),
		Users:         handler.NewUserHandler(userSvc),
		Exports:       handler.NewExportHandler(exportJobSvc),
		Metrics:       handler.NewMetricsHandler(metrics, readyChecks),
	}, router.Options{
		APIPrefix:  cfg.APIPrefix,
		EnableDocs: cfg.Env != config.EnvProduction,
		CORS: corsmiddleware.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
		Logger:       logr,
		Metrics:      metrics,
		Authenticate: middleware.JWT(authSvc),
		RateLimiter:  limiter,
		Audit:        userRepo,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("graceful shutdown failed", zap.Error(err))
	}
}
