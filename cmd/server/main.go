package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron"
	"go.uber.org/zap"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/api"
	"github.com/maheshrc27/postflow/internal/api/handlers"
	"github.com/maheshrc27/postflow/internal/api/middleware"
	"github.com/maheshrc27/postflow/internal/errortracking"
	job "github.com/maheshrc27/postflow/internal/jobs"
	"github.com/maheshrc27/postflow/internal/lock"
	"github.com/maheshrc27/postflow/internal/metrics"
	"github.com/maheshrc27/postflow/internal/platform"
	"github.com/maheshrc27/postflow/internal/queue"
	"github.com/maheshrc27/postflow/internal/repository"
	"github.com/maheshrc27/postflow/internal/service"
	applog "github.com/maheshrc27/postflow/pkg/logger"
)

const runLockKey = "postflow:publish-run"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: Failed to load environment variables", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := applog.New(cfg.Environment, "postflow")
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if err := errortracking.Init(cfg.SentryDSN, cfg.Environment); err != nil {
		logger.Warn("sentry disabled", zap.Error(err))
	}
	defer errortracking.Flush()

	metrics.Register()

	db, err := repository.NewDB(cfg.PostgresURI)
	if err != nil {
		logger.Fatal("database is unreachable", zap.Error(err))
	}
	defer closeDB(db, logger)

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisURI})
	defer rdb.Close()

	r2Service, err := service.NewR2ServiceFromConfig(context.Background(), cfg.R2)
	if err != nil {
		logger.Fatal("failed to configure r2", zap.Error(err))
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	poll := platform.PollPolicy{Interval: cfg.PollInterval, MaxAttempts: cfg.PollMaxAttempts}

	registry := platform.NewRegistry(
		platform.NewInstagramDriver(cfg.GraphURL, httpClient, poll),
		platform.NewFacebookDriver(cfg.GraphURL, httpClient),
		platform.NewTiktokDriver(cfg.APIURL, httpClient, poll),
	)

	postRepo := repository.NewPostRepository(db)
	connRepo := repository.NewConnectionRepository(db)
	attemptRepo := repository.NewPublishAttemptRepository(db)

	credentialService := service.NewCredentialService(connRepo, cfg.SecretKey)

	// The lock outlives the run deadline slightly so a timed out run still releases it itself.
	runLock := lock.NewRunLock(rdb, runLockKey, cfg.RunTimeout+time.Minute)

	publishJob := job.NewPublishJob(
		postRepo,
		attemptRepo,
		credentialService,
		r2Service,
		registry,
		runLock,
		job.PublishOptions{
			BatchSize:       cfg.BatchSize,
			UserConcurrency: cfg.UserConcurrency,
			RunTimeout:      cfg.RunTimeout,
		},
		logger.Named("publisher"),
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 10 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			logger.Error("request failed", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(metrics.FiberMiddleware())

	api.SetupRoutes(app, api.Routes{
		Job:    handlers.NewJobHandler(publishJob, logger.Named("http")),
		Health: handlers.NewHealthHandler(db),
		Auth:   middleware.NewAuthMiddleware(cfg.JobSecret, logger.Named("http")),
	})

	// cron jobs
	refreshTokenJob := job.NewTokenRefreshJob(connRepo, cfg.SecretKey, cfg.Window, logger.Named("token-refresh"),
		platform.NewMetaTokenRefresher(cfg.GraphURL, cfg.Meta.ClientID, cfg.Meta.ClientSecret, httpClient),
		platform.NewTiktokTokenRefresher(cfg.APIURL, cfg.ClientKey, cfg.Tiktok.ClientSecret, httpClient),
	)

	c := cron.New()
	if err := c.AddFunc(cfg.TokenRefresh.Schedule, refreshTokenJob.RefreshTokens); err != nil {
		logger.Fatal("invalid token refresh schedule", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	// queue
	redisConn := asynq.RedisClientOpt{Addr: cfg.RedisURI}
	queueW := queue.NewQueue(publishJob, logger.Named("queue"))

	scheduler := asynq.NewScheduler(redisConn, &asynq.SchedulerOpts{})
	if cfg.Publish.Schedule != "" {
		entryID, err := queue.RegisterPublishSchedule(scheduler, cfg.Publish.Schedule, cfg.RunTimeout)
		if err != nil {
			logger.Fatal("failed to register publish schedule", zap.Error(err))
		}
		logger.Info("publish run scheduled", zap.String("entry_id", entryID), zap.String("schedule", cfg.Publish.Schedule))

		go func() {
			if err := scheduler.Run(); err != nil {
				logger.Fatal("could not start asynq scheduler", zap.Error(err))
			}
		}()
	} else {
		logger.Info("PUBLISH_SCHEDULE is empty, runs only start from the HTTP trigger")
	}

	server := asynq.NewServer(redisConn, asynq.Config{
		Concurrency: 1,
	})
	go func() {
		logger.Info("starting the asynq server")
		if err := server.Run(queueW.NewServeMux()); err != nil {
			logger.Fatal("could not start asynq server", zap.Error(err))
		}
	}()

	go func() {
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()
	logger.Info("server is running", zap.Int("port", cfg.Port))

	gracefulShutdown(app, logger, func() {
		if cfg.Publish.Schedule != "" {
			scheduler.Shutdown()
		}
		server.Shutdown()
	})
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", zap.Error(err))
		return
	}
	logger.Info("database connection closed")
}

func gracefulShutdown(app *fiber.App, logger *zap.Logger, stopWorkers func()) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	logger.Info("shutting down server")

	stopWorkers()

	if err := app.Shutdown(); err != nil {
		logger.Error("failed to shut down server", zap.Error(err))
	}

	logger.Info("server shutdown complete")
}
