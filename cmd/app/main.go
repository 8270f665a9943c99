// File: cmd/app/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"story-scheduler/internal/config"
	"story-scheduler/internal/domain/ports/adapter"
	"story-scheduler/internal/infra/adapters/imagestore"
	"story-scheduler/internal/infra/adapters/instagram"
	"story-scheduler/internal/infra/adapters/notify"
	pg "story-scheduler/internal/infra/db/postgres"
	"story-scheduler/internal/infra/logging"
	"story-scheduler/internal/infra/metrics"
	"story-scheduler/internal/infra/queue"
	red "story-scheduler/internal/infra/redis"
	"story-scheduler/internal/infra/sched"
	"story-scheduler/internal/infra/web"
	"story-scheduler/internal/infra/worker"
	"story-scheduler/internal/render"
	"story-scheduler/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode (no-op adapters for missing credentials)")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Info().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	rateLimiter := red.NewRateLimiter(redisClient)
	locker := red.NewLocker(redisClient)

	// ---- Repositories ----
	txManager := pg.NewTxManager(pool)
	postRepo := pg.NewScheduledPostRepo(pool)
	accountRepo := pg.NewInstagramAccountRepo(pool)
	notifRepo := pg.NewNotificationRepo(pool)
	deviceRepo := pg.NewDeviceTokenRepo(pool)
	contactRepo := pg.NewUserContactRepo(pool)

	// ---- Renderer ----
	renderer, err := render.NewRenderer(cfg.Render)
	if err != nil {
		logger.Fatal().Err(err).Msg("renderer")
	}

	// ---- Adapters ----
	var store adapter.ImageStore
	if cfg.Storage.CloudName != "" {
		store = imagestore.NewCloudinaryStore(cfg.Storage.CloudName, cfg.Storage.APIKey, cfg.Storage.APISecret)
	} else if cfg.Runtime.Dev {
		store = imagestore.NewNoOpStore(logger)
	} else {
		logger.Fatal().Msg("storage.cloud_name is required outside dev mode")
	}

	var publisher adapter.InstagramPublisher
	if cfg.Runtime.Dev {
		publisher = instagram.NewNoOpPublisher(logger)
	} else {
		publisher = instagram.NewGraphClient(cfg.Instagram.BaseURL, cfg.Instagram.APIVersion)
	}

	var push adapter.PushSender
	if cfg.Notify.FCMServerKey != "" {
		push = notify.NewFCMPushSender(cfg.Notify.FCMServerKey)
	} else {
		push = notify.NewNoOpPushSender(logger)
	}
	var email adapter.EmailSender
	if cfg.Notify.ResendAPIKey != "" {
		email = notify.NewResendEmailSender(cfg.Notify.ResendAPIKey, cfg.Notify.FromEmail)
	} else {
		email = notify.NewNoOpEmailSender(logger)
	}

	// ---- Queue + processor ----
	jobQueue := queue.NewPostgresQueue(pool, cfg.Queue.MaxAttempts, cfg.Queue.BackoffBase)
	processor := worker.NewPostProcessor(worker.PostProcessorDeps{
		Posts:         postRepo,
		Accounts:      accountRepo,
		Notifications: notifRepo,
		Devices:       deviceRepo,
		Contacts:      contactRepo,
		Renderer:      renderer,
		Store:         store,
		Publisher:     publisher,
		Push:          push,
		Email:         email,
		UploadFolder:  cfg.Storage.Folder,
		StaleAfter:    cfg.Queue.LeaseDuration,
	}, logger)

	workerPool := worker.NewPool(cfg.Queue.Workers, logger)
	workerPool.Start(ctx)
	defer workerPool.Stop()

	dispatcher := queue.NewDispatcher(jobQueue, workerPool, rateLimiter, processor.Process, queue.DispatcherConfig{
		PollInterval:  cfg.Queue.PollInterval,
		LeaseDuration: cfg.Queue.LeaseDuration,
		RateLimit:     cfg.Queue.RateLimit,
		RateWindow:    cfg.Queue.RateWindow,
		RateKey:       red.JobStartKey("posts"),
	}, logger)
	go func() {
		if err := dispatcher.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("dispatcher stopped")
		}
	}()

	// ---- Background workers ----
	refreshWorker := sched.NewTokenRefreshWorker(accountRepo, notifRepo, deviceRepo, publisher, push, locker,
		cfg.Scheduler.TokenRefreshInterval, cfg.Scheduler.TokenRefreshThreshold, logger)
	go func() {
		if err := refreshWorker.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("token refresh worker stopped")
		}
	}()

	maintenance := sched.NewQueueMaintenanceWorker(jobQueue, cfg.Queue.PruneInterval,
		cfg.Queue.DoneRetention, cfg.Queue.DeadRetention, logger)
	go func() {
		if err := maintenance.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("queue maintenance worker stopped")
		}
	}()

	// ---- Use cases + HTTP ----
	scheduleUC := usecase.NewScheduleUseCase(txManager, postRepo, notifRepo, jobQueue, logger)
	server := web.NewServer(scheduleUC, cfg.API.JWTSecret, logger)

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Int("port", cfg.API.Port).Msg("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server")
		}
	}()

	// ---- Shutdown ----
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
	cancel()
}
