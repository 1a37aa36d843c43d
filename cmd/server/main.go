package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/donorhub/notify-pipeline/internal/api"
	"github.com/donorhub/notify-pipeline/internal/api/handler"
	"github.com/donorhub/notify-pipeline/internal/broker"
	"github.com/donorhub/notify-pipeline/internal/config"
	"github.com/donorhub/notify-pipeline/internal/db"
	"github.com/donorhub/notify-pipeline/internal/jobs"
	"github.com/donorhub/notify-pipeline/internal/mailer"
	"github.com/donorhub/notify-pipeline/internal/metrics"
	"github.com/donorhub/notify-pipeline/internal/queue"
	"github.com/donorhub/notify-pipeline/internal/repository"
	"github.com/donorhub/notify-pipeline/internal/service"
	"github.com/donorhub/notify-pipeline/internal/worker"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync() //nolint:errcheck

	// ---- configuration ----
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	// ---- database ----
	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	logger.Info("database migrations applied")

	// ---- core dependencies ----
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	onPublished, onDropped := m.BrokerHooks()
	b := broker.New(cfg.SubscriberBuffer, broker.Hooks{
		OnPublished: onPublished,
		OnDropped:   onDropped,
	})

	q := queue.NewPgQueue(pool, queue.Options{
		MaxAttempts:       cfg.MaxAttempts,
		VisibilityTimeout: cfg.VisibilityTimeout,
		PollInterval:      cfg.QueuePollInterval,
		BackoffBase:       cfg.RetryBackoffBase,
		BackoffMax:        cfg.RetryBackoffMax,
	})

	repo := repository.NewPgNotificationRepository(pool)
	mail := mailer.NewHTTPMailer(cfg.MailerBaseURL, cfg.MailerTimeout, cfg.MailRateLimit)
	svc := service.NewNotificationService(repo, q, logger)

	registry := jobs.NewRegistry(
		jobs.NewDonationSuccessHandler(repo, b, mail, logger),
	)

	// ---- worker pool ----
	// Context for all background goroutines; cancelled on shutdown signal.
	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	pool2 := worker.NewPool(cfg.Workers, q, registry, logger, m.WorkerHooks())
	pool2.Start(workerCtx)

	// Queue-depth gauges are refreshed on a slow tick rather than per
	// operation; the JSON snapshot endpoint reads live counts instead.
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return
			case <-ticker.C:
				stats, err := q.Stats(workerCtx)
				if err != nil {
					continue
				}
				m.QueueDepthWaiting.Set(float64(stats.Waiting))
				m.QueueDepthActive.Set(float64(stats.Active))
				m.QueueDepthFailed.Set(float64(stats.Failed))
			}
		}
	}()

	// ---- HTTP server ----
	onConnect, onDisconnect := m.StreamHooks()
	router := api.NewRouter(svc, b, cfg.StreamHeartbeat, reg, logger, handler.StreamHooks{
		OnConnect:    onConnect,
		OnDisconnect: onDisconnect,
	})
	srv := &http.Server{
		Addr:        ":" + cfg.HTTPPort,
		Handler:     router,
		ReadTimeout: cfg.ReadTimeout,
		// No WriteTimeout: the event stream holds connections open
		// indefinitely and a server-wide deadline would sever every
		// subscriber mid-stream.
	}

	// Start server in a goroutine so it does not block the shutdown listener.
	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// ---- graceful shutdown ----
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown signal received")

	// 1. Stop claiming new jobs and let in-flight handlers finish.
	cancelWorkers()
	pool2.Wait()

	// 2. Drain the broker: every stream subscription's channel closes,
	//    which unwinds the gateway loops and releases their connections.
	b.Close()

	// 3. Stop the HTTP server; step 2 already unblocked the streamers,
	//    so Shutdown can complete within the timeout.
	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	logger.Info("server stopped cleanly")
}
