package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-intake/cmd/mainconfig"
	"github.com/wolfman30/clinic-intake/internal/app/bootstrap"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/confirmation"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if !cfg.UsesSQS() {
		logger.Error("CONFIRMATION_QUEUE_URL is required; without it the API runs the pipeline in-process")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool == nil {
		logger.Error("DATABASE_URL is required for the confirmation worker")
		os.Exit(1)
	}
	defer pool.Close()
	repo := bootstrap.BuildRepository(pool, cfg, logger)

	awsConfig, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	clients := mainconfig.NewClients(awsConfig, cfg)

	lifecycleMetrics := metrics.NewLifecycleMetrics(prometheus.NewRegistry())

	sender, provider := bootstrap.BuildEmailSender(cfg, clients.SES, logger)
	logger.Info("email provider selected", "provider", provider)
	notifier := notify.NewService(sender, bootstrap.NotifyConfig(cfg), logger, lifecycleMetrics)

	queue, _, err := bootstrap.BuildConfirmationQueue(cfg, clients.SQS, logger)
	if err != nil {
		logger.Error("failed to build confirmation queue", "error", err)
		os.Exit(1)
	}

	processor := bootstrap.BuildProcessor(cfg, repo, bootstrap.BuildRenderer(cfg, logger), notifier, clients.S3, lifecycleMetrics, logger)
	worker := confirmation.NewWorker(processor, queue, logger, bootstrap.WorkerOptions(cfg)...)

	worker.Start(ctx)
	logger.Info("confirmation worker started", "workers", cfg.WorkerCount, "renderer", cfg.RendererURL)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down confirmation worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("confirmation worker stopped")
	case <-doneCtx.Done():
		logger.Error("confirmation worker shutdown timed out", "error", doneCtx.Err())
	}
}
