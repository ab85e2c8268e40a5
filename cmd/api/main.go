package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-intake/cmd/mainconfig"
	"github.com/wolfman30/clinic-intake/internal/api/router"
	"github.com/wolfman30/clinic-intake/internal/app/bootstrap"
	"github.com/wolfman30/clinic-intake/internal/appointments"
	"github.com/wolfman30/clinic-intake/internal/archive"
	appconfig "github.com/wolfman30/clinic-intake/internal/config"
	"github.com/wolfman30/clinic-intake/internal/confirmation"
	httpmiddleware "github.com/wolfman30/clinic-intake/internal/http/middleware"
	"github.com/wolfman30/clinic-intake/internal/notify"
	"github.com/wolfman30/clinic-intake/internal/observability/metrics"
	"github.com/wolfman30/clinic-intake/internal/slip"
	"github.com/wolfman30/clinic-intake/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	// Load configuration
	cfg := appconfig.Load()

	// Initialize logger
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-intake API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("JWT_SECRET not set; authenticated routes will reject every request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := bootstrap.ConnectPostgres(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}
	if pool != nil {
		defer pool.Close()
	}
	repo := bootstrap.BuildRepository(pool, cfg, logger)

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var db appointments.DB
	if pool != nil {
		db = pool
	}
	sequencer, backend, err := bootstrap.BuildSequencer(cfg.SequenceBackend, db, redisClient, repo, logger)
	if err != nil {
		logger.Error("failed to build reference sequencer", "error", err)
		os.Exit(1)
	}
	logger.Info("reference sequencer ready", "backend", backend, "prefix", cfg.ReferencePrefix)

	metricsHandler, lifecycleMetrics := setupMetrics()

	var clients *mainconfig.Clients
	if mainconfig.NeedsAWS(cfg) {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			logger.Error("failed to load AWS config", "error", err)
			os.Exit(1)
		}
		c := mainconfig.NewClients(awsCfg, cfg)
		clients = &c
	}

	var sesClient notify.SESAPI
	var sqsClient confirmation.SQSAPI
	var s3Client archive.S3API
	if clients != nil {
		sesClient, sqsClient, s3Client = clients.SES, clients.SQS, clients.S3
	}

	sender, provider := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	logger.Info("email provider selected", "provider", provider)
	notifier := notify.NewService(sender, bootstrap.NotifyConfig(cfg), logger, lifecycleMetrics)

	queue, inProcess, err := bootstrap.BuildConfirmationQueue(cfg, sqsClient, logger)
	if err != nil {
		logger.Error("failed to build confirmation queue", "error", err)
		os.Exit(1)
	}
	publisher := confirmation.NewPublisher(queue, logger)

	renderer := bootstrap.BuildRenderer(cfg, logger)
	var worker *confirmation.Worker
	if inProcess {
		processor := bootstrap.BuildProcessor(cfg, repo, renderer, notifier, s3Client, lifecycleMetrics, logger)
		worker = confirmation.NewWorker(processor, queue, logger, bootstrap.WorkerOptions(cfg)...)
		worker.Start(ctx)
		logger.Info("confirmation worker running in-process")
	}

	svc := appointments.NewService(repo,
		appointments.NewReferenceGenerator(cfg.ReferencePrefix, sequencer),
		logger,
		appointments.WithNotifier(notifier),
		appointments.WithPublisher(publisher),
		appointments.WithMetrics(lifecycleMetrics),
	)
	handler := appointments.NewHandler(svc, slip.NewRenderer(bootstrap.SlipOptions(cfg)), logger)

	// Setup router
	routerCfg := &router.Config{
		Logger:             logger,
		Appointments:       handler,
		AuthSecret:         cfg.JWTSecret,
		AdminEmails:        cfg.AdminEmails,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		MetricsHandler:     metricsHandler,
		PublicLimiter:      httpmiddleware.NewRateLimiter(ctx, cfg.PublicRateLimit, cfg.PublicRateBurst),
		HealthChecks:       healthChecks(pool, redisClient, renderer),
	}
	r := router.New(routerCfg)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if worker != nil {
		worker.Wait()
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

// setupMetrics registers lifecycle and runtime collectors on a private registry.
func setupMetrics() (http.Handler, *metrics.LifecycleMetrics) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	lifecycle := metrics.NewLifecycleMetrics(registry)
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), lifecycle
}

type readiness interface {
	IsReady(ctx context.Context) bool
}

// healthChecks reports only the dependencies that are configured.
func healthChecks(pool *pgxpool.Pool, redisClient *redis.Client, renderer readiness) map[string]router.HealthCheck {
	checks := map[string]router.HealthCheck{}
	if pool != nil {
		checks["database"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		}
	}
	if renderer != nil {
		checks["renderer"] = func(ctx context.Context) error {
			if !renderer.IsReady(ctx) {
				return errors.New("pdf renderer not ready")
			}
			return nil
		}
	}
	return checks
}
