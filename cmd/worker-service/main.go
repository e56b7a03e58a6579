package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuongbtq/job-orchestrator/internal/config"
	"github.com/cuongbtq/job-orchestrator/internal/telemetry"
	"github.com/cuongbtq/job-orchestrator/internal/worker"
	"github.com/cuongbtq/job-orchestrator/internal/worker/cleanup"
	"github.com/cuongbtq/job-orchestrator/internal/worker/jobs"
	"github.com/cuongbtq/job-orchestrator/internal/worker/notify"
	"github.com/cuongbtq/job-orchestrator/internal/worker/orchestrator"
	"github.com/cuongbtq/job-orchestrator/internal/worker/report"
	"github.com/cuongbtq/job-orchestrator/internal/worker/retry"
	"github.com/cuongbtq/job-orchestrator/internal/worker/scheduling"
	"github.com/cuongbtq/job-orchestrator/internal/worker/storage"
	"github.com/cuongbtq/job-orchestrator/shared/logger"
	"github.com/cuongbtq/job-orchestrator/shared/postgresql"
	"github.com/cuongbtq/job-orchestrator/shared/rabbitmq"
	"github.com/cuongbtq/job-orchestrator/shared/redis"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

// notifier is what the orchestrator and the report behavior publish through
type notifier interface {
	orchestrator.StatusNotifier
	jobs.ReportNotifier
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("WORKER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/worker-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.ValidateWorkerConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	appLogger, err := initLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	appLogger.Info("Starting worker service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
		slog.String("worker_id", cfg.Worker.ID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := initPostgreSQL(&cfg.Database, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	redisClient, err := initRedis(&cfg.Redis, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	defer redisClient.Close()

	var events notifier = notify.NewLogNotifier(appLogger.Logger)
	if cfg.RabbitMQ.Host != "" {
		rabbitClient, err := initRabbitMQ(&cfg.RabbitMQ, appLogger.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
		defer rabbitClient.Close()
		events = notify.NewRabbitNotifier(rabbitClient, appLogger.Logger)
	} else {
		appLogger.Info("RabbitMQ not configured, job events are only logged")
	}

	var archiver report.Archiver
	if cfg.Reports.S3.Bucket != "" {
		s3Archiver, err := report.NewS3Archiver(ctx, report.S3Config{
			Bucket:    cfg.Reports.S3.Bucket,
			Prefix:    cfg.Reports.S3.Prefix,
			Region:    cfg.Reports.S3.Region,
			Endpoint:  cfg.Reports.S3.Endpoint,
			PathStyle: cfg.Reports.S3.PathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize report archive: %w", err)
		}
		archiver = s3Archiver
	}

	store := storage.NewStorage(dbClient.GetDB(), appLogger.Logger)
	registry := jobs.NewDefaultRegistry()
	capability := scheduling.NewRedisCapability(redisClient.GetClient(), cfg.Redis.Namespace)
	scheduler := scheduling.NewService(capability, registry, appLogger.Logger)

	retryService := retry.NewService(store, scheduler, retry.Config{
		MaxRetries:       cfg.Retry.MaxRetries,
		BaseDelay:        cfg.Retry.BaseDelay,
		MaxDelay:         cfg.Retry.MaxDelay,
		HonorNextRetryAt: cfg.Retry.HonorNextRetryAt,
	}, appLogger.Logger)

	cleanupService := cleanup.NewService(capability, store, cleanup.Config{
		RemoveFromScheduler: cfg.Cleanup.RemoveFromScheduler,
		DeleteFromStore:     cfg.Cleanup.DeleteFromStore,
	}, appLogger.Logger)

	orch := orchestrator.New(&orchestrator.Config{
		Logger:         appLogger.Logger,
		Store:          store,
		Registry:       registry,
		Retry:          retryService,
		Cleanup:        cleanupService,
		Notifier:       events,
		Reports:        report.NewService(store, archiver, appLogger.Logger),
		ReportNotifier: events,
	})

	workerInstance := worker.NewWorker(&worker.Config{
		Logger:        appLogger.Logger,
		WorkerID:      cfg.Worker.ID,
		Source:        capability,
		Executor:      orch,
		Scheduler:     scheduler,
		Jobs:          store,
		Sweeper:       cleanupService,
		Startup:       worker.NewStartupState(),
		Concurrency:   cfg.Worker.Concurrency,
		PollInterval:  cfg.Scheduler.PollInterval,
		JobTimeout:    cfg.Worker.JobTimeout,
		SweepInterval: cfg.Cleanup.SweepInterval,
		RearmDelay:    cfg.Scheduler.RearmDelay,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return workerInstance.Start(gctx)
	})

	if cfg.Metrics.Enabled {
		metricsSrv := newMetricsServer(&cfg.Metrics)

		g.Go(func() error {
			appLogger.Info("Starting metrics server",
				slog.String("address", metricsSrv.Addr),
				slog.String("path", cfg.Metrics.Path),
			)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server failed: %w", err)
			}
			return nil
		})

		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsSrv.Shutdown(shutdownCtx)
		})
	}

	appLogger.Info("Worker service started successfully")

	<-gctx.Done()
	appLogger.Info("Shutting down worker")
	workerInstance.Stop()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			appLogger.Error("Worker stopped with error",
				slog.String("error", err.Error()),
			)
			return err
		}
		appLogger.Info("Worker stopped gracefully")
	case <-time.After(cfg.Worker.ShutdownTimeout):
		appLogger.Warn("Worker shutdown timeout exceeded, forcing exit")
	}

	appLogger.Info("Worker service shutdown complete")
	return nil
}

func newMetricsServer(cfg *config.MetricsConfig) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, telemetry.Handler())

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	return logger.New(&logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
	})
}

// initPostgreSQL initializes the PostgreSQL database client
func initPostgreSQL(cfg *config.DatabaseConfig, logger *slog.Logger) (*postgresql.Client, error) {
	return postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}, logger)
}

func initRedis(cfg *config.RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	return redis.NewClient(&redis.Config{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}, logger)
}

// initRabbitMQ initializes the RabbitMQ publisher
func initRabbitMQ(cfg *config.RabbitMQConfig, logger *slog.Logger) (*rabbitmq.Client, error) {
	return rabbitmq.NewClient(&rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}, logger)
}
