package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/blog-ueditor/export-api/config"
	redisadapter "github.com/blog-ueditor/export-api/internal/adapters/redis"
	"github.com/blog-ueditor/export-api/internal/fetch"
	"github.com/blog-ueditor/export-api/internal/observability/statsd"
	"github.com/blog-ueditor/export-api/internal/service"
	"github.com/blog-ueditor/export-api/internal/store"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Exports     *service.ExportService
	Sweeper     *service.SweeperService
	MetricsSink *statsd.Client
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	RedisClient goredis.UniversalClient
	Logger      *slog.Logger
}

// NewServices wires the export engine and its adapters.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	if err := os.MkdirAll(cfg.Export.DataDir, 0o755); err != nil {
		return ServiceContainer{}, fmt.Errorf("create export data dir: %w", err)
	}

	metricsSink := buildMetricsSink(cfg.Observability.Metrics, logger)

	var idem store.IdempotencyIndex
	if deps.RedisClient != nil {
		idem = redisadapter.NewIdempotencyIndex(deps.RedisClient)
		logger.Info("using redis idempotency index")
	} else {
		idem = store.NewMemoryIdempotencyIndex()
	}

	fetcher := fetch.NewHTTPFetcher(fetch.Config{
		Timeout:    cfg.Export.FetchTimeout,
		MaxBytes:   cfg.Export.MaxImageBytes,
		Retries:    cfg.Export.FetchRetries,
		RetryDelay: cfg.Export.FetchRetryDelay,
		Logger:     logger,
	})

	exports := service.NewExportService(
		cfg.Export,
		cfg.HTTP.BaseURL,
		store.NewMemoryStore(),
		idem,
		fetcher,
		metricsSink,
		logger,
	)

	sweeper, err := service.NewSweeperService(service.SweeperServiceOptions{
		Exports: exports,
		Config:  cfg.Sweeper,
		Logger:  logger,
		Metrics: metricsSink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("create sweeper service: %w", err)
	}

	return ServiceContainer{
		Exports:     exports,
		Sweeper:     sweeper,
		MetricsSink: metricsSink,
	}, nil
}

func buildMetricsSink(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	if !cfg.IsEnabled() {
		return nil
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.StatsdAddress,
		Prefix:  cfg.StatsdPrefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return nil
	}
	return client
}

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
}

// RunServicesWithShutdown starts all enabled services and manages their
// lifecycle. Blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil || cfg.Config == nil {
		return errors.New("service orchestration config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, len(enabled)+1)

	var httpServer *http.Server
	if enabled[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	var sweeperDone <-chan struct{}
	if enabled[config.ServiceModeSweeper] {
		done := make(chan struct{})
		sweeperDone = done
		go func() {
			defer close(done)
			if err := cfg.Services.Sweeper.Run(serviceCtx); err != nil {
				select {
				case errCh <- fmt.Errorf("sweeper failed: %w", err):
				default:
					logger.Warn("dropping background service error", "service", "sweeper", "error", err)
				}
			}
		}()
		logger.Info("background service started", "service", "sweeper")
	}

	waitErr := waitForShutdown(errCh, logger)
	cancel()

	if httpServer != nil {
		if err := ShutdownHTTPServer(context.Background(), httpServer, cfg.Config.HTTP.ShutdownTimeout, logger); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
	}
	if sweeperDone != nil {
		select {
		case <-sweeperDone:
			logger.Info("sweeper stopped")
		case <-time.After(shutdownWaitTimeout):
			logger.Warn("timeout waiting for sweeper to stop")
		}
	}

	// Drain in-flight fetch passes before releasing the metrics sink.
	cfg.Services.Exports.Close()
	if cfg.Services.MetricsSink != nil {
		_ = cfg.Services.MetricsSink.Close()
	}

	return waitErr
}

// waitForShutdown waits for a shutdown signal or a service error.
func waitForShutdown(errCh <-chan error, logger *slog.Logger) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		logger.Info("shutting down services...")
		return nil
	case err := <-errCh:
		logger.Error("service error", "error", err)
		return err
	}
}
