package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/spf13/cobra"

	"github.com/DarsanV/HackaThrone-team91/internal/api"
	"github.com/DarsanV/HackaThrone-team91/internal/bus"
	"github.com/DarsanV/HackaThrone-team91/internal/cache"
	"github.com/DarsanV/HackaThrone-team91/internal/detection"
	"github.com/DarsanV/HackaThrone-team91/internal/dispute"
	"github.com/DarsanV/HackaThrone-team91/internal/domain"
	"github.com/DarsanV/HackaThrone-team91/internal/history"
	"github.com/DarsanV/HackaThrone-team91/internal/lifecycle"
	"github.com/DarsanV/HackaThrone-team91/internal/metrics"
	"github.com/DarsanV/HackaThrone-team91/internal/notify"
	"github.com/DarsanV/HackaThrone-team91/internal/policy"
	"github.com/DarsanV/HackaThrone-team91/internal/repository"
	"github.com/DarsanV/HackaThrone-team91/internal/risk"
	"github.com/DarsanV/HackaThrone-team91/internal/rules"
	"github.com/DarsanV/HackaThrone-team91/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the assessment worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	slog.Info("starting snapnearn",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"detection", cfg.Detection.BaseURL != "",
	)

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Sentry.DSN,
			Environment: cfg.Sentry.Environment,
			SampleRate:  cfg.Sentry.SampleRate,
			Release:     "snapnearn@" + Version,
		}); err != nil {
			slog.Warn("failed to initialize sentry", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			slog.Info("sentry error reporting enabled", "environment", cfg.Sentry.Environment)
		}
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pol, err := policy.Load(cfg.Policy.Path)
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}
	slog.Info("policy loaded",
		"path", cfg.Policy.Path,
		"hash", pol.Hash,
		"signals", len(pol.Risk.Signals),
	)

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("initialize metrics: %w", err)
	}

	store, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("initialize repository: %w", err)
	}
	defer store.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	ruleEngine, err := rules.NewEngine(8)
	if err != nil {
		return fmt.Errorf("initialize rule engine: %w", err)
	}
	assessor := risk.NewAssessor(ruleEngine, logger)
	if err := assessor.Load(pol.Risk.Signals, pol.Hash); err != nil {
		return fmt.Errorf("load risk signals: %w", err)
	}

	publisher := notify.NewPublisher(busImpl, m, logger)
	hist := history.NewService(store, cacheImpl, logger)

	engine := lifecycle.New(store,
		lifecycle.WithNotifier(publisher),
		lifecycle.WithHistory(hist),
		lifecycle.WithMetrics(m),
		lifecycle.WithLogger(logger),
		lifecycle.WithDuplicateWindow(cfg.Lifecycle.DuplicateWindow),
	)
	workflow := dispute.New(store,
		dispute.WithNotifier(publisher),
		dispute.WithMetrics(m),
		dispute.WithLogger(logger),
	)

	var assessWorker *worker.Worker
	if cfg.Worker.Enabled {
		assessWorker = worker.New(busImpl, worker.Deps{
			Reports:  engine,
			Disputes: workflow,
			Assessor: assessor,
			Detector: detection.New(cfg.Detection, cacheImpl, logger),
			History:  hist,
			Metrics:  m,
			Logger:   logger,
		})
		if err := assessWorker.Start(ctx); err != nil {
			return fmt.Errorf("start assessment worker: %w", err)
		}
	}

	srv := api.NewServer(cfg.Server, api.Deps{
		Reports:  engine,
		Disputes: workflow,
		Assessor: assessor,
		Store:    store,
		Cache:    cacheImpl,
		Bus:      busImpl,
		Schedule: pol.Schedule(),
		Metrics:  m,
		Intake:   cfg.Intake,
		Notice:   cfg.Notice,
		Version:  Version,
	})

	serveErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("snapnearn is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"worker", cfg.Worker.Enabled,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-serveErr:
		if err != nil {
			slog.Error("server failed", "error", err)
			return err
		}
	}

	// Stop consuming before the stores close underneath the worker.
	if assessWorker != nil {
		if err := assessWorker.Stop(); err != nil {
			slog.Error("failed to stop assessment worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("snapnearn shutdown complete")
	return nil
}

// openStore loads config and opens the report store for one-shot commands.
func openStore(configPath string) (*domain.Config, domain.ReportStore, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(newLogger(cfg.Logging))

	store, err := repository.New(cfg.Repository)
	if err != nil {
		return nil, nil, fmt.Errorf("initialize repository: %w", err)
	}
	return cfg, store, nil
}
