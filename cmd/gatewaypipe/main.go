package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/jittakal/gatewaypipe/internal/config"
	"github.com/jittakal/gatewaypipe/internal/generator"
	"github.com/jittakal/gatewaypipe/internal/observability"
	"github.com/jittakal/gatewaypipe/internal/pipeline"
	"github.com/jittakal/gatewaypipe/internal/server"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("application error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to configuration file")
	flag.Parse()

	// Priority: CLI flag > CONFIG_PATH env var > default path
	cfgPath := *configPath
	if cfgPath == "" {
		cfgPath = os.Getenv("CONFIG_PATH")
	}
	if cfgPath == "" {
		cfgPath = "config/application.yaml"
	}

	cfg, err := config.NewLoader().Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := observability.NewLogger(observability.LoggingConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
		Output: cfg.Observability.Logging.Output,
	})
	logger.Info("starting gatewaypipe",
		"version", cfg.Application.Version,
		"environment", cfg.Application.Environment,
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipelines := pipeline.NewRegistry()
	app, err := newApp(ctx, cfg, pipelines, logger, metrics)
	if err != nil {
		_ = pipelines.ShutdownAll(context.Background())
		return err
	}

	checker := server.NewRegistryChecker(pipelines)
	var admin *server.Admin
	if cfg.Observability.Health.AdminEnabled {
		admin = server.NewAdmin(pipelines, app.sinks.Audit, app.validator, logger)
		if app.ledger != nil {
			admin.SetRateLedger(app.ledger)
		}
	}
	httpServer := server.NewServer(cfg.Observability.Health, cfg.Observability.Metrics, checker, admin, registry, logger)
	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	var background sync.WaitGroup
	if app.archive != nil && cfg.Archive.FlushIntervalSeconds > 0 {
		background.Add(1)
		go func() {
			defer background.Done()
			app.flushPeriodically(ctx, time.Duration(cfg.Archive.FlushIntervalSeconds)*time.Second)
		}()
	}
	if cfg.Generator.Enabled {
		gen := generator.New(generator.Config{
			RequestsPerSec: cfg.Generator.RequestsPerSec,
			Plugins:        cfg.Generator.Plugins,
			Services:       cfg.Generator.Services,
			EventSource:    cfg.Generator.EventSource,
			EventType:      cfg.Generator.EventType,
		}, app.sinks, logger)
		background.Add(1)
		go func() {
			defer background.Done()
			gen.Run(ctx)
		}()
	}

	logger.Info("application started successfully", "pipelines", len(pipelines.Stats()))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info("received termination signal", "signal", sig.String())

	// Stop admitting work before draining the pipelines.
	checker.SetDraining()
	cancel()
	background.Wait()

	done := make(chan error, 1)
	go func() {
		graceCtx, graceCancel := context.WithTimeout(context.Background(), cfg.Shutdown.GracePeriod())
		defer graceCancel()

		var errs []error
		if err := pipelines.ShutdownAll(graceCtx); err != nil {
			errs = append(errs, err)
		}
		if err := app.close(graceCtx); err != nil {
			errs = append(errs, err)
		}
		if err := httpServer.Shutdown(graceCtx); err != nil {
			errs = append(errs, err)
		}
		done <- errors.Join(errs...)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("shutdown completed with errors", "error", err)
			return err
		}
	case <-time.After(cfg.Shutdown.ForceTimeout()):
		return fmt.Errorf("shutdown did not complete within %s", cfg.Shutdown.ForceTimeout())
	}

	logger.Info("application stopped successfully")
	return nil
}
