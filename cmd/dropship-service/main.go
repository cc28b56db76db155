// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// dropship-service is the long-running daemon. It loads the
// configuration, opens the tracking store, pings the build server and
// then runs the main poll loop (and the external mirror loop when
// configured) until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/engine"
	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/process"
	"github.com/bureau-foundation/dropship/lib/service"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/upstream"
	"github.com/bureau-foundation/dropship/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	var (
		configPath  string
		logLevel    string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("dropship-service", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "configuration file (default: $DROPSHIP_CONFIG)")
	flagSet.StringVar(&logLevel, "log-level", "info", "minimum log level: debug, info, warn, error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		version.Print("dropship-service")
		return nil
	}

	logger := service.NewLogger(service.ParseLevel(logLevel))

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}
	logger.Info("configuration loaded",
		"environment", cfg.Environment,
		"staging_root", cfg.StagingRoot,
		"state_dir", cfg.StateDir,
		"watched", len(cfg.Watch),
		"poll_interval", cfg.PollInterval,
		"version", version.Info(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	daemonMetrics, err := metrics.New(registry)
	if err != nil {
		return err
	}

	realClock := clock.Real()
	store, err := trackstore.Open(trackstore.Config{
		Path:   cfg.DatabasePath(),
		Clock:  realClock,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := upstream.NewClient(upstream.ClientConfig{
		BaseURL: cfg.Upstream.URL,
		Timeout: cfg.Upstream.Timeout,
	})
	if err != nil {
		return err
	}

	cycleEngine, err := engine.New(engine.Config{
		Settings: cfg,
		Provider: provider,
		Store:    store,
		Clock:    realClock,
		Logger:   logger,
		Metrics:  daemonMetrics,
	})
	if err != nil {
		return err
	}

	serviceConfig := engine.ServiceConfig{
		Engine:       cycleEngine,
		PollInterval: cfg.PollInterval,
		Clock:        realClock,
		Logger:       logger,
	}
	if cfg.ExternalMirror != nil {
		serviceConfig.ExternalInterval = cfg.ExternalMirror.Interval
	}
	loops, err := engine.NewService(serviceConfig)
	if err != nil {
		return err
	}
	// Bind the ops endpoint before starting the loops so a bad
	// metrics_listen fails startup.
	var ops *service.OpsServer
	if cfg.MetricsListen != "" {
		ops, err = service.NewOpsServer(service.OpsServerConfig{
			Address: cfg.MetricsListen,
			Metrics: metrics.Handler(registry),
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		if _, err := ops.Listen(); err != nil {
			return err
		}
	}

	if err := loops.Start(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	if ops != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ops.Serve(ctx); err != nil {
				logger.Error("ops endpoint failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	loops.Stop()
	<-loops.Done()
	wg.Wait()
	logger.Info("dropship-service stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
