// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const opsShutdownTimeout = 10 * time.Second

// OpsServerConfig configures the daemon's operational listener.
type OpsServerConfig struct {
	// Address is the metrics_listen address, e.g. ":9464".
	Address string

	// Metrics serves /metrics. Nil leaves the path unrouted.
	Metrics http.Handler

	// Healthy backs /healthz. Nil always reports healthy.
	Healthy func() error

	Logger *slog.Logger
}

// OpsServer serves /metrics and /healthz.
type OpsServer struct {
	address  string
	handler  http.Handler
	logger   *slog.Logger
	listener net.Listener
}

// NewOpsServer validates config. Call Listen, then Serve.
func NewOpsServer(config OpsServerConfig) (*OpsServer, error) {
	var errs []error
	if config.Address == "" {
		errs = append(errs, errors.New("service: Address is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("service: Logger is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &OpsServer{
		address: config.Address,
		handler: OpsHandler(config.Metrics, config.Healthy),
		logger:  config.Logger.With("component", "ops"),
	}, nil
}

// Listen binds the address so that a bad metrics_listen fails at
// startup rather than inside a goroutine. It returns the bound
// address, which differs from the configured one for port 0.
func (s *OpsServer) Listen() (net.Addr, error) {
	listener, err := net.Listen("tcp", s.address)
	if err != nil {
		return nil, fmt.Errorf("service: listening on %s: %w", s.address, err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Serve handles requests until ctx ends, then drains them.
func (s *OpsServer) Serve(ctx context.Context) error {
	if s.listener == nil {
		return errors.New("service: Serve called before Listen")
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	s.logger.Info("ops endpoint listening", "address", s.listener.Addr().String())

	failed := make(chan error, 1)
	go func() {
		if err := server.Serve(s.listener); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	select {
	case err := <-failed:
		return fmt.Errorf("service: ops endpoint: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opsShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("service: ops endpoint shutdown: %w", err)
	}
	s.logger.Info("ops endpoint stopped")
	return nil
}

// OpsHandler routes /metrics to metrics and answers /healthz with
// "ok", or 503 and the error text when healthy fails.
func OpsHandler(metrics http.Handler, healthy func() error) http.Handler {
	mux := http.NewServeMux()
	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /healthz", func(writer http.ResponseWriter, _ *http.Request) {
		if healthy != nil {
			if err := healthy(); err != nil {
				http.Error(writer, err.Error(), http.StatusServiceUnavailable)
				return
			}
		}
		fmt.Fprint(writer, "ok")
	})
	return mux
}
