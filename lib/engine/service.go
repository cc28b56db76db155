// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/metrics"
)

// DefaultExtendInterval is how often Pause calls its extend callback
// while waiting for the loops to reach a checkpoint.
const DefaultExtendInterval = 10 * time.Second

// ServiceConfig configures a Service.
type ServiceConfig struct {
	Engine *Engine

	// PollInterval separates the end of one main cycle from the start
	// of the next.
	PollInterval time.Duration

	// ExternalInterval does the same for the external mirror loop,
	// which only runs when the engine has external entries.
	ExternalInterval time.Duration

	// ExtendInterval defaults to DefaultExtendInterval.
	ExtendInterval time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Service runs the engine's loops until stopped.
type Service struct {
	engine           *Engine
	pollInterval     time.Duration
	externalInterval time.Duration
	extendInterval   time.Duration
	clock            clock.Clock
	logger           *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewService validates config and returns a stopped Service.
func NewService(config ServiceConfig) (*Service, error) {
	var errs []error
	if config.Engine == nil {
		errs = append(errs, errors.New("engine: Engine is required"))
	}
	if config.PollInterval <= 0 {
		errs = append(errs, fmt.Errorf("engine: PollInterval must be positive, got %s", config.PollInterval))
	}
	if config.Clock == nil {
		errs = append(errs, errors.New("engine: Clock is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("engine: Logger is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	externalInterval := config.ExternalInterval
	if externalInterval <= 0 {
		externalInterval = config.PollInterval
	}
	extendInterval := config.ExtendInterval
	if extendInterval <= 0 {
		extendInterval = DefaultExtendInterval
	}
	return &Service{
		engine:           config.Engine,
		pollInterval:     config.PollInterval,
		externalInterval: externalInterval,
		extendInterval:   extendInterval,
		clock:            config.Clock,
		logger:           config.Logger.With("component", "service"),
	}, nil
}

// Start pings the build server and launches the loops. A failed ping
// is returned and nothing is started. Start may be called again once
// the previous loops have exited.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		select {
		case <-s.done:
		default:
			return errors.New("engine: service is already running")
		}
	}

	if err := s.engine.Ping(ctx); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.loop(loopCtx, metrics.LoopMain, s.pollInterval, func(ctx context.Context) error {
			_, err := s.engine.Cycle(ctx)
			return err
		})
	}()
	external := s.engine.HasExternalMirror()
	if external {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(loopCtx, metrics.LoopExternal, s.externalInterval, s.engine.ExternalMirrorCycle)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	s.cancel = cancel
	s.done = done
	s.logger.Info("service started",
		"poll_interval", s.pollInterval,
		"external_mirror", external,
	)
	return nil
}

// loop runs cycle immediately and then interval after each completion
// until ctx is cancelled. A failed cycle is retried at the next tick.
func (s *Service) loop(ctx context.Context, name string, interval time.Duration, cycle func(context.Context) error) {
	logger := s.logger.With("loop", name)
	for {
		if err := cycle(ctx); err != nil && ctx.Err() == nil {
			logger.Warn("cycle failed, retrying at next tick", "error", err, "next_in", interval)
		}
		select {
		case <-ctx.Done():
			logger.Info("loop stopped")
			return
		case <-s.clock.After(interval):
		}
	}
}

// Done returns a channel closed when the loops of the most recent
// Start have exited. It is closed already if the service never
// started.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return s.done
}

// Pause asks the loops to stop and blocks until they have, calling
// extend every extend interval while it waits. ctx bounds the wait
// only; the loops still stop if it expires.
func (s *Service) Pause(ctx context.Context, extend func()) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	s.logger.Info("pause requested, waiting for in-flight cycle")
	cancel()
	for {
		select {
		case <-done:
			s.logger.Info("service paused")
			return nil
		case <-ctx.Done():
			return fmt.Errorf("engine: waiting for pause: %w", ctx.Err())
		case <-s.clock.After(s.extendInterval):
			if extend != nil {
				extend()
			}
		}
	}
}

// Stop asks the loops to exit at their next checkpoint without waiting
// for them. Use Done to wait.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	s.logger.Info("service stopping")
	if cancel != nil {
		cancel()
	}
}
