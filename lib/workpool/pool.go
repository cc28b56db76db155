// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrReentrant is reported on a handle submitted to a pool from
	// inside one of that pool's running units.
	ErrReentrant = errors.New("workpool: reentrant submission")

	// ErrPanic wraps the recovered value of a panicking unit.
	ErrPanic = errors.New("workpool: unit panicked")
)

// Unit is one piece of work.
type Unit func(ctx context.Context) error

// Config configures a Pool.
type Config struct {
	// Name identifies the pool in log lines.
	Name string

	// Size is the maximum number of concurrently running units.
	Size int

	Logger *slog.Logger
}

// Pool runs units with bounded concurrency.
type Pool struct {
	name   string
	size   int
	slots  *semaphore.Weighted
	logger *slog.Logger
}

type poolKey struct{}

// New creates a pool.
func New(config Config) (*Pool, error) {
	if config.Size < 1 {
		return nil, fmt.Errorf("workpool: Size must be at least 1, got %d", config.Size)
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("workpool: Logger is required")
	}
	return &Pool{
		name:   config.Name,
		size:   config.Size,
		slots:  semaphore.NewWeighted(int64(config.Size)),
		logger: config.Logger.With("pool", config.Name),
	}, nil
}

// Size returns the pool's concurrency bound.
func (p *Pool) Size() int { return p.size }

// Name returns the pool's name.
func (p *Pool) Name() string { return p.name }

// Handle tracks one submitted unit.
type Handle struct {
	name string
	done chan struct{}
	err  error
}

// Name returns the name the unit was submitted with.
func (h *Handle) Name() string { return h.name }

// Done is closed when the unit has finished or was rejected.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the unit finishes and returns its error.
func (h *Handle) Wait() error {
	<-h.done
	return h.err
}

func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Submit starts unit as soon as a slot is free and returns without
// waiting. A context cancelled before a slot frees up finishes the
// handle with the context's error and the unit never runs.
func (p *Pool) Submit(ctx context.Context, name string, unit Unit) *Handle {
	handle := &Handle{name: name, done: make(chan struct{})}

	if owner, _ := ctx.Value(poolKey{}).(*Pool); owner == p {
		err := fmt.Errorf("%w: pool %q, unit %q", ErrReentrant, p.name, name)
		p.logger.Error("rejected reentrant unit", "unit", name, "error", err)
		handle.finish(err)
		return handle
	}

	go func() {
		if err := p.slots.Acquire(ctx, 1); err != nil {
			handle.finish(err)
			return
		}
		defer p.slots.Release(1)
		handle.finish(p.run(context.WithValue(ctx, poolKey{}, p), name, unit))
	}()
	return handle
}

func (p *Pool) run(ctx context.Context, name string, unit Unit) (err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, recovered)
			p.logger.Error("unit panicked",
				"unit", name,
				"error", err,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := unit(ctx); err != nil {
		p.logger.Error("unit failed", "unit", name, "error", err)
		return err
	}
	return nil
}

// AwaitAll waits for every handle and joins their errors.
func AwaitAll(handles []*Handle) error {
	var errs []error
	for _, handle := range handles {
		if err := handle.Wait(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
