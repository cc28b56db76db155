// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/translog"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

// Assignment is one unit of mirror work.
type Assignment struct {
	Source      string
	Destination string
	Transport   Transport
}

// Outcome is the result of one Assignment.
type Outcome struct {
	Assignment    Assignment
	CorrelationID string
	Result        SyncResult
	Err           error
}

// Plan assigns every local directory to every transport. Each
// directory must lie under stagingRoot; its path relative to the root
// is joined onto the transport's root to form the destination.
func Plan(stagingRoot string, directories []string, transports []Transport) ([]Assignment, error) {
	var assignments []Assignment
	for _, directory := range directories {
		relative, err := filepath.Rel(stagingRoot, directory)
		if err != nil || relative == "." || relative == ".." || strings.HasPrefix(relative, ".."+string(filepath.Separator)) {
			return nil, fmt.Errorf("mirror: %s is not under staging root %s", directory, stagingRoot)
		}
		for _, transport := range transports {
			assignments = append(assignments, Assignment{
				Source:      directory,
				Destination: filepath.Join(transport.Root(), relative),
				Transport:   transport,
			})
		}
	}
	return assignments, nil
}

// ExternalDestination returns where source is mirrored under
// destination. With createSourceRoot the source's base name is
// appended, unless destination already ends with it.
func ExternalDestination(destination, source string, createSourceRoot bool) string {
	if !createSourceRoot {
		return destination
	}
	base := filepath.Base(filepath.Clean(source))
	trimmed := strings.TrimRight(destination, `/\`)
	last := trimmed
	if index := strings.LastIndexAny(trimmed, `/\`); index >= 0 {
		last = trimmed[index+1:]
	}
	if strings.EqualFold(last, base) {
		return destination
	}
	return filepath.Join(destination, base)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Pool bounds concurrent transfers.
	Pool *workpool.Pool

	Clock  clock.Clock
	Logger *slog.Logger

	// Log and Metrics are optional.
	Log     *translog.Log
	Metrics *metrics.Metrics
}

// Dispatcher runs assignments on a shared pool.
type Dispatcher struct {
	pool    *workpool.Pool
	clock   clock.Clock
	logger  *slog.Logger
	log     *translog.Log
	metrics *metrics.Metrics
}

// NewDispatcher validates config and returns a Dispatcher.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Pool == nil {
		return nil, fmt.Errorf("mirror: Pool is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("mirror: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("mirror: Logger is required")
	}
	return &Dispatcher{
		pool:    config.Pool,
		clock:   config.Clock,
		logger:  config.Logger.With("component", "mirror"),
		log:     config.Log,
		metrics: config.Metrics,
	}, nil
}

// Dispatch runs every assignment and waits for all of them. Outcomes
// are in assignment order. The returned error joins the unit errors.
func (d *Dispatcher) Dispatch(ctx context.Context, assignments []Assignment) ([]Outcome, error) {
	outcomes := make([]Outcome, len(assignments))
	handles := make([]*workpool.Handle, len(assignments))
	for i, assignment := range assignments {
		outcome := &outcomes[i]
		outcome.Assignment = assignment
		outcome.CorrelationID = uuid.NewString()
		handles[i] = d.pool.Submit(ctx, assignment.Transport.Name()+" "+assignment.Source, func(ctx context.Context) error {
			return d.transfer(ctx, outcome)
		})
	}
	err := workpool.AwaitAll(handles)
	for i, handle := range handles {
		// Panics and pool-level errors never reach transfer's own
		// bookkeeping.
		if outcomes[i].Err == nil {
			outcomes[i].Err = handle.Wait()
		}
	}
	return outcomes, err
}

func (d *Dispatcher) transfer(ctx context.Context, outcome *Outcome) error {
	assignment := outcome.Assignment
	name := assignment.Transport.Name()
	logger := d.logger.With(
		"correlation_id", outcome.CorrelationID,
		"transport", name,
		"source", assignment.Source,
		"destination", assignment.Destination,
	)
	logger.Info("transfer started")
	started := d.clock.Now()

	result, err := assignment.Transport.Sync(ctx, assignment.Source, assignment.Destination)
	elapsed := d.clock.Now().Sub(started)
	outcome.Result = result
	outcome.Err = err
	d.metrics.Transfer(name, err)

	entry := translog.Entry{
		CorrelationID: outcome.CorrelationID,
		Transport:     name,
		Source:        assignment.Source,
		Destination:   assignment.Destination,
		Outcome:       metrics.OutcomeSuccess,
		Duration:      elapsed,
		Copied:        result.Copied,
		Removed:       result.Removed,
		Failed:        result.Failed,
		Uploaded:      result.Uploaded,
		Deleted:       result.Deleted,
	}
	if err != nil {
		entry.Outcome = metrics.OutcomeFailure
		entry.Error = err.Error()
		logger.Error("transfer failed",
			"copied", result.Copied,
			"removed", result.Removed,
			"failed", result.Failed,
			"exit_status", result.ExitStatus(),
			"error", err,
		)
	} else {
		logger.Info("transfer finished",
			"copied", result.Copied,
			"removed", result.Removed,
			"exit_status", result.ExitStatus(),
			"uploaded", result.Uploaded,
			"deleted", result.Deleted,
			"elapsed", elapsed,
		)
	}
	if d.log != nil {
		if logErr := d.log.Append(entry); logErr != nil {
			logger.Error("writing transfer log failed", "error", logErr)
		}
	}
	if err != nil {
		return fmt.Errorf("%s %s: %w", name, assignment.Destination, err)
	}
	return nil
}
