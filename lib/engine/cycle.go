// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dropship/lib/matcher"
	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/mirror"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/watch"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

// CycleReport summarizes one main cycle.
type CycleReport struct {
	ID        string `json:"cycle_id"`
	Branches  int    `json:"branches"`
	Matched   int    `json:"matched"`
	Staged    int    `json:"staged"`
	Reaped    int    `json:"reaped"`
	Transfers int    `json:"transfers"`
	Failed    int    `json:"failed_transfers"`
}

// Cycle runs one main poll cycle. Stage failures are logged and joined
// into the returned error; later stages still run. A cancelled ctx
// stops the cycle at the next stage boundary.
func (e *Engine) Cycle(ctx context.Context) (report CycleReport, err error) {
	report.ID = uuid.NewString()
	logger := e.logger.With("cycle_id", report.ID)
	started := e.clock.Now()
	logger.Info("cycle started", "watched", len(e.specs))
	defer func() {
		elapsed := e.clock.Now().Sub(started)
		e.metrics.CycleFinished(metrics.LoopMain, elapsed, err)
		attrs := []any{
			"elapsed", elapsed,
			"branches", report.Branches,
			"matched", report.Matched,
			"staged", report.Staged,
			"reaped", report.Reaped,
			"transfers", report.Transfers,
			"failed_transfers", report.Failed,
		}
		if err != nil {
			logger.Error("cycle finished", append(attrs, "error", err)...)
			return
		}
		logger.Info("cycle finished", attrs...)
	}()

	work := context.WithoutCancel(ctx)
	var errs []error

	var branches []watch.ResolvedBranch
	if len(e.specs) > 0 {
		branches, err = e.resolver.Resolve(work, e.specs)
		if err != nil {
			return report, fmt.Errorf("engine: resolving branches: %w", err)
		}
	}
	report.Branches = len(branches)
	if err := ctx.Err(); err != nil {
		return report, err
	}

	if e.settings.Toggles.BuildUpdate && len(branches) > 0 {
		results := e.match(work, logger, branches)
		report.Matched = len(results)
		e.reportMatchCount(logger, len(results))
		if err := ctx.Err(); err != nil {
			return report, err
		}

		staged, acquireErr := e.pipeline.AcquireAll(work, results)
		if acquireErr != nil {
			errs = append(errs, acquireErr)
		}
		for _, s := range staged {
			if s.Directory != "" && !s.AlreadyRecorded {
				report.Staged++
			}
		}
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, err)...)
		}
	}

	for _, branch := range branches {
		removed, reapErr := e.reaper.Reap(work, branch)
		if reapErr != nil {
			logger.Error("cleanup failed", "branch", branch.String(), "error", reapErr)
			errs = append(errs, reapErr)
		}
		report.Reaped += len(removed)
		for _, info := range removed {
			e.markRemoved(work, logger, info)
		}
	}
	if err := ctx.Err(); err != nil {
		return report, errors.Join(append(errs, err)...)
	}

	if len(e.transports) > 0 {
		assignments, planErr := mirror.Plan(e.settings.StagingRoot, e.stagedDirectories(branches), e.transports)
		if planErr != nil {
			errs = append(errs, planErr)
		}
		outcomes, dispatchErr := e.dispatcher.Dispatch(work, assignments)
		if dispatchErr != nil {
			errs = append(errs, dispatchErr)
		}
		report.Transfers = len(outcomes)
		for _, outcome := range outcomes {
			if outcome.Err != nil {
				report.Failed++
			}
		}
	}
	if e.httpSync != nil {
		if err := ctx.Err(); err != nil {
			return report, errors.Join(append(errs, err)...)
		}
		if _, syncErr := e.httpSync.Run(work); syncErr != nil {
			errs = append(errs, syncErr)
		}
	}

	e.maintainLog(logger)
	return report, errors.Join(errs...)
}

// match runs the matcher for every branch on the acquire pool. Branches
// without a matching build are logged and left out.
func (e *Engine) match(ctx context.Context, logger *slog.Logger, branches []watch.ResolvedBranch) []matcher.Result {
	results := make([]matcher.Result, len(branches))
	matched := make([]bool, len(branches))
	handles := make([]*workpool.Handle, len(branches))
	for i, branch := range branches {
		handles[i] = e.acquirePool.Submit(ctx, "match "+branch.String(), func(ctx context.Context) error {
			result, err := e.matcher.Match(ctx, branch)
			if err != nil {
				return err
			}
			results[i] = result
			matched[i] = true
			return nil
		})
	}

	var found []matcher.Result
	for i, handle := range handles {
		if err := handle.Wait(); err != nil {
			if errors.Is(err, matcher.ErrNoMatch) {
				logger.Info("no build matched", "branch", branches[i].String())
			} else {
				logger.Error("matching failed", "branch", branches[i].String(), "error", err)
			}
			continue
		}
		if matched[i] {
			found = append(found, results[i])
		}
	}
	return found
}

// reportMatchCount compares the matched branch count to the number of
// watch entries. Fewer matches than entries means a watched branch
// produced nothing; more is normal when an entry covers a folder of
// sub-branches.
func (e *Engine) reportMatchCount(logger *slog.Logger, found int) {
	expected := len(e.specs)
	switch {
	case found < expected:
		logger.Warn("fewer branches matched than watched", "expected", expected, "found", found)
	case found > expected:
		logger.Info("watch entries expanded to more matched branches", "expected", expected, "found", found)
	}
}

// markRemoved records that a reaped version is no longer deployed.
// Directories that were never recorded are expected.
func (e *Engine) markRemoved(ctx context.Context, logger *slog.Logger, info trackstore.DeployedPackageInfo) {
	err := e.store.UpdateStatus(ctx, info)
	switch {
	case err == nil:
		logger.Info("package marked removed", "package", info.Key.String())
	case errors.Is(err, trackstore.ErrNotFound):
		logger.Debug("reaped version has no record", "package", info.Key.String())
	default:
		logger.Error("updating package status failed", "package", info.Key.String(), "error", err)
	}
}

// maintainLog compresses finished transfer logs and prunes the oldest.
func (e *Engine) maintainLog(logger *slog.Logger) {
	if err := e.log.Rotate(); err != nil {
		logger.Error("rotating transfer logs failed", "error", err)
	}
	removed, err := e.log.Prune()
	if err != nil {
		logger.Error("pruning transfer logs failed", "error", err)
	}
	if len(removed) > 0 {
		logger.Info("transfer logs pruned", "removed", len(removed))
	}
}
