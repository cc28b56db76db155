// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reaper

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/watch"
)

// Config configures a Reaper.
type Config struct {
	StagingRoot string
	Logger      *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Reaper removes version directories beyond a branch's retention count.
type Reaper struct {
	stagingRoot string
	logger      *slog.Logger
	metrics     *metrics.Metrics
}

// New validates config and returns a Reaper.
func New(config Config) (*Reaper, error) {
	if config.StagingRoot == "" {
		return nil, fmt.Errorf("reaper: StagingRoot is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("reaper: Logger is required")
	}
	return &Reaper{
		stagingRoot: config.StagingRoot,
		logger:      config.Logger.With("component", "reaper"),
		metrics:     config.Metrics,
	}, nil
}

// Reap removes the oldest version directories of branch beyond its
// retention count and returns one Deployed=false record per directory
// actually removed. A failed removal is logged and skipped. The
// returned error is non-nil only when the branch directory cannot be
// listed or ctx is cancelled.
func (r *Reaper) Reap(ctx context.Context, branch watch.ResolvedBranch) ([]trackstore.DeployedPackageInfo, error) {
	if branch.Retention < 1 {
		return nil, fmt.Errorf("reaper: %s: retention %d is below 1", branch, branch.Retention)
	}

	branchDir := filepath.Join(r.stagingRoot, branch.Target())
	entries, err := List(branchDir, true)
	if err != nil {
		return nil, fmt.Errorf("reaper: %s: %w", branch, err)
	}
	if len(entries) <= branch.Retention {
		return nil, nil
	}

	var removed []trackstore.DeployedPackageInfo
	for _, entry := range entries[branch.Retention:] {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if err := RemoveWithin(r.stagingRoot, entry.Path); err != nil {
			r.logger.Error("removing version directory failed",
				"branch", branch.String(),
				"path", entry.Path,
				"error", err,
			)
			continue
		}
		r.logger.Info("version directory removed",
			"branch", branch.String(),
			"version", entry.Name,
			"created", entry.Created,
		)
		r.metrics.DirectoryReaped()
		removed = append(removed, trackstore.DeployedPackageInfo{
			Key: trackstore.Key{
				Project:   branch.Project,
				Branch:    branch.Branch,
				SubBranch: branch.SubBranch,
				Version:   entry.Name,
			},
			Deployed: false,
		})
	}
	return removed, nil
}
