// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/translog"
	"github.com/bureau-foundation/dropship/lib/transport/httprepo"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

// Repository is the subset of *httprepo.Client used by HTTPSync.
type Repository interface {
	ListTopLevel(ctx context.Context) ([]string, error)
	ListSubdirectories(ctx context.Context, path string) ([]string, error)
	CreateDirectory(ctx context.Context, path string) error
	DeleteDirectory(ctx context.Context, path string) error
	UploadFile(ctx context.Context, path, localFile string) error
	String() string
}

var _ Repository = (*httprepo.Client)(nil)

// HTTPSyncConfig configures an HTTPSync.
type HTTPSyncConfig struct {
	StagingRoot  string
	Repositories []Repository

	// Pool bounds concurrent version uploads across all repositories.
	Pool *workpool.Pool

	Clock  clock.Clock
	Logger *slog.Logger

	// Log and Metrics are optional.
	Log     *translog.Log
	Metrics *metrics.Metrics
}

// HTTPSync mirrors the staging cache into HTTP repositories.
type HTTPSync struct {
	stagingRoot  string
	repositories []Repository
	pool         *workpool.Pool
	clock        clock.Clock
	logger       *slog.Logger
	log          *translog.Log
	metrics      *metrics.Metrics
}

// NewHTTPSync validates config and returns an HTTPSync.
func NewHTTPSync(config HTTPSyncConfig) (*HTTPSync, error) {
	if config.StagingRoot == "" {
		return nil, fmt.Errorf("mirror: StagingRoot is required")
	}
	if config.Pool == nil {
		return nil, fmt.Errorf("mirror: Pool is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("mirror: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("mirror: Logger is required")
	}
	return &HTTPSync{
		stagingRoot:  config.StagingRoot,
		repositories: config.Repositories,
		pool:         config.Pool,
		clock:        config.Clock,
		logger:       config.Logger.With("component", "httpsync"),
		log:          config.Log,
		metrics:      config.Metrics,
	}, nil
}

// HTTPResult counts what one repository sync did.
type HTTPResult struct {
	Repository      string
	DeletedBranches []string
	Uploaded        []string
	Failed          []string
}

// Run syncs every repository in turn and joins their errors.
func (s *HTTPSync) Run(ctx context.Context) ([]HTTPResult, error) {
	branches, err := localDirectories(s.stagingRoot)
	if err != nil {
		return nil, fmt.Errorf("mirror: http sync: %w", err)
	}

	var results []HTTPResult
	var errs []error
	for _, repository := range s.repositories {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := s.syncRepository(ctx, repository, branches)
		results = append(results, result)
		if err != nil {
			errs = append(errs, fmt.Errorf("mirror: http sync %s: %w", repository, err))
		}
	}
	return results, errors.Join(errs...)
}

func (s *HTTPSync) syncRepository(ctx context.Context, repository Repository, branches []string) (HTTPResult, error) {
	result := HTTPResult{Repository: repository.String()}
	logger := s.logger.With("repository", result.Repository)

	remoteBranches, err := repository.ListTopLevel(ctx)
	if err != nil {
		return result, err
	}

	var errs []error
	for _, remote := range remoteBranches {
		if slices.Contains(branches, remote) {
			continue
		}
		if err := repository.DeleteDirectory(ctx, remote); err != nil {
			errs = append(errs, err)
			logger.Error("deleting remote branch failed", "branch", remote, "error", err)
			continue
		}
		logger.Info("remote branch deleted", "branch", remote)
		result.DeletedBranches = append(result.DeletedBranches, remote)
	}

	type upload struct {
		branch, version string
		handle          *workpool.Handle
		correlationID   string
	}
	var uploads []upload
	for _, branch := range branches {
		localVersions, err := localDirectories(filepath.Join(s.stagingRoot, branch))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		var remoteVersions []string
		if slices.Contains(remoteBranches, branch) {
			remoteVersions, err = repository.ListSubdirectories(ctx, branch)
			if err != nil {
				errs = append(errs, err)
				logger.Error("listing remote versions failed", "branch", branch, "error", err)
				continue
			}
		} else if err := repository.CreateDirectory(ctx, branch); err != nil {
			errs = append(errs, err)
			logger.Error("creating remote branch failed", "branch", branch, "error", err)
			continue
		}

		for _, version := range localVersions {
			if slices.Contains(remoteVersions, version) {
				continue
			}
			correlationID := uuid.NewString()
			localDir := filepath.Join(s.stagingRoot, branch, version)
			remoteDir := path.Join(branch, version)
			handle := s.pool.Submit(ctx, "http "+remoteDir, func(ctx context.Context) error {
				return s.uploadVersion(ctx, repository, localDir, remoteDir, correlationID)
			})
			uploads = append(uploads, upload{branch: branch, version: version, handle: handle, correlationID: correlationID})
		}
	}

	for _, pending := range uploads {
		remoteDir := path.Join(pending.branch, pending.version)
		if err := pending.handle.Wait(); err != nil {
			errs = append(errs, err)
			result.Failed = append(result.Failed, remoteDir)
			continue
		}
		result.Uploaded = append(result.Uploaded, remoteDir)
	}
	return result, errors.Join(errs...)
}

// uploadVersion uploads the top-level installers of one version
// directory. On failure the partial remote version is deleted so the
// next run sees it as missing and uploads it again.
func (s *HTTPSync) uploadVersion(ctx context.Context, repository Repository, localDir, remoteDir, correlationID string) (err error) {
	logger := s.logger.With(
		"correlation_id", correlationID,
		"repository", repository.String(),
		"source", localDir,
		"destination", remoteDir,
	)
	logger.Info("transfer started")
	started := s.clock.Now()
	transport := "http"

	var uploaded []string
	defer func() {
		s.metrics.Transfer(transport, err)
		entry := translog.Entry{
			CorrelationID: correlationID,
			Transport:     transport,
			Source:        localDir,
			Destination:   repository.String() + remoteDir,
			Outcome:       metrics.OutcomeSuccess,
			Duration:      s.clock.Now().Sub(started),
			Copied:        len(uploaded),
			Uploaded:      uploaded,
		}
		if err != nil {
			entry.Outcome = metrics.OutcomeFailure
			entry.Error = err.Error()
			entry.Failed = 1
		}
		if s.log != nil {
			if logErr := s.log.Append(entry); logErr != nil {
				logger.Error("writing transfer log failed", "error", logErr)
			}
		}
	}()

	entries, err := os.ReadDir(localDir)
	if err != nil {
		return err
	}
	if err := repository.CreateDirectory(ctx, remoteDir); err != nil {
		logger.Error("transfer failed", "error", err)
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".exe") {
			continue
		}
		if err := repository.UploadFile(ctx, remoteDir, filepath.Join(localDir, entry.Name())); err != nil {
			logger.Error("transfer failed", "file", entry.Name(), "error", err)
			if cleanupErr := repository.DeleteDirectory(ctx, remoteDir); cleanupErr != nil {
				logger.Warn("removing partial remote version failed", "error", cleanupErr)
			}
			return err
		}
		uploaded = append(uploaded, entry.Name())
	}
	logger.Info("transfer finished", "uploaded", uploaded, "elapsed", s.clock.Now().Sub(started))
	return nil
}

// localDirectories lists the non-hidden subdirectories of directory.
// A missing directory has none.
func localDirectories(directory string) ([]string, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
