// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/dropship/lib/checksum"
	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/manifest"
	"github.com/bureau-foundation/dropship/lib/matcher"
	"github.com/bureau-foundation/dropship/lib/metrics"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/transport/fileshare"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

// Store is the part of the tracking store the pipeline writes.
type Store interface {
	FindByKey(ctx context.Context, key trackstore.Key) (trackstore.Package, error)
	InsertWithChildren(ctx context.Context, pkg trackstore.Package) (int64, error)
	AttachChecksum(ctx context.Context, key trackstore.ArtifactKey, checksum string) error
}

// Config configures a Pipeline.
type Config struct {
	StagingRoot string
	Store       Store

	// BranchPool runs one unit per branch in AcquireAll.
	BranchPool *workpool.Pool

	// ArtifactPool runs one copy per artifact. It must not be
	// BranchPool: copies are submitted from inside branch units.
	ArtifactPool *workpool.Pool

	// Checksums enables hashing staged artifacts after recording.
	Checksums bool

	Clock  clock.Clock
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics
}

// Pipeline stages packages.
type Pipeline struct {
	stagingRoot  string
	store        Store
	branchPool   *workpool.Pool
	artifactPool *workpool.Pool
	checksums    bool
	clock        clock.Clock
	logger       *slog.Logger
	metrics      *metrics.Metrics
}

// New validates config and returns a Pipeline.
func New(config Config) (*Pipeline, error) {
	var errs []error
	if config.StagingRoot == "" {
		errs = append(errs, errors.New("acquire: StagingRoot is required"))
	}
	if config.Store == nil {
		errs = append(errs, errors.New("acquire: Store is required"))
	}
	if config.BranchPool == nil {
		errs = append(errs, errors.New("acquire: BranchPool is required"))
	}
	if config.ArtifactPool == nil {
		errs = append(errs, errors.New("acquire: ArtifactPool is required"))
	} else if config.ArtifactPool == config.BranchPool {
		errs = append(errs, errors.New("acquire: ArtifactPool and BranchPool must differ"))
	}
	if config.Clock == nil {
		errs = append(errs, errors.New("acquire: Clock is required"))
	}
	if config.Logger == nil {
		errs = append(errs, errors.New("acquire: Logger is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Pipeline{
		stagingRoot:  config.StagingRoot,
		store:        config.Store,
		branchPool:   config.BranchPool,
		artifactPool: config.ArtifactPool,
		checksums:    config.Checksums,
		clock:        config.Clock,
		logger:       config.Logger.With("component", "acquire"),
		metrics:      config.Metrics,
	}, nil
}

// Staged reports what Acquire did for one match.
type Staged struct {
	Key       trackstore.Key
	Directory string

	// AlreadyRecorded is set when the key was in the store and
	// nothing was staged.
	AlreadyRecorded bool

	Expected  int
	Copied    int
	PackageID int64
}

// Destination returns the version directory for a branch target.
func Destination(stagingRoot, target, version string) string {
	return filepath.Join(stagingRoot, target, version)
}

func keyOf(result matcher.Result) trackstore.Key {
	return trackstore.Key{
		Project:   result.Branch.Project,
		Branch:    result.Branch.Branch,
		SubBranch: result.Branch.SubBranch,
		Version:   result.Version,
	}
}

// AcquireAll runs Acquire for every result on the branch pool and
// waits for all of them. A failing branch does not stop the others;
// the returned slice has an entry per result in input order, and the
// error joins the failures.
func (p *Pipeline) AcquireAll(ctx context.Context, results []matcher.Result) ([]Staged, error) {
	staged := make([]Staged, len(results))
	handles := make([]*workpool.Handle, len(results))
	for i, result := range results {
		handles[i] = p.branchPool.Submit(ctx, "acquire "+result.Branch.String(), func(ctx context.Context) error {
			var err error
			staged[i], err = p.Acquire(ctx, result)
			return err
		})
	}
	return staged, workpool.AwaitAll(handles)
}

// Acquire stages and records result unless its key is already
// recorded.
func (p *Pipeline) Acquire(ctx context.Context, result matcher.Result) (Staged, error) {
	key := keyOf(result)
	staged := Staged{Key: key, Expected: len(result.Artifacts)}
	if key.Version == "" {
		return staged, fmt.Errorf("acquire: %s: match has no version", result.Branch)
	}

	_, err := p.store.FindByKey(ctx, key)
	switch {
	case err == nil:
		staged.AlreadyRecorded = true
		p.logger.Debug("package already recorded", "package", key.String())
		return staged, nil
	case !errors.Is(err, trackstore.ErrNotFound):
		return staged, fmt.Errorf("acquire: checking %s: %w", key, err)
	}

	destination := Destination(p.stagingRoot, result.Branch.Target(), key.Version)
	staged.Directory = destination
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return staged, fmt.Errorf("acquire: creating %s: %w", destination, err)
	}
	logger := p.logger.With("package", key.String(), "destination", destination)
	logger.Info("staging package", "artifacts", len(result.Artifacts), "builds", len(result.Builds))

	copied := p.copyArtifacts(ctx, result.Artifacts, destination, logger)
	for _, ok := range copied {
		if ok {
			staged.Copied++
		}
	}
	if err := ctx.Err(); err != nil {
		return staged, err
	}
	if staged.Copied != staged.Expected {
		logger.Error("staged artifact count mismatch",
			"expected", staged.Expected,
			"copied", staged.Copied,
		)
	}

	stagedAt := p.clock.Now()
	if err := manifest.Write(destination, buildManifest(result, copied, stagedAt)); err != nil {
		return staged, fmt.Errorf("acquire: %s: %w", key, err)
	}

	pkg := trackstore.Package{
		Key:             key,
		Deployed:        true,
		BuildCompletion: result.Completion(),
		RecordTime:      stagedAt,
	}
	for _, artifact := range result.Artifacts {
		pkg.Artifacts = append(pkg.Artifacts, trackstore.Artifact{
			FileName:    artifact.FileName,
			SourcePath:  artifact.SourcePath,
			BuildNumber: artifact.BuildNumber,
			Size:        artifact.Size,
		})
	}
	staged.PackageID, err = p.store.InsertWithChildren(ctx, pkg)
	if errors.Is(err, trackstore.ErrDuplicate) {
		// Another acquisition recorded the same key first.
		staged.AlreadyRecorded = true
		return staged, nil
	}
	if err != nil {
		return staged, fmt.Errorf("acquire: recording %s: %w", key, err)
	}
	p.metrics.PackageStaged()
	logger.Info("package staged", "id", staged.PackageID, "copied", staged.Copied, "expected", staged.Expected)

	if p.checksums {
		p.attachChecksums(ctx, key, destination, logger)
	}
	return staged, nil
}

// copyArtifacts copies every artifact on the artifact pool and reports
// per-index success.
func (p *Pipeline) copyArtifacts(ctx context.Context, artifacts []matcher.Artifact, destination string, logger *slog.Logger) []bool {
	copied := make([]bool, len(artifacts))
	handles := make([]*workpool.Handle, len(artifacts))
	for i, artifact := range artifacts {
		handles[i] = p.artifactPool.Submit(ctx, "copy "+artifact.FileName, func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			_, err := fileshare.CopyFile(artifact.SourcePath, filepath.Join(destination, artifact.FileName))
			p.metrics.ArtifactCopied(err)
			if err != nil {
				return fmt.Errorf("copying %s: %w", artifact.FileName, err)
			}
			copied[i] = true
			return nil
		})
	}
	if err := workpool.AwaitAll(handles); err != nil {
		logger.Error("artifact copies failed", "error", err)
	}
	return copied
}

func buildManifest(result matcher.Result, copied []bool, stagedAt time.Time) manifest.Manifest {
	m := manifest.Manifest{
		Project:   result.Branch.Project,
		Branch:    result.Branch.Branch,
		SubBranch: result.Branch.SubBranch,
		Version:   result.Version,
		StagedAt:  stagedAt,
	}
	for _, build := range result.Builds {
		m.Builds = append(m.Builds, manifest.Build{
			Definition:     build.DefinitionName,
			URI:            build.RemoteBuildURI,
			BuildNumber:    build.BuildNumber,
			Completed:      build.CompletionTime,
			SourceRevision: build.SourceRevision,
			DropLocation:   build.DropLocation,
		})
	}
	for i, artifact := range result.Artifacts {
		m.Artifacts = append(m.Artifacts, manifest.File{
			Name:        artifact.FileName,
			SourcePath:  artifact.SourcePath,
			BuildNumber: artifact.BuildNumber,
			Size:        artifact.Size,
			Staged:      copied[i],
		})
	}
	return m
}

// attachChecksums hashes every top-level installer in destination and
// stores the digest on the matching artifact record. Failures are
// logged and leave the checksum empty.
func (p *Pipeline) attachChecksums(ctx context.Context, key trackstore.Key, destination string, logger *slog.Logger) {
	entries, err := os.ReadDir(destination)
	if err != nil {
		logger.Error("listing staged artifacts for checksums failed", "error", err)
		return
	}
	attached := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		name := entry.Name()
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(name), ".exe") {
			continue
		}
		digest, err := checksum.HashFile(filepath.Join(destination, name))
		if err != nil {
			logger.Error("checksum failed", "file", name, "error", err)
			continue
		}
		err = p.store.AttachChecksum(ctx, trackstore.ArtifactKey{Package: key, FileName: name}, digest.String())
		if errors.Is(err, trackstore.ErrNotFound) {
			logger.Warn("staged file has no artifact record", "file", name)
			continue
		}
		if err != nil {
			logger.Error("attaching checksum failed", "file", name, "error", err)
			continue
		}
		attached++
	}
	logger.Info("checksums attached", "count", attached)
}
