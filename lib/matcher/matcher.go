// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package matcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/upstream"
	"github.com/bureau-foundation/dropship/lib/watch"
)

// ErrNoMatch is returned when no target produced a build for a branch.
var ErrNoMatch = errors.New("matcher: no target build matched")

// BuildRecord is one matched last-good build.
type BuildRecord struct {
	DefinitionName string
	RemoteBuildURI string
	BuildNumber    string
	CompletionTime time.Time
	SourceRevision string
	DropLocation   string
}

// Artifact is one installable file found in a drop location.
type Artifact struct {
	FileName    string
	SourcePath  string
	BuildNumber string
	Size        int64
}

// Skip records why a target produced nothing.
type Skip struct {
	Target string
	Reason string
}

// Result is everything matched for one branch.
type Result struct {
	Branch    watch.ResolvedBranch
	Version   string
	Builds    []BuildRecord
	Artifacts []Artifact
	Skipped   []Skip
}

// Completion returns the latest completion time among the builds.
func (r Result) Completion() time.Time {
	var latest time.Time
	for _, build := range r.Builds {
		if build.CompletionTime.After(latest) {
			latest = build.CompletionTime
		}
	}
	return latest
}

// Matcher matches a resolved branch to its builds and artifacts.
type Matcher interface {
	Match(ctx context.Context, branch watch.ResolvedBranch) (Result, error)
}

// Config configures the naming-convention matcher.
type Config struct {
	Provider upstream.Provider

	// TargetBuilds are definition name suffixes, tried in order.
	TargetBuilds []string

	// ManifestPrefixes select artifacts by file name prefix.
	// "{BRANCH}" is replaced by the sub-branch.
	ManifestPrefixes []string

	// MaxBuildAge skips builds that completed longer ago. Zero
	// disables the bound.
	MaxBuildAge time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Heuristic is the naming-convention Matcher.
type Heuristic struct {
	provider    upstream.Provider
	targets     []string
	prefixes    []string
	maxBuildAge time.Duration
	clock       clock.Clock
	logger      *slog.Logger
}

// New validates config and returns a Heuristic matcher.
func New(config Config) (*Heuristic, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("matcher: Provider is required")
	}
	if len(config.TargetBuilds) == 0 {
		return nil, fmt.Errorf("matcher: TargetBuilds is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("matcher: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("matcher: Logger is required")
	}
	return &Heuristic{
		provider:    config.Provider,
		targets:     config.TargetBuilds,
		prefixes:    config.ManifestPrefixes,
		maxBuildAge: config.MaxBuildAge,
		clock:       config.Clock,
		logger:      config.Logger.With("component", "matcher"),
	}, nil
}

// claimSet records which file names have been taken. The first
// LoadOrStore for a name wins.
type claimSet struct {
	names sync.Map
}

func (s *claimSet) claim(fileName, owner string) bool {
	_, loaded := s.names.LoadOrStore(strings.ToUpper(fileName), owner)
	return !loaded
}

// Match tries every target for branch. It returns ErrNoMatch when none
// produced a build, and otherwise only a context error.
func (h *Heuristic) Match(ctx context.Context, branch watch.ResolvedBranch) (Result, error) {
	logger := h.logger.With("branch", branch.String())
	result := Result{Branch: branch}
	claims := &claimSet{}
	lookup := &definitionLookup{provider: h.provider, project: branch.Project}

	for _, target := range h.targets {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		build, reason := h.matchTarget(ctx, lookup, branch, target)
		if build == nil {
			logger.Warn("skipping target", "target", target, "reason", reason)
			result.Skipped = append(result.Skipped, Skip{Target: target, Reason: reason})
			continue
		}

		artifacts, err := h.collectArtifacts(branch, *build, claims)
		if err != nil {
			reason := fmt.Sprintf("enumerating drop location %s: %v", build.DropLocation, err)
			logger.Warn("skipping target", "target", target, "reason", reason)
			result.Skipped = append(result.Skipped, Skip{Target: target, Reason: reason})
			continue
		}

		logger.Info("matched target build",
			"target", target,
			"definition", build.DefinitionName,
			"build_number", build.BuildNumber,
			"artifacts", len(artifacts),
		)
		result.Builds = append(result.Builds, *build)
		result.Artifacts = append(result.Artifacts, artifacts...)
	}

	if len(result.Builds) == 0 {
		return result, fmt.Errorf("%s: %w", branch, ErrNoMatch)
	}
	result.Version = PackageVersion(result.Builds)
	if result.Version == "" {
		return result, fmt.Errorf("%s: no build number carries a version ordinal: %w", branch, ErrNoMatch)
	}
	return result, nil
}

// matchTarget returns the build for one target, or nil and the reason
// it was skipped.
func (h *Heuristic) matchTarget(ctx context.Context, lookup *definitionLookup, branch watch.ResolvedBranch, target string) (*BuildRecord, string) {
	name := strings.ReplaceAll(branch.SubBranch, "/", " ") + " " + target

	definition, err := h.provider.FindBuildDefinition(ctx, branch.Project, name)
	if err != nil && !errors.Is(err, upstream.ErrNotFound) {
		h.logger.Warn("definition lookup failed, trying fallback", "name", name, "error", err)
	}
	if err != nil || definition.LastGoodBuildURI == "" {
		fallback, found, err := lookup.bySuffix(ctx, target, branch.Path())
		if err != nil {
			return nil, fmt.Sprintf("querying definitions: %v", err)
		}
		if !found {
			return nil, fmt.Sprintf("no definition %q and no definition ending in %q maps %s", name, target, branch.Path())
		}
		definition = fallback
	}
	if definition.LastGoodBuildURI == "" {
		return nil, fmt.Sprintf("definition %q has no last good build", definition.Name)
	}

	build, err := h.provider.GetBuild(ctx, definition.LastGoodBuildURI)
	if err != nil {
		return nil, fmt.Sprintf("fetching build %s: %v", definition.LastGoodBuildURI, err)
	}
	if h.maxBuildAge > 0 {
		if age := h.clock.Now().Sub(build.FinishTime); age > h.maxBuildAge {
			return nil, fmt.Sprintf("build %s completed %s ago, beyond max age %s", build.BuildNumber, age.Round(time.Second), h.maxBuildAge)
		}
	}

	return &BuildRecord{
		DefinitionName: definition.Name,
		RemoteBuildURI: build.URI,
		BuildNumber:    build.BuildNumber,
		CompletionTime: build.FinishTime,
		SourceRevision: build.SourceRevision,
		DropLocation:   build.DropLocation,
	}, ""
}

func (h *Heuristic) collectArtifacts(branch watch.ResolvedBranch, build BuildRecord, claims *claimSet) ([]Artifact, error) {
	prefixes := make([]string, 0, len(h.prefixes))
	for _, prefix := range h.prefixes {
		prefixes = append(prefixes, strings.ToUpper(strings.ReplaceAll(prefix, "{BRANCH}", branch.SubBranch)))
	}

	var artifacts []Artifact
	err := filepath.WalkDir(build.DropLocation, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".exe") {
			return nil
		}
		stem := strings.ToUpper(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		if !hasAnyPrefix(stem, prefixes) {
			return nil
		}
		if !claims.claim(entry.Name(), build.BuildNumber) {
			h.logger.Debug("artifact already claimed by an earlier target", "file", entry.Name(), "build_number", build.BuildNumber)
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		artifacts = append(artifacts, Artifact{
			FileName:    entry.Name(),
			SourcePath:  path,
			BuildNumber: build.BuildNumber,
			Size:        info.Size(),
		})
		return nil
	})
	return artifacts, err
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// definitionLookup queries a project's definitions at most once per
// Match call.
type definitionLookup struct {
	provider    upstream.Provider
	project     string
	loaded      bool
	definitions []upstream.Definition
}

func (l *definitionLookup) bySuffix(ctx context.Context, suffix, branchPath string) (upstream.Definition, bool, error) {
	if !l.loaded {
		definitions, err := l.provider.QueryDefinitions(ctx, l.project)
		if err != nil {
			return upstream.Definition{}, false, err
		}
		l.definitions = definitions
		l.loaded = true
	}
	suffix = strings.ToLower(suffix)
	branchPath = strings.ToLower(branchPath)
	for _, definition := range l.definitions {
		if !strings.HasSuffix(strings.ToLower(definition.Name), suffix) {
			continue
		}
		for _, mapping := range definition.WorkspaceMappings {
			if strings.Contains(strings.ToLower(mapping), branchPath) {
				return definition, true, nil
			}
		}
	}
	return upstream.Definition{}, false, nil
}
