// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package watch turns configured watch specifications into the
// concrete source branches a cycle works on.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/dropship/lib/upstream"
)

const serverPrefix = "$/"

// Spec is one configured project/branch root to watch.
type Spec struct {
	Project string
	Branch  string

	// Filters, when non-empty, restrict the branches under Root to
	// those whose path ends with one of them.
	Filters []string

	// Retention is how many versions of each resolved branch are kept
	// in the staging root.
	Retention int
}

// Root returns the server path of the spec, "$/project/branch".
func (s Spec) Root() string {
	path := s.Project + "/" + s.Branch
	if !strings.HasPrefix(path, serverPrefix) {
		path = serverPrefix + path
	}
	return path
}

// covers reports whether path is the spec's root or below it.
func (s Spec) covers(path string) bool {
	root := s.Root()
	return path == root || strings.HasPrefix(path, root+"/")
}

// accepts reports whether a covered path passes the spec's filters. A
// spec without filters accepts everything under its root.
func (s Spec) accepts(path string) bool {
	if len(s.Filters) == 0 {
		return true
	}
	for _, filter := range s.Filters {
		if strings.HasSuffix(path, filter) {
			return true
		}
	}
	return false
}

// ResolvedBranch is a concrete branch under a watched root. It is
// comparable, so it can key a per-cycle map.
type ResolvedBranch struct {
	Project string
	Branch  string

	// SubBranch is the path below the root. For the root itself it is
	// Branch and AtRoot is set.
	SubBranch string
	Retention int

	// AtRoot marks the watched root itself, as opposed to a sub-branch
	// that happens to share the root's name.
	AtRoot bool
}

// Root returns "$/project/branch".
func (b ResolvedBranch) Root() string {
	return Spec{Project: b.Project, Branch: b.Branch}.Root()
}

// Path returns the full server path of the branch.
func (b ResolvedBranch) Path() string {
	if b.AtRoot {
		return b.Root()
	}
	return b.Root() + "/" + b.SubBranch
}

// Target is the staging subdirectory name for the branch. The root
// stages under its branch name.
func (b ResolvedBranch) Target() string {
	if b.AtRoot {
		return b.Branch
	}
	return b.SubBranch
}

// String is for log lines.
func (b ResolvedBranch) String() string {
	return b.Project + "/" + b.Branch + ":" + b.SubBranch
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	Provider upstream.Provider
	Logger   *slog.Logger
}

// Resolver queries the build server's branch list and applies the
// watch specifications to it.
type Resolver struct {
	provider upstream.Provider
	logger   *slog.Logger
}

// NewResolver validates config and returns a Resolver.
func NewResolver(config ResolverConfig) (*Resolver, error) {
	if config.Provider == nil {
		return nil, fmt.Errorf("watch: Provider is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("watch: Logger is required")
	}
	return &Resolver{
		provider: config.Provider,
		logger:   config.Logger.With("component", "watch"),
	}, nil
}

// Paths lists the live root branches once and keeps those under a
// watched root. A path covered by several specs is dropped only when
// every one of them rejects it. The result is deduplicated and keeps
// the provider's order.
func (r *Resolver) Paths(ctx context.Context, specs []Spec) ([]string, error) {
	branches, err := r.provider.ListRootBranches(ctx)
	if err != nil {
		return nil, fmt.Errorf("watch: listing root branches: %w", err)
	}

	seen := make(map[string]bool)
	var paths []string
	for _, branch := range branches {
		if branch.IsDeleted || seen[branch.Path] {
			continue
		}
		covered, accepted := false, false
		for _, spec := range specs {
			if !spec.covers(branch.Path) {
				continue
			}
			covered = true
			if spec.accepts(branch.Path) {
				accepted = true
				break
			}
		}
		if !covered {
			continue
		}
		if !accepted {
			r.logger.Debug("branch excluded by filter", "path", branch.Path)
			continue
		}
		seen[branch.Path] = true
		paths = append(paths, branch.Path)
	}
	return paths, nil
}

// Expand maps retained paths onto the specs whose root they fall
// under. A path that shares a root's prefix without being the root or
// below it ("$/P/MainLine" for root "$/P/Main") yields nothing.
func Expand(paths []string, specs []Spec) []ResolvedBranch {
	seen := make(map[ResolvedBranch]bool)
	var resolved []ResolvedBranch
	for _, path := range paths {
		for _, spec := range specs {
			root := spec.Root()
			branch := ResolvedBranch{
				Project:   spec.Project,
				Branch:    spec.Branch,
				Retention: spec.Retention,
			}
			switch {
			case path == root:
				branch.SubBranch = spec.Branch
				branch.AtRoot = true
			case strings.HasPrefix(path, root+"/"):
				branch.SubBranch = strings.TrimPrefix(path, root+"/")
			default:
				continue
			}
			if seen[branch] {
				continue
			}
			seen[branch] = true
			resolved = append(resolved, branch)
		}
	}
	return resolved
}

// Resolve runs Paths and Expand.
func (r *Resolver) Resolve(ctx context.Context, specs []Spec) ([]ResolvedBranch, error) {
	paths, err := r.Paths(ctx, specs)
	if err != nil {
		return nil, err
	}
	resolved := Expand(paths, specs)
	r.logger.Info("resolved watched branches",
		"specs", len(specs),
		"paths", len(paths),
		"branches", len(resolved),
	)
	return resolved, nil
}
