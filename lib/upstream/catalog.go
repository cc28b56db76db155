// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Catalog is an in-memory Provider. It is safe for concurrent use.
type Catalog struct {
	mu          sync.Mutex
	branches    []Branch
	definitions map[string][]Definition
	builds      map[string]Build
	failure     error
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		definitions: make(map[string][]Definition),
		builds:      make(map[string]Build),
	}
}

// AddBranch registers a root branch path.
func (c *Catalog) AddBranch(path string, deleted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.branches = append(c.branches, Branch{Path: path, IsDeleted: deleted})
}

// AddDefinition registers a definition under its Project.
func (c *Catalog) AddDefinition(definition Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := strings.ToLower(definition.Project)
	c.definitions[key] = append(c.definitions[key], definition)
}

// AddBuild registers a build under its URI.
func (c *Catalog) AddBuild(build Build) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.builds[build.URI] = build
}

// SetFailure makes every subsequent query fail with err. Pass nil to
// restore normal behavior.
func (c *Catalog) SetFailure(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

func (c *Catalog) ListRootBranches(ctx context.Context) ([]Branch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return nil, c.failure
	}
	return append([]Branch(nil), c.branches...), nil
}

func (c *Catalog) FindBuildDefinition(ctx context.Context, project, name string) (Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return Definition{}, c.failure
	}
	for _, definition := range c.definitions[strings.ToLower(project)] {
		if strings.EqualFold(definition.Name, name) {
			return definition, nil
		}
	}
	return Definition{}, fmt.Errorf("definition %q in %s: %w", name, project, ErrNotFound)
}

func (c *Catalog) GetBuild(ctx context.Context, uri string) (Build, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return Build{}, c.failure
	}
	build, ok := c.builds[uri]
	if !ok {
		return Build{}, fmt.Errorf("build %q: %w", uri, ErrNotFound)
	}
	return build, nil
}

func (c *Catalog) QueryDefinitions(ctx context.Context, project string) ([]Definition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure != nil {
		return nil, c.failure
	}
	return append([]Definition(nil), c.definitions[strings.ToLower(project)]...), nil
}
