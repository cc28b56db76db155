// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upstream

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a definition or build does not exist.
var ErrNotFound = errors.New("upstream: not found")

// Branch is one root branch object in the source tree.
type Branch struct {
	Path      string `json:"path"`
	IsDeleted bool   `json:"is_deleted,omitempty"`
}

// Definition is a build definition.
type Definition struct {
	Name    string `json:"name"`
	Project string `json:"project"`

	// LastGoodBuildURI is empty when the definition has never produced
	// a successful build.
	LastGoodBuildURI string `json:"last_good_build_uri,omitempty"`

	// WorkspaceMappings are the server paths the definition builds from.
	WorkspaceMappings []string `json:"workspace_mappings,omitempty"`
}

// Build is the detail of one completed build.
type Build struct {
	URI            string    `json:"uri"`
	DefinitionName string    `json:"definition_name"`
	BuildNumber    string    `json:"build_number"`
	FinishTime     time.Time `json:"finish_time"`
	SourceRevision string    `json:"source_revision,omitempty"`
	DropLocation   string    `json:"drop_location"`
}

// Provider answers the queries the engine makes of the build server.
type Provider interface {
	// ListRootBranches returns every root branch object, including
	// deleted ones; callers filter on IsDeleted.
	ListRootBranches(ctx context.Context) ([]Branch, error)

	// FindBuildDefinition returns ErrNotFound when no definition of
	// that name exists in project.
	FindBuildDefinition(ctx context.Context, project, name string) (Definition, error)

	// GetBuild returns ErrNotFound for an unknown URI.
	GetBuild(ctx context.Context, uri string) (Build, error)

	// QueryDefinitions lists every definition in project.
	QueryDefinitions(ctx context.Context, project string) ([]Definition, error)
}
