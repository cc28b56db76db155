// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import "context"

// Transport mirrors a local directory to a remote destination.
type Transport interface {
	// Name identifies the transport kind and instance in logs and
	// metrics ("fileshare", "ftp:ftp1", ...).
	Name() string

	// Root is the destination root that relative staging paths are
	// joined onto.
	Root() string

	// Sync makes destination an exact copy of source: files that are
	// missing or differ are transferred and destination entries with
	// no source counterpart are removed. A non-nil error may come with
	// a partially filled result.
	Sync(ctx context.Context, source, destination string) (SyncResult, error)
}

// Exit status bits, compatible with the robocopy convention operators
// already alert on.
const (
	StatusCopied = 1
	StatusExtra  = 2
	StatusFailed = 8
)

// SyncResult summarizes one Sync call.
type SyncResult struct {
	Copied  int
	Removed int
	Failed  int

	// Uploaded and Deleted list relative paths when the transport
	// reports them individually.
	Uploaded []string
	Deleted  []string
}

// ExitStatus folds the counts into a bitmask of Status* values.
func (r SyncResult) ExitStatus() int {
	status := 0
	if r.Copied > 0 {
		status |= StatusCopied
	}
	if r.Removed > 0 {
		status |= StatusExtra
	}
	if r.Failed > 0 {
		status |= StatusFailed
	}
	return status
}
