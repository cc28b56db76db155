// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package workpool bounds how many units of work run at once.
//
// Each cycle stage owns its own Pool: branch acquisition, artifact
// copies, remote transfers and HTTP uploads. A unit submitted to a pool
// receives a context marked with that pool; submitting to the same pool
// from inside one of its own units fails immediately with
// [ErrReentrant] instead of deadlocking when every slot is held by a
// parent waiting on its children. Submitting to a different pool is
// fine and is how acquisition fans out per-artifact copies.
//
// A unit that returns an error or panics affects only its own
// [Handle]. Panics are recovered, logged with their stack, and
// reported as errors wrapping [ErrPanic].
//
//	handles := make([]*workpool.Handle, 0, len(branches))
//	for _, branch := range branches {
//		handles = append(handles, pool.Submit(ctx, branch.String(), func(ctx context.Context) error {
//			return acquire(ctx, branch)
//		}))
//	}
//	err := workpool.AwaitAll(handles)
package workpool
