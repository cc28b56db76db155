// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package acquire stages matched builds into the local cache and
// records them in the tracking store.
//
// A package version is staged into stagingRoot/<branch target>/<version>
// only when the tracking store has no record of its key, which makes
// repeated poll cycles idempotent. Artifacts are copied concurrently
// on their own pool, a build manifest is written next to them, the
// package is recorded as deployed, and checksums are attached last.
// A failed copy is logged and counted but does not stop the package
// from being recorded: the record lists every expected artifact and
// the missing ones keep an empty checksum.
package acquire
