// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reaper enforces per-branch retention in the staging cache.
//
// Version directories under stagingRoot/<branch target> are ordered
// newest first by creation time and everything beyond the branch's
// retention count is removed. Birth time comes from statx on Linux and
// falls back to modification time where the filesystem does not record
// it. Every removed directory is reported as a DeployedPackageInfo with
// Deployed=false so the tracking store can be updated.
//
// Removals are confined to the staging root: a path that resolves to
// the root itself or outside it is refused.
package reaper
