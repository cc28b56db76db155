// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package matcher finds, for one resolved branch, the last good build
// of every target build definition and the installable artifacts in
// each build's drop location.
//
// Definitions are found by naming convention: the sub-branch with "/"
// replaced by spaces, a space, and the target suffix ("2015 Packages").
// When that name does not exist or has never built successfully, the
// project's definitions are scanned for one whose name ends with the
// suffix and whose workspace mappings cover the branch.
//
// Drop locations are walked recursively for *.exe files. A file is
// kept when its name starts with one of the manifest prefixes, where
// "{BRANCH}" in a prefix stands for the sub-branch. When two targets
// produce a file of the same name, the first target's file wins.
//
// The package version of a branch is the largest build ordinal across
// its matched builds; see [VersionOrdinal].
package matcher
