// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package trackstore is the persistent catalog of package versions the
// daemon has staged. It is what makes acquisition idempotent: a
// (project, branch, sub-branch, version) key that is already present
// is never staged again.
//
// The store is a single SQLite file with two tables.
// PackageArtifactData holds one row per package version, unique on its
// key. ArtifactDetail holds the staged files of each package, unique
// on (package, build number, file name). Rows are never deleted;
// retention only flips the deployed flag back to false.
//
// Writers take an IMMEDIATE transaction so concurrent acquisitions of
// different branches serialize on the database lock (with
// busy_timeout) rather than failing.
package trackstore
