// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for dropship packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with time.After fallback) so that individual
// tests do not need direct time.After calls. They are the only place in
// the test suite where real wall-clock timeouts are used.
//
// [WriteTree] and [ReadTree] build and snapshot small directory trees:
// drop locations, staging roots and mirror destinations. Trees are
// described as a map from slash-separated relative path to file
// content; a path ending in "/" creates an empty directory.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
