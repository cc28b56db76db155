// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package mirror fans staged directories out to remote destinations.
//
// A Dispatcher runs one workpool unit per (directory, transport)
// assignment. Every unit gets a fresh UUID correlation ID that appears
// on its start and finish log lines and in the transfer log, so one
// transfer can be followed across both. A failing or panicking unit
// affects only its own outcome.
//
// HTTPSync keeps HTTP artifact repositories in step with the staging
// cache at version granularity: remote branches that no longer exist
// locally are deleted and versions missing remotely are uploaded.
package mirror
