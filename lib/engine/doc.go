// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package engine wires the resolver, matcher, acquisition pipeline,
// reaper and mirror dispatcher into a poll cycle, and runs that cycle
// (plus the optional external-mirror cycle) on the daemon's loops.
//
// A cycle runs its stages in order: resolution, matching, acquisition,
// cleanup, mirroring. Each stage finishes before the next begins. The
// context passed to [Engine.Cycle] is checked between stages only;
// units already running on a pool are not interrupted by it, so a
// pause or stop takes effect at the next stage boundary.
//
// [Service] owns the loops. The first main cycle runs as soon as the
// service starts, and each later one starts a full poll interval after
// the previous one finished.
package engine
