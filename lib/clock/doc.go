// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source.
//
// Every component that waits or stamps records takes a Clock instead of
// calling the time package directly. Real() is the standard library;
// Fake() is a deterministic clock that only moves when Advance is
// called.
//
// A poll loop test looks like this:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	service := engine.NewService(engine.ServiceConfig{Clock: fake, ...})
//	service.Start(ctx)
//	// first cycle runs immediately, then the loop waits on After
//	fake.WaitForTimers(1)
//	fake.Advance(interval)
//
// WaitForTimers blocks until the loop goroutine has registered its
// wait, which removes the race between registration and Advance.
package clock
