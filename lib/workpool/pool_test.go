// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package workpool

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/dropship/lib/testutil"
)

func newTestPool(t *testing.T, size int) *Pool {
	t.Helper()
	pool, err := New(Config{
		Name:   "test",
		Size:   size,
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return pool
}

func TestConcurrencyBound(t *testing.T) {
	pool := newTestPool(t, 3)

	var running, peak atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 10)

	handles := make([]*Handle, 0, 10)
	for range 10 {
		handles = append(handles, pool.Submit(context.Background(), "unit", func(ctx context.Context) error {
			current := running.Add(1)
			for {
				previous := peak.Load()
				if current <= previous || peak.CompareAndSwap(previous, current) {
					break
				}
			}
			started <- struct{}{}
			<-release
			running.Add(-1)
			return nil
		}))
	}

	for range 3 {
		testutil.RequireReceive(t, started, 5*time.Second, "unit start")
	}
	select {
	case <-started:
		t.Fatal("a fourth unit started while three were running")
	default:
	}
	close(release)

	if err := AwaitAll(handles); err != nil {
		t.Fatalf("AwaitAll: %v", err)
	}
	if peak.Load() != 3 {
		t.Errorf("peak concurrency = %d, want 3", peak.Load())
	}
}

func TestFailureIsolated(t *testing.T) {
	pool := newTestPool(t, 2)
	boom := errors.New("copy failed")

	failing := pool.Submit(context.Background(), "bad", func(context.Context) error { return boom })
	passing := pool.Submit(context.Background(), "good", func(context.Context) error { return nil })

	if err := failing.Wait(); !errors.Is(err, boom) {
		t.Errorf("failing.Wait = %v, want %v", err, boom)
	}
	if err := passing.Wait(); err != nil {
		t.Errorf("passing.Wait = %v", err)
	}
	if err := AwaitAll([]*Handle{failing, passing}); !errors.Is(err, boom) {
		t.Errorf("AwaitAll = %v, want it to contain %v", err, boom)
	}
}

func TestPanicBecomesError(t *testing.T) {
	pool := newTestPool(t, 1)
	handle := pool.Submit(context.Background(), "panics", func(context.Context) error {
		panic("nil map")
	})
	err := handle.Wait()
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("Wait = %v, want ErrPanic", err)
	}

	// The slot was released: the pool still runs work.
	if err := pool.Submit(context.Background(), "after", func(context.Context) error { return nil }).Wait(); err != nil {
		t.Fatalf("unit after panic: %v", err)
	}
}

func TestReentrantSubmissionRejected(t *testing.T) {
	pool := newTestPool(t, 1)
	other := newTestPool(t, 1)

	var inner, crossPool error
	outer := pool.Submit(context.Background(), "outer", func(ctx context.Context) error {
		inner = pool.Submit(ctx, "inner", func(context.Context) error { return nil }).Wait()
		crossPool = other.Submit(ctx, "cross", func(context.Context) error { return nil }).Wait()
		return nil
	})

	testutil.RequireClosed(t, outer.Done(), 5*time.Second, "outer unit should not deadlock")
	if !errors.Is(inner, ErrReentrant) {
		t.Errorf("inner = %v, want ErrReentrant", inner)
	}
	if crossPool != nil {
		t.Errorf("submission to a different pool = %v, want nil", crossPool)
	}
}

func TestCancelledBeforeSlot(t *testing.T) {
	pool := newTestPool(t, 1)
	release := make(chan struct{})
	blocker := pool.Submit(context.Background(), "blocker", func(context.Context) error {
		<-release
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	executed := false
	waiting := pool.Submit(ctx, "waiting", func(context.Context) error {
		executed = true
		return nil
	})
	cancel()

	if err := waiting.Wait(); !errors.Is(err, context.Canceled) {
		t.Errorf("waiting.Wait = %v, want context.Canceled", err)
	}
	close(release)
	if err := blocker.Wait(); err != nil {
		t.Fatalf("blocker: %v", err)
	}
	if executed {
		t.Error("unit ran after its context was cancelled")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{Size: 0, Logger: slog.Default()}); err == nil {
		t.Error("New with Size 0 should fail")
	}
	if _, err := New(Config{Size: 1}); err == nil {
		t.Error("New without Logger should fail")
	}
}
