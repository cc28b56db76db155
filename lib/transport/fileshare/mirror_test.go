// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fileshare

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/mirror"
	"github.com/bureau-foundation/dropship/lib/testutil"
)

var built = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func newTestMirror(t *testing.T, retries int) (*Mirror, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(built)
	share, err := New(Config{
		Root:    t.TempDir(),
		Retries: retries,
		Clock:   fake,
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return share, fake
}

func TestSyncCopiesThenSkipsUnchanged(t *testing.T) {
	share, _ := newTestMirror(t, 0)
	source := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{
		"3/App_2015_1.0.exe": "app",
		"3/manifest.cbor":    "manifest",
		"3/empty/":           "",
	})
	testutil.SetModTime(t, filepath.Join(source, "3", "App_2015_1.0.exe"), built)
	destination := filepath.Join(share.Root(), "2015")

	result, err := share.Sync(context.Background(), source, destination)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Copied != 2 || result.Removed != 0 || result.ExitStatus() != mirror.StatusCopied {
		t.Errorf("first sync = %+v (status %d)", result, result.ExitStatus())
	}
	want := testutil.ReadTree(t, source)
	if got := testutil.ReadTree(t, destination); !equalTrees(got, want) {
		t.Errorf("destination = %v, want %v", got, want)
	}
	info, err := os.Stat(filepath.Join(destination, "3", "App_2015_1.0.exe"))
	if err != nil {
		t.Fatalf("stat copied artifact: %v", err)
	}
	if !info.ModTime().Equal(built) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), built)
	}

	result, err = share.Sync(context.Background(), source, destination)
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if result.Copied != 0 || result.ExitStatus() != 0 {
		t.Errorf("second sync = %+v, want nothing to do", result)
	}
}

func TestSyncUpdatesChangedAndRemovesExtraneous(t *testing.T) {
	share, _ := newTestMirror(t, 0)
	source := t.TempDir()
	destination := t.TempDir()
	testutil.WriteTree(t, source, map[string]string{"3/App.exe": "new build"})
	testutil.WriteTree(t, destination, map[string]string{
		"3/App.exe":      "old",
		"3/Stale.exe":    "stale",
		"2/App.exe":      "old version",
		"2/sub/Deep.exe": "deep",
	})

	result, err := share.Sync(context.Background(), source, destination)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if result.Copied != 1 {
		t.Errorf("Copied = %d, want 1", result.Copied)
	}
	if result.Removed != 2 {
		t.Errorf("Removed = %d (%v), want 2", result.Removed, result.Deleted)
	}
	if result.ExitStatus() != mirror.StatusCopied|mirror.StatusExtra {
		t.Errorf("ExitStatus = %d, want 3", result.ExitStatus())
	}
	got := testutil.ReadTree(t, destination)
	if len(got) != 1 || got["3/App.exe"] != "new build" {
		t.Errorf("destination = %v", got)
	}
}

func TestSyncMissingSource(t *testing.T) {
	share, _ := newTestMirror(t, 0)
	_, err := share.Sync(context.Background(), filepath.Join(t.TempDir(), "missing"), share.Root())
	if err == nil {
		t.Fatal("Sync of a missing source succeeded")
	}
}

func TestCopyWithRetryWaitsBetweenAttempts(t *testing.T) {
	share, fake := newTestMirror(t, 2)
	missing := filepath.Join(t.TempDir(), "gone.exe")
	target := filepath.Join(share.Root(), "gone.exe")

	done := make(chan error, 1)
	go func() { done <- share.copyWithRetry(context.Background(), missing, target) }()

	for range 2 {
		fake.WaitForTimers(1)
		fake.Advance(DefaultRetryWait)
	}
	err := testutil.RequireReceive(t, done, 5*time.Second, "copyWithRetry did not return")
	if err == nil || !strings.Contains(err.Error(), "after 3 attempts") {
		t.Errorf("error = %v, want failure after 3 attempts", err)
	}
}

func TestCopyWithRetryStopsOnCancel(t *testing.T) {
	share, fake := newTestMirror(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- share.copyWithRetry(ctx, filepath.Join(t.TempDir(), "gone.exe"), filepath.Join(share.Root(), "x"))
	}()
	fake.WaitForTimers(1)
	cancel()
	err := testutil.RequireReceive(t, done, 5*time.Second, "copyWithRetry ignored cancellation")
	if err != context.Canceled {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestCopyFileAtomic(t *testing.T) {
	directory := t.TempDir()
	source := filepath.Join(directory, "in.exe")
	testutil.WriteTree(t, directory, map[string]string{"in.exe": "0123456789"})
	testutil.SetModTime(t, source, built)

	destination := filepath.Join(directory, "out", "nested", "copy.exe")
	written, err := CopyFile(source, destination)
	if err != nil {
		t.Fatalf("CopyFile: %v", err)
	}
	if written != 10 {
		t.Errorf("written = %d, want 10", written)
	}
	info, err := os.Stat(destination)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if !info.ModTime().Equal(built) {
		t.Errorf("mtime = %v, want %v", info.ModTime(), built)
	}
	entries, _ := os.ReadDir(filepath.Dir(destination))
	if len(entries) != 1 {
		t.Errorf("leftover files next to destination: %v", entries)
	}
}

func TestNewValidation(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	cases := []Config{
		{Clock: clock.Real(), Logger: logger},
		{Root: "/share", Logger: logger},
		{Root: "/share", Clock: clock.Real()},
		{Root: "/share", Clock: clock.Real(), Logger: logger, Retries: -1},
	}
	for _, config := range cases {
		if _, err := New(config); err == nil {
			t.Errorf("New(%+v) succeeded", config)
		}
	}
}

func equalTrees(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		if other, ok := b[key]; !ok || other != value {
			return false
		}
	}
	return true
}
