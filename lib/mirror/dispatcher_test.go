// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/translog"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

type fakeTransport struct {
	name  string
	root  string
	fail  error
	panic bool

	mu    sync.Mutex
	calls [][2]string
}

func (f *fakeTransport) Name() string { return f.name }
func (f *fakeTransport) Root() string { return f.root }

func (f *fakeTransport) Sync(ctx context.Context, source, destination string) (SyncResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, [2]string{source, destination})
	f.mu.Unlock()
	if f.panic {
		panic("transport exploded")
	}
	if f.fail != nil {
		return SyncResult{Failed: 1}, f.fail
	}
	return SyncResult{Copied: 2, Uploaded: []string{"a.exe", "b.exe"}}, nil
}

func newTestDispatcher(t *testing.T, log *translog.Log) *Dispatcher {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	pool, err := workpool.New(workpool.Config{Name: "transfer", Size: 2, Logger: logger})
	if err != nil {
		t.Fatalf("workpool.New: %v", err)
	}
	dispatcher, err := NewDispatcher(DispatcherConfig{
		Pool:   pool,
		Clock:  clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Logger: logger,
		Log:    log,
	})
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	return dispatcher
}

func TestPlan(t *testing.T) {
	share := &fakeTransport{name: "fileshare", root: "/mnt/share"}
	ftp := &fakeTransport{name: "ftp:ftp1", root: "/drops"}

	assignments, err := Plan("/stage", []string{"/stage/2015/3", "/stage/Main/7"}, []Transport{share, ftp})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	want := []string{"/mnt/share/2015/3", "/drops/2015/3", "/mnt/share/Main/7", "/drops/Main/7"}
	if len(assignments) != len(want) {
		t.Fatalf("assignments = %d, want %d", len(assignments), len(want))
	}
	for i, assignment := range assignments {
		if assignment.Destination != want[i] {
			t.Errorf("assignment %d destination = %q, want %q", i, assignment.Destination, want[i])
		}
	}

	for _, outside := range []string{"/stage", "/elsewhere/3", "/stage/../x"} {
		if _, err := Plan("/stage", []string{outside}, []Transport{share}); err == nil {
			t.Errorf("Plan accepted %q", outside)
		}
	}
}

func TestExternalDestination(t *testing.T) {
	cases := []struct {
		destination, source string
		create              bool
		want                string
	}{
		{"/mnt/mirror", "/data/Releases", false, "/mnt/mirror"},
		{"/mnt/mirror", "/data/Releases", true, "/mnt/mirror/Releases"},
		{"/mnt/mirror/releases", "/data/Releases/", true, "/mnt/mirror/releases"},
		{"/mnt/mirror/", "/data/Releases", true, "/mnt/mirror/Releases"},
	}
	for _, tc := range cases {
		if got := ExternalDestination(tc.destination, tc.source, tc.create); got != tc.want {
			t.Errorf("ExternalDestination(%q, %q, %v) = %q, want %q", tc.destination, tc.source, tc.create, got, tc.want)
		}
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	logDir := filepath.Join(t.TempDir(), "logs")
	log, err := translog.Open(translog.Config{
		Directory: logDir,
		Clock:     clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Logger:    slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("translog.Open: %v", err)
	}
	dispatcher := newTestDispatcher(t, log)

	good := &fakeTransport{name: "fileshare", root: "/share"}
	bad := &fakeTransport{name: "ftp:ftp1", root: "/drops", fail: errors.New("550 denied")}
	explosive := &fakeTransport{name: "objectstore:b", root: "prefix", panic: true}

	assignments, err := Plan("/stage", []string{"/stage/2015/3"}, []Transport{good, bad, explosive})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	outcomes, err := dispatcher.Dispatch(context.Background(), assignments)
	if err == nil {
		t.Fatal("Dispatch returned no error despite failing units")
	}
	if len(outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(outcomes))
	}

	if outcomes[0].Err != nil || outcomes[0].Result.Copied != 2 {
		t.Errorf("good outcome = %+v", outcomes[0])
	}
	if outcomes[1].Err == nil || outcomes[1].Result.ExitStatus() != StatusFailed {
		t.Errorf("failing outcome = %+v", outcomes[1])
	}
	if !errors.Is(outcomes[2].Err, workpool.ErrPanic) {
		t.Errorf("panicking outcome error = %v, want ErrPanic", outcomes[2].Err)
	}

	seen := map[string]bool{}
	for _, outcome := range outcomes {
		if _, err := uuid.Parse(outcome.CorrelationID); err != nil {
			t.Errorf("correlation ID %q: %v", outcome.CorrelationID, err)
		}
		if seen[outcome.CorrelationID] {
			t.Errorf("correlation ID %s reused", outcome.CorrelationID)
		}
		seen[outcome.CorrelationID] = true
	}

	entries, err := translog.ReadFile(filepath.Join(logDir, "transfer-2026-03-01.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	// The panicking unit never returns to write its entry.
	if len(entries) != 2 {
		t.Fatalf("transfer log entries = %d, want 2", len(entries))
	}
	byID := map[string]translog.Entry{}
	for _, entry := range entries {
		byID[entry.CorrelationID] = entry
	}
	if entry := byID[outcomes[0].CorrelationID]; entry.Outcome != "success" || entry.Copied != 2 {
		t.Errorf("good entry = %+v", entry)
	}
	if entry := byID[outcomes[1].CorrelationID]; entry.Outcome != "failure" || entry.Error == "" {
		t.Errorf("failure entry = %+v", entry)
	}
}

func TestNewDispatcherValidation(t *testing.T) {
	if _, err := NewDispatcher(DispatcherConfig{Clock: clock.Real(), Logger: slog.New(slog.DiscardHandler)}); err == nil {
		t.Error("NewDispatcher without Pool succeeded")
	}
}
