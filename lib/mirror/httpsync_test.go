// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package mirror

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/testutil"
	"github.com/bureau-foundation/dropship/lib/transport/httprepo"
	"github.com/bureau-foundation/dropship/lib/workpool"
)

func newTestHTTPSync(t *testing.T, stagingRoot string, repository *httprepo.Memory) *HTTPSync {
	t.Helper()
	server := httptest.NewServer(repository.Handler("v1"))
	t.Cleanup(server.Close)
	client, err := httprepo.NewClient(httprepo.Config{BaseURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	logger := slog.New(slog.DiscardHandler)
	pool, err := workpool.New(workpool.Config{Name: "http-upload", Size: 4, Logger: logger})
	if err != nil {
		t.Fatalf("workpool.New: %v", err)
	}
	httpSync, err := NewHTTPSync(HTTPSyncConfig{
		StagingRoot:  stagingRoot,
		Repositories: []Repository{client},
		Pool:         pool,
		Clock:        clock.Fake(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
		Logger:       logger,
	})
	if err != nil {
		t.Fatalf("NewHTTPSync: %v", err)
	}
	return httpSync
}

func TestHTTPSyncUploadsMissingVersions(t *testing.T) {
	stagingRoot := t.TempDir()
	testutil.WriteTree(t, stagingRoot, map[string]string{
		"2015/3/App_2015_1.0.exe": "three",
		"2015/4/App_2015_1.0.exe": "four",
		"2015/4/manifest.cbor":    "not uploaded",
		"Main/1/Tools.EXE":        "tools",
	})
	repository := httprepo.NewMemory()
	repository.MakeDirectory("Retired/1")
	repository.MakeDirectory("2015/3")
	httpSync := newTestHTTPSync(t, stagingRoot, repository)

	results, err := httpSync.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	result := results[0]
	if !slices.Equal(result.DeletedBranches, []string{"Retired"}) {
		t.Errorf("DeletedBranches = %v", result.DeletedBranches)
	}
	slices.Sort(result.Uploaded)
	if !slices.Equal(result.Uploaded, []string{"2015/4", "Main/1"}) {
		t.Errorf("Uploaded = %v", result.Uploaded)
	}

	if content, _, ok := repository.File("2015/4/App_2015_1.0.exe"); !ok || string(content) != "four" {
		t.Errorf("2015/4 artifact = %q, %v", content, ok)
	}
	if _, _, ok := repository.File("2015/4/manifest.cbor"); ok {
		t.Error("non-installer file uploaded")
	}
	if _, _, ok := repository.File("Main/1/Tools.EXE"); !ok {
		t.Error("upper-case extension not uploaded")
	}
	if _, _, ok := repository.File("2015/3/App_2015_1.0.exe"); ok {
		t.Error("version already present remotely was uploaded again")
	}

	results, err = httpSync.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(results[0].Uploaded) != 0 || len(results[0].DeletedBranches) != 0 {
		t.Errorf("second run = %+v, want no changes", results[0])
	}
}
