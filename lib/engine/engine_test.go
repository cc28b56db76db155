// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/config"
	"github.com/bureau-foundation/dropship/lib/testutil"
	"github.com/bureau-foundation/dropship/lib/trackstore"
	"github.com/bureau-foundation/dropship/lib/translog"
	"github.com/bureau-foundation/dropship/lib/transport/ftpsync"
	"github.com/bureau-foundation/dropship/lib/transport/httprepo"
	"github.com/bureau-foundation/dropship/lib/upstream"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	settings *config.Config
	catalog  *upstream.Catalog
	store    *trackstore.Store
	clock    *clock.FakeClock
	share    string
	drops    string
}

// newFixture watches Proj/Main with one live sub-branch, 2015, whose
// last good Packages build is number 3 and drops one installer.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := clock.Fake(epoch)
	settings := config.Default()
	settings.StagingRoot = t.TempDir()
	settings.StateDir = t.TempDir()
	settings.Watch = []config.WatchConfig{{Project: "Proj", Branch: "Main", Retention: 3}}
	settings.TargetBuilds = []string{"Packages"}
	settings.ManifestPrefixes = []string{"App_{BRANCH}_"}
	settings.Toggles = config.Toggles{BuildUpdate: true, MirrorCopy: true, Checksum: true}
	share := t.TempDir()
	settings.Mirrors = []string{share}

	store, err := trackstore.Open(trackstore.Config{
		Path:   settings.DatabasePath(),
		Clock:  fake,
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("trackstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	f := &fixture{
		settings: settings,
		catalog:  upstream.NewCatalog(),
		store:    store,
		clock:    fake,
		share:    share,
		drops:    t.TempDir(),
	}
	f.catalog.AddBranch("$/Proj/Main/2015", false)
	f.catalog.AddBranch("$/Proj/Retired", true)
	f.addBuild(t, "2015 Packages", "2015 Packages_20150101.3", map[string]string{
		"App_2015_1.0.exe":   "installer",
		"Unrelated_1.0.exe":  "not ours",
		"App_2015_notes.txt": "not an installer",
	})
	return f
}

func (f *fixture) addBuild(t *testing.T, definition, buildNumber string, files map[string]string) {
	t.Helper()
	uri := "vstfs:///Build/Build/" + buildNumber
	drop := filepath.Join(f.drops, buildNumber)
	testutil.WriteTree(t, drop, files)
	f.catalog.AddDefinition(upstream.Definition{
		Name:             definition,
		Project:          "Proj",
		LastGoodBuildURI: uri,
	})
	f.catalog.AddBuild(upstream.Build{
		URI:            uri,
		DefinitionName: definition,
		BuildNumber:    buildNumber,
		FinishTime:     epoch.Add(-time.Hour),
		SourceRevision: "C1234",
		DropLocation:   drop,
	})
}

func (f *fixture) engine(t *testing.T) *Engine {
	t.Helper()
	engine, err := New(Config{
		Settings: f.settings,
		Provider: f.catalog,
		Store:    f.store,
		Clock:    f.clock,
		Logger:   slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine
}

func (f *fixture) packages(t *testing.T) []trackstore.Package {
	t.Helper()
	packages, err := f.store.List(context.Background(), trackstore.Filter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	return packages
}

func TestCycleStagesRecordsAndMirrors(t *testing.T) {
	f := newFixture(t)
	engine := f.engine(t)

	report, err := engine.Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.ID == "" {
		t.Error("report has no cycle id")
	}
	if report.Branches != 1 || report.Matched != 1 || report.Staged != 1 {
		t.Errorf("report = %+v, want 1 branch matched and staged", report)
	}
	if report.Transfers != 1 || report.Failed != 0 {
		t.Errorf("report transfers = %d failed = %d, want 1 and 0", report.Transfers, report.Failed)
	}

	key := trackstore.Key{Project: "Proj", Branch: "Main", SubBranch: "2015", Version: "3"}
	pkg, err := f.store.FindByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("FindByKey(%s): %v", key, err)
	}
	if !pkg.Deployed {
		t.Error("package not marked deployed")
	}
	if len(pkg.Artifacts) != 1 || pkg.Artifacts[0].FileName != "App_2015_1.0.exe" {
		t.Fatalf("artifacts = %+v, want only App_2015_1.0.exe", pkg.Artifacts)
	}
	if pkg.Artifacts[0].Checksum == "" {
		t.Error("installer checksum not attached")
	}

	staged := filepath.Join(f.settings.StagingRoot, "2015", "3", "App_2015_1.0.exe")
	if data, err := os.ReadFile(staged); err != nil || string(data) != "installer" {
		t.Errorf("staged artifact = %q, %v", data, err)
	}
	mirrored := filepath.Join(f.share, "2015", "3", "App_2015_1.0.exe")
	if data, err := os.ReadFile(mirrored); err != nil || string(data) != "installer" {
		t.Errorf("mirrored artifact = %q, %v", data, err)
	}

	entries, err := translog.ReadFile(filepath.Join(f.settings.LogDir(), "transfer-2026-03-01.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(entries) != 1 || entries[0].Transport != "fileshare" || entries[0].Outcome != "success" {
		t.Errorf("transfer log = %+v", entries)
	}
}

func TestCycleIsIdempotent(t *testing.T) {
	f := newFixture(t)
	engine := f.engine(t)

	if _, err := engine.Cycle(context.Background()); err != nil {
		t.Fatalf("first Cycle: %v", err)
	}
	report, err := engine.Cycle(context.Background())
	if err != nil {
		t.Fatalf("second Cycle: %v", err)
	}
	if report.Staged != 0 {
		t.Errorf("second cycle staged %d packages, want 0", report.Staged)
	}
	if packages := f.packages(t); len(packages) != 1 {
		t.Errorf("records = %d, want 1", len(packages))
	}
}

func TestCycleReapsAndMarksRemoved(t *testing.T) {
	f := newFixture(t)
	f.settings.Watch[0].Retention = 1

	// Versions 1 and 2 were staged by earlier cycles; only 2 was
	// recorded.
	branchDir := filepath.Join(f.settings.StagingRoot, "2015")
	for i, version := range []string{"1", "2"} {
		testutil.WriteTree(t, filepath.Join(branchDir, version), map[string]string{"App_2015_1.0.exe": version})
		testutil.SetModTime(t, filepath.Join(branchDir, version), time.Now().Add(time.Duration(i-3)*time.Hour)) //nolint:realclock staged directories carry wall-clock times
	}
	old := trackstore.Key{Project: "Proj", Branch: "Main", SubBranch: "2015", Version: "2"}
	if _, err := f.store.InsertWithChildren(context.Background(), trackstore.Package{Key: old, Deployed: true}); err != nil {
		t.Fatalf("InsertWithChildren: %v", err)
	}

	report, err := f.engine(t).Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.Reaped != 2 {
		t.Errorf("Reaped = %d, want 2", report.Reaped)
	}
	for _, version := range []string{"1", "2"} {
		if _, err := os.Stat(filepath.Join(branchDir, version)); !os.IsNotExist(err) {
			t.Errorf("version %s still staged: %v", version, err)
		}
	}
	if _, err := os.Stat(filepath.Join(branchDir, "3")); err != nil {
		t.Errorf("newest version removed: %v", err)
	}

	pkg, err := f.store.FindByKey(context.Background(), old)
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if pkg.Deployed {
		t.Error("reaped version still marked deployed")
	}
}

func TestCycleWithBuildUpdateDisabledOnlyMirrors(t *testing.T) {
	f := newFixture(t)
	f.settings.Toggles.BuildUpdate = false
	testutil.WriteTree(t, f.settings.StagingRoot, map[string]string{"2015/2/App_2015_1.0.exe": "two"})

	report, err := f.engine(t).Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.Matched != 0 || report.Staged != 0 {
		t.Errorf("report = %+v, want nothing matched or staged", report)
	}
	if packages := f.packages(t); len(packages) != 0 {
		t.Errorf("records = %d, want 0", len(packages))
	}
	if data, err := os.ReadFile(filepath.Join(f.share, "2015", "2", "App_2015_1.0.exe")); err != nil || string(data) != "two" {
		t.Errorf("mirrored artifact = %q, %v", data, err)
	}
}

func TestCycleUploadsToHTTPShare(t *testing.T) {
	f := newFixture(t)
	repository := httprepo.NewMemory()
	repository.MakeDirectory("Retired/7")
	server := httptest.NewServer(repository.Handler("v1"))
	t.Cleanup(server.Close)
	f.settings.Toggles.HTTPMirror = true
	f.settings.HTTPShares = []string{server.URL}

	if _, err := f.engine(t).Cycle(context.Background()); err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if content, _, ok := repository.File("2015/3/App_2015_1.0.exe"); !ok || string(content) != "installer" {
		t.Errorf("uploaded installer = %q, %v", content, ok)
	}
	for _, directory := range repository.Directories() {
		if strings.HasPrefix(directory, "Retired") {
			t.Errorf("remote branch %s not deleted", directory)
		}
	}
}

func TestCycleSurvivesUnmatchedBranch(t *testing.T) {
	f := newFixture(t)
	f.catalog.AddBranch("$/Proj/Main/2016", false)

	report, err := f.engine(t).Cycle(context.Background())
	if err != nil {
		t.Fatalf("Cycle: %v", err)
	}
	if report.Branches != 2 || report.Matched != 1 {
		t.Errorf("report = %+v, want 2 branches and 1 match", report)
	}
	if packages := f.packages(t); len(packages) != 1 {
		t.Errorf("records = %d, want 1", len(packages))
	}
}

// engineWithLog builds the fixture engine with its log captured.
func (f *fixture) engineWithLog(t *testing.T) (*Engine, *bytes.Buffer) {
	t.Helper()
	var buffer bytes.Buffer
	engine, err := New(Config{
		Settings: f.settings,
		Provider: f.catalog,
		Store:    f.store,
		Clock:    f.clock,
		Logger:   slog.New(slog.NewJSONHandler(&buffer, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return engine, &buffer
}

func logHas(log, level, message string) bool {
	for _, line := range strings.Split(log, "\n") {
		if strings.Contains(line, `"level":"`+level+`"`) && strings.Contains(line, `"msg":"`+message+`"`) {
			return true
		}
	}
	return false
}

func TestMatchCountAgainstWatchEntries(t *testing.T) {
	t.Run("folder entry expanding to several branches", func(t *testing.T) {
		f := newFixture(t)
		f.catalog.AddBranch("$/Proj/Main/2016", false)
		f.addBuild(t, "2016 Packages", "2016 Packages_20160101.5", map[string]string{"App_2016_2.0.exe": "next"})
		engine, log := f.engineWithLog(t)

		report, err := engine.Cycle(context.Background())
		if err != nil {
			t.Fatalf("Cycle: %v", err)
		}
		if report.Matched != 2 {
			t.Fatalf("matched = %d, want 2", report.Matched)
		}
		if logHas(log.String(), "WARN", "fewer branches matched than watched") {
			t.Errorf("warned although every entry matched:\n%s", log)
		}
		if !logHas(log.String(), "INFO", "watch entries expanded to more matched branches") {
			t.Errorf("expansion not logged:\n%s", log)
		}
	})

	t.Run("watch entry with nothing matched", func(t *testing.T) {
		f := newFixture(t)
		f.settings.Watch = append(f.settings.Watch, config.WatchConfig{Project: "Proj", Branch: "Dev", Retention: 1})
		engine, log := f.engineWithLog(t)

		report, err := engine.Cycle(context.Background())
		if err != nil {
			t.Fatalf("Cycle: %v", err)
		}
		if report.Matched != 1 {
			t.Fatalf("matched = %d, want 1", report.Matched)
		}
		if !logHas(log.String(), "WARN", "fewer branches matched than watched") {
			t.Errorf("missing warning:\n%s", log)
		}
	})
}

func TestCycleResolutionFailure(t *testing.T) {
	f := newFixture(t)
	f.catalog.SetFailure(errors.New("server unavailable"))

	_, err := f.engine(t).Cycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "server unavailable") {
		t.Fatalf("Cycle error = %v, want resolution failure", err)
	}
}

func TestCycleStopsAtStageBoundary(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.engine(t).Cycle(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Cycle error = %v, want context.Canceled", err)
	}
	if packages := f.packages(t); len(packages) != 0 {
		t.Errorf("records = %d, want 0", len(packages))
	}
}

func TestExternalMirrorCycle(t *testing.T) {
	f := newFixture(t)
	source := filepath.Join(t.TempDir(), "Tools")
	testutil.WriteTree(t, source, map[string]string{"setup.exe": "tools", "docs/readme.txt": "readme"})
	destination := t.TempDir()
	f.settings.FTP = []config.FTPConfig{{ID: "dmz", URL: "ftp.example.test", Port: 21, Directory: "/drops"}}
	f.settings.ExternalMirror = &config.ExternalMirrorConfig{
		CreateSourceRoot: true,
		Entries: []config.ExternalMirrorEntry{{
			Source:             source,
			MirrorDestinations: []string{destination},
			FTPDestinations:    []config.FTPDestination{{FTPID: "DMZ"}},
		}},
	}

	engine, err := New(Config{
		Settings: f.settings,
		Provider: f.catalog,
		Store:    f.store,
		Clock:    f.clock,
		Logger:   slog.New(slog.DiscardHandler),
		FTPDial: func(ctx context.Context) (ftpsync.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !engine.HasExternalMirror() {
		t.Fatal("HasExternalMirror = false")
	}

	err = engine.ExternalMirrorCycle(context.Background())
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("ExternalMirrorCycle error = %v, want the ftp failure", err)
	}
	got := testutil.ReadTree(t, filepath.Join(destination, "Tools"))
	want := map[string]string{"setup.exe": "tools", "docs/readme.txt": "readme"}
	if len(got) != len(want) || got["setup.exe"] != "tools" || got["docs/readme.txt"] != "readme" {
		t.Errorf("mirrored tree = %v, want %v", got, want)
	}
}

func TestExternalMirrorCycleWithoutConfigIsNoOp(t *testing.T) {
	engine := newFixture(t).engine(t)
	if engine.HasExternalMirror() {
		t.Fatal("HasExternalMirror = true without configuration")
	}
	if err := engine.ExternalMirrorCycle(context.Background()); err != nil {
		t.Errorf("ExternalMirrorCycle: %v", err)
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{})
	if err == nil {
		t.Fatal("New with empty config succeeded")
	}
	for _, field := range []string{"Settings", "Provider", "Store", "Clock", "Logger"} {
		if !strings.Contains(err.Error(), field) {
			t.Errorf("error %q does not mention %s", err, field)
		}
	}
}
