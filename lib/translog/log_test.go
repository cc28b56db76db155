// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/testutil"
)

var epoch = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func openTestLog(t *testing.T, compression Compression, retention int) (*Log, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	log, err := Open(Config{
		Directory:   filepath.Join(t.TempDir(), "logs"),
		Compression: compression,
		Retention:   retention,
		Clock:       fake,
		Logger:      slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return log, fake
}

func TestAppendAndRead(t *testing.T) {
	log, _ := openTestLog(t, CompressionZstd, 0)

	first := Entry{CorrelationID: "a", Transport: "fileshare", Source: "/stage/Main/3", Destination: `\\share\Main\3`, Outcome: "success", Copied: 2}
	second := Entry{CorrelationID: "b", Transport: "ftp", Outcome: "failure", Error: "dial: refused"}
	for _, entry := range []Entry{first, second} {
		if err := log.Append(entry); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	entries, err := ReadFile(filepath.Join(log.Directory(), "transfer-2026-03-01.log"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].CorrelationID != "a" || entries[0].Copied != 2 || !entries[0].Time.Equal(epoch) {
		t.Errorf("first entry = %+v", entries[0])
	}
	if entries[1].Error != "dial: refused" {
		t.Errorf("second entry = %+v", entries[1])
	}
}

func TestDayChangeRotates(t *testing.T) {
	for _, compression := range []Compression{CompressionZstd, CompressionLZ4} {
		t.Run(string(compression), func(t *testing.T) {
			log, fake := openTestLog(t, compression, 0)
			if err := log.Append(Entry{CorrelationID: "yesterday"}); err != nil {
				t.Fatalf("Append: %v", err)
			}
			fake.Advance(24 * time.Hour)
			if err := log.Append(Entry{CorrelationID: "today"}); err != nil {
				t.Fatalf("Append: %v", err)
			}

			if _, err := os.Stat(filepath.Join(log.Directory(), "transfer-2026-03-01.log")); !os.IsNotExist(err) {
				t.Errorf("plain file for the previous day still present: %v", err)
			}
			rotated := filepath.Join(log.Directory(), "transfer-2026-03-01.log"+compression.Extension())
			entries, err := ReadFile(rotated)
			if err != nil {
				t.Fatalf("ReadFile rotated: %v", err)
			}
			if len(entries) != 1 || entries[0].CorrelationID != "yesterday" {
				t.Errorf("rotated entries = %+v", entries)
			}

			current, err := ReadFile(filepath.Join(log.Directory(), "transfer-2026-03-02.log"))
			if err != nil {
				t.Fatalf("ReadFile current: %v", err)
			}
			if len(current) != 1 || current[0].CorrelationID != "today" {
				t.Errorf("current entries = %+v", current)
			}
		})
	}
}

func TestRotateWithoutCompressionKeepsPlainFiles(t *testing.T) {
	log, fake := openTestLog(t, CompressionNone, 0)
	if err := log.Append(Entry{CorrelationID: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	fake.Advance(48 * time.Hour)
	if err := log.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(log.Directory(), "transfer-2026-03-01.log")); err != nil {
		t.Errorf("plain file removed with compression none: %v", err)
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	log, _ := openTestLog(t, CompressionZstd, 2)
	names := []string{
		"transfer-2026-02-25.log.zst",
		"transfer-2026-02-26.log.zst",
		"transfer-2026-02-27.log.zst",
		"transfer-2026-02-28.log",
	}
	for i, name := range names {
		testutil.WriteTree(t, log.Directory(), map[string]string{name: "x"})
		testutil.SetModTime(t, filepath.Join(log.Directory(), name), epoch.Add(time.Duration(i)*time.Hour))
	}
	testutil.WriteTree(t, log.Directory(), map[string]string{"unrelated.txt": "keep"})
	testutil.SetModTime(t, filepath.Join(log.Directory(), "unrelated.txt"), epoch.Add(-time.Hour))

	removed, err := log.Prune()
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 2 {
		t.Fatalf("removed = %v, want 2 files", removed)
	}

	tree := testutil.ReadTree(t, log.Directory())
	for _, name := range []string{"transfer-2026-02-27.log.zst", "transfer-2026-02-28.log", "unrelated.txt"} {
		if _, ok := tree[name]; !ok {
			t.Errorf("%s was removed", name)
		}
	}
	for _, name := range names[:2] {
		if _, ok := tree[name]; ok {
			t.Errorf("%s was kept", name)
		}
	}
}

func TestParseCompression(t *testing.T) {
	cases := map[string]Compression{"": CompressionZstd, "ZSTD": CompressionZstd, "lz4": CompressionLZ4, "none": CompressionNone}
	for input, want := range cases {
		got, err := ParseCompression(input)
		if err != nil || got != want {
			t.Errorf("ParseCompression(%q) = %q, %v; want %q", input, got, err, want)
		}
	}
	if _, err := ParseCompression("gzip"); err == nil {
		t.Error("ParseCompression(gzip) succeeded")
	}
}
