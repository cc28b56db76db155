// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package translog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/reaper"
)

const (
	filePrefix = "transfer-"
	fileSuffix = ".log"
	dayLayout  = "2006-01-02"
)

// Entry is one finished transfer unit.
type Entry struct {
	Time          time.Time     `json:"time"`
	CorrelationID string        `json:"correlation_id"`
	Transport     string        `json:"transport"`
	Source        string        `json:"source"`
	Destination   string        `json:"destination"`
	Outcome       string        `json:"outcome"`
	Duration      time.Duration `json:"duration_ns"`
	Copied        int           `json:"copied"`
	Removed       int           `json:"removed"`
	Failed        int           `json:"failed"`
	Uploaded      []string      `json:"uploaded,omitempty"`
	Deleted       []string      `json:"deleted,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// Config configures a Log.
type Config struct {
	// Directory holds the log files. It is created if missing.
	Directory string

	Compression Compression

	// Retention is the number of files Prune keeps. Zero keeps all.
	Retention int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Log appends entries to the current day's file. It is safe for
// concurrent use.
type Log struct {
	directory   string
	compression Compression
	retention   int
	clock       clock.Clock
	logger      *slog.Logger

	mu  sync.Mutex
	day string
}

// Open validates config and creates the log directory.
func Open(config Config) (*Log, error) {
	if config.Directory == "" {
		return nil, fmt.Errorf("translog: Directory is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("translog: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("translog: Logger is required")
	}
	compression := config.Compression
	if compression == "" {
		compression = CompressionZstd
	}
	if err := os.MkdirAll(config.Directory, 0o755); err != nil {
		return nil, fmt.Errorf("translog: creating %s: %w", config.Directory, err)
	}
	return &Log{
		directory:   config.Directory,
		compression: compression,
		retention:   config.Retention,
		clock:       config.Clock,
		logger:      config.Logger.With("component", "translog"),
	}, nil
}

// Directory returns the log directory.
func (l *Log) Directory() string { return l.directory }

func fileName(day string) string {
	return filePrefix + day + fileSuffix
}

// Append writes entry as one line of the current day's file. A zero
// entry.Time is set to now. The first append of a new day rotates the
// previous days' files.
func (l *Log) Append(entry Entry) error {
	if entry.Time.IsZero() {
		entry.Time = l.clock.Now()
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("translog: encoding entry: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	day := l.clock.Now().UTC().Format(dayLayout)
	if day != l.day {
		if l.day != "" {
			if err := l.rotateLocked(day); err != nil {
				l.logger.Error("rotating transfer logs failed", "error", err)
			}
		}
		l.day = day
	}

	file, err := os.OpenFile(filepath.Join(l.directory, fileName(day)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("translog: opening log: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		file.Close()
		return fmt.Errorf("translog: writing entry: %w", err)
	}
	return file.Close()
}

// Rotate compresses every plain log file except today's.
func (l *Log) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateLocked(l.clock.Now().UTC().Format(dayLayout))
}

func (l *Log) rotateLocked(today string) error {
	if l.compression == CompressionNone {
		return nil
	}
	entries, err := os.ReadDir(l.directory)
	if err != nil {
		return fmt.Errorf("translog: listing %s: %w", l.directory, err)
	}
	var errs []error
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		if name == fileName(today) {
			continue
		}
		if err := l.compressFile(filepath.Join(l.directory, name)); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("translog: rotate: %w", errs[0])
	}
	return nil
}

func (l *Log) compressFile(path string) (err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	compressed, err := compress(data, l.compression)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", path, err)
	}

	target := path + l.compression.Extension()
	temporary, err := os.CreateTemp(l.directory, ".rotate-*")
	if err != nil {
		return err
	}
	success := false
	defer func() {
		if !success {
			os.Remove(temporary.Name())
		}
	}()
	if _, err := temporary.Write(compressed); err != nil {
		temporary.Close()
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	if err := os.Rename(temporary.Name(), target); err != nil {
		return err
	}
	success = true

	l.logger.Info("transfer log rotated",
		"file", filepath.Base(target),
		"plain_bytes", len(data),
		"compressed_bytes", len(compressed),
	)
	return os.Remove(path)
}

// Prune removes the oldest log files beyond the configured retention
// and returns the names removed.
func (l *Log) Prune() ([]string, error) {
	if l.retention <= 0 {
		return nil, nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entries, err := reaper.List(l.directory, false)
	if err != nil {
		return nil, fmt.Errorf("translog: prune: %w", err)
	}
	var logs []reaper.Entry
	for _, entry := range entries {
		if !entry.IsDir && strings.HasPrefix(entry.Name, filePrefix) {
			logs = append(logs, entry)
		}
	}
	if len(logs) <= l.retention {
		return nil, nil
	}

	var removed []string
	for _, entry := range logs[l.retention:] {
		if err := os.Remove(entry.Path); err != nil {
			l.logger.Error("removing transfer log failed", "file", entry.Name, "error", err)
			continue
		}
		removed = append(removed, entry.Name)
	}
	l.logger.Info("transfer logs pruned", "removed", len(removed), "kept", l.retention)
	return removed, nil
}

// ReadFile decodes every entry in a log file, plain or compressed.
func ReadFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("translog: %w", err)
	}
	data, err = decompressByName(path, data)
	if err != nil {
		return nil, fmt.Errorf("translog: %s: %w", path, err)
	}

	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(line, &entry); err != nil {
			return nil, fmt.Errorf("translog: %s: decoding line %d: %w", path, len(entries)+1, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("translog: %s: %w", path, err)
	}
	return entries, nil
}
