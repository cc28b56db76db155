// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fileshare

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bureau-foundation/dropship/lib/clock"
	"github.com/bureau-foundation/dropship/lib/mirror"
)

// DefaultRetryWait is the pause between attempts of a failed copy.
const DefaultRetryWait = 5 * time.Second

// Config configures a Mirror.
type Config struct {
	// Root is the share root relative staging paths are joined onto.
	Root string

	// Retries is the number of extra attempts per failed file.
	Retries int

	// RetryWait defaults to DefaultRetryWait.
	RetryWait time.Duration

	Clock  clock.Clock
	Logger *slog.Logger
}

// Mirror is a file-share transport.
type Mirror struct {
	root      string
	retries   int
	retryWait time.Duration
	clock     clock.Clock
	logger    *slog.Logger
}

// New validates config and returns a Mirror.
func New(config Config) (*Mirror, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("fileshare: Root is required")
	}
	if config.Clock == nil {
		return nil, fmt.Errorf("fileshare: Clock is required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("fileshare: Logger is required")
	}
	if config.Retries < 0 {
		return nil, fmt.Errorf("fileshare: Retries must not be negative")
	}
	retryWait := config.RetryWait
	if retryWait <= 0 {
		retryWait = DefaultRetryWait
	}
	return &Mirror{
		root:      config.Root,
		retries:   config.Retries,
		retryWait: retryWait,
		clock:     config.Clock,
		logger:    config.Logger.With("component", "fileshare", "root", config.Root),
	}, nil
}

// Name implements mirror.Transport.
func (m *Mirror) Name() string { return "fileshare" }

// Root implements mirror.Transport.
func (m *Mirror) Root() string { return m.root }

// Sync implements mirror.Transport.
func (m *Mirror) Sync(ctx context.Context, source, destination string) (mirror.SyncResult, error) {
	var result mirror.SyncResult

	sourceInfo, err := os.Stat(source)
	if err != nil {
		return result, fmt.Errorf("fileshare: source: %w", err)
	}
	if !sourceInfo.IsDir() {
		return result, fmt.Errorf("fileshare: source %s is not a directory", source)
	}
	if err := os.MkdirAll(destination, 0o755); err != nil {
		return result, fmt.Errorf("fileshare: creating %s: %w", destination, err)
	}

	var failures []error
	err = filepath.WalkDir(source, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		relative, err := filepath.Rel(source, path)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		target := filepath.Join(destination, relative)

		if entry.IsDir() {
			return m.ensureDirectory(target)
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		if upToDate(info, target) {
			return nil
		}
		if err := m.copyWithRetry(ctx, path, target); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			result.Failed++
			failures = append(failures, err)
			m.logger.Error("copy failed", "source", path, "destination", target, "error", err)
			return nil
		}
		result.Copied++
		result.Uploaded = append(result.Uploaded, filepath.ToSlash(relative))
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("fileshare: walking %s: %w", source, err)
	}

	if err := m.removeExtraneous(ctx, source, destination, &result); err != nil {
		failures = append(failures, err)
	}

	if result.Failed > 0 {
		return result, fmt.Errorf("fileshare: %d files failed: %w", result.Failed, errors.Join(failures...))
	}
	if len(failures) > 0 {
		return result, fmt.Errorf("fileshare: %w", errors.Join(failures...))
	}
	return result, nil
}

// ensureDirectory makes target a directory, replacing a file of the
// same name.
func (m *Mirror) ensureDirectory(target string) error {
	info, err := os.Lstat(target)
	if err == nil && !info.IsDir() {
		if err := os.Remove(target); err != nil {
			return err
		}
	}
	return os.MkdirAll(target, 0o755)
}

func upToDate(source fs.FileInfo, target string) bool {
	info, err := os.Lstat(target)
	if err != nil || !info.Mode().IsRegular() {
		return false
	}
	return info.Size() == source.Size() && info.ModTime().Equal(source.ModTime())
}

func (m *Mirror) copyWithRetry(ctx context.Context, source, target string) error {
	if info, err := os.Lstat(target); err == nil && info.IsDir() {
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("replacing directory %s: %w", target, err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= m.retries; attempt++ {
		if attempt > 0 {
			m.logger.Warn("retrying copy",
				"source", source,
				"attempt", fmt.Sprintf("%d/%d", attempt, m.retries),
				"after", m.retryWait,
			)
			select {
			case <-m.clock.After(m.retryWait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if _, lastErr = CopyFile(source, target); lastErr == nil {
			return nil
		}
	}
	return fmt.Errorf("after %d attempts: %w", m.retries+1, lastErr)
}

// removeExtraneous deletes destination entries that have no source
// counterpart.
func (m *Mirror) removeExtraneous(ctx context.Context, source, destination string, result *mirror.SyncResult) error {
	var failures []error
	err := filepath.WalkDir(destination, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		relative, err := filepath.Rel(destination, path)
		if err != nil {
			return err
		}
		if relative == "." {
			return nil
		}
		if strings.HasPrefix(entry.Name(), ".dropship-") {
			// A temporary file of a concurrent copy.
			return nil
		}
		if _, err := os.Lstat(filepath.Join(source, relative)); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			return err
		}

		if err := os.RemoveAll(path); err != nil {
			failures = append(failures, fmt.Errorf("removing %s: %w", path, err))
		} else {
			result.Removed++
			result.Deleted = append(result.Deleted, filepath.ToSlash(relative))
		}
		if entry.IsDir() {
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		failures = append(failures, fmt.Errorf("walking %s: %w", destination, err))
	}
	return errors.Join(failures...)
}
