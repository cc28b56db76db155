// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reaper

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// Entry is one directory entry with its ordering timestamps.
type Entry struct {
	Name     string
	Path     string
	IsDir    bool
	Created  time.Time
	Modified time.Time
}

// List returns the entries of directory newest first. With dirsOnly,
// regular files and other non-directories are omitted. A missing
// directory yields no entries and no error.
func List(directory string, dirsOnly bool) ([]Entry, error) {
	dirEntries, err := os.ReadDir(directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing %s: %w", directory, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		if dirsOnly && !dirEntry.IsDir() {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		path := filepath.Join(directory, dirEntry.Name())
		entries = append(entries, Entry{
			Name:     dirEntry.Name(),
			Path:     path,
			IsDir:    dirEntry.IsDir(),
			Created:  CreationTime(path, info),
			Modified: info.ModTime(),
		})
	}
	SortNewestFirst(entries)
	return entries, nil
}

// SortNewestFirst orders entries by creation time, then modification
// time, then name, all descending. Birth times are often coarse, so
// the later keys break the frequent ties.
func SortNewestFirst(entries []Entry) {
	slices.SortStableFunc(entries, func(a, b Entry) int {
		if c := b.Created.Compare(a.Created); c != 0 {
			return c
		}
		if c := b.Modified.Compare(a.Modified); c != 0 {
			return c
		}
		return strings.Compare(b.Name, a.Name)
	})
}

// RemoveWithin removes path and everything below it, refusing any
// path that is not strictly inside root.
func RemoveWithin(root, path string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving root %s: %w", root, err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("refusing to remove %s: outside %s", path, root)
	}
	return os.RemoveAll(absPath)
}
