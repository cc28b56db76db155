// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package manifest reads and writes manifest.cbor, the record of which
// builds and artifacts make up one staged package version. The file
// sits next to the staged artifacts so that every mirror destination
// carries a self-describing copy.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bureau-foundation/dropship/lib/codec"
)

// FileName is the manifest's name inside a version directory.
const FileName = "manifest.cbor"

// FormatVersion is incremented on incompatible changes.
const FormatVersion = 1

// Manifest describes one staged package version.
type Manifest struct {
	FormatVersion int       `cbor:"format_version"`
	Project       string    `cbor:"project"`
	Branch        string    `cbor:"branch"`
	SubBranch     string    `cbor:"sub_branch"`
	Version       string    `cbor:"version"`
	StagedAt      time.Time `cbor:"staged_at"`
	Builds        []Build   `cbor:"builds"`
	Artifacts     []File    `cbor:"artifacts"`
}

// Build is one upstream build that contributed artifacts.
type Build struct {
	Definition     string    `cbor:"definition"`
	URI            string    `cbor:"uri"`
	BuildNumber    string    `cbor:"build_number"`
	Completed      time.Time `cbor:"completed"`
	SourceRevision string    `cbor:"source_revision,omitempty"`
	DropLocation   string    `cbor:"drop_location"`
}

// File is one artifact expected in the version directory.
type File struct {
	Name        string `cbor:"name"`
	SourcePath  string `cbor:"source_path"`
	BuildNumber string `cbor:"build_number"`
	Size        int64  `cbor:"size"`
	Staged      bool   `cbor:"staged"`
}

// Write atomically writes m into directory as FileName.
func Write(directory string, m Manifest) error {
	if m.FormatVersion == 0 {
		m.FormatVersion = FormatVersion
	}
	data, err := codec.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	finalPath := filepath.Join(directory, FileName)
	tmpFile, err := os.CreateTemp(directory, ".manifest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting manifest mode: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming manifest to %s: %w", finalPath, err)
	}

	success = true
	return nil
}

// Read decodes the manifest at path. A path naming a directory reads
// FileName inside it. A missing file wraps os.ErrNotExist.
func Read(path string) (Manifest, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, FileName)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := codec.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.FormatVersion > FormatVersion {
		return Manifest{}, fmt.Errorf("manifest %s has format version %d, newer than supported %d", path, m.FormatVersion, FormatVersion)
	}
	return m, nil
}

// StagedCount returns how many artifacts were staged.
func (m Manifest) StagedCount() int {
	count := 0
	for _, file := range m.Artifacts {
		if file.Staged {
			count++
		}
	}
	return count
}
