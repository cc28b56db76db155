// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package fileshare

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// CopyFile copies source to destination atomically and preserves the
// source modification time. The destination's parent directory is
// created if needed. It returns the number of bytes copied.
func CopyFile(source, destination string) (written int64, err error) {
	in, err := os.Open(source)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", source, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", source, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", source)
	}

	directory := filepath.Dir(destination)
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return 0, fmt.Errorf("creating %s: %w", directory, err)
	}

	out, err := os.CreateTemp(directory, ".dropship-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("creating temporary file in %s: %w", directory, err)
	}
	temporaryPath := out.Name()
	success := false
	defer func() {
		if !success {
			out.Close()
			os.Remove(temporaryPath)
		}
	}()

	written, err = io.Copy(out, in)
	if err != nil {
		return 0, fmt.Errorf("copying %s: %w", source, err)
	}
	if err := out.Chmod(info.Mode().Perm() | 0o200); err != nil {
		return 0, fmt.Errorf("chmod %s: %w", temporaryPath, err)
	}
	// Close before Chtimes: the final flush may touch the mtime.
	if err := out.Close(); err != nil {
		return 0, fmt.Errorf("closing %s: %w", temporaryPath, err)
	}
	if err := os.Chtimes(temporaryPath, info.ModTime(), info.ModTime()); err != nil {
		return 0, fmt.Errorf("setting times on %s: %w", temporaryPath, err)
	}
	if err := os.Rename(temporaryPath, destination); err != nil {
		return 0, fmt.Errorf("renaming into %s: %w", destination, err)
	}
	success = true
	return written, nil
}
