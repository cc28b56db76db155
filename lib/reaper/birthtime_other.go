// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package reaper

import (
	"io/fs"
	"time"
)

// CreationTime returns info's modification time; birth time is only
// read on Linux.
func CreationTime(path string, info fs.FileInfo) time.Time {
	return info.ModTime()
}
