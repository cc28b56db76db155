// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reaper

import (
	"io/fs"
	"time"

	"golang.org/x/sys/unix"
)

// CreationTime returns the birth time of path, or info's modification
// time when the kernel or filesystem does not report one.
func CreationTime(path string, info fs.FileInfo) time.Time {
	var stat unix.Statx_t
	err := unix.Statx(unix.AT_FDCWD, path, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stat)
	if err != nil || stat.Mask&unix.STATX_BTIME == 0 {
		return info.ModTime()
	}
	return time.Unix(stat.Btime.Sec, int64(stat.Btime.Nsec))
}
