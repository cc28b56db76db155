// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package translog records mirror transfers as JSON lines in per-day
// files under the state directory's logs folder:
//
//	transfer-2026-03-01.log
//	transfer-2026-02-28.log.zst
//
// The file for the current day is appended to as transfers finish.
// When the day changes, or when Rotate is called, earlier plain files
// are compressed with zstd or lz4 and the plain file is removed. Prune
// keeps the newest N files by creation time, the same ordering the
// staging reaper uses.
package translog
