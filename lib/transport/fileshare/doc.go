// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package fileshare mirrors a local directory tree onto a mounted file
// share or any other local path.
//
// A file is copied when the destination is missing or its size or
// modification time differs. Copies go through a temporary file in the
// destination directory followed by a rename, and carry the source
// modification time, so an interrupted mirror never leaves a truncated
// artifact under its final name and an unchanged file is skipped next
// time. Destination entries with no source counterpart are removed.
//
// CopyFile is the same atomic copy, exported for staging single files
// out of a drop location.
package fileshare
