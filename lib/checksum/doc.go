// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package checksum computes the BLAKE3 digests recorded for staged
// artifacts. Digests are keyed with a fixed domain so that a dropship
// artifact checksum never collides with a plain BLAKE3 hash of the
// same bytes computed elsewhere.
//
// The canonical string form is "blake3:" followed by 64 hex digits.
// That string is what the tracking store persists and what the CLI
// prints.
package checksum
