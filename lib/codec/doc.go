// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration used for the
// build manifests written into every staged version directory.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items. The
// same BuildRecord set always produces identical bytes, so two
// manifests can be compared byte-for-byte when checking whether a
// mirror destination is stale. Timestamps are encoded as RFC 3339
// strings with nanoseconds so completion times round-trip exactly.
//
//	data, err := codec.Marshal(manifest)
//	err = codec.Unmarshal(data, &manifest)
//
// Diagnose renders the RFC 8949 diagnostic notation for
// "dropship manifest show --diag".
package codec
