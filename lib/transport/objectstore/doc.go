// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package objectstore mirrors staged directories into an S3-compatible
// bucket (MinIO, Ceph RGW, AWS S3) under a key prefix.
//
// Keys mirror the staging layout: <prefix>/<branch>/<version>/<file>.
// An object is uploaded when it is missing or its size differs, and
// objects under the synced prefix with no local counterpart are
// removed, so the bucket tracks retention in the staging cache.
package objectstore
