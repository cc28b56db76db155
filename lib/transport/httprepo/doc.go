// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package httprepo is a client for the HTTP artifact repository that
// receives staged packages on sites without file-share access.
//
// The repository exposes a flat directory API under
// <base>/<api version>/:
//
//	GET    Directory                 top-level directory names
//	GET    GetDirectoryNames?path=p  subdirectory names of p
//	PUT    Directory?path=p          create p
//	DELETE Directory?path=p          delete p and its contents
//	POST   Upload?path=p             multipart upload into p
//
// Listings are JSON string arrays. Older servers answer with a
// bracketed, comma-separated list without quoting; both are accepted.
package httprepo
