// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the scaffolding shared by the dropship
// daemon binaries: the standard structured logger and the operational
// HTTP server that exposes Prometheus metrics and a health check.
//
// Binaries compose these in their own main() rather than through a
// framework.
package service
