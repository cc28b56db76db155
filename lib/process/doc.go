// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides the entrypoint error handler shared by the
// dropship binaries. It covers the one place raw stderr output is
// legitimate: reporting an error from run() when the structured logger
// may not exist yet.
package process
