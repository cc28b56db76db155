// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ftpsync mirrors a local directory onto an FTP server.
//
// Files that are missing remotely or whose size differs are uploaded;
// remote files and folders with no local counterpart are removed. FTP
// listings carry no reliable modification time, so size is the only
// change signal. Each Sync uses its own control connection.
package ftpsync
