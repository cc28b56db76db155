// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool behind the
// dropship tracking store.
//
// It wraps zombiezen.com/go/sqlite with the pragmas the store relies on
// and with ordered schema migrations tracked in PRAGMA user_version:
//
//   - journal_mode=WAL: readers never block the single writer, so the
//     CLI can inspect the store while the daemon is running.
//   - synchronous=NORMAL: committed rows survive a process crash.
//   - busy_timeout=5000: the main and external-mirror loops write
//     concurrently to distinct keys; the loser of a write race waits
//     instead of failing with SQLITE_BUSY.
//   - foreign_keys=ON: artifact rows reference their package row.
//   - cache_size, mmap_size, temp_store: read performance.
//
// Usage:
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       filepath.Join(stateDir, "dropship.sqlite3"),
//	    Logger:     logger,
//	    Migrations: []string{schemaV1},
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	conn, err := pool.Take(ctx)
//	if err != nil {
//	    return err
//	}
//	defer pool.Put(conn)
//
// Callers write SQL directly, using sqlitex.Execute for cached
// statements and sqlitex.ImmediateTransaction for writes.
package sqlitepool
