// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool provides the SQLite connection pool shared by
// menuflow's stores (accounts, conversation participants).
//
// It wraps zombiezen.com/go/sqlite's sqlitex.Pool. Every connection
// is prepared with the same pragmas (WAL journal, NORMAL synchronous,
// a 5 second busy timeout, in-memory temp storage) and then with the
// store's schema script, so a store never observes a connection whose
// tables do not exist yet.
//
// Stores use [Pool.Read] for queries and [Pool.Write] for mutations.
// Write runs the callback inside an IMMEDIATE transaction: the write
// lock is taken up front, so two concurrent updates of the same
// account row serialize instead of failing with SQLITE_BUSY at commit
// time. A callback error rolls the transaction back.
package sqlitepool
