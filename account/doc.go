// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package account persists the Matrix accounts menuflow manages.
//
// An [Account] carries the credentials needed to connect (homeserver,
// access token, device id), the resumable stream cursor (NextBatch),
// the negotiated sync filter, and two flags: AutoJoin, which accepts
// room invites automatically, and Enabled, which is cleared when the
// connection fails terminally and keeps the account from being
// started again.
//
// [Store] is the persistence interface the session registry depends
// on. [SQLiteStore] implements it on lib/sqlitepool. Update writes only
// the named [Field] values, in one IMMEDIATE transaction, so a cursor
// advance never overwrites a concurrent filter renegotiation.
package account
