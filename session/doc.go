// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package session keeps one live connection per managed Matrix
// account.
//
// [Registry] is the only way to obtain a [Session]. GetOrCreate returns
// the cached session for an account or, under a per-account lock,
// loads (or creates) the account record, wires a transport to it, and
// caches the result, so concurrent callers for the same account always
// share one Session and never trigger a second construction.
//
// [Session.Start] runs the connection bootstrap:
//
//	NEW -> PROBING -> STARTED
//	          |  ^
//	          v  |
//	       RETRYING -> DISABLED
//
// A probe checks homeserver reachability (versions) and the token's
// identity (whoami). A rejected token or an identity that does not
// match the account disables the account at once. Any other failure is
// retried: attempt k runs k*RetryStep after the previous failure, on
// the session's clock, without blocking the caller. After MaxAttempts
// retries the account is disabled. Disabling persists Enabled=false so
// the account is skipped on the next process start.
//
// Once started, each sync payload is classified by the reconciler and
// the resulting messages and invites go to the [EventSink]; accounts
// with AutoJoin join invited rooms first. The stream cursor is
// persisted after every payload.
package session
