// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the handful of Matrix client-server endpoints
// menuflow needs to keep an account connected.
//
// [Client] holds the homeserver URL and HTTP transport. [DirectSession]
// adds an access token and exposes the bootstrap probes
// (ServerVersions, WhoAmI), filter upload, room join, and a single
// /sync request that returns the raw response body untouched.
//
// [Syncer] runs the long-poll loop for one account: it repeats /sync
// with the previous next_batch cursor, reports each payload to a
// success callback, and backs off exponentially on failure (using
// cenkalti/backoff on an injectable clock). [Connection] bundles a
// DirectSession and a Syncer behind the interface the session package
// consumes.
//
// All API errors are returned as [*MatrixError] with the Matrix error
// code and HTTP status. [IsMatrixError] tests for a specific code;
// [IsInvalidCredential] recognizes the responses that mean the access
// token will never work again. Request URLs are built by string
// concatenation rather than url.URL to avoid double-encoding room ids.
package messaging
