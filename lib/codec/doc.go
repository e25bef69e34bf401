// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec is the single place menuflow configures CBOR.
//
// Conversation variables are arbitrary values (strings, numbers,
// nested maps from flow nodes). They are persisted as CBOR blobs so a
// value written by SetVariable decodes to the same shape whether it
// comes from the in-memory cache or from SQLite after a restart.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// value always yields the same bytes. Decoding into an any target
// produces map[string]any rather than map[any]any so decoded values
// mix freely with encoding/json output.
package codec
