// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package participant keeps the conversation position and variables of
// each user talking to a menuflow account.
//
// A [Participant] is the engine's view of one user: the context label
// naming where the user is in the flow, the [State] derived from that
// label, and named variables whose values are stored CBOR-encoded via
// lib/codec. The [Store] caches participants in memory and fills
// misses through a [Repository] with one load per user ID no matter
// how many goroutines ask at once. Every mutation is written to the
// repository before it becomes visible in the cache.
package participant
