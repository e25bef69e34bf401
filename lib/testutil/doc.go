// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for menuflow packages.
//
// [RequireReceive] and [RequireClosed] wrap the select-with-timeout
// pattern so tests that wait on goroutines (sync loops, the dispatch
// bus) never hang forever. They are the only place in the test suite
// that uses the wall clock; everything scheduled by production code
// runs on a [clock.FakeClock] instead.
//
// [TempDatabase] returns a fresh SQLite path under t.TempDir().
//
// All helpers call t.Fatalf on failure.
package testutil
