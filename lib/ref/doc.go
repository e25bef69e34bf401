// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable Matrix identifiers used
// throughout menuflow: [UserID] for accounts and conversation
// participants, [RoomID] for rooms named in /sync payloads.
//
// Both types wrap a string that has passed structural validation
// (sigil, non-empty localpart, ':server' suffix). They are comparable
// and usable as map keys. JSON and CBOR serialization use the full
// Matrix identifier via encoding.TextMarshaler, so a ref field in a
// record round-trips without custom code.
//
// The zero value of each type is "unset". Constructors never return a
// zero value without an error; IsZero distinguishes an absent field
// from a parsed one.
package ref
