// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package reconcile turns one raw /sync payload into the events the
// conversation engine should see.
//
// [Reconciler.Reconcile] reads the payload with gjson and never
// modifies it. Events are tagged with their room ID on a copy (sjson)
// and decoded into messaging.Event. The result holds three lists:
//
//   - Messages: m.room.message events from joined rooms, in timeline
//     order, rooms in the order they appear in the document.
//   - Invites: one per invited room, built around the account's own
//     m.room.member event, with the rest of the stripped state
//     attached.
//   - Leaves: state events from left rooms, kept for bookkeeping.
//
// A joined room whose timeline shows the account's most recent own
// membership as anything other than "join" is stale: the account has
// since left (or was kicked) and the server is replaying history. Such
// a room is dropped from both the message and invite output.
//
// An invited room without the account's own membership event, or one
// keyed by an invalid room ID, cannot be turned into an invite. It is
// reported as an [*IntegrityError] (matching [ErrMissingInviteEvent]
// or [ErrInvalidRoomID]) and skipped; the other rooms in the payload
// are still processed.
package reconcile
