// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch hands classified sync events to the conversation
// engine over an in-process watermill pub/sub.
//
// [Bus] implements session.EventSink. Each message or invite becomes a
// watermill message with a ULID identifier, a JSON payload
// ([MessageEnvelope] or [InviteEnvelope]), and account_id/room_id
// metadata, published on [TopicMessages] or [TopicInvites].
// Publishing blocks until every subscriber has acknowledged the
// message, which keeps the sync loop in step with the engine and
// preserves timeline order. A topic without subscribers drops
// messages.
package dispatch
