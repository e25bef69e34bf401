// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"encoding/json"

	"github.com/bureau-foundation/menuflow/lib/ref"
)

// Event types menuflow inspects.
const (
	EventTypeMessage = "m.room.message"
	EventTypeMember  = "m.room.member"
)

// Membership values carried in m.room.member content.
const (
	MembershipJoin   = "join"
	MembershipInvite = "invite"
	MembershipLeave  = "leave"
	MembershipBan    = "ban"
)

// Event represents a Matrix event from the server. RoomID is absent in
// /sync timelines (the room is the enclosing map key) and is filled in
// by the reconciler before decoding.
type Event struct {
	EventID        string         `json:"event_id,omitempty"`
	Type           string         `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts,omitempty"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Membership returns content.membership for m.room.member events and
// "" otherwise.
func (e Event) Membership() string {
	if e.Type != EventTypeMember {
		return ""
	}
	membership, _ := e.Content["membership"].(string)
	return membership
}

// Body returns content.body when it is a string.
func (e Event) Body() string {
	body, _ := e.Content["body"].(string)
	return body
}

// SyncOptions controls one /sync request.
type SyncOptions struct {
	Since      string // next_batch token from previous sync; empty for initial sync
	Timeout    int    // long-poll timeout in milliseconds
	SetTimeout bool   // send the timeout parameter (distinguishes "not set" from 0)
	Filter     string // filter ID
}

// SyncPayload is one /sync response kept as raw JSON. The reconciler
// reads Body directly; nothing in this package decodes the rooms
// section.
type SyncPayload struct {
	// NextBatch is the cursor to resume from after this payload.
	NextBatch string
	// Since is the cursor the request was made with. Empty for the
	// first sync of an account that has never synced.
	Since string
	// Body is the complete response document.
	Body json.RawMessage
}

// Initial reports whether this payload answers a request without a
// cursor.
func (p *SyncPayload) Initial() bool {
	return p.Since == ""
}

// WhoAmIResponse is returned by WhoAmI.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ServerVersionsResponse is returned by Client.ServerVersions.
type ServerVersionsResponse struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features,omitempty"`
}

// CreateFilterResponse is returned by the filter upload endpoint.
type CreateFilterResponse struct {
	FilterID string `json:"filter_id"`
}
