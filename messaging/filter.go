// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

// Filter is the subset of the Matrix filter definition menuflow
// uploads. Zero-valued sections are omitted.
type Filter struct {
	Room     *RoomFilter  `json:"room,omitempty"`
	Presence *EventFilter `json:"presence,omitempty"`
}

// RoomFilter restricts the rooms section of /sync.
type RoomFilter struct {
	Timeline *RoomEventFilter `json:"timeline,omitempty"`
	State    *RoomEventFilter `json:"state,omitempty"`
}

// RoomEventFilter restricts a room event list.
type RoomEventFilter struct {
	Limit           int      `json:"limit,omitempty"`
	LazyLoadMembers bool     `json:"lazy_load_members,omitempty"`
	Types           []string `json:"types,omitempty"`
	NotTypes        []string `json:"not_types,omitempty"`
}

// EventFilter restricts a non-room event list.
type EventFilter struct {
	Types    []string `json:"types,omitempty"`
	NotTypes []string `json:"not_types,omitempty"`
}

// DefaultSyncFilter is the filter negotiated for every account: the 50
// most recent timeline events per room, lazily loaded members, and no
// presence.
func DefaultSyncFilter() Filter {
	return Filter{
		Room: &RoomFilter{
			Timeline: &RoomEventFilter{Limit: 50, LazyLoadMembers: true},
			State:    &RoomEventFilter{LazyLoadMembers: true},
		},
		Presence: &EventFilter{NotTypes: []string{"m.presence"}},
	}
}
