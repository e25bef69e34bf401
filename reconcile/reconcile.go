// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/messaging"
)

// ErrMissingInviteEvent marks an invited room whose stripped state
// lacks the account's own m.room.member event.
var ErrMissingInviteEvent = errors.New("reconcile: invite state has no membership event for the account")

// ErrInvalidRoomID marks an invited room keyed by something that is
// not a Matrix room ID.
var ErrInvalidRoomID = errors.New("reconcile: invalid room ID")

// IntegrityError reports an invited room that could not be reconciled.
type IntegrityError struct {
	// Key is the room key as it appears in the payload.
	Key string
	// RoomID is the parsed key; zero when Err is ErrInvalidRoomID.
	RoomID ref.RoomID
	// Err is ErrMissingInviteEvent or ErrInvalidRoomID.
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("reconcile: room %s: %v", e.Key, e.Err)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// Invite is a pending room invitation.
type Invite struct {
	RoomID ref.RoomID
	// Event is the account's own m.room.member event with membership
	// "invite".
	Event messaging.Event
	// InviteRoomState is the remaining stripped state (room name,
	// join rules, the inviter's membership, ...).
	InviteRoomState []messaging.Event
}

// Result is the classified content of one payload.
type Result struct {
	Messages []messaging.Event
	Invites  []Invite
	Leaves   []messaging.Event
}

// Config configures a Reconciler.
type Config struct {
	// Clock supplies the timestamp for invite events that arrive
	// without origin_server_ts. Nil uses the real clock.
	Clock clock.Clock
	// Logger receives debug output for skipped events. Nil discards.
	Logger *slog.Logger
}

// Reconciler classifies sync payloads. It holds no per-payload state
// and is safe for concurrent use.
type Reconciler struct {
	clock  clock.Clock
	logger *slog.Logger
}

// New creates a Reconciler.
func New(config Config) *Reconciler {
	reconcileClock := config.Clock
	if reconcileClock == nil {
		reconcileClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reconciler{clock: reconcileClock, logger: logger}
}

// Reconcile classifies payload for the account selfID. The returned
// Result is always non-nil when the payload is valid JSON; the error,
// if any, joins one *IntegrityError per dropped invite.
func (r *Reconciler) Reconcile(payload json.RawMessage, selfID ref.UserID) (*Result, error) {
	if !gjson.ValidBytes(payload) {
		return nil, fmt.Errorf("reconcile: payload is not valid JSON")
	}

	rooms := gjson.GetBytes(payload, "rooms")
	joined := rooms.Get("join")
	self := selfID.String()

	stale := r.staleRooms(joined, self)
	result := &Result{}

	joined.ForEach(func(key, room gjson.Result) bool {
		if stale[key.Str] {
			return true
		}
		roomID, ok := r.parseRoomID(key.Str)
		if !ok {
			return true
		}
		for _, raw := range room.Get("timeline.events").Array() {
			if raw.Get("type").Str != messaging.EventTypeMessage {
				continue
			}
			if event, ok := r.decode(raw, roomID); ok {
				result.Messages = append(result.Messages, event)
			}
		}
		return true
	})

	var integrityErrors []error
	rooms.Get("invite").ForEach(func(key, room gjson.Result) bool {
		if stale[key.Str] {
			return true
		}
		roomID, err := ref.ParseRoomID(key.Str)
		if err != nil {
			r.logger.Warn("dropping invite with invalid room ID", "room_id", key.Str, "error", err)
			integrityErrors = append(integrityErrors, &IntegrityError{Key: key.Str, Err: ErrInvalidRoomID})
			return true
		}
		invite, err := r.buildInvite(roomID, room.Get("invite_state.events").Array(), self)
		if err != nil {
			integrityErrors = append(integrityErrors, err)
			return true
		}
		result.Invites = append(result.Invites, invite)
		return true
	})

	rooms.Get("leave").ForEach(func(key, room gjson.Result) bool {
		roomID, ok := r.parseRoomID(key.Str)
		if !ok {
			return true
		}
		for _, raw := range room.Get("timeline.events").Array() {
			if !raw.Get("state_key").Exists() {
				continue
			}
			if event, ok := r.decode(raw, roomID); ok {
				result.Leaves = append(result.Leaves, event)
			}
		}
		return true
	})

	return result, errors.Join(integrityErrors...)
}

// staleRooms scans each joined room's timeline from newest to oldest.
// The first m.room.member event about the account decides: anything
// but "join" marks the room stale.
func (r *Reconciler) staleRooms(joined gjson.Result, self string) map[string]bool {
	stale := make(map[string]bool)
	joined.ForEach(func(key, room gjson.Result) bool {
		events := room.Get("timeline.events").Array()
		for i := len(events) - 1; i >= 0; i-- {
			event := events[i]
			if !isOwnMembership(event, self) {
				continue
			}
			if membership := event.Get("content.membership").Str; membership != messaging.MembershipJoin {
				r.logger.Debug("suppressing stale joined room",
					"room_id", key.Str, "membership", membership)
				stale[key.Str] = true
			}
			break
		}
		return true
	})
	return stale
}

func (r *Reconciler) buildInvite(roomID ref.RoomID, events []gjson.Result, self string) (Invite, error) {
	inviteIndex := -1
	for i, event := range events {
		if isOwnMembership(event, self) {
			inviteIndex = i
			break
		}
	}
	if inviteIndex < 0 {
		r.logger.Debug("invite state lacks own membership", "room_id", roomID)
		return Invite{}, &IntegrityError{Key: roomID.String(), RoomID: roomID, Err: ErrMissingInviteEvent}
	}

	raw := []byte(events[inviteIndex].Raw)
	if !events[inviteIndex].Get("origin_server_ts").Exists() {
		var err error
		raw, err = sjson.SetBytes(raw, "origin_server_ts", r.clock.Now().UnixMilli())
		if err != nil {
			return Invite{}, fmt.Errorf("reconcile: room %s: stamping invite: %w", roomID, err)
		}
	}
	inviteEvent, ok := r.decodeBytes(raw, roomID)
	if !ok {
		return Invite{}, fmt.Errorf("reconcile: room %s: invite event is malformed", roomID)
	}

	invite := Invite{RoomID: roomID, Event: inviteEvent}
	for i, event := range events {
		if i == inviteIndex {
			continue
		}
		if decoded, ok := r.decode(event, roomID); ok {
			invite.InviteRoomState = append(invite.InviteRoomState, decoded)
		}
	}
	return invite, nil
}

func isOwnMembership(event gjson.Result, self string) bool {
	if event.Get("type").Str != messaging.EventTypeMember {
		return false
	}
	stateKey := event.Get("state_key")
	return stateKey.Type == gjson.String && stateKey.Str == self
}

func (r *Reconciler) parseRoomID(key string) (ref.RoomID, bool) {
	roomID, err := ref.ParseRoomID(key)
	if err != nil {
		r.logger.Debug("skipping room with invalid ID", "room_id", key, "error", err)
		return ref.RoomID{}, false
	}
	return roomID, true
}

// decode tags a copy of raw with roomID and decodes it.
func (r *Reconciler) decode(raw gjson.Result, roomID ref.RoomID) (messaging.Event, bool) {
	return r.decodeBytes([]byte(raw.Raw), roomID)
}

// decodeBytes tags data with roomID and decodes it. data must be a
// private copy; sjson may reuse its backing array.
func (r *Reconciler) decodeBytes(data []byte, roomID ref.RoomID) (messaging.Event, bool) {
	tagged, err := sjson.SetBytes(data, "room_id", roomID.String())
	if err != nil {
		r.logger.Debug("skipping untaggable event", "room_id", roomID, "error", err)
		return messaging.Event{}, false
	}
	var event messaging.Event
	if err := json.Unmarshal(tagged, &event); err != nil {
		r.logger.Debug("skipping malformed event",
			"room_id", roomID, "event_id", gjson.GetBytes(data, "event_id").Str, "error", err)
		return messaging.Event{}, false
	}
	if event.Type == "" {
		r.logger.Debug("skipping event without type", "room_id", roomID)
		return messaging.Event{}, false
	}
	return event, true
}
