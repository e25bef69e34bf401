// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ref

import (
	"encoding/json"
	"testing"
)

func TestParseUserID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"valid", "@menu:example.org", false},
		{"valid with port", "@menu:example.org:8448", false},
		{"empty", "", true},
		{"missing sigil", "menu:example.org", true},
		{"wrong sigil", "!menu:example.org", true},
		{"missing server", "@menu", true},
		{"empty localpart", "@:example.org", true},
		{"empty server", "@menu:", true},
		{"space in server", "@menu:exa mple.org", true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			userID, err := ParseUserID(test.raw)
			if test.wantErr {
				if err == nil {
					t.Fatalf("ParseUserID(%q) = %v, want error", test.raw, userID)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUserID(%q): %v", test.raw, err)
			}
			if userID.String() != test.raw {
				t.Errorf("String() = %q, want %q", userID.String(), test.raw)
			}
		})
	}
}

func TestParseRoomID(t *testing.T) {
	if _, err := ParseRoomID("!abc:example.org"); err != nil {
		t.Errorf("ParseRoomID: %v", err)
	}
	for _, raw := range []string{"", "abc:example.org", "#abc:example.org", "!abc", "!:example.org"} {
		if _, err := ParseRoomID(raw); err == nil {
			t.Errorf("ParseRoomID(%q) succeeded, want error", raw)
		}
	}
}

func TestRefJSONRoundTrip(t *testing.T) {
	type record struct {
		User UserID            `json:"user"`
		Room RoomID            `json:"room"`
		Keys map[RoomID]string `json:"keys"`
	}
	original := record{
		User: MustParseUserID("@menu:example.org"),
		Room: MustParseRoomID("!abc:example.org"),
		Keys: map[RoomID]string{MustParseRoomID("!def:example.org"): "x"},
	}
	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var decoded record
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.User != original.User || decoded.Room != original.Room {
		t.Errorf("round trip = %+v, want %+v", decoded, original)
	}
	if decoded.Keys[MustParseRoomID("!def:example.org")] != "x" {
		t.Errorf("map key round trip lost entry: %v", decoded.Keys)
	}
}

func TestUnmarshalRejectsInvalid(t *testing.T) {
	var userID UserID
	if err := json.Unmarshal([]byte(`"not-a-user"`), &userID); err == nil {
		t.Error("expected error for invalid user ID")
	}
	if err := json.Unmarshal([]byte(`""`), &userID); err != nil {
		t.Errorf("empty string should decode to zero value: %v", err)
	}
	if !userID.IsZero() {
		t.Errorf("expected zero value, got %q", userID)
	}
}
