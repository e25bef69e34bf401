// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/menuflow/lib/ref"
)

func newTestSession(t *testing.T, handler http.HandlerFunc) *DirectSession {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{HomeserverURL: server.URL})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client.SessionFromToken(ref.MustParseUserID("@menu:example.org"), "syt_token")
}

func writeJSON(t *testing.T, writer http.ResponseWriter, status int, value any) {
	t.Helper()
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	if err := json.NewEncoder(writer).Encode(value); err != nil {
		t.Errorf("encoding response: %v", err)
	}
}

func TestNewClient(t *testing.T) {
	t.Run("valid URL", func(t *testing.T) {
		client, err := NewClient(ClientConfig{HomeserverURL: "https://matrix.example.org/"})
		if err != nil {
			t.Fatalf("NewClient failed: %v", err)
		}
		if client.baseURL != "https://matrix.example.org" {
			t.Errorf("baseURL = %q, want trailing slash stripped", client.baseURL)
		}
	})

	t.Run("empty URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{}); err == nil {
			t.Fatal("expected error for empty URL")
		}
	})

	t.Run("invalid URL", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "://invalid"}); err == nil {
			t.Fatal("expected error for invalid URL")
		}
	})

	t.Run("non-http scheme", func(t *testing.T) {
		if _, err := NewClient(ClientConfig{HomeserverURL: "ftp://example.org"}); err == nil {
			t.Fatal("expected error for ftp scheme")
		}
	})
}

func TestServerVersions(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/versions" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if header := request.Header.Get("Authorization"); header != "" {
			t.Errorf("versions request carried Authorization %q", header)
		}
		writeJSON(t, writer, http.StatusOK, map[string]any{"versions": []string{"v1.10", "v1.11"}})
	})

	response, err := session.ServerVersions(context.Background())
	if err != nil {
		t.Fatalf("ServerVersions failed: %v", err)
	}
	if len(response.Versions) != 2 || response.Versions[1] != "v1.11" {
		t.Errorf("Versions = %v", response.Versions)
	}
}

func TestWhoAmI(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/_matrix/client/v3/account/whoami" {
			t.Errorf("unexpected path: %s", request.URL.Path)
		}
		if got := request.Header.Get("Authorization"); got != "Bearer syt_token" {
			t.Errorf("Authorization = %q", got)
		}
		writeJSON(t, writer, http.StatusOK, map[string]any{
			"user_id":   "@menu:example.org",
			"device_id": "DEVICE",
		})
	})

	response, err := session.WhoAmI(context.Background())
	if err != nil {
		t.Fatalf("WhoAmI failed: %v", err)
	}
	if response.UserID != ref.MustParseUserID("@menu:example.org") {
		t.Errorf("UserID = %s", response.UserID)
	}
	if response.DeviceID != "DEVICE" {
		t.Errorf("DeviceID = %q", response.DeviceID)
	}
}

func TestCreateFilter(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", request.Method)
		}
		if request.URL.EscapedPath() != "/_matrix/client/v3/user/@menu:example.org/filter" &&
			request.URL.EscapedPath() != "/_matrix/client/v3/user/%40menu:example.org/filter" {
			t.Errorf("unexpected path: %s", request.URL.EscapedPath())
		}

		var body map[string]any
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Fatalf("decoding filter: %v", err)
		}
		room := body["room"].(map[string]any)
		timeline := room["timeline"].(map[string]any)
		if timeline["limit"] != float64(50) || timeline["lazy_load_members"] != true {
			t.Errorf("timeline filter = %v", timeline)
		}
		state := room["state"].(map[string]any)
		if state["lazy_load_members"] != true {
			t.Errorf("state filter = %v", state)
		}
		presence := body["presence"].(map[string]any)
		notTypes := presence["not_types"].([]any)
		if len(notTypes) != 1 || notTypes[0] != "m.presence" {
			t.Errorf("presence filter = %v", presence)
		}

		writeJSON(t, writer, http.StatusOK, map[string]any{"filter_id": "7"})
	})

	filterID, err := session.CreateFilter(context.Background(), DefaultSyncFilter())
	if err != nil {
		t.Fatalf("CreateFilter failed: %v", err)
	}
	if filterID != "7" {
		t.Errorf("filterID = %q, want 7", filterID)
	}
}

func TestCreateFilterMissingID(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		writeJSON(t, writer, http.StatusOK, map[string]any{})
	})
	if _, err := session.CreateFilter(context.Background(), DefaultSyncFilter()); err == nil {
		t.Fatal("expected error for response without filter_id")
	}
}

func TestJoinRoom(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", request.Method)
		}
		writeJSON(t, writer, http.StatusOK, map[string]any{"room_id": "!abc:example.org"})
	})

	roomID, err := session.JoinRoom(context.Background(), ref.MustParseRoomID("!abc:example.org"))
	if err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if roomID.String() != "!abc:example.org" {
		t.Errorf("roomID = %s", roomID)
	}
}

func TestMatrixErrors(t *testing.T) {
	tests := []struct {
		name              string
		status            int
		body              string
		wantCode          string
		invalidCredential bool
	}{
		{"unknown token", http.StatusUnauthorized, `{"errcode":"M_UNKNOWN_TOKEN","error":"Invalid access token"}`, ErrCodeUnknownToken, true},
		{"missing token", http.StatusUnauthorized, `{"errcode":"M_MISSING_TOKEN","error":"Missing access token"}`, ErrCodeMissingToken, true},
		{"forbidden", http.StatusForbidden, `{"errcode":"M_FORBIDDEN","error":"no"}`, ErrCodeForbidden, false},
		{"rate limited", http.StatusTooManyRequests, `{"errcode":"M_LIMIT_EXCEEDED","error":"slow down"}`, ErrCodeLimitExceeded, false},
		{"gateway html", http.StatusBadGateway, `<html>bad gateway</html>`, ErrCodeUnknown, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
				writer.WriteHeader(test.status)
				writer.Write([]byte(test.body))
			})

			_, err := session.WhoAmI(context.Background())
			if err == nil {
				t.Fatal("expected error")
			}
			var matrixErr *MatrixError
			if !errors.As(err, &matrixErr) {
				t.Fatalf("error %v is not a *MatrixError", err)
			}
			if matrixErr.Code != test.wantCode {
				t.Errorf("Code = %s, want %s", matrixErr.Code, test.wantCode)
			}
			if matrixErr.StatusCode != test.status {
				t.Errorf("StatusCode = %d, want %d", matrixErr.StatusCode, test.status)
			}
			if !IsMatrixError(err, test.wantCode) {
				t.Errorf("IsMatrixError(%s) = false", test.wantCode)
			}
			if got := IsInvalidCredential(err); got != test.invalidCredential {
				t.Errorf("IsInvalidCredential = %v, want %v", got, test.invalidCredential)
			}
		})
	}
}

func TestIsInvalidCredentialNonMatrix(t *testing.T) {
	if IsInvalidCredential(errors.New("dial tcp: connection refused")) {
		t.Error("network error classified as invalid credential")
	}
	if IsInvalidCredential(nil) {
		t.Error("nil classified as invalid credential")
	}
}

func TestSync(t *testing.T) {
	session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
		query := request.URL.Query()
		if query.Get("since") != "s41" {
			t.Errorf("since = %q", query.Get("since"))
		}
		if query.Get("timeout") != "30000" {
			t.Errorf("timeout = %q", query.Get("timeout"))
		}
		if query.Get("filter") != "7" {
			t.Errorf("filter = %q", query.Get("filter"))
		}
		writer.Write([]byte(`{"next_batch":"s42","rooms":{"join":{}}}`))
	})

	payload, err := session.Sync(context.Background(), SyncOptions{
		Since: "s41", Timeout: 30000, SetTimeout: true, Filter: "7",
	})
	if err != nil {
		t.Fatalf("Sync failed: %v", err)
	}
	if payload.NextBatch != "s42" || payload.Since != "s41" {
		t.Errorf("payload cursors = %q/%q", payload.NextBatch, payload.Since)
	}
	if payload.Initial() {
		t.Error("payload with since reported as initial")
	}
	if string(payload.Body) != `{"next_batch":"s42","rooms":{"join":{}}}` {
		t.Errorf("Body = %s", payload.Body)
	}
}

func TestSyncRejectsMalformed(t *testing.T) {
	for name, body := range map[string]string{
		"not json":          `{"next_batch":`,
		"missing cursor":    `{"rooms":{}}`,
		"non-string cursor": `{"next_batch":12}`,
	} {
		t.Run(name, func(t *testing.T) {
			session := newTestSession(t, func(writer http.ResponseWriter, request *http.Request) {
				writer.Write([]byte(body))
			})
			if _, err := session.Sync(context.Background(), SyncOptions{}); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
