// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/lib/testutil"
)

func newTestConnection(t *testing.T, fakeClock *clock.FakeClock, handler http.HandlerFunc) *Connection {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	connection, err := NewConnection(ConnectionConfig{
		HomeserverURL: server.URL,
		UserID:        ref.MustParseUserID("@menu:example.org"),
		AccessToken:   "syt_token",
		Clock:         fakeClock,
		SyncTimeout:   30 * time.Second,
		MaxBackoff:    time.Minute,
	})
	if err != nil {
		t.Fatalf("NewConnection failed: %v", err)
	}
	t.Cleanup(func() { connection.Close() })
	return connection
}

func TestNewConnectionValidation(t *testing.T) {
	if _, err := NewConnection(ConnectionConfig{HomeserverURL: "https://example.org", AccessToken: "x"}); err == nil {
		t.Error("expected error without UserID")
	}
	if _, err := NewConnection(ConnectionConfig{
		HomeserverURL: "https://example.org",
		UserID:        ref.MustParseUserID("@menu:example.org"),
	}); err == nil {
		t.Error("expected error without AccessToken")
	}
}

func TestSyncerAdvancesCursor(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))
	var requests atomic.Int32
	connection := newTestConnection(t, fakeClock, func(writer http.ResponseWriter, request *http.Request) {
		count := requests.Add(1)
		query := request.URL.Query()
		if query.Get("filter") != "f1" {
			t.Errorf("request %d filter = %q", count, query.Get("filter"))
		}
		switch count {
		case 1:
			if query.Has("since") || query.Has("timeout") {
				t.Errorf("initial sync sent since/timeout: %v", query)
			}
		default:
			if want := fmt.Sprintf("s%d", count-1); query.Get("since") != want {
				t.Errorf("request %d since = %q, want %q", count, query.Get("since"), want)
			}
			if query.Get("timeout") != "30000" {
				t.Errorf("request %d timeout = %q", count, query.Get("timeout"))
			}
		}
		if count > 3 {
			<-request.Context().Done()
			return
		}
		fmt.Fprintf(writer, `{"next_batch":"s%d"}`, count)
	})

	payloads := make(chan *SyncPayload, 8)
	connection.OnSyncSuccess(func(ctx context.Context, payload *SyncPayload) {
		payloads <- payload
	})

	if err := connection.StartSync("f1", ""); err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}
	if err := connection.StartSync("f1", ""); err != ErrSyncRunning {
		t.Errorf("second StartSync = %v, want ErrSyncRunning", err)
	}

	first := testutil.RequireReceive(t, payloads, 5*time.Second, "initial payload")
	if !first.Initial() || first.NextBatch != "s1" {
		t.Errorf("first payload = since %q next %q", first.Since, first.NextBatch)
	}
	for _, want := range []string{"s2", "s3"} {
		payload := testutil.RequireReceive(t, payloads, 5*time.Second, "payload %s", want)
		if payload.NextBatch != want {
			t.Errorf("NextBatch = %q, want %q", payload.NextBatch, want)
		}
	}

	connection.StopSync()
	if connection.syncer.Running() {
		t.Error("syncer still running after StopSync")
	}
}

func TestSyncerBacksOffOnError(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))
	var requests atomic.Int32
	connection := newTestConnection(t, fakeClock, func(writer http.ResponseWriter, request *http.Request) {
		switch requests.Add(1) {
		case 1:
			writer.WriteHeader(http.StatusBadGateway)
			writer.Write([]byte(`{"errcode":"M_UNKNOWN","error":"upstream"}`))
		case 2:
			writer.Write([]byte(`{"next_batch":"s1"}`))
		default:
			<-request.Context().Done()
		}
	})

	errs := make(chan error, 4)
	payloads := make(chan *SyncPayload, 4)
	connection.OnSyncError(func(err error) { errs <- err })
	connection.OnSyncSuccess(func(ctx context.Context, payload *SyncPayload) { payloads <- payload })

	if err := connection.StartSync("f1", ""); err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}

	err := testutil.RequireReceive(t, errs, 5*time.Second, "sync error")
	if !IsMatrixError(err, ErrCodeUnknown) {
		t.Errorf("error = %v, want M_UNKNOWN", err)
	}

	// No retry until the backoff delay elapses on the fake clock.
	fakeClock.WaitForTimers(1)
	if got := requests.Load(); got != 1 {
		t.Fatalf("requests before backoff = %d, want 1", got)
	}
	fakeClock.Advance(2 * time.Second)

	payload := testutil.RequireReceive(t, payloads, 5*time.Second, "payload after backoff")
	if payload.NextBatch != "s1" {
		t.Errorf("NextBatch = %q, want s1", payload.NextBatch)
	}
	connection.StopSync()
}

func TestSyncerStopsOnRejectedToken(t *testing.T) {
	fakeClock := clock.Fake(time.Unix(1_700_000_000, 0))
	var requests atomic.Int32
	connection := newTestConnection(t, fakeClock, func(writer http.ResponseWriter, request *http.Request) {
		requests.Add(1)
		writer.WriteHeader(http.StatusUnauthorized)
		writer.Write([]byte(`{"errcode":"M_UNKNOWN_TOKEN","error":"Token revoked"}`))
	})

	errs := make(chan error, 4)
	connection.OnSyncError(func(err error) { errs <- err })
	if err := connection.StartSync("f1", "s9"); err != nil {
		t.Fatalf("StartSync failed: %v", err)
	}

	err := testutil.RequireReceive(t, errs, 5*time.Second, "sync error")
	if !IsInvalidCredential(err) {
		t.Errorf("error = %v, want invalid credential", err)
	}

	// The loop exits by itself and a new Start is accepted.
	deadline := time.Now().Add(5 * time.Second)
	for connection.syncer.Running() {
		if time.Now().After(deadline) {
			t.Fatal("syncer still running after rejected token")
		}
		time.Sleep(time.Millisecond)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
	if fakeClock.PendingCount() != 0 {
		t.Errorf("backoff scheduled after rejected token")
	}
}
