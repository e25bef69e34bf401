// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bureau-foundation/menuflow/account"
	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/lib/sqlitepool"
	"github.com/bureau-foundation/menuflow/lib/testutil"
	"github.com/bureau-foundation/menuflow/messaging"
	"github.com/bureau-foundation/menuflow/reconcile"
)

var (
	alice = ref.MustParseUserID("@alice:example.org")
	bob   = ref.MustParseUserID("@bob:example.org")
	carol = ref.MustParseUserID("@carol:example.org")

	errUnknownToken = &messaging.MatrixError{
		Code:       messaging.ErrCodeUnknownToken,
		Message:    "Unknown access token",
		StatusCode: 401,
	}

	testCredentials = &account.Credentials{
		Homeserver:  "https://matrix.example.org",
		AccessToken: "syt_token",
		DeviceID:    "DEVICE",
	}
)

// fakeTransport scripts the homeserver. versionsErr, whoamiErr and
// filterErr are consulted per call so tests can fail the first N
// probes and then succeed.
type fakeTransport struct {
	userID ref.UserID

	mu            sync.Mutex
	versionsErr   func(call int) error
	whoami        *messaging.WhoAmIResponse
	whoamiErr     error
	filterID      string
	filterErr     error
	versionsCalls int
	filterCalls   int
	syncRunning   bool
	syncStarts    []syncStart
	joined        []ref.RoomID
	closed        bool
	onSuccess     func(context.Context, *messaging.SyncPayload)
	onError       func(error)
}

type syncStart struct {
	filterID string
	since    string
}

func newFakeTransport(userID ref.UserID) *fakeTransport {
	return &fakeTransport{
		userID:   userID,
		whoami:   &messaging.WhoAmIResponse{UserID: userID, DeviceID: "DEVICE"},
		filterID: "filter-1",
	}
}

func (f *fakeTransport) ServerVersions(ctx context.Context) (*messaging.ServerVersionsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versionsCalls++
	if f.versionsErr != nil {
		if err := f.versionsErr(f.versionsCalls); err != nil {
			return nil, err
		}
	}
	return &messaging.ServerVersionsResponse{Versions: []string{"v1.11"}}, nil
}

func (f *fakeTransport) WhoAmI(ctx context.Context) (*messaging.WhoAmIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.whoamiErr != nil {
		return nil, f.whoamiErr
	}
	response := *f.whoami
	return &response, nil
}

func (f *fakeTransport) CreateFilter(ctx context.Context, filter messaging.Filter) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls++
	if f.filterErr != nil {
		return "", f.filterErr
	}
	return f.filterID, nil
}

func (f *fakeTransport) JoinRoom(ctx context.Context, roomID ref.RoomID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joined = append(f.joined, roomID)
	return nil
}

func (f *fakeTransport) StartSync(filterID, since string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncRunning {
		return messaging.ErrSyncRunning
	}
	f.syncRunning = true
	f.syncStarts = append(f.syncStarts, syncStart{filterID: filterID, since: since})
	return nil
}

func (f *fakeTransport) StopSync() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncRunning = false
}

func (f *fakeTransport) OnSyncSuccess(callback func(context.Context, *messaging.SyncPayload)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSuccess = callback
}

func (f *fakeTransport) OnSyncError(callback func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onError = callback
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.syncRunning = false
	return nil
}

func (f *fakeTransport) probes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.versionsCalls
}

func (f *fakeTransport) running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.syncRunning
}

func (f *fakeTransport) starts() []syncStart {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncStart(nil), f.syncStarts...)
}

// deliver feeds a payload to the session as the sync loop would.
func (f *fakeTransport) deliver(payload *messaging.SyncPayload) {
	f.mu.Lock()
	callback := f.onSuccess
	f.mu.Unlock()
	callback(context.Background(), payload)
}

func (f *fakeTransport) fail(err error) {
	f.mu.Lock()
	callback := f.onError
	f.mu.Unlock()
	callback(err)
}

// recordingSink collects dispatched events.
type recordingSink struct {
	mu       sync.Mutex
	messages []messaging.Event
	invites  []reconcile.Invite
}

func (s *recordingSink) HandleMessage(ctx context.Context, accountID ref.UserID, event messaging.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, event)
	return nil
}

func (s *recordingSink) HandleInvite(ctx context.Context, accountID ref.UserID, invite reconcile.Invite) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invites = append(s.invites, invite)
	return nil
}

func (s *recordingSink) snapshot() ([]messaging.Event, []reconcile.Invite) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Event(nil), s.messages...), append([]reconcile.Invite(nil), s.invites...)
}

// countingStore wraps a real store and counts Get calls. When gate is
// non-nil, Get blocks until it is closed; a non-zero gated limits the
// blocking to that one account.
type countingStore struct {
	account.Store
	gets  atomic.Int32
	gate  chan struct{}
	gated ref.UserID
}

func (c *countingStore) Get(ctx context.Context, userID ref.UserID) (account.Account, error) {
	c.gets.Add(1)
	if c.gate != nil && (c.gated.IsZero() || c.gated == userID) {
		<-c.gate
	}
	return c.Store.Get(ctx, userID)
}

type harness struct {
	registry  *Registry
	store     *countingStore
	sink      *recordingSink
	clock     *clock.FakeClock
	factories atomic.Int32

	mu         sync.Mutex
	transports map[ref.UserID]*fakeTransport
	prepare    func(*fakeTransport)
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:   testutil.TempDatabase(t),
		Schema: account.Schema,
	})
	if err != nil {
		t.Fatalf("opening pool: %v", err)
	}
	t.Cleanup(func() { pool.Close() })

	h := &harness{
		store:      &countingStore{Store: account.NewSQLiteStore(pool)},
		sink:       &recordingSink{},
		clock:      clock.Fake(time.UnixMilli(1_700_000_000_000)),
		transports: make(map[ref.UserID]*fakeTransport),
	}
	registry, err := NewRegistry(RegistryConfig{
		Store:            h.store,
		TransportFactory: h.factory,
		Sink:             h.sink,
		Clock:            h.clock,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { registry.Close(context.Background()) })
	h.registry = registry
	return h
}

func (h *harness) factory(record account.Account) (Transport, error) {
	h.factories.Add(1)
	transport := newFakeTransport(record.UserID)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.prepare != nil {
		h.prepare(transport)
	}
	h.transports[record.UserID] = transport
	return transport, nil
}

func (h *harness) transport(userID ref.UserID) *fakeTransport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transports[userID]
}

func (h *harness) session(t *testing.T, userID ref.UserID) *Session {
	t.Helper()
	session, err := h.registry.GetOrCreate(context.Background(), userID, testCredentials)
	if err != nil {
		t.Fatalf("GetOrCreate(%s): %v", userID, err)
	}
	return session
}

func (h *harness) stored(t *testing.T, userID ref.UserID) account.Account {
	t.Helper()
	record, err := h.store.Store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("store.Get(%s): %v", userID, err)
	}
	return record
}

// syncBody builds a /sync body with one joined room holding events
// and optionally one invited room.
func syncBody(t *testing.T, joinedRoom string, events []map[string]any, invitedRoom string, invitee ref.UserID) json.RawMessage {
	t.Helper()
	rooms := map[string]any{}
	if joinedRoom != "" {
		rooms["join"] = map[string]any{
			joinedRoom: map[string]any{"timeline": map[string]any{"events": events}},
		}
	}
	if invitedRoom != "" {
		rooms["invite"] = map[string]any{
			invitedRoom: map[string]any{"invite_state": map[string]any{"events": []map[string]any{{
				"type":      "m.room.member",
				"sender":    "@host:example.org",
				"state_key": invitee.String(),
				"content":   map[string]any{"membership": "invite"},
			}}}},
		}
	}
	data, err := json.Marshal(map[string]any{"next_batch": "unused", "rooms": rooms})
	if err != nil {
		t.Fatalf("marshal sync body: %v", err)
	}
	return data
}

func textEvent(eventID string, sender ref.UserID, body string) map[string]any {
	return map[string]any{
		"event_id":         eventID,
		"type":             "m.room.message",
		"sender":           sender.String(),
		"origin_server_ts": 1,
		"content":          map[string]any{"msgtype": "m.text", "body": body},
	}
}
