// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"

	"github.com/bureau-foundation/menuflow/account"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/messaging"
	"github.com/bureau-foundation/menuflow/reconcile"
)

// Transport is the homeserver connection a Session drives.
// messaging.Connection is the production implementation.
type Transport interface {
	ServerVersions(ctx context.Context) (*messaging.ServerVersionsResponse, error)
	WhoAmI(ctx context.Context) (*messaging.WhoAmIResponse, error)
	CreateFilter(ctx context.Context, filter messaging.Filter) (string, error)
	JoinRoom(ctx context.Context, roomID ref.RoomID) error

	// StartSync launches the sync loop. Payloads and failures are
	// delivered to the registered callbacks on the loop goroutine.
	StartSync(filterID, since string) error
	// StopSync stops the loop and waits until no callback is running.
	StopSync()

	OnSyncSuccess(callback func(context.Context, *messaging.SyncPayload))
	OnSyncError(callback func(error))

	Close() error
}

// TransportFactory builds the transport for an account.
type TransportFactory func(account.Account) (Transport, error)

// EventSink receives classified events. The dispatch package's Bus is
// the production implementation.
type EventSink interface {
	HandleMessage(ctx context.Context, accountID ref.UserID, event messaging.Event) error
	HandleInvite(ctx context.Context, accountID ref.UserID, invite reconcile.Invite) error
}

var _ Transport = (*messaging.Connection)(nil)
