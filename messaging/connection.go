// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/ref"
)

// ConnectionConfig configures a Connection for one account.
type ConnectionConfig struct {
	HomeserverURL string
	UserID        ref.UserID
	AccessToken   string

	HTTPClient  *http.Client
	Clock       clock.Clock
	SyncTimeout time.Duration
	MaxBackoff  time.Duration
	Logger      *slog.Logger
}

// Connection is everything one managed account needs from the
// homeserver: the bootstrap probes, filter upload, room joins, and
// the sync loop.
type Connection struct {
	client  *Client
	session *DirectSession
	syncer  *Syncer
}

// NewConnection builds the client, session, and stopped syncer.
func NewConnection(config ConnectionConfig) (*Connection, error) {
	if config.UserID.IsZero() {
		return nil, fmt.Errorf("messaging: UserID is required")
	}
	if config.AccessToken == "" {
		return nil, fmt.Errorf("messaging: AccessToken is required for %s", config.UserID)
	}

	client, err := NewClient(ClientConfig{
		HomeserverURL: config.HomeserverURL,
		HTTPClient:    config.HTTPClient,
		Logger:        config.Logger,
	})
	if err != nil {
		return nil, err
	}
	session := client.SessionFromToken(config.UserID, config.AccessToken)
	syncer := NewSyncer(SyncerConfig{
		Session:    session,
		Clock:      config.Clock,
		Timeout:    config.SyncTimeout,
		MaxBackoff: config.MaxBackoff,
		Logger:     config.Logger,
	})
	return &Connection{client: client, session: session, syncer: syncer}, nil
}

// ServerVersions probes the homeserver.
func (c *Connection) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	return c.session.ServerVersions(ctx)
}

// WhoAmI reports the identity behind the access token.
func (c *Connection) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	return c.session.WhoAmI(ctx)
}

// CreateFilter uploads filter and returns its ID.
func (c *Connection) CreateFilter(ctx context.Context, filter Filter) (string, error) {
	return c.session.CreateFilter(ctx, filter)
}

// JoinRoom joins roomID.
func (c *Connection) JoinRoom(ctx context.Context, roomID ref.RoomID) error {
	_, err := c.session.JoinRoom(ctx, roomID)
	return err
}

// StartSync starts the sync loop.
func (c *Connection) StartSync(filterID, since string) error {
	return c.syncer.Start(filterID, since)
}

// StopSync stops the sync loop and waits for it to exit.
func (c *Connection) StopSync() {
	c.syncer.Stop()
}

// OnSyncSuccess registers the payload callback.
func (c *Connection) OnSyncSuccess(callback func(context.Context, *SyncPayload)) {
	c.syncer.OnSuccess(callback)
}

// OnSyncError registers the failure callback.
func (c *Connection) OnSyncError(callback func(error)) {
	c.syncer.OnError(callback)
}

// Close stops the sync loop and releases pooled connections.
func (c *Connection) Close() error {
	c.syncer.Stop()
	c.client.CloseIdleConnections()
	return nil
}
