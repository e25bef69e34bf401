// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"

	"github.com/bureau-foundation/menuflow/lib/ref"
)

// DirectSession is an authenticated Matrix session holding an access
// token. Safe for concurrent use.
type DirectSession struct {
	client      *Client
	accessToken string
	userID      ref.UserID
}

// UserID returns the Matrix user ID the session was created for.
func (s *DirectSession) UserID() ref.UserID {
	return s.userID
}

// ServerVersions probes homeserver reachability.
func (s *DirectSession) ServerVersions(ctx context.Context) (*ServerVersionsResponse, error) {
	return s.client.ServerVersions(ctx)
}

// WhoAmI reports the user and device the access token belongs to.
func (s *DirectSession) WhoAmI(ctx context.Context) (*WhoAmIResponse, error) {
	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/account/whoami", s.accessToken, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging: whoami failed: %w", err)
	}

	var response WhoAmIResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("messaging: failed to parse whoami response: %w", err)
	}
	return &response, nil
}

// CreateFilter uploads filter for the session's user and returns the
// server-assigned filter ID.
func (s *DirectSession) CreateFilter(ctx context.Context, filter Filter) (string, error) {
	path := "/_matrix/client/v3/user/" + url.PathEscape(s.userID.String()) + "/filter"
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, filter)
	if err != nil {
		return "", fmt.Errorf("messaging: create filter failed: %w", err)
	}

	var response CreateFilterResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return "", fmt.Errorf("messaging: failed to parse filter response: %w", err)
	}
	if response.FilterID == "" {
		return "", fmt.Errorf("messaging: filter response missing filter_id")
	}
	return response.FilterID, nil
}

// JoinRoom joins a room by ID. Returns the room ID.
func (s *DirectSession) JoinRoom(ctx context.Context, roomID ref.RoomID) (ref.RoomID, error) {
	path := "/_matrix/client/v3/join/" + url.PathEscape(roomID.String())
	body, err := s.client.doRequest(ctx, http.MethodPost, path, s.accessToken, struct{}{})
	if err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: join room %s failed: %w", roomID, err)
	}

	var response struct {
		RoomID ref.RoomID `json:"room_id"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return ref.RoomID{}, fmt.Errorf("messaging: failed to parse join response: %w", err)
	}
	return response.RoomID, nil
}

// Sync performs one /sync request and returns the body unparsed apart
// from next_batch.
func (s *DirectSession) Sync(ctx context.Context, options SyncOptions) (*SyncPayload, error) {
	query := url.Values{}
	if options.Since != "" {
		query.Set("since", options.Since)
	}
	if options.SetTimeout {
		query.Set("timeout", strconv.Itoa(options.Timeout))
	}
	if options.Filter != "" {
		query.Set("filter", options.Filter)
	}

	body, err := s.client.doRequest(ctx, http.MethodGet, "/_matrix/client/v3/sync", s.accessToken, nil, query)
	if err != nil {
		return nil, fmt.Errorf("messaging: sync failed: %w", err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("messaging: sync response is not valid JSON")
	}
	nextBatch := gjson.GetBytes(body, "next_batch")
	if nextBatch.Type != gjson.String || nextBatch.Str == "" {
		return nil, fmt.Errorf("messaging: sync response missing next_batch")
	}

	return &SyncPayload{
		NextBatch: nextBatch.Str,
		Since:     options.Since,
		Body:      body,
	}, nil
}
