// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package account

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"net/url"

	"github.com/bureau-foundation/menuflow/lib/ref"
)

// ErrNotFound is returned by Store.Get when no account has the given
// user ID.
var ErrNotFound = errors.New("account: not found")

// Account is one managed Matrix account.
type Account struct {
	UserID      ref.UserID
	Homeserver  string
	AccessToken string
	DeviceID    string

	// NextBatch is the stream cursor. Empty means sync from the
	// current position.
	NextBatch string

	// FilterID is the negotiated sync filter. Empty means a filter
	// must be uploaded before syncing.
	FilterID string

	AutoJoin bool
	Enabled  bool
}

// Credentials are what a caller supplies to register a new account.
type Credentials struct {
	Homeserver  string
	AccessToken string
	DeviceID    string
}

// Validate checks that the credentials can build a connection.
func (c Credentials) Validate() error {
	if c.Homeserver == "" {
		return fmt.Errorf("account: homeserver is required")
	}
	parsed, err := url.Parse(c.Homeserver)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("account: homeserver %q is not an http(s) URL", c.Homeserver)
	}
	if c.AccessToken == "" {
		return fmt.Errorf("account: access token is required")
	}
	return nil
}

// New returns a fresh account for userID with the defaults every new
// account starts with: auto-join on, enabled, no cursor, no filter.
func New(userID ref.UserID, credentials Credentials) Account {
	return Account{
		UserID:      userID,
		Homeserver:  credentials.Homeserver,
		AccessToken: credentials.AccessToken,
		DeviceID:    credentials.DeviceID,
		AutoJoin:    true,
		Enabled:     true,
	}
}

// Field names one updatable column of an account.
type Field int

const (
	FieldHomeserver Field = iota + 1
	FieldAccessToken
	FieldDeviceID
	FieldNextBatch
	FieldFilterID
	FieldAutoJoin
	FieldEnabled
)

// String returns the column name.
func (f Field) String() string {
	switch f {
	case FieldHomeserver:
		return "homeserver"
	case FieldAccessToken:
		return "access_token"
	case FieldDeviceID:
		return "device_id"
	case FieldNextBatch:
		return "next_batch"
	case FieldFilterID:
		return "filter_id"
	case FieldAutoJoin:
		return "autojoin"
	case FieldEnabled:
		return "enabled"
	default:
		return fmt.Sprintf("Field(%d)", int(f))
	}
}

// value returns the column value for f from account.
func (f Field) value(account Account) (any, error) {
	switch f {
	case FieldHomeserver:
		return account.Homeserver, nil
	case FieldAccessToken:
		return account.AccessToken, nil
	case FieldDeviceID:
		return account.DeviceID, nil
	case FieldNextBatch:
		return account.NextBatch, nil
	case FieldFilterID:
		return account.FilterID, nil
	case FieldAutoJoin:
		return boolInt(account.AutoJoin), nil
	case FieldEnabled:
		return boolInt(account.Enabled), nil
	default:
		return nil, fmt.Errorf("account: unknown field %d", int(f))
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Store persists accounts keyed by user ID.
type Store interface {
	// Get returns the account or ErrNotFound.
	Get(ctx context.Context, userID ref.UserID) (Account, error)

	// Insert stores a new account. Fails if one already exists.
	Insert(ctx context.Context, account Account) error

	// Update writes the named fields of account atomically. Fails
	// with ErrNotFound if the account does not exist.
	Update(ctx context.Context, account Account, fields ...Field) error

	// Delete removes the account. Absence is not an error.
	Delete(ctx context.Context, userID ref.UserID) error

	// All yields every stored account ordered by user ID.
	All(ctx context.Context) iter.Seq2[Account, error]
}
