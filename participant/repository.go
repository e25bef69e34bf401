// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package participant

import (
	"context"
	"errors"

	"github.com/bureau-foundation/menuflow/lib/ref"
)

// ErrNotFound is returned by a Repository for a missing participant or
// variable.
var ErrNotFound = errors.New("participant: not found")

// Repository persists participants and their variables. Variable
// values are opaque encoded bytes.
type Repository interface {
	Get(ctx context.Context, id ref.UserID) (Record, error)
	Insert(ctx context.Context, record Record) error
	// UpdateParticipant writes context and state together.
	UpdateParticipant(ctx context.Context, record Record) error

	Variables(ctx context.Context, id ref.UserID) (map[string][]byte, error)
	Variable(ctx context.Context, id ref.UserID, name string) ([]byte, error)
	SetVariable(ctx context.Context, id ref.UserID, name string, value []byte) error
}
