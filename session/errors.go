// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import "errors"

var (
	// ErrInvalidCredential means the homeserver rejected the access
	// token. The account has been disabled.
	ErrInvalidCredential = errors.New("session: access token rejected")

	// ErrIdentityMismatch means whoami reported a different user or
	// device than the account record. The account has been disabled.
	ErrIdentityMismatch = errors.New("session: token belongs to a different identity")

	// ErrRetriesExhausted means every bootstrap attempt failed
	// transiently. The account has been disabled.
	ErrRetriesExhausted = errors.New("session: bootstrap retries exhausted")

	// ErrAccountDisabled is returned by Start for a disabled account.
	ErrAccountDisabled = errors.New("session: account is disabled")

	// ErrAlreadyWired is returned when a session is wired twice.
	ErrAlreadyWired = errors.New("session: already wired")

	// ErrRegistryClosed is returned by registry operations after Close.
	ErrRegistryClosed = errors.New("session: registry closed")
)
