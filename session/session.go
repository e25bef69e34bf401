// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/menuflow/account"
	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/metrics"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/messaging"
	"github.com/bureau-foundation/menuflow/reconcile"
)

// State is the bootstrap state of a Session.
type State int

const (
	StateNew State = iota
	StateProbing
	StateRetrying
	StateStarted
	StateStopped
	StateDisabled
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateProbing:
		return "probing"
	case StateRetrying:
		return "retrying"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is the live connection of one account. Sessions are created
// by the Registry; all methods are safe for concurrent use.
type Session struct {
	userID      ref.UserID
	store       account.Store
	factory     TransportFactory
	reconciler  *reconcile.Reconciler
	sink        EventSink
	clock       clock.Clock
	retryStep   time.Duration
	maxAttempts int
	baseLogger  *slog.Logger

	// Set once by wire.
	logger         *slog.Logger
	transport      Transport
	lifetime       context.Context
	cancelLifetime context.CancelFunc

	// mu guards the lifecycle fields below and is held across
	// transport.StartSync and StopSync. Sync callbacks never take it.
	mu      sync.Mutex
	wired   bool
	state   State
	started bool
	attempt int
	retry   *clock.Timer

	// generation changes (under mu) whenever the current bootstrap
	// chain is abandoned: Stop, disable, or a fresh Start. Pending
	// retries and in-flight probes compare against it and give up
	// quietly when it moved.
	generation atomic.Uint64

	syncHealthy atomic.Bool

	// accountMu guards record. Never held across I/O.
	accountMu sync.Mutex
	record    account.Account
}

type sessionConfig struct {
	store       account.Store
	factory     TransportFactory
	reconciler  *reconcile.Reconciler
	sink        EventSink
	clock       clock.Clock
	retryStep   time.Duration
	maxAttempts int
	logger      *slog.Logger
}

func newSession(record account.Account, config sessionConfig) *Session {
	return &Session{
		userID:      record.UserID,
		store:       config.store,
		factory:     config.factory,
		reconciler:  config.reconciler,
		sink:        config.sink,
		clock:       config.clock,
		retryStep:   config.retryStep,
		maxAttempts: config.maxAttempts,
		baseLogger:  config.logger,
		record:      record,
	}
}

// wire attaches the transport and sync callbacks. It runs exactly once
// per Session; later calls return ErrAlreadyWired and change nothing.
func (s *Session) wire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.wired {
		return ErrAlreadyWired
	}

	transport, err := s.factory(s.Account())
	if err != nil {
		return fmt.Errorf("session: building transport for %s: %w", s.userID, err)
	}

	s.logger = s.baseLogger.With("user_id", s.userID.String())
	s.transport = transport
	s.lifetime, s.cancelLifetime = context.WithCancel(context.Background())
	transport.OnSyncSuccess(s.handleSyncSuccess)
	transport.OnSyncError(s.handleSyncError)
	s.wired = true
	return nil
}

// UserID returns the account's user ID.
func (s *Session) UserID() ref.UserID {
	return s.userID
}

// Account returns a copy of the current account record.
func (s *Session) Account() account.Account {
	s.accountMu.Lock()
	defer s.accountMu.Unlock()
	return s.record
}

// State returns the bootstrap state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Started reports whether the sync loop is running.
func (s *Session) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// SyncHealthy reports whether the most recent sync request succeeded.
func (s *Session) SyncHealthy() bool {
	return s.syncHealthy.Load()
}

// Attempt returns the current bootstrap attempt number (0 for the
// initial attempt).
func (s *Session) Attempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt
}

// Stop cancels any pending retry and stops the sync loop. The account
// keeps its cursor and stays enabled; Start may be called again.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if s.state != StateDisabled && s.state != StateNew {
		s.state = StateStopped
	}
}

// stopLocked abandons the current bootstrap chain and stops syncing.
// Caller holds s.mu.
func (s *Session) stopLocked() {
	s.generation.Add(1)
	if s.retry != nil {
		s.retry.Stop()
		s.retry = nil
	}
	if s.started {
		s.transport.StopSync()
		s.started = false
		metrics.SessionsStarted.Dec()
	}
	s.syncHealthy.Store(false)
}

// ResetAndRestart stops the session, forgets the stream cursor and
// the negotiated filter, and starts again from scratch.
func (s *Session) ResetAndRestart(ctx context.Context) error {
	s.Stop()
	if err := s.updateAccount(ctx, func(record *account.Account) {
		record.FilterID = ""
		record.NextBatch = ""
	}, account.FieldFilterID, account.FieldNextBatch); err != nil {
		return err
	}
	s.logger.Info("cleared sync cursor and filter")
	return s.Start(ctx)
}

// close stops the session and releases the transport.
func (s *Session) close() error {
	s.Stop()
	s.mu.Lock()
	wired := s.wired
	s.mu.Unlock()
	if !wired {
		return nil
	}
	s.cancelLifetime()
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("session: closing transport for %s: %w", s.userID, err)
	}
	return nil
}

// updateAccount applies mutate to the in-memory record and persists
// the named fields.
func (s *Session) updateAccount(ctx context.Context, mutate func(*account.Account), fields ...account.Field) error {
	s.accountMu.Lock()
	mutate(&s.record)
	snapshot := s.record
	s.accountMu.Unlock()

	if err := s.store.Update(ctx, snapshot, fields...); err != nil {
		return fmt.Errorf("session: persisting %v for %s: %w", fields, s.userID, err)
	}
	return nil
}

// handleSyncSuccess runs on the transport's sync goroutine. Stopping
// the loop cancels ctx while a payload may be mid-dispatch; the cursor
// is still written so a restart does not replay what was dispatched.
func (s *Session) handleSyncSuccess(ctx context.Context, payload *messaging.SyncPayload) {
	s.syncHealthy.Store(true)
	metrics.SyncTotal.WithLabelValues("success").Inc()

	s.process(ctx, payload)

	if err := s.updateAccount(context.WithoutCancel(ctx), func(record *account.Account) {
		record.NextBatch = payload.NextBatch
	}, account.FieldNextBatch); err != nil {
		s.logger.Error("persisting sync cursor failed", "next_batch", payload.NextBatch, "error", err)
	}
}

func (s *Session) process(ctx context.Context, payload *messaging.SyncPayload) {
	started := s.clock.Now()
	result, err := s.reconciler.Reconcile(payload.Body, s.userID)
	metrics.ReconcileDuration.Observe(s.clock.Now().Sub(started).Seconds())
	if result == nil {
		s.logger.Error("discarding unreadable sync payload", "next_batch", payload.NextBatch, "error", err)
		return
	}
	if err != nil {
		metrics.ReconcileIntegrityErrorsTotal.Add(float64(countIntegrityErrors(err)))
		s.logger.Warn("sync payload has unreconcilable rooms", "error", err)
	}

	if payload.Initial() {
		s.logger.Debug("skipping events from initial sync",
			"messages", len(result.Messages), "invites", len(result.Invites))
		return
	}

	autoJoin := s.Account().AutoJoin
	for _, invite := range result.Invites {
		if autoJoin {
			if err := s.transport.JoinRoom(context.WithoutCancel(ctx), invite.RoomID); err != nil {
				s.logger.Warn("auto-join failed", "room_id", invite.RoomID.String(), "error", err)
			} else {
				s.logger.Info("joined room on invite",
					"room_id", invite.RoomID.String(), "inviter", invite.Event.Sender.String())
			}
		}
		if err := s.sink.HandleInvite(ctx, s.userID, invite); err != nil {
			s.logger.Warn("invite dispatch failed", "room_id", invite.RoomID.String(), "error", err)
		}
	}

	for _, event := range result.Messages {
		if event.Sender == s.userID {
			continue
		}
		if err := s.sink.HandleMessage(ctx, s.userID, event); err != nil {
			s.logger.Warn("message dispatch failed",
				"room_id", event.RoomID.String(), "event_id", event.EventID, "error", err)
		}
	}

	// Leaves are recorded only; nothing downstream consumes them yet.
	for _, event := range result.Leaves {
		s.logger.Debug("left room state event",
			"room_id", event.RoomID.String(), "type", event.Type, "membership", event.Membership())
	}
}

// handleSyncError runs on the transport's sync goroutine. A rejected
// token ends the loop inside the transport; the account is disabled
// from a separate goroutine because disabling waits for that loop.
func (s *Session) handleSyncError(err error) {
	s.syncHealthy.Store(false)
	metrics.SyncTotal.WithLabelValues("error").Inc()

	if !messaging.IsInvalidCredential(err) {
		s.logger.Warn("sync failed", "error", err)
		return
	}
	generation := s.generation.Load()
	go s.disable(generation, metrics.OutcomeInvalidCredential,
		fmt.Errorf("%w: %w", ErrInvalidCredential, err))
}

func countIntegrityErrors(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
