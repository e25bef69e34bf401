// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/menuflow/account"
	"github.com/bureau-foundation/menuflow/lib/clock"
	"github.com/bureau-foundation/menuflow/lib/keylock"
	"github.com/bureau-foundation/menuflow/lib/metrics"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/reconcile"
)

// Default bootstrap schedule.
const (
	DefaultRetryStep   = 10 * time.Second
	DefaultMaxAttempts = 8
)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Store            account.Store
	TransportFactory TransportFactory
	Sink             EventSink

	// Reconciler classifies sync payloads. Nil builds one on Clock.
	Reconciler *reconcile.Reconciler

	// Clock schedules bootstrap retries. Nil uses the real clock.
	Clock clock.Clock

	// RetryStep is the linear backoff unit: attempt k waits
	// k*RetryStep. Zero uses DefaultRetryStep.
	RetryStep time.Duration

	// MaxAttempts is the number of retries after attempt 0 before the
	// account is disabled. Zero uses DefaultMaxAttempts.
	MaxAttempts int

	Logger *slog.Logger
}

// Registry owns every live Session, keyed by account user ID.
type Registry struct {
	store   account.Store
	session sessionConfig
	logger  *slog.Logger

	locks keylock.Map

	mu       sync.RWMutex
	sessions map[ref.UserID]*Session
	closed   bool
}

// NewRegistry creates an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("session: Store is required")
	}
	if config.TransportFactory == nil {
		return nil, fmt.Errorf("session: TransportFactory is required")
	}
	if config.Sink == nil {
		return nil, fmt.Errorf("session: Sink is required")
	}
	if config.RetryStep < 0 || config.MaxAttempts < 0 {
		return nil, fmt.Errorf("session: RetryStep and MaxAttempts must not be negative")
	}

	registryClock := config.Clock
	if registryClock == nil {
		registryClock = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reconciler := config.Reconciler
	if reconciler == nil {
		reconciler = reconcile.New(reconcile.Config{Clock: registryClock, Logger: logger})
	}
	retryStep := config.RetryStep
	if retryStep == 0 {
		retryStep = DefaultRetryStep
	}
	maxAttempts := config.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &Registry{
		store: config.Store,
		session: sessionConfig{
			store:       config.Store,
			factory:     config.TransportFactory,
			reconciler:  reconciler,
			sink:        config.Sink,
			clock:       registryClock,
			retryStep:   retryStep,
			maxAttempts: maxAttempts,
			logger:      logger,
		},
		logger:   logger,
		sessions: make(map[ref.UserID]*Session),
	}, nil
}

// Lookup returns the cached session for userID, or nil. No I/O.
func (r *Registry) Lookup(userID ref.UserID) *Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[userID]
}

// Len returns the number of cached sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a snapshot of the cached sessions in no particular
// order. No I/O.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// GetOrCreate returns the session for userID. On a cache miss the
// account is loaded from the store; if it does not exist and
// credentials are given, a new account is stored. Returns (nil, nil)
// when the account does not exist and credentials is nil. Concurrent
// calls for the same userID construct at most one Session.
func (r *Registry) GetOrCreate(ctx context.Context, userID ref.UserID, credentials *account.Credentials) (*Session, error) {
	if userID.IsZero() {
		return nil, fmt.Errorf("session: empty user ID")
	}
	if session := r.Lookup(userID); session != nil {
		return session, nil
	}

	unlock := r.locks.Lock(userID.String())
	defer unlock()

	if session := r.Lookup(userID); session != nil {
		return session, nil
	}

	record, err := r.store.Get(ctx, userID)
	switch {
	case errors.Is(err, account.ErrNotFound):
		if credentials == nil {
			return nil, nil
		}
		if err := credentials.Validate(); err != nil {
			return nil, err
		}
		record = account.New(userID, *credentials)
		if err := r.store.Insert(ctx, record); err != nil {
			return nil, err
		}
		r.logger.Info("registered account", "user_id", userID.String(), "homeserver", record.Homeserver)
	case err != nil:
		return nil, err
	}

	return r.construct(record)
}

// construct wires and caches a session. Caller holds the per-account
// lock.
func (r *Registry) construct(record account.Account) (*Session, error) {
	session := newSession(record, r.session)
	if err := session.wire(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		session.close()
		return nil, ErrRegistryClosed
	}
	r.sessions[record.UserID] = session
	metrics.SessionsLive.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return session, nil
}

// Delete stops and evicts the session for userID (if cached) and
// deletes the account record.
func (r *Registry) Delete(ctx context.Context, userID ref.UserID) error {
	unlock := r.locks.Lock(userID.String())
	defer unlock()

	r.mu.Lock()
	session := r.sessions[userID]
	delete(r.sessions, userID)
	metrics.SessionsLive.Set(float64(len(r.sessions)))
	r.mu.Unlock()

	if session != nil {
		if err := session.close(); err != nil {
			r.logger.Warn("closing deleted session", "user_id", userID.String(), "error", err)
		}
	}
	return r.store.Delete(ctx, userID)
}

// AllLive yields a session for every stored account, constructing and
// caching sessions that are not cached yet. Sessions are not started.
// Disabled accounts are yielded too.
func (r *Registry) AllLive(ctx context.Context) iter.Seq2[*Session, error] {
	return func(yield func(*Session, error) bool) {
		for record, err := range r.store.All(ctx) {
			if err != nil {
				yield(nil, err)
				return
			}
			session, err := r.liveSession(record)
			if !yield(session, err) {
				return
			}
		}
	}
}

func (r *Registry) liveSession(record account.Account) (*Session, error) {
	if session := r.Lookup(record.UserID); session != nil {
		return session, nil
	}
	unlock := r.locks.Lock(record.UserID.String())
	defer unlock()
	if session := r.Lookup(record.UserID); session != nil {
		return session, nil
	}
	return r.construct(record)
}

// StartAll starts every enabled stored account. Per-account failures
// are logged and joined into the returned error; they never stop the
// remaining accounts from starting.
func (r *Registry) StartAll(ctx context.Context) error {
	var errs []error
	for session, err := range r.AllLive(ctx) {
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !session.Account().Enabled {
			r.logger.Info("skipping disabled account", "user_id", session.UserID().String())
			continue
		}
		if err := session.Start(ctx); err != nil {
			r.logger.Warn("account failed to start", "user_id", session.UserID().String(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", session.UserID(), err))
		}
	}
	return errors.Join(errs...)
}

// Close stops every session in parallel and releases their
// transports. Later GetOrCreate calls fail with ErrRegistryClosed.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	sessions := make([]*Session, 0, len(r.sessions))
	for _, session := range r.sessions {
		sessions = append(sessions, session)
	}
	clear(r.sessions)
	metrics.SessionsLive.Set(0)
	r.mu.Unlock()

	var group errgroup.Group
	group.SetLimit(16)
	for _, session := range sessions {
		group.Go(session.close)
	}

	done := make(chan error, 1)
	go func() { done <- group.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("session: closing registry: %w", ctx.Err())
	}
}
