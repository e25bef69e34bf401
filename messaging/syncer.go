// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bureau-foundation/menuflow/lib/clock"
)

// ErrSyncRunning is returned by Syncer.Start when the loop is already
// running.
var ErrSyncRunning = errors.New("messaging: sync loop already running")

// SyncerConfig configures a Syncer.
type SyncerConfig struct {
	Session *DirectSession

	// Clock drives the failure backoff. Nil uses the real clock.
	Clock clock.Clock

	// Timeout is the server-side long-poll timeout for incremental
	// syncs. The initial sync (no cursor) is sent without a timeout.
	Timeout time.Duration

	// InitialBackoff is the first delay after a failed request.
	// Defaults to one second.
	InitialBackoff time.Duration

	// MaxBackoff caps the delay between failed requests. Defaults to
	// five minutes.
	MaxBackoff time.Duration

	Logger *slog.Logger
}

// Syncer runs the /sync long-poll loop for one account. Callbacks run
// on the loop goroutine, one payload at a time, in stream order.
type Syncer struct {
	session        *DirectSession
	clock          clock.Clock
	timeout        time.Duration
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger

	mu        sync.Mutex
	onSuccess func(context.Context, *SyncPayload)
	onError   func(error)
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewSyncer creates a stopped Syncer.
func NewSyncer(config SyncerConfig) *Syncer {
	syncClock := config.Clock
	if syncClock == nil {
		syncClock = clock.Real()
	}
	initialBackoff := config.InitialBackoff
	if initialBackoff <= 0 {
		initialBackoff = time.Second
	}
	maxBackoff := config.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = 5 * time.Minute
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{
		session:        config.Session,
		clock:          syncClock,
		timeout:        config.Timeout,
		initialBackoff: initialBackoff,
		maxBackoff:     maxBackoff,
		logger:         logger,
	}
}

// OnSuccess registers the callback receiving each payload. Replaces
// any previous callback.
func (s *Syncer) OnSuccess(callback func(context.Context, *SyncPayload)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSuccess = callback
}

// OnError registers the callback receiving each failed request.
func (s *Syncer) OnError(callback func(error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = callback
}

// Start launches the loop using filterID, resuming from since (empty
// for an initial sync).
func (s *Syncer) Start(filterID, since string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSyncRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		s.run(ctx, filterID, since)

		// The loop ends on its own only for a rejected token. Clear the
		// handle so a later Start can run again.
		s.mu.Lock()
		if s.done == done {
			s.cancel = nil
			s.done = nil
		}
		s.mu.Unlock()
		cancel()
	}()
	return nil
}

// Stop cancels the loop and waits for it to exit. Safe to call when
// the loop is not running. Must not be called from a callback.
func (s *Syncer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop goroutine is active.
func (s *Syncer) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Syncer) run(ctx context.Context, filterID, since string) {
	retry := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.initialBackoff),
		backoff.WithMaxInterval(s.maxBackoff),
		backoff.WithMaxElapsedTime(0),
		backoff.WithClockProvider(s.clock),
	)

	for {
		options := SyncOptions{Since: since, Filter: filterID}
		if since != "" {
			options.Timeout = int(s.timeout.Milliseconds())
			options.SetTimeout = true
		}

		payload, err := s.session.Sync(ctx, options)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.reportError(err)
			if IsInvalidCredential(err) {
				s.logger.Warn("sync loop stopped: access token rejected",
					"user_id", s.session.UserID(), "error", err)
				return
			}
			delay := retry.NextBackOff()
			s.logger.Warn("sync failed, backing off",
				"user_id", s.session.UserID(), "delay", delay, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-s.clock.After(delay):
			}
			continue
		}

		retry.Reset()
		s.reportSuccess(ctx, payload)
		since = payload.NextBatch
	}
}

func (s *Syncer) reportSuccess(ctx context.Context, payload *SyncPayload) {
	s.mu.Lock()
	callback := s.onSuccess
	s.mu.Unlock()
	if callback != nil {
		callback(ctx, payload)
	}
}

func (s *Syncer) reportError(err error) {
	s.mu.Lock()
	callback := s.onError
	s.mu.Unlock()
	if callback != nil {
		callback(err)
	}
}
