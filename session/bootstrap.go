// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/menuflow/account"
	"github.com/bureau-foundation/menuflow/lib/metrics"
	"github.com/bureau-foundation/menuflow/messaging"
)

// Start runs bootstrap attempt 0. It returns nil when the session
// started, when it was already started or bootstrapping, and when a
// transient failure scheduled a retry. It returns ErrAccountDisabled
// for a disabled account, and ErrInvalidCredential,
// ErrIdentityMismatch, or ErrRetriesExhausted when this attempt
// disabled the account.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if !s.wired {
		s.mu.Unlock()
		return fmt.Errorf("session: %s started before wiring", s.userID)
	}
	switch s.state {
	case StateStarted:
		s.mu.Unlock()
		s.logger.Warn("ignoring start of already started session")
		return nil
	case StateProbing, StateRetrying:
		s.mu.Unlock()
		s.logger.Info("ignoring start while bootstrap is in progress", "state", s.state.String())
		return nil
	}
	if !s.Account().Enabled {
		s.state = StateDisabled
		s.mu.Unlock()
		return ErrAccountDisabled
	}
	generation := s.generation.Add(1)
	s.state = StateProbing
	s.attempt = 0
	s.mu.Unlock()

	return s.runAttempt(ctx, 0, generation)
}

// runAttempt performs one bootstrap attempt belonging to generation.
func (s *Session) runAttempt(ctx context.Context, attempt int, generation uint64) error {
	if !s.enterProbing(attempt, generation) {
		return nil
	}
	s.logger.Debug("probing homeserver", "attempt", attempt)

	record := s.Account()
	if err := s.probe(ctx, record); err != nil {
		return s.attemptFailed(attempt, generation, err)
	}

	filterID := record.FilterID
	if filterID == "" {
		negotiated, err := s.transport.CreateFilter(ctx, messaging.DefaultSyncFilter())
		if err != nil {
			return s.attemptFailed(attempt, generation, fmt.Errorf("negotiating filter: %w", err))
		}
		if s.generation.Load() != generation {
			return nil
		}
		if err := s.updateAccount(ctx, func(record *account.Account) {
			record.FilterID = negotiated
		}, account.FieldFilterID); err != nil {
			return s.attemptFailed(attempt, generation, err)
		}
		filterID = negotiated
		s.logger.Info("negotiated sync filter", "filter_id", filterID)
	}

	s.mu.Lock()
	if s.generation.Load() != generation {
		s.mu.Unlock()
		return nil
	}
	if err := s.transport.StartSync(filterID, s.Account().NextBatch); err != nil {
		s.mu.Unlock()
		return s.attemptFailed(attempt, generation, fmt.Errorf("starting sync: %w", err))
	}
	s.started = true
	s.state = StateStarted
	s.retry = nil
	s.mu.Unlock()

	metrics.SessionsStarted.Inc()
	metrics.BootstrapAttemptsTotal.WithLabelValues(metrics.OutcomeStarted).Inc()
	s.logger.Info("session started", "attempt", attempt, "filter_id", filterID)
	return nil
}

// enterProbing moves a current chain into PROBING. It reports false
// when generation is stale.
func (s *Session) enterProbing(attempt int, generation uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation.Load() != generation {
		return false
	}
	s.state = StateProbing
	s.attempt = attempt
	s.retry = nil
	return true
}

// probe checks that the homeserver answers and that the token belongs
// to this account.
func (s *Session) probe(ctx context.Context, record account.Account) error {
	if _, err := s.transport.ServerVersions(ctx); err != nil {
		return fmt.Errorf("checking homeserver versions: %w", err)
	}
	whoami, err := s.transport.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("whoami: %w", err)
	}
	if whoami.UserID != record.UserID {
		return fmt.Errorf("%w: token is for %s", ErrIdentityMismatch, whoami.UserID)
	}
	if record.DeviceID != "" && whoami.DeviceID != "" && whoami.DeviceID != record.DeviceID {
		return fmt.Errorf("%w: token is for device %s, account expects %s",
			ErrIdentityMismatch, whoami.DeviceID, record.DeviceID)
	}
	return nil
}

// attemptFailed classifies err. Terminal failures disable the account
// and return the classified error; transient failures schedule the
// next attempt and return nil.
func (s *Session) attemptFailed(attempt int, generation uint64, err error) error {
	switch {
	case messaging.IsInvalidCredential(err):
		return s.disable(generation, metrics.OutcomeInvalidCredential,
			fmt.Errorf("%w: %w", ErrInvalidCredential, err))
	case errors.Is(err, ErrIdentityMismatch):
		return s.disable(generation, metrics.OutcomeIdentityMismatch, err)
	case attempt >= s.maxAttempts:
		return s.disable(generation, metrics.OutcomeExhausted,
			fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err))
	}

	next := attempt + 1
	delay := time.Duration(next) * s.retryStep

	s.mu.Lock()
	if s.generation.Load() != generation {
		s.mu.Unlock()
		return nil
	}
	s.state = StateRetrying
	s.attempt = next
	s.retry = s.clock.AfterFunc(delay, func() {
		s.runRetry(next, generation)
	})
	s.mu.Unlock()

	metrics.BootstrapAttemptsTotal.WithLabelValues(metrics.OutcomeRetry).Inc()
	s.logger.Warn("bootstrap attempt failed, retrying",
		"attempt", attempt, "next_attempt", next, "delay", delay, "error", err)
	return nil
}

func (s *Session) runRetry(attempt int, generation uint64) {
	if err := s.runAttempt(s.lifetime, attempt, generation); err != nil {
		s.logger.Error("session bootstrap gave up", "attempt", attempt, "error", err)
	}
}

// disable ends the chain identified by generation, marks the account
// disabled, and persists the flag. Returns cause, or nil when the
// chain was already abandoned.
func (s *Session) disable(generation uint64, reason string, cause error) error {
	s.mu.Lock()
	if s.generation.Load() != generation {
		s.mu.Unlock()
		return nil
	}
	s.stopLocked()
	s.state = StateDisabled
	s.mu.Unlock()

	metrics.BootstrapAttemptsTotal.WithLabelValues(reason).Inc()
	metrics.AccountsDisabledTotal.WithLabelValues(reason).Inc()
	s.logger.Error("disabling account", "reason", reason, "error", cause)

	if err := s.updateAccount(s.lifetime, func(record *account.Account) {
		record.Enabled = false
	}, account.FieldEnabled); err != nil {
		s.logger.Error("persisting disabled account failed", "error", err)
		return errors.Join(cause, err)
	}
	return cause
}
