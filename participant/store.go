// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package participant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/bureau-foundation/menuflow/lib/ref"
)

// Store caches participants by user ID.
type Store struct {
	repository Repository
	logger     *slog.Logger

	fill singleflight.Group

	mu           sync.RWMutex
	participants map[ref.UserID]*Participant
}

// NewStore returns an empty cache over repository. A nil logger
// discards output.
func NewStore(repository Repository, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{
		repository:   repository,
		logger:       logger,
		participants: make(map[ref.UserID]*Participant),
	}
}

// Get returns the participant for id. A cached participant is returned
// without I/O. Otherwise the participant and all its variables are
// loaded; a missing participant is created with DefaultContext when
// create is set, and (nil, nil) is returned when it is not. Concurrent
// misses for one id share a single load, which runs to completion even
// when the caller that started it gives up.
func (s *Store) Get(ctx context.Context, id ref.UserID, create bool) (*Participant, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("participant: empty user ID")
	}
	if participant := s.cached(id); participant != nil {
		return participant, nil
	}

	key := id.String()
	if !create {
		key += "\x00lookup"
	}
	loadContext := context.WithoutCancel(ctx)
	results := s.fill.DoChan(key, func() (any, error) {
		if participant := s.cached(id); participant != nil {
			return participant, nil
		}
		return s.load(loadContext, id, create)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-results:
		if result.Err != nil {
			return nil, result.Err
		}
		participant, _ := result.Val.(*Participant)
		return participant, nil
	}
}

func (s *Store) load(ctx context.Context, id ref.UserID, create bool) (*Participant, error) {
	record, err := s.repository.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNotFound):
		if !create {
			return nil, nil
		}
		record = Record{ID: id, Context: DefaultContext, State: StateShowMessage}
		if err := s.repository.Insert(ctx, record); err != nil {
			return nil, err
		}
		s.logger.Debug("created participant", "user_id", id.String())
	case err != nil:
		return nil, err
	}

	variables, err := s.repository.Variables(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing := s.participants[id]; existing != nil {
		return existing, nil
	}
	participant := newParticipant(record, variables, s.repository)
	s.participants[id] = participant
	return participant, nil
}

func (s *Store) cached(id ref.UserID) *Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participants[id]
}

// Evict drops id from the cache. The next Get reloads it from the
// repository.
func (s *Store) Evict(id ref.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.participants, id)
}

// Len returns the number of cached participants.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants)
}
