// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package participant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/bureau-foundation/menuflow/lib/codec"
	"github.com/bureau-foundation/menuflow/lib/ref"
)

// State is the flow-engine state of a participant.
type State string

const (
	StateShowMessage  State = "SHOW_MESSAGE"
	StateValidatePipe State = "VALIDATE_PIPE"
)

// DefaultContext is the context a new participant starts in.
const DefaultContext = "message_1"

// Context label prefixes that force a state.
const (
	pipelinePrefix = "#pipeline"
	messagePrefix  = "#message"
)

// StateForContext returns the state a participant moving to label
// should be in. Labels without a known prefix keep prior.
func StateForContext(label string, prior State) State {
	switch {
	case strings.HasPrefix(label, pipelinePrefix):
		return StateValidatePipe
	case strings.HasPrefix(label, messagePrefix):
		return StateShowMessage
	default:
		return prior
	}
}

// Record is the persisted row of a participant, without variables.
type Record struct {
	ID      ref.UserID
	Context string
	State   State
}

// Participant is one cached conversation participant. Methods are safe
// for concurrent use.
type Participant struct {
	id         ref.UserID
	repository Repository

	mu        sync.RWMutex
	context   string
	state     State
	variables map[string][]byte
}

func newParticipant(record Record, variables map[string][]byte, repository Repository) *Participant {
	if variables == nil {
		variables = make(map[string][]byte)
	}
	return &Participant{
		id:         record.ID,
		repository: repository,
		context:    record.Context,
		state:      record.State,
		variables:  variables,
	}
}

// ID returns the participant's user ID.
func (p *Participant) ID() ref.UserID {
	return p.id
}

// Context returns the current context label.
func (p *Participant) Context() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.context
}

// State returns the current state.
func (p *Participant) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Variable decodes the variable name into target. It reports false,
// leaving target untouched, when the variable was never set. A
// variable missing from the cache is looked up in the repository.
func (p *Participant) Variable(ctx context.Context, name string, target any) (bool, error) {
	p.mu.RLock()
	encoded, cached := p.variables[name]
	p.mu.RUnlock()

	if !cached {
		stored, err := p.repository.Variable(ctx, p.id, name)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		p.mu.Lock()
		if current, ok := p.variables[name]; ok {
			encoded = current
		} else {
			p.variables[name] = stored
			encoded = stored
		}
		p.mu.Unlock()
	}

	if err := codec.Unmarshal(encoded, target); err != nil {
		return true, fmt.Errorf("participant: decoding variable %q of %s: %w", name, p.id, err)
	}
	return true, nil
}

// SetVariable stores value under name, replacing any previous value.
func (p *Participant) SetVariable(ctx context.Context, name string, value any) error {
	if name == "" {
		return fmt.Errorf("participant: empty variable name")
	}
	encoded, err := codec.Marshal(value)
	if err != nil {
		return fmt.Errorf("participant: encoding variable %q of %s: %w", name, p.id, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.repository.SetVariable(ctx, p.id, name, encoded); err != nil {
		return err
	}
	p.variables[name] = encoded
	return nil
}

// UpdateContext moves the participant to label and derives its new
// state. An empty label is ignored.
func (p *Participant) UpdateContext(ctx context.Context, label string) error {
	if label == "" {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	record := Record{ID: p.id, Context: label, State: StateForContext(label, p.state)}
	if err := p.repository.UpdateParticipant(ctx, record); err != nil {
		return err
	}
	p.context = record.Context
	p.state = record.State
	return nil
}
