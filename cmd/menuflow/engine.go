// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/bureau-foundation/menuflow/dispatch"
	"github.com/bureau-foundation/menuflow/participant"
)

// engine is the in-process consumer of the dispatch bus. It tracks
// each sender as a conversation participant and records the last
// message they sent; flow execution subscribes alongside it.
type engine struct {
	bus          *dispatch.Bus
	participants *participant.Store
	logger       *slog.Logger
}

// start subscribes to both topics. The returned channel is closed once
// both subscriptions have drained, which happens when ctx is done or
// the bus is closed.
func (e *engine) start(ctx context.Context) (<-chan struct{}, error) {
	messages, err := e.bus.Subscribe(ctx, dispatch.TopicMessages)
	if err != nil {
		return nil, err
	}
	invites, err := e.bus.Subscribe(ctx, dispatch.TopicInvites)
	if err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.consume(ctx, messages, e.handleMessage)
	}()
	go func() {
		defer wg.Done()
		e.consume(ctx, invites, e.handleInvite)
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	return done, nil
}

func (e *engine) consume(ctx context.Context, messages <-chan *message.Message, handle func(context.Context, *message.Message) error) {
	for msg := range messages {
		if err := handle(ctx, msg); err != nil {
			e.logger.Warn("engine failed to handle event",
				"message_id", msg.UUID, "account_id", msg.Metadata.Get(dispatch.MetadataAccountID), "error", err)
		}
		msg.Ack()
	}
}

func (e *engine) handleMessage(ctx context.Context, msg *message.Message) error {
	envelope, err := dispatch.DecodeMessage(msg)
	if err != nil {
		return err
	}
	sender, err := e.participants.Get(ctx, envelope.Event.Sender, true)
	if err != nil {
		return err
	}
	if err := sender.SetVariable(ctx, "last_message", envelope.Event.Body()); err != nil {
		return err
	}
	e.logger.Debug("message received",
		"account_id", envelope.AccountID.String(),
		"room_id", envelope.Event.RoomID.String(),
		"sender", envelope.Event.Sender.String(),
		"context", sender.Context(),
		"state", string(sender.State()))
	return nil
}

func (e *engine) handleInvite(ctx context.Context, msg *message.Message) error {
	envelope, err := dispatch.DecodeInvite(msg)
	if err != nil {
		return err
	}
	e.logger.Info("invite received",
		"account_id", envelope.AccountID.String(),
		"room_id", envelope.RoomID.String(),
		"inviter", envelope.Event.Sender.String())
	return nil
}
