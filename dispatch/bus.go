// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/oklog/ulid/v2"

	"github.com/bureau-foundation/menuflow/lib/metrics"
	"github.com/bureau-foundation/menuflow/lib/ref"
	"github.com/bureau-foundation/menuflow/messaging"
	"github.com/bureau-foundation/menuflow/reconcile"
)

// Topics the bus publishes on.
const (
	TopicMessages = "menuflow.messages"
	TopicInvites  = "menuflow.invites"
)

// Metadata keys set on every published message.
const (
	MetadataAccountID = "account_id"
	MetadataRoomID    = "room_id"
)

// DefaultBuffer is the per-subscriber output buffer when Config.Buffer
// is zero.
const DefaultBuffer = 256

// MessageEnvelope is the payload published on TopicMessages.
type MessageEnvelope struct {
	AccountID ref.UserID      `json:"account_id"`
	Event     messaging.Event `json:"event"`
}

// InviteEnvelope is the payload published on TopicInvites.
type InviteEnvelope struct {
	AccountID       ref.UserID        `json:"account_id"`
	RoomID          ref.RoomID        `json:"room_id"`
	Event           messaging.Event   `json:"event"`
	InviteRoomState []messaging.Event `json:"invite_room_state,omitempty"`
}

// Config configures a Bus.
type Config struct {
	Buffer int64
	Logger *slog.Logger
}

// Bus publishes sync events to in-process subscribers.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger *slog.Logger
}

// New creates a Bus.
func New(config Config) *Bus {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	buffer := config.Buffer
	if buffer == 0 {
		buffer = DefaultBuffer
	}
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            buffer,
				BlockPublishUntilSubscriberAck: true,
			},
			watermill.NewSlogLogger(logger.With("component", "dispatch")),
		),
		logger: logger,
	}
}

// HandleMessage publishes a room message received by accountID. It
// returns once every subscriber of TopicMessages acknowledged it, so
// events reach subscribers in the order they were handled.
func (b *Bus) HandleMessage(ctx context.Context, accountID ref.UserID, event messaging.Event) error {
	envelope := MessageEnvelope{AccountID: accountID, Event: event}
	if err := b.publish(ctx, TopicMessages, accountID, event.RoomID, envelope); err != nil {
		return err
	}
	metrics.EventsDispatchedTotal.WithLabelValues("message").Inc()
	return nil
}

// HandleInvite publishes an invite received by accountID and waits
// for acknowledgement like HandleMessage.
func (b *Bus) HandleInvite(ctx context.Context, accountID ref.UserID, invite reconcile.Invite) error {
	envelope := InviteEnvelope{
		AccountID:       accountID,
		RoomID:          invite.RoomID,
		Event:           invite.Event,
		InviteRoomState: invite.InviteRoomState,
	}
	if err := b.publish(ctx, TopicInvites, accountID, invite.RoomID, envelope); err != nil {
		return err
	}
	metrics.EventsDispatchedTotal.WithLabelValues("invite").Inc()
	return nil
}

func (b *Bus) publish(ctx context.Context, topic string, accountID ref.UserID, roomID ref.RoomID, envelope any) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("dispatch: encoding %s payload: %w", topic, err)
	}
	msg := message.NewMessage(ulid.Make().String(), payload)
	msg.Metadata.Set(MetadataAccountID, accountID.String())
	msg.Metadata.Set(MetadataRoomID, roomID.String())
	msg.SetContext(ctx)

	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("dispatch: publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the messages published on topic until ctx is done
// or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close closes every subscription.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// DecodeMessage decodes a message received from TopicMessages.
func DecodeMessage(msg *message.Message) (MessageEnvelope, error) {
	var envelope MessageEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		return MessageEnvelope{}, fmt.Errorf("dispatch: decoding message %s: %w", msg.UUID, err)
	}
	return envelope, nil
}

// DecodeInvite decodes a message received from TopicInvites.
func DecodeInvite(msg *message.Message) (InviteEnvelope, error) {
	var envelope InviteEnvelope
	if err := json.Unmarshal(msg.Payload, &envelope); err != nil {
		return InviteEnvelope{}, fmt.Errorf("dispatch: decoding invite %s: %w", msg.UUID, err)
	}
	return envelope, nil
}
