package domain

import (
	"context"
	"time"
)

// LikeEvent is a toggle intent as published on the broker.
type LikeEvent struct {
	UserID    int64      `json:"user_id"`
	ItemID    int64      `json:"item_id"`
	Action    LikeAction `json:"action"`
	EventTime time.Time  `json:"event_time"`
}

func (e LikeEvent) Intent() ToggleIntent {
	return ToggleIntent{UserID: e.UserID, ItemID: e.ItemID, Action: e.Action, Timestamp: e.EventTime}
}

func NewLikeEvent(intent ToggleIntent) LikeEvent {
	return LikeEvent{UserID: intent.UserID, ItemID: intent.ItemID, Action: intent.Action, EventTime: intent.Timestamp}
}

// Message is one delivery of an event. Event is nil when the payload could
// not be decoded.
type Message struct {
	ID         string
	Event      *LikeEvent
	Payload    string
	Deliveries int64
}

type EventPublisher interface {
	Publish(ctx context.Context, ev LikeEvent) error
}

// EventConsumer is an at-least-once batch consumer.
type EventConsumer interface {
	// Receive blocks up to the batch timeout and returns at most the batch
	// size of messages, including due redeliveries.
	Receive(ctx context.Context) ([]Message, error)
	Ack(ctx context.Context, msgs ...Message) error
	// Nack schedules redelivery after the negative-ack backoff.
	Nack(ctx context.Context, msgs ...Message) error
	// DeadLetter moves messages to the dead-letter stream and acks them.
	DeadLetter(ctx context.Context, msgs ...Message) error
}
