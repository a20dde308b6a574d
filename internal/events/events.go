// Package events carries best-effort signals between console screens, such as "a menu was
// created", so sibling screens can refresh their own collections.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Topic names an event, e.g. "menuCreated"
type Topic string

// CreatedTopic returns the topic published after a record of singular kind was created
func CreatedTopic(singular string) Topic {
	return Topic(singular + "Created")
}

// Event is one published signal
type Event struct {
	ID       string         `json:"id"`
	Topic    Topic          `json:"topic"`
	Resource string         `json:"resource"`
	ItemID   string         `json:"itemId,omitempty"`
	Payload  map[string]any `json:"payload,omitempty"`
	Time     time.Time      `json:"time"`
	// Origin identifies the publishing process so a bus can skip its own echoes
	Origin string `json:"origin,omitempty"`
}

// NewEvent returns an event with a fresh id and the current time
func NewEvent(topic Topic, resource, itemID string, payload map[string]any) Event {
	return Event{
		ID:       uuid.NewString(),
		Topic:    topic,
		Resource: resource,
		ItemID:   itemID,
		Payload:  payload,
		Time:     time.Now().UTC(),
	}
}

// Handler receives events. Handlers run on their own goroutine.
type Handler func(ctx context.Context, evt Event)

// Publisher publishes events
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
}

// Bus is a publish/subscribe channel with typed topics. Delivery is best effort.
type Bus interface {
	Publisher
	// Subscribe registers h for topic; the returned func removes the subscription
	Subscribe(topic Topic, h Handler) (func(), error)
	Close() error
}
