// Package realtime fans message events out to live subscribers of a
// conversation. Delivery starts at subscription time; there is no replay, so a
// client that falls behind must re-list history to backfill.
package realtime

import (
	"context"
	"time"

	"github.com/Gopher0727/GroupChat/internal/model"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
	// EventRevoke ends the read access of UserID, or of everyone when UserID
	// is empty. It carries no message and is never shown to clients.
	EventRevoke EventType = "revoke"
)

// Event is one change to a conversation's message log, or a revocation of
// access to it.
type Event struct {
	Type         EventType      `json:"type"`
	Conversation string         `json:"conversation"`
	Message      *model.Message `json:"message,omitempty"`
	UserID       string         `json:"user_id,omitempty"`
	At           time.Time      `json:"at"`
}

// Revokes reports whether ev ends userID's access.
func (ev Event) Revokes(userID string) bool {
	return ev.Type == EventRevoke && (ev.UserID == "" || ev.UserID == userID)
}

// Subscription delivers the events of one topic in publish order. The channel
// is closed when the subscription is closed, its context ends, or the
// subscriber falls so far behind that it is dropped.
type Subscription interface {
	Events() <-chan Event
	Close() error
}

type Bus interface {
	Publish(ctx context.Context, topic string, event Event) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
	Close() error
}

// DefaultBufferSize is the per-subscriber backlog before it is dropped.
const DefaultBufferSize = 256
