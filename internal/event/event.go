// Package event emits domain events (membership and message changes) for
// downstream consumers. Emission is fire-and-forget: it never fails or slows
// the request that caused it.
package event

import (
	"context"
	"sync"
	"time"
)

type Category string

const (
	CategoryMembership Category = "membership"
	CategoryMessage    Category = "message"
)

// Domain event types that are not system message events.
const (
	TypeGroupDeleted    = "group_deleted"
	TypeSettingsChanged = "group_settings_changed"
	TypeMemberRequested = "member_requested"
	TypeMemberRejected  = "member_rejected"
	TypeMemberUnbanned  = "member_unbanned"
	TypeInviteRotated   = "invite_rotated"
	TypeInviteRevoked   = "invite_revoked"
	TypeMessageSent     = "message_sent"
	TypeMessageDeleted  = "message_deleted"
	TypeMessageRead     = "message_read"
	TypeMessageViewed   = "message_viewed"
)

type DomainEvent struct {
	Type         string    `json:"type"`
	Category     Category  `json:"category"`
	GroupID      string    `json:"group_id,omitempty"`
	Conversation string    `json:"conversation,omitempty"`
	ActorID      string    `json:"actor_id"`
	TargetID     string    `json:"target_id,omitempty"`
	MessageID    string    `json:"message_id,omitempty"`
	At           time.Time `json:"at"`
}

// Key is the partitioning key: events of one group (or conversation) stay in order.
func (e DomainEvent) Key() string {
	if e.GroupID != "" {
		return e.GroupID
	}
	return e.Conversation
}

type Publisher interface {
	Publish(ctx context.Context, event DomainEvent)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, DomainEvent) {}

// Nop discards every event. It is used when Kafka is disabled.
func Nop() Publisher {
	return nopPublisher{}
}

// Recorder keeps events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []DomainEvent
}

func (r *Recorder) Publish(_ context.Context, event DomainEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *Recorder) Events() []DomainEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]DomainEvent, len(r.events))
	copy(out, r.events)
	return out
}

// Types returns the recorded event types in order.
func (r *Recorder) Types() []string {
	events := r.Events()
	types := make([]string, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}
