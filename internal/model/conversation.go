package model

import (
	"errors"
	"fmt"
	"strings"
)

type ConversationKind string

const (
	ConversationGroup  ConversationKind = "group"
	ConversationDirect ConversationKind = "direct"
)

// Conversation addresses either a group or the direct thread between two users.
type Conversation struct {
	Kind    ConversationKind `json:"kind"`
	GroupID string           `json:"group_id,omitempty"`
	// UserA and UserB are the direct participants, sorted so that the key is
	// the same whichever side opens the thread.
	UserA string `json:"user_a,omitempty"`
	UserB string `json:"user_b,omitempty"`
}

func GroupConversation(groupID string) Conversation {
	return Conversation{Kind: ConversationGroup, GroupID: groupID}
}

func DirectConversation(a, b string) Conversation {
	if b < a {
		a, b = b, a
	}
	return Conversation{Kind: ConversationDirect, UserA: a, UserB: b}
}

// Validate rejects conversations whose Key would be ambiguous. A direct key
// joins both user IDs with ':', so an ID containing ':' could address another
// pair's thread.
func (c Conversation) Validate() error {
	switch c.Kind {
	case ConversationGroup:
		if c.GroupID == "" {
			return errors.New("group id is required")
		}
	case ConversationDirect:
		if c.UserA == "" || c.UserB == "" {
			return errors.New("both participants are required")
		}
		if strings.Contains(c.UserA, ":") || strings.Contains(c.UserB, ":") {
			return errors.New("user ids in direct conversations cannot contain ':'")
		}
	default:
		return fmt.Errorf("unknown conversation kind %q", c.Kind)
	}
	return nil
}

// Key is the stable identifier used for storage, sequencing and bus topics.
func (c Conversation) Key() string {
	if c.Kind == ConversationGroup {
		return "group:" + c.GroupID
	}
	return fmt.Sprintf("direct:%s:%s", c.UserA, c.UserB)
}

func (c Conversation) IsGroup() bool {
	return c.Kind == ConversationGroup
}

// Includes reports whether userID is a participant of a direct conversation.
func (c Conversation) Includes(userID string) bool {
	return c.Kind == ConversationDirect && (c.UserA == userID || c.UserB == userID)
}

// Peer returns the other participant of a direct conversation.
func (c Conversation) Peer(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}

// ParseConversation is the inverse of Key.
func ParseConversation(key string) (Conversation, error) {
	parts := strings.Split(key, ":")
	switch {
	case len(parts) == 2 && parts[0] == string(ConversationGroup) && parts[1] != "":
		return GroupConversation(parts[1]), nil
	case len(parts) == 3 && parts[0] == string(ConversationDirect) && parts[1] != "" && parts[2] != "":
		return DirectConversation(parts[1], parts[2]), nil
	default:
		return Conversation{}, fmt.Errorf("invalid conversation key %q", key)
	}
}
