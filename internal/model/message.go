package model

import (
	"time"

	"gorm.io/gorm"
)

type MessageKind string

const (
	MessageKindUser   MessageKind = "user"
	MessageKindSystem MessageKind = "system"
)

// System message events.
const (
	EventGroupCreated   = "group_created"
	EventGroupUpdated   = "group_updated"
	EventMemberAdded    = "member_added"
	EventMemberJoined   = "member_joined"
	EventMemberPromoted = "member_promoted"
	EventMemberDemoted  = "member_demoted"
	EventMemberRemoved  = "member_removed"
	EventMemberBanned   = "member_banned"
	EventMemberLeft     = "member_left"
)

// Message 消息模型
//
// Exactly one of GroupID and ReceiverID is set. SeqID is assigned per
// conversation and is the ordering key for history and realtime delivery.
type Message struct {
	ID             string      `gorm:"primaryKey;type:varchar(64)" json:"id"`
	ConversationID string      `gorm:"not null;type:varchar(160);uniqueIndex:idx_conv_seq,priority:1" json:"conversation_id"`
	SeqID          int64       `gorm:"not null;uniqueIndex:idx_conv_seq,priority:2" json:"seq_id"`
	SenderID       string      `gorm:"index;not null;type:varchar(64)" json:"sender_id"`
	GroupID        *string     `gorm:"index;type:varchar(64)" json:"group_id,omitempty"`
	ReceiverID     *string     `gorm:"index;type:varchar(64)" json:"receiver_id,omitempty"`
	Kind           MessageKind `gorm:"not null;type:varchar(16)" json:"kind"`
	Event          string      `gorm:"type:varchar(32)" json:"event,omitempty"`
	Content        string      `gorm:"type:text;not null" json:"content"`
	ReplyTo        *string     `gorm:"type:varchar(64)" json:"reply_to,omitempty"`

	IsRead     bool `gorm:"not null" json:"is_read"`
	IsViewed   bool `gorm:"not null" json:"is_viewed"`
	IsViewOnce bool `gorm:"not null" json:"is_view_once"`

	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) IsDirect() bool {
	return m.ReceiverID != nil
}

func (m *Message) IsDeleted() bool {
	return m.DeletedAt.Valid
}

// Redacted returns a copy safe for clients: content is blanked once the
// message is deleted or a view-once message has been viewed. Everything else
// (including deleted_at) is kept.
func (m *Message) Redacted() *Message {
	cp := *m
	if cp.DeletedAt.Valid || (cp.IsViewOnce && cp.IsViewed) {
		cp.Content = ""
	}
	return &cp
}

// MessagePage is one page of history in ascending SeqID order.
type MessagePage struct {
	Messages []*Message `json:"messages"`
	HasMore  bool       `json:"has_more"`
	// NextBefore is the cursor for the next (older) page; zero when HasMore is false.
	NextBefore int64 `json:"next_before,omitempty"`
}

// DirectThread is one entry of a user's direct-message inbox.
type DirectThread struct {
	Conversation string   `json:"conversation"`
	PeerID       string   `json:"peer_id"`
	Peer         *Profile `json:"peer,omitempty"`
	LastMessage  *Message `json:"last_message"`
	Unread       int64    `json:"unread"`
}
