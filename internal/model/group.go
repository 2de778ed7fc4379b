package model

import "time"

type GroupStatus string

const (
	GroupStatusActive  GroupStatus = "active"
	GroupStatusDeleted GroupStatus = "deleted"
)

// Group is a named multi-user conversation with roles and settings.
type Group struct {
	ID          string `gorm:"primaryKey;type:varchar(64)" json:"id"`
	Name        string `gorm:"not null;type:varchar(50)" json:"name"`
	Description string `gorm:"type:varchar(200)" json:"description"`
	AvatarURL   string `gorm:"type:varchar(512)" json:"avatar_url"`
	CreatedBy   string `gorm:"index;not null;type:varchar(64)" json:"created_by"`

	// 布尔字段不设置 gorm default，否则 false 会在创建时被默认值覆盖
	IsOpen          bool `gorm:"not null" json:"is_open"`
	RequireApproval bool `gorm:"not null" json:"require_approval"`
	AdminOnlyEdit   bool `gorm:"not null" json:"admin_only_edit"`

	InviteCode *string     `gorm:"uniqueIndex;type:varchar(64)" json:"invite_code,omitempty"`
	Status     GroupStatus `gorm:"index;not null;type:varchar(16)" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Group) TableName() string {
	return "chat_groups"
}

func (g *Group) IsActive() bool {
	return g != nil && g.Status == GroupStatusActive
}

// GroupPreview is what an invite link reveals before joining.
type GroupPreview struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	AvatarURL       string `json:"avatar_url"`
	RequireApproval bool   `json:"require_approval"`
	MemberCount     int64  `json:"member_count"`
}

// GroupSummary is one row of a user's conversation list.
type GroupSummary struct {
	Group       *Group   `json:"group"`
	Role        Role     `json:"role"`
	MemberCount int64    `json:"member_count"`
	LastMessage *Message `json:"last_message,omitempty"`
}
