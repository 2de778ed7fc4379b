package model

import "time"

// GroupBan blocks a user from holding any membership in the group.
type GroupBan struct {
	GroupID  string `gorm:"primaryKey;type:varchar(64)" json:"group_id"`
	UserID   string `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	BannedBy string `gorm:"not null;type:varchar(64)" json:"banned_by"`
	Reason   string `gorm:"type:varchar(255)" json:"reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (GroupBan) TableName() string {
	return "group_bans"
}
