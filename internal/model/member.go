package model

import "time"

type Role string

const (
	RoleNone   Role = ""
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// rank orders roles for member listings: owner first.
func (r Role) rank() int {
	switch r {
	case RoleOwner:
		return 0
	case RoleAdmin:
		return 1
	case RoleMember:
		return 2
	default:
		return 3
	}
}

// Before reports whether r sorts ahead of other in a roster.
func (r Role) Before(other Role) bool {
	return r.rank() < other.rank()
}

func (r Role) IsManager() bool {
	return r == RoleOwner || r == RoleAdmin
}

type MemberStatus string

const (
	MemberStatusActive  MemberStatus = "active"
	MemberStatusPending MemberStatus = "pending"
)

// GroupMember is the membership row of one user in one group.
// (group_id, user_id) is unique, so concurrent joins collapse to one row.
type GroupMember struct {
	ID      string       `gorm:"primaryKey;type:varchar(64)" json:"id"`
	GroupID string       `gorm:"not null;type:varchar(64);uniqueIndex:idx_group_user,priority:1" json:"group_id"`
	UserID  string       `gorm:"not null;type:varchar(64);uniqueIndex:idx_group_user,priority:2;index:idx_member_user" json:"user_id"`
	Role    Role         `gorm:"not null;type:varchar(16)" json:"role"`
	Status  MemberStatus `gorm:"index;not null;type:varchar(16)" json:"status"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"joined_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (GroupMember) TableName() string {
	return "group_members"
}

// EffectiveRole is the role used for permission checks. Pending rows carry no
// permissions.
func (m *GroupMember) EffectiveRole() Role {
	if m == nil || m.Status != MemberStatusActive {
		return RoleNone
	}
	return m.Role
}

// MemberView is a roster entry joined with the member's profile.
type MemberView struct {
	GroupMember
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}
