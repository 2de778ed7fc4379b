package model

// Profile is read-only display data owned by the identity provider.
type Profile struct {
	UserID      string `gorm:"primaryKey;type:varchar(64)" json:"user_id"`
	Username    string `gorm:"type:varchar(64)" json:"username"`
	DisplayName string `gorm:"type:varchar(128)" json:"display_name"`
	AvatarURL   string `gorm:"type:varchar(512)" json:"avatar_url"`
}

func (Profile) TableName() string {
	return "profiles"
}

// Name picks the best label for system messages.
func (p *Profile) Name() string {
	switch {
	case p == nil:
		return ""
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	default:
		return p.UserID
	}
}
