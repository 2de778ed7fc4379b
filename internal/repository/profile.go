package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/model"
)

// IProfileRepository reads display profiles published by the identity provider.
type IProfileRepository interface {
	FindByID(ctx context.Context, userID string) (*model.Profile, error)
	FindByIDs(ctx context.Context, userIDs []string) (map[string]*model.Profile, error)
	SearchOutsideGroup(ctx context.Context, query, groupID string, limit int) ([]*model.Profile, error)
}

type ProfileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) IProfileRepository {
	return &ProfileRepository{db: db}
}

func (r *ProfileRepository) FindByID(ctx context.Context, userID string) (*model.Profile, error) {
	var profile model.Profile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *ProfileRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]*model.Profile, error) {
	profiles := make(map[string]*model.Profile, len(userIDs))
	if len(userIDs) == 0 {
		return profiles, nil
	}

	var rows []*model.Profile
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, p := range rows {
		profiles[p.UserID] = p
	}
	return profiles, nil
}

// SearchOutsideGroup matches usernames containing query, ignoring case, and
// skips users who already have a membership row (active or pending) in the
// group.
func (r *ProfileRepository) SearchOutsideGroup(ctx context.Context, query, groupID string, limit int) ([]*model.Profile, error) {
	members := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Select("user_id").
		Where("group_id = ?", groupID)

	var profiles []*model.Profile
	err := r.db.WithContext(ctx).
		Where("LOWER(username) LIKE ? ESCAPE '\\'", "%"+escapeLike(strings.ToLower(query))+"%").
		Where("user_id NOT IN (?)", members).
		Order("username ASC").
		Limit(limit).
		Find(&profiles).Error
	if err != nil {
		return nil, err
	}
	return profiles, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
