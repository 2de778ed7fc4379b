package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GroupChat/internal/model"
)

type IBanRepository interface {
	Create(ctx context.Context, ban *model.GroupBan) (bool, error)
	Exists(ctx context.Context, groupID, userID string) (bool, error)
	ListByGroup(ctx context.Context, groupID string) ([]*model.GroupBan, error)
	Delete(ctx context.Context, groupID, userID string) (bool, error)
}

type BanRepository struct {
	db *gorm.DB
}

func NewBanRepository(db *gorm.DB) IBanRepository {
	return &BanRepository{db: db}
}

// Create is idempotent: banning an already banned user keeps the first record.
// It reports whether this call inserted the ban, so of two concurrent bans
// exactly one sees true.
func (r *BanRepository) Create(ctx context.Context, ban *model.GroupBan) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(ban)
	return res.RowsAffected > 0, res.Error
}

func (r *BanRepository) Exists(ctx context.Context, groupID, userID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.GroupBan{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *BanRepository) ListByGroup(ctx context.Context, groupID string) ([]*model.GroupBan, error) {
	var bans []*model.GroupBan
	err := r.db.WithContext(ctx).
		Where("group_id = ?", groupID).
		Order("created_at DESC").
		Find(&bans).Error
	if err != nil {
		return nil, err
	}
	return bans, nil
}

func (r *BanRepository) Delete(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&model.GroupBan{})
	return res.RowsAffected > 0, res.Error
}
