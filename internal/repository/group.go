package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GroupChat/internal/model"
)

// IGroupRepository defines the interface for group data operations
type IGroupRepository interface {
	Create(ctx context.Context, group *model.Group) error
	FindByID(ctx context.Context, id string) (*model.Group, error)
	FindByIDForUpdate(ctx context.Context, id string) (*model.Group, error)
	FindByInviteCode(ctx context.Context, code string) (*model.Group, error)
	FindActiveByIDs(ctx context.Context, ids []string) ([]*model.Group, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	SetInviteCode(ctx context.Context, id string, code *string) error
	MarkDeleted(ctx context.Context, id string) error
}

// GroupRepository implements IGroupRepository interface
type GroupRepository struct {
	db *gorm.DB
}

// NewGroupRepository creates a new IGroupRepository instance
func NewGroupRepository(db *gorm.DB) IGroupRepository {
	return &GroupRepository{db: db}
}

func (r *GroupRepository) Create(ctx context.Context, group *model.Group) error {
	return r.db.WithContext(ctx).Create(group).Error
}

// FindByID returns the group regardless of status.
func (r *GroupRepository) FindByID(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&group).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

// FindByIDForUpdate locks the group row until the surrounding transaction ends.
func (r *GroupRepository) FindByIDForUpdate(ctx context.Context, id string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// FindByInviteCode only resolves codes of active groups.
func (r *GroupRepository) FindByInviteCode(ctx context.Context, code string) (*model.Group, error) {
	var group model.Group
	err := r.db.WithContext(ctx).
		Where("invite_code = ? AND status = ?", code, model.GroupStatusActive).
		First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *GroupRepository) FindActiveByIDs(ctx context.Context, ids []string) ([]*model.Group, error) {
	var groups []*model.Group
	if len(ids) == 0 {
		return groups, nil
	}
	err := r.db.WithContext(ctx).
		Where("id IN ? AND status = ?", ids, model.GroupStatusActive).
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

// Update writes the given columns. A map is used so that false and "" are
// persisted instead of being skipped as zero values.
func (r *GroupRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&model.Group{}).Where("id = ?", id).Updates(fields).Error
}

func (r *GroupRepository) SetInviteCode(ctx context.Context, id string, code *string) error {
	return r.db.WithContext(ctx).Model(&model.Group{}).Where("id = ?", id).Update("invite_code", code).Error
}

// MarkDeleted retires the group and invalidates its invite link.
func (r *GroupRepository) MarkDeleted(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Group{}).Where("id = ?", id).Updates(map[string]any{
		"status":      model.GroupStatusDeleted,
		"invite_code": nil,
	}).Error
}
