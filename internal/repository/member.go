package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Gopher0727/GroupChat/internal/model"
)

// IMemberRepository defines the interface for membership rows
type IMemberRepository interface {
	Create(ctx context.Context, member *model.GroupMember) error
	Find(ctx context.Context, groupID, userID string) (*model.GroupMember, error)
	ListActiveForUpdate(ctx context.Context, groupID string) ([]*model.GroupMember, error)
	ListViews(ctx context.Context, groupID string, status model.MemberStatus) ([]*model.MemberView, error)
	ListByUser(ctx context.Context, userID string, status model.MemberStatus) ([]*model.GroupMember, error)
	CountActive(ctx context.Context, groupID string) (int64, error)
	CountActiveByGroups(ctx context.Context, groupIDs []string) (map[string]int64, error)
	UpdateRole(ctx context.Context, groupID, userID string, role model.Role) (bool, error)
	Activate(ctx context.Context, groupID, userID string) (bool, error)
	Delete(ctx context.Context, groupID, userID string) (bool, error)
	DeleteNonOwner(ctx context.Context, groupID, userID string) (bool, error)
}

// MemberRepository implements IMemberRepository interface
type MemberRepository struct {
	db *gorm.DB
}

// NewMemberRepository creates a new IMemberRepository instance
func NewMemberRepository(db *gorm.DB) IMemberRepository {
	return &MemberRepository{db: db}
}

// Create inserts a membership. A second row for the same (group, user)
// violates idx_group_user and surfaces as gorm.ErrDuplicatedKey.
func (r *MemberRepository) Create(ctx context.Context, member *model.GroupMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *MemberRepository) Find(ctx context.Context, groupID, userID string) (*model.GroupMember, error) {
	var member model.GroupMember
	err := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		First(&member).Error
	if err != nil {
		return nil, err
	}
	return &member, nil
}

// ListActiveForUpdate returns active members in join order and locks them
// for the rest of the transaction.
func (r *MemberRepository) ListActiveForUpdate(ctx context.Context, groupID string) ([]*model.GroupMember, error) {
	var members []*model.GroupMember
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("group_id = ? AND status = ?", groupID, model.MemberStatusActive).
		Order("created_at ASC").Order("id ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

// ListViews joins membership rows with profiles, in join order.
func (r *MemberRepository) ListViews(ctx context.Context, groupID string, status model.MemberStatus) ([]*model.MemberView, error) {
	var views []*model.MemberView
	err := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Select("group_members.*, " +
			"COALESCE(profiles.username, '') AS username, " +
			"COALESCE(profiles.display_name, '') AS display_name, " +
			"COALESCE(profiles.avatar_url, '') AS avatar_url").
		Joins("LEFT JOIN profiles ON profiles.user_id = group_members.user_id").
		Where("group_members.group_id = ? AND group_members.status = ?", groupID, status).
		Order("group_members.created_at ASC").Order("group_members.id ASC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

func (r *MemberRepository) ListByUser(ctx context.Context, userID string, status model.MemberStatus) ([]*model.GroupMember, error) {
	var members []*model.GroupMember
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, status).
		Order("created_at ASC").
		Find(&members).Error
	if err != nil {
		return nil, err
	}
	return members, nil
}

func (r *MemberRepository) CountActive(ctx context.Context, groupID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ? AND status = ?", groupID, model.MemberStatusActive).
		Count(&count).Error
	return count, err
}

func (r *MemberRepository) CountActiveByGroups(ctx context.Context, groupIDs []string) (map[string]int64, error) {
	counts := make(map[string]int64, len(groupIDs))
	if len(groupIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		GroupID string
		Total   int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Select("group_id, COUNT(*) AS total").
		Where("group_id IN ? AND status = ?", groupIDs, model.MemberStatusActive).
		Group("group_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.GroupID] = row.Total
	}
	return counts, nil
}

// UpdateRole never touches the owner's row: ownership only moves by promoting
// someone else while the owner leaves. It reports false when no non-owner row
// matched, which is how a writer that read a stale role finds out.
func (r *MemberRepository) UpdateRole(ctx context.Context, groupID, userID string, role model.Role) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND role <> ?", groupID, userID, model.RoleOwner).
		Update("role", role)
	return res.RowsAffected > 0, res.Error
}

// Activate moves a pending row to active. It reports false when no pending
// row matched, which lets two concurrent approvals resolve to one winner.
func (r *MemberRepository) Activate(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.GroupMember{}).
		Where("group_id = ? AND user_id = ? AND status = ?", groupID, userID, model.MemberStatusPending).
		Update("status", model.MemberStatusActive)
	return res.RowsAffected > 0, res.Error
}

// Delete removes the membership row and reports whether one existed.
func (r *MemberRepository) Delete(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Delete(&model.GroupMember{})
	return res.RowsAffected > 0, res.Error
}

// DeleteNonOwner is Delete for removals by someone else. The owner's row is
// left alone even if the caller believed the target was an admin.
func (r *MemberRepository) DeleteNonOwner(ctx context.Context, groupID, userID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("group_id = ? AND user_id = ? AND role <> ?", groupID, userID, model.RoleOwner).
		Delete(&model.GroupMember{})
	return res.RowsAffected > 0, res.Error
}
