package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	pkgredis "github.com/Gopher0727/GroupChat/internal/pkg/redis"
	"github.com/Gopher0727/GroupChat/internal/repository"
)

// Sequencer allocates per-conversation sequence numbers.
type Sequencer interface {
	NextSeq(ctx context.Context, conversation string, floor pkgredis.SeqFloor) (int64, error)
}

// loadActiveGroup returns NotFound for missing and deleted groups alike.
func loadActiveGroup(ctx context.Context, store *repository.Store, op, groupID string) (*model.Group, error) {
	group, err := store.Groups.FindByID(ctx, groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !group.IsActive()) {
		return nil, errs.NotFound(op, "group", groupID)
	}
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return group, nil
}

// loadMember returns nil without error when the user has no row.
func loadMember(ctx context.Context, store *repository.Store, op, groupID, userID string) (*model.GroupMember, error) {
	member, err := store.Members.Find(ctx, groupID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return member, nil
}

// loadGroupAndRole loads an active group and the actor's effective role in it.
func loadGroupAndRole(ctx context.Context, store *repository.Store, op, groupID, userID string) (*model.Group, model.Role, error) {
	group, err := loadActiveGroup(ctx, store, op, groupID)
	if err != nil {
		return nil, model.RoleNone, err
	}
	member, err := loadMember(ctx, store, op, groupID, userID)
	if err != nil {
		return nil, model.RoleNone, err
	}
	return group, member.EffectiveRole(), nil
}

// lockGroupAndRole is loadGroupAndRole with the group row locked until the
// transaction ends. Role changes and removals take it so that they queue
// behind an owner's Leave, which holds the same lock while it hands over
// ownership.
func lockGroupAndRole(ctx context.Context, store *repository.Store, op, groupID, userID string) (*model.Group, model.Role, error) {
	group, err := store.Groups.FindByIDForUpdate(ctx, groupID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !group.IsActive()) {
		return nil, model.RoleNone, errs.NotFound(op, "group", groupID)
	}
	if err != nil {
		return nil, model.RoleNone, errs.Unavailable(op, err)
	}
	member, err := loadMember(ctx, store, op, groupID, userID)
	if err != nil {
		return nil, model.RoleNone, err
	}
	return group, member.EffectiveRole(), nil
}

// names resolves display names, falling back to the user ID for users
// without a profile.
func names(ctx context.Context, store *repository.Store, userIDs ...string) map[string]string {
	out := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		out[id] = id
	}
	profiles, err := store.Profiles.FindByIDs(ctx, userIDs)
	if err != nil {
		return out
	}
	for id, p := range profiles {
		if name := p.Name(); name != "" {
			out[id] = name
		}
	}
	return out
}
