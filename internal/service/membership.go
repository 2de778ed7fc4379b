package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/permission"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/pkg/storage"
	"github.com/Gopher0727/GroupChat/internal/repository"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

// IMembershipService defines group lifecycle and membership operations
type IMembershipService interface {
	CreateGroup(ctx context.Context, actorID string, req *CreateGroupRequest) (*model.Group, error)
	GetGroup(ctx context.Context, groupID, actorID string) (*model.Group, error)
	UpdateInfo(ctx context.Context, groupID, actorID string, req *UpdateGroupInfoRequest) (*model.Group, error)
	UpdateSettings(ctx context.Context, groupID, actorID string, req *UpdateGroupSettingsRequest) (*model.Group, error)
	SetAvatar(ctx context.Context, groupID, actorID, filename string, r io.Reader) (*model.Group, error)
	DeleteGroup(ctx context.Context, groupID, actorID string) error
	ListMembers(ctx context.Context, groupID, actorID string) ([]*model.MemberView, error)
	ListPending(ctx context.Context, groupID, actorID string) ([]*model.MemberView, error)
	ListBans(ctx context.Context, groupID, actorID string) ([]*model.GroupBan, error)
	ListUserGroups(ctx context.Context, userID string) ([]*model.GroupSummary, error)
	SearchCandidates(ctx context.Context, groupID, actorID string, req *SearchCandidatesRequest) ([]*model.Profile, error)

	AddMember(ctx context.Context, groupID, actorID, targetID string) error
	Promote(ctx context.Context, groupID, actorID, targetID string) error
	Demote(ctx context.Context, groupID, actorID, targetID string) error
	Remove(ctx context.Context, groupID, actorID, targetID string, req *RemoveMemberRequest) error
	Unban(ctx context.Context, groupID, actorID, targetID string) error
	Leave(ctx context.Context, groupID, actorID string) error
	Approve(ctx context.Context, groupID, actorID, targetID string) error
	Reject(ctx context.Context, groupID, actorID, targetID string) error
}

// MembershipService owns roles, the pending-approval queue and bans. Every
// mutation that leaves a trace in the feed goes through PostSystem, so the
// change and its system message commit together.
type MembershipService struct {
	store    *repository.Store
	messages IMessageService
	avatars  storage.ObjectStore
	events   event.Publisher
	limits   config.ChatConfig
	logger   *logger.Logger
}

// NewMembershipService creates a new MembershipService instance
func NewMembershipService(
	store *repository.Store,
	messages IMessageService,
	avatars storage.ObjectStore,
	events event.Publisher,
	limits config.ChatConfig,
	log *logger.Logger,
) *MembershipService {
	if avatars == nil {
		avatars = storage.Disabled()
	}
	if events == nil {
		events = event.Nop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MembershipService{
		store:    store,
		messages: messages,
		avatars:  avatars,
		events:   events,
		limits:   limits,
		logger:   log,
	}
}

func (s *MembershipService) emit(ctx context.Context, typ, groupID, actorID, targetID string) {
	s.events.Publish(ctx, event.DomainEvent{
		Type:         typ,
		Category:     event.CategoryMembership,
		GroupID:      groupID,
		Conversation: model.GroupConversation(groupID).Key(),
		ActorID:      actorID,
		TargetID:     targetID,
		At:           time.Now(),
	})
}

// authorize loads the group and checks the actor's role against action.
func authorize(ctx context.Context, store *repository.Store, op, groupID, actorID string, action permission.Action) (*model.Group, model.Role, error) {
	group, role, err := loadGroupAndRole(ctx, store, op, groupID, actorID)
	if err != nil {
		return nil, model.RoleNone, err
	}
	if err := permission.Check(group, role, action); err != nil {
		return nil, model.RoleNone, err
	}
	return group, role, nil
}

// CreateGroup creates a group owned by the actor.
func (s *MembershipService) CreateGroup(ctx context.Context, actorID string, req *CreateGroupRequest) (*model.Group, error) {
	const op = "group.create"

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}
	name, description, err := normalizeGroupInfo(op, s.limits, req.Name, req.Description)
	if err != nil {
		return nil, err
	}

	isOpen := true
	if req.IsOpen != nil {
		isOpen = *req.IsOpen
	}
	group := &model.Group{
		ID:              uuid.NewString(),
		Name:            name,
		Description:     description,
		CreatedBy:       actorID,
		IsOpen:          isOpen,
		RequireApproval: req.RequireApproval,
		AdminOnlyEdit:   req.AdminOnlyEdit,
		Status:          model.GroupStatusActive,
	}

	_, err = s.messages.PostSystem(ctx, group.ID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		if err := tx.Groups.Create(ctx, group); err != nil {
			return nil, errs.Unavailable(op, err)
		}
		owner := &model.GroupMember{
			ID:      uuid.NewString(),
			GroupID: group.ID,
			UserID:  actorID,
			Role:    model.RoleOwner,
			Status:  model.MemberStatusActive,
		}
		if err := tx.Members.Create(ctx, owner); err != nil {
			return nil, errs.Unavailable(op, err)
		}
		n := names(ctx, tx, actorID)
		return &SystemNote{
			Event:   model.EventGroupCreated,
			Content: fmt.Sprintf("%s created the group %q", n[actorID], name),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "group created")
	s.emit(ctx, model.EventGroupCreated, group.ID, actorID, "")
	return group, nil
}

// GetGroup is visible to active members. Only managers see the invite code.
func (s *MembershipService) GetGroup(ctx context.Context, groupID, actorID string) (*model.Group, error) {
	const op = "group.get"

	group, role, err := loadGroupAndRole(ctx, s.store, op, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleNone {
		return nil, errs.PermissionDenied("view_group", "group", groupID)
	}
	if !role.IsManager() {
		group.InviteCode = nil
	}
	return group, nil
}

func (s *MembershipService) reload(ctx context.Context, op, groupID string) (*model.Group, error) {
	group, err := s.store.Groups.FindByID(ctx, groupID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return group, nil
}

// UpdateInfo renames the group and replaces its description.
func (s *MembershipService) UpdateInfo(ctx context.Context, groupID, actorID string, req *UpdateGroupInfoRequest) (*model.Group, error) {
	const op = "group.update_info"

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}
	name, description, err := normalizeGroupInfo(op, s.limits, req.Name, req.Description)
	if err != nil {
		return nil, err
	}

	_, err = s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionEditInfo); err != nil {
			return nil, err
		}
		err := tx.Groups.Update(ctx, groupID, map[string]any{
			"name":        name,
			"description": description,
		})
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		n := names(ctx, tx, actorID)
		return &SystemNote{
			Event:   model.EventGroupUpdated,
			Content: fmt.Sprintf("%s changed the group info", n[actorID]),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventGroupUpdated, groupID, actorID, "")
	return s.reload(ctx, op, groupID)
}

// UpdateSettings changes the flags present in req.
func (s *MembershipService) UpdateSettings(ctx context.Context, groupID, actorID string, req *UpdateGroupSettingsRequest) (*model.Group, error) {
	const op = "group.update_settings"

	fields := map[string]any{}
	if req.IsOpen != nil {
		fields["is_open"] = *req.IsOpen
	}
	if req.RequireApproval != nil {
		fields["require_approval"] = *req.RequireApproval
	}
	if req.AdminOnlyEdit != nil {
		fields["admin_only_edit"] = *req.AdminOnlyEdit
	}
	if len(fields) == 0 {
		return nil, errs.Validation(op, "no settings to update")
	}

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionManageSettings); err != nil {
			return err
		}
		return tx.Groups.Update(ctx, groupID, fields)
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	s.emit(ctx, event.TypeSettingsChanged, groupID, actorID, "")
	return s.reload(ctx, op, groupID)
}

// SetAvatar uploads the image and stores its URL.
func (s *MembershipService) SetAvatar(ctx context.Context, groupID, actorID, filename string, r io.Reader) (*model.Group, error) {
	const op = "group.set_avatar"

	// 上传较慢，先在事务外校验权限，避免无权限的请求占用存储
	if _, _, err := authorize(ctx, s.store, op, groupID, actorID, permission.ActionEditInfo); err != nil {
		return nil, err
	}

	key := path.Join("groups", groupID, fmt.Sprintf("avatar-%d%s", time.Now().UnixMilli(), path.Ext(filename)))
	url, err := s.avatars.Upload(ctx, key, r)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}

	_, err = s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionEditInfo); err != nil {
			return nil, err
		}
		if err := tx.Groups.Update(ctx, groupID, map[string]any{"avatar_url": url}); err != nil {
			return nil, errs.Unavailable(op, err)
		}
		n := names(ctx, tx, actorID)
		return &SystemNote{
			Event:   model.EventGroupUpdated,
			Content: fmt.Sprintf("%s changed the group photo", n[actorID]),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	s.emit(ctx, model.EventGroupUpdated, groupID, actorID, "")
	return s.reload(ctx, op, groupID)
}

// DeleteGroup retires the group. Its rows are kept.
func (s *MembershipService) DeleteGroup(ctx context.Context, groupID, actorID string) error {
	const op = "group.delete"

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionDeleteGroup); err != nil {
			return err
		}
		return tx.Groups.MarkDeleted(ctx, groupID)
	})
	if err != nil {
		return errs.Wrap(op, err)
	}

	s.messages.RevokeAccess(ctx, groupID)
	s.logger.InfoContext(ctx, "group deleted")
	s.emit(ctx, event.TypeGroupDeleted, groupID, actorID, "")
	return nil
}

// ListMembers returns the active roster: owner, then admins, then members,
// each in join order.
func (s *MembershipService) ListMembers(ctx context.Context, groupID, actorID string) ([]*model.MemberView, error) {
	const op = "group.list_members"

	_, role, err := loadGroupAndRole(ctx, s.store, op, groupID, actorID)
	if err != nil {
		return nil, err
	}
	if role == model.RoleNone {
		return nil, errs.PermissionDenied("view_group", "group", groupID)
	}

	views, err := s.store.Members.ListViews(ctx, groupID, model.MemberStatusActive)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].Role.Before(views[j].Role)
	})
	return views, nil
}

// ListPending returns join requests, oldest first.
func (s *MembershipService) ListPending(ctx context.Context, groupID, actorID string) ([]*model.MemberView, error) {
	const op = "group.list_pending"

	if _, _, err := authorize(ctx, s.store, op, groupID, actorID, permission.ActionManageMembers); err != nil {
		return nil, err
	}
	views, err := s.store.Members.ListViews(ctx, groupID, model.MemberStatusPending)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return views, nil
}

func (s *MembershipService) ListBans(ctx context.Context, groupID, actorID string) ([]*model.GroupBan, error) {
	const op = "group.list_bans"

	if _, _, err := authorize(ctx, s.store, op, groupID, actorID, permission.ActionManageMembers); err != nil {
		return nil, err
	}
	bans, err := s.store.Bans.ListByGroup(ctx, groupID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return bans, nil
}

// ListUserGroups is the user's inbox: active groups with member counts and the
// latest live message, most recently active first.
func (s *MembershipService) ListUserGroups(ctx context.Context, userID string) ([]*model.GroupSummary, error) {
	const op = "group.list_user_groups"

	memberships, err := s.store.Members.ListByUser(ctx, userID, model.MemberStatusActive)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if len(memberships) == 0 {
		return []*model.GroupSummary{}, nil
	}

	roles := make(map[string]model.Role, len(memberships))
	ids := make([]string, 0, len(memberships))
	for _, m := range memberships {
		roles[m.GroupID] = m.Role
		ids = append(ids, m.GroupID)
	}

	groups, err := s.store.Groups.FindActiveByIDs(ctx, ids)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	counts, err := s.store.Members.CountActiveByGroups(ctx, ids)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	keys := make([]string, 0, len(groups))
	for _, g := range groups {
		keys = append(keys, model.GroupConversation(g.ID).Key())
	}
	latest, err := s.store.Messages.LatestByConversations(ctx, keys)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}

	summaries := make([]*model.GroupSummary, 0, len(groups))
	for _, g := range groups {
		role := roles[g.ID]
		if !role.IsManager() {
			g.InviteCode = nil
		}
		summary := &model.GroupSummary{
			Group:       g,
			Role:        role,
			MemberCount: counts[g.ID],
		}
		if last, ok := latest[model.GroupConversation(g.ID).Key()]; ok {
			summary.LastMessage = last.Redacted()
		}
		summaries = append(summaries, summary)
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return lastActivity(summaries[i]).After(lastActivity(summaries[j]))
	})
	return summaries, nil
}

func lastActivity(s *model.GroupSummary) time.Time {
	if s.LastMessage != nil {
		return s.LastMessage.CreatedAt
	}
	return s.Group.UpdatedAt
}

// SearchCandidates looks up profiles to add, by username. Users who already
// have a membership row, active or pending, are left out.
func (s *MembershipService) SearchCandidates(ctx context.Context, groupID, actorID string, req *SearchCandidatesRequest) ([]*model.Profile, error) {
	const op = "member.search_candidates"

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, errs.Validation(op, "query is required")
	}
	if _, _, err := authorize(ctx, s.store, op, groupID, actorID, permission.ActionManageMembers); err != nil {
		return nil, err
	}

	profiles, err := s.store.Profiles.SearchOutsideGroup(ctx, query, groupID, candidateLimit)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return profiles, nil
}

// AddMember puts a user straight into the group as an active member.
func (s *MembershipService) AddMember(ctx context.Context, groupID, actorID, targetID string) error {
	const op = "member.add"

	_, err := s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionManageMembers); err != nil {
			return nil, err
		}
		banned, err := tx.Bans.Exists(ctx, groupID, targetID)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if banned {
			return nil, errs.AlreadyBanned(op, groupID, targetID)
		}
		existing, err := loadMember(ctx, tx, op, groupID, targetID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errs.AlreadyMember(op, groupID, targetID)
		}

		err = tx.Members.Create(ctx, &model.GroupMember{
			ID:      uuid.NewString(),
			GroupID: groupID,
			UserID:  targetID,
			Role:    model.RoleMember,
			Status:  model.MemberStatusActive,
		})
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.AlreadyMember(op, groupID, targetID)
		}
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}

		n := names(ctx, tx, actorID, targetID)
		return &SystemNote{
			Event:   model.EventMemberAdded,
			Content: fmt.Sprintf("%s added %s", n[actorID], n[targetID]),
		}, nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, model.EventMemberAdded, groupID, actorID, targetID)
	return nil
}

func (s *MembershipService) Promote(ctx context.Context, groupID, actorID, targetID string) error {
	return s.setRole(ctx, "member.promote", groupID, actorID, targetID, model.RoleAdmin)
}

func (s *MembershipService) Demote(ctx context.Context, groupID, actorID, targetID string) error {
	return s.setRole(ctx, "member.demote", groupID, actorID, targetID, model.RoleMember)
}

// setRole moves an active non-owner between member and admin. Setting the
// role a member already has succeeds without a system message.
func (s *MembershipService) setRole(ctx context.Context, op, groupID, actorID, targetID string, to model.Role) error {
	changed := false
	_, err := s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		group, role, err := lockGroupAndRole(ctx, tx, op, groupID, actorID)
		if err != nil {
			return nil, err
		}
		if err := permission.Check(group, role, permission.ActionManageMembers); err != nil {
			return nil, err
		}
		target, err := loadMember(ctx, tx, op, groupID, targetID)
		if err != nil {
			return nil, err
		}
		if target == nil {
			return nil, errs.NotFound(op, "member", targetID)
		}
		if target.Role == model.RoleOwner {
			return nil, errs.InvalidTarget(op, "member", targetID, "the owner's role cannot be changed")
		}
		if target.Status != model.MemberStatusActive {
			return nil, errs.InvalidTarget(op, "member", targetID, "membership is pending")
		}
		if target.Role == to {
			return nil, nil
		}

		ok, err := tx.Members.UpdateRole(ctx, groupID, targetID, to)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if !ok {
			// 读取之后目标成了群主（或已离开）
			return nil, errs.InvalidTarget(op, "member", targetID, "membership changed concurrently")
		}
		changed = true

		n := names(ctx, tx, targetID)
		if to == model.RoleAdmin {
			return &SystemNote{
				Event:   model.EventMemberPromoted,
				Content: fmt.Sprintf("%s is now an admin", n[targetID]),
			}, nil
		}
		return &SystemNote{
			Event:   model.EventMemberDemoted,
			Content: fmt.Sprintf("%s is no longer an admin", n[targetID]),
		}, nil
	})
	if err != nil || !changed {
		return err
	}

	typ := model.EventMemberDemoted
	if to == model.RoleAdmin {
		typ = model.EventMemberPromoted
	}
	s.emit(ctx, typ, groupID, actorID, targetID)
	return nil
}

// Remove deletes the target's membership and optionally bans them. Banning a
// user who has no membership still records the ban; banning twice is a no-op.
func (s *MembershipService) Remove(ctx context.Context, groupID, actorID, targetID string, req *RemoveMemberRequest) error {
	const op = "member.remove"

	if req == nil {
		req = &RemoveMemberRequest{}
	}
	if err := validateStruct(op, req); err != nil {
		return err
	}
	if targetID == actorID {
		return errs.InvalidTarget(op, "member", targetID, "use leave to exit a group")
	}

	var emitted string
	_, err := s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		group, role, err := lockGroupAndRole(ctx, tx, op, groupID, actorID)
		if err != nil {
			return nil, err
		}
		target, err := loadMember(ctx, tx, op, groupID, targetID)
		if err != nil {
			return nil, err
		}
		if target != nil && target.Role == model.RoleOwner {
			return nil, errs.InvalidTarget(op, "member", targetID, "the owner cannot be removed")
		}
		if err := permission.Check(group, role, permission.ActionManageMembers); err != nil {
			return nil, err
		}

		removed, err := tx.Members.DeleteNonOwner(ctx, groupID, targetID)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if target != nil && !removed {
			// 读取之后目标成了群主（或已离开）
			return nil, errs.InvalidTarget(op, "member", targetID, "membership changed concurrently")
		}

		newBan := false
		if req.Ban {
			// 并发封禁时只有插入成功的一方留下系统消息
			newBan, err = tx.Bans.Create(ctx, &model.GroupBan{
				GroupID:  groupID,
				UserID:   targetID,
				BannedBy: actorID,
				Reason:   req.Reason,
			})
			if err != nil {
				return nil, errs.Unavailable(op, err)
			}
		} else if !removed {
			return nil, errs.NotFound(op, "member", targetID)
		}

		wasActive := removed && target != nil && target.Status == model.MemberStatusActive
		var revoke []string
		if wasActive {
			revoke = []string{targetID}
		}
		n := names(ctx, tx, actorID, targetID)
		switch {
		case newBan:
			emitted = model.EventMemberBanned
			return &SystemNote{
				Event:   model.EventMemberBanned,
				Content: fmt.Sprintf("%s banned %s", n[actorID], n[targetID]),
				Revoke:  revoke,
			}, nil
		case wasActive:
			emitted = model.EventMemberRemoved
			return &SystemNote{
				Event:   model.EventMemberRemoved,
				Content: fmt.Sprintf("%s removed %s", n[actorID], n[targetID]),
				Revoke:  revoke,
			}, nil
		default:
			// 撤销待审批申请或重复封禁，不留系统消息
			return nil, nil
		}
	})
	if err != nil {
		return err
	}

	if emitted != "" {
		s.emit(ctx, emitted, groupID, actorID, targetID)
	}
	return nil
}

// Unban lifts a ban. The user may then join again.
func (s *MembershipService) Unban(ctx context.Context, groupID, actorID, targetID string) error {
	const op = "member.unban"

	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionManageMembers); err != nil {
			return err
		}
		ok, err := tx.Bans.Delete(ctx, groupID, targetID)
		if err != nil {
			return err
		}
		if !ok {
			return errs.NotFound(op, "ban", targetID)
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(op, err)
	}

	s.emit(ctx, event.TypeMemberUnbanned, groupID, actorID, targetID)
	return nil
}

// Leave removes the actor's own membership. An owner hands the group to the
// earliest-joined admin, or failing that the earliest-joined member; an owner
// who is the last member retires the group. A pending requester leaving
// withdraws the request.
func (s *MembershipService) Leave(ctx context.Context, groupID, actorID string) error {
	const op = "member.leave"

	var (
		successor string
		deleted   bool
		left      bool
	)
	_, err := s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		group, err := tx.Groups.FindByIDForUpdate(ctx, groupID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !group.IsActive()) {
			return nil, errs.NotFound(op, "group", groupID)
		}
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}

		self, err := loadMember(ctx, tx, op, groupID, actorID)
		if err != nil {
			return nil, err
		}
		if self == nil {
			return nil, errs.NotFound(op, "member", actorID)
		}
		if self.Status == model.MemberStatusPending {
			if _, err := tx.Members.Delete(ctx, groupID, actorID); err != nil {
				return nil, errs.Unavailable(op, err)
			}
			return nil, nil
		}

		if self.Role == model.RoleOwner {
			members, err := tx.Members.ListActiveForUpdate(ctx, groupID)
			if err != nil {
				return nil, errs.Unavailable(op, err)
			}
			next := pickSuccessor(members, actorID)
			if next == nil {
				if err := tx.Groups.MarkDeleted(ctx, groupID); err != nil {
					return nil, errs.Unavailable(op, err)
				}
				deleted = true
			} else {
				ok, err := tx.Members.UpdateRole(ctx, groupID, next.UserID, model.RoleOwner)
				if err != nil {
					return nil, errs.Unavailable(op, err)
				}
				if !ok {
					return nil, errs.InvalidTarget(op, "member", next.UserID, "successor is no longer a member")
				}
				successor = next.UserID
			}
		}

		if _, err := tx.Members.Delete(ctx, groupID, actorID); err != nil {
			return nil, errs.Unavailable(op, err)
		}
		left = true

		n := names(ctx, tx, actorID, successor)
		content := fmt.Sprintf("%s left the group", n[actorID])
		if successor != "" {
			content = fmt.Sprintf("%s left the group. %s is now the owner", n[actorID], n[successor])
		}
		return &SystemNote{Event: model.EventMemberLeft, Content: content, Revoke: []string{actorID}}, nil
	})
	if err != nil {
		return err
	}

	if left {
		s.emit(ctx, model.EventMemberLeft, groupID, actorID, successor)
	}
	if deleted {
		s.logger.InfoContext(ctx, "last member left, group retired")
		s.emit(ctx, event.TypeGroupDeleted, groupID, actorID, "")
	}
	return nil
}

// pickSuccessor prefers admins over members; within a role, the earliest
// joined. members must be in join order.
func pickSuccessor(members []*model.GroupMember, leaving string) *model.GroupMember {
	var firstMember *model.GroupMember
	for _, m := range members {
		if m.UserID == leaving {
			continue
		}
		if m.Role == model.RoleAdmin {
			return m
		}
		if firstMember == nil && m.Role == model.RoleMember {
			firstMember = m
		}
	}
	return firstMember
}

// Approve admits a pending requester.
func (s *MembershipService) Approve(ctx context.Context, groupID, actorID, targetID string) error {
	const op = "member.approve"

	_, err := s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		if err := s.checkPending(ctx, tx, op, groupID, actorID, targetID); err != nil {
			return nil, err
		}
		ok, err := tx.Members.Activate(ctx, groupID, targetID)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if !ok {
			return nil, errs.NotPending(op, groupID, targetID)
		}
		n := names(ctx, tx, targetID)
		return &SystemNote{
			Event:   model.EventMemberJoined,
			Content: fmt.Sprintf("%s joined the group", n[targetID]),
		}, nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, model.EventMemberJoined, groupID, actorID, targetID)
	return nil
}

// Reject discards a pending request. The user may ask again.
func (s *MembershipService) Reject(ctx context.Context, groupID, actorID, targetID string) error {
	const op = "member.reject"

	_, err := s.messages.PostSystem(ctx, groupID, actorID, func(tx *repository.Store) (*SystemNote, error) {
		if err := s.checkPending(ctx, tx, op, groupID, actorID, targetID); err != nil {
			return nil, err
		}
		ok, err := tx.Members.Delete(ctx, groupID, targetID)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if !ok {
			return nil, errs.NotFound(op, "member", targetID)
		}
		return nil, nil
	})
	if err != nil {
		return err
	}

	s.emit(ctx, event.TypeMemberRejected, groupID, actorID, targetID)
	return nil
}

func (s *MembershipService) checkPending(ctx context.Context, tx *repository.Store, op, groupID, actorID, targetID string) error {
	if _, _, err := authorize(ctx, tx, op, groupID, actorID, permission.ActionManageMembers); err != nil {
		return err
	}
	target, err := loadMember(ctx, tx, op, groupID, targetID)
	if err != nil {
		return err
	}
	if target == nil {
		return errs.NotFound(op, "member", targetID)
	}
	if target.Status != model.MemberStatusPending {
		return errs.NotPending(op, groupID, targetID)
	}
	return nil
}
