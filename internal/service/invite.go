package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/permission"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/repository"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
)

const (
	inviteCodeBytes    = 16
	inviteCodeAttempts = 10
)

// IInviteService defines invite link operations
type IInviteService interface {
	Generate(ctx context.Context, groupID, actorID string) (string, error)
	Revoke(ctx context.Context, groupID, actorID string) error
	Resolve(ctx context.Context, code string) (*model.GroupPreview, error)
	Join(ctx context.Context, code, userID string) (*model.GroupMember, error)
}

// InviteService manages a group's single invite code and joins through it.
type InviteService struct {
	store    *repository.Store
	messages IMessageService
	events   event.Publisher
	newCode  func() (string, error)
	logger   *logger.Logger
}

// NewInviteService creates a new InviteService instance
func NewInviteService(store *repository.Store, messages IMessageService, events event.Publisher, log *logger.Logger) *InviteService {
	if events == nil {
		events = event.Nop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &InviteService{
		store:    store,
		messages: messages,
		events:   events,
		newCode:  randomInviteCode,
		logger:   log,
	}
}

// randomInviteCode returns 16 random bytes, base64url encoded without padding.
func randomInviteCode() (string, error) {
	buf := make([]byte, inviteCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (s *InviteService) emit(ctx context.Context, typ, groupID, actorID, targetID string) {
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

// Generate replaces the group's invite code with a fresh one. The previous
// code stops working immediately.
func (s *InviteService) Generate(ctx context.Context, groupID, actorID string) (string, error) {
	const op = "invite.generate"

	if _, _, err := authorize(ctx, s.store, op, groupID, actorID, permission.ActionManageMembers); err != nil {
		return "", err
	}

	for attempt := 0; attempt < inviteCodeAttempts; attempt++ {
		code, err := s.newCode()
		if err != nil {
			return "", errs.Unavailable(op, err)
		}
		err = s.store.Groups.SetInviteCode(ctx, groupID, &code)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return "", errs.Unavailable(op, err)
		}
		s.emit(ctx, event.TypeInviteRotated, groupID, actorID, "")
		return code, nil
	}
	return "", errs.Unavailable(op, fmt.Errorf("no unique invite code after %d attempts", inviteCodeAttempts))
}

// Revoke clears the invite code.
func (s *InviteService) Revoke(ctx context.Context, groupID, actorID string) error {
	const op = "invite.revoke"

	if _, _, err := authorize(ctx, s.store, op, groupID, actorID, permission.ActionManageMembers); err != nil {
		return err
	}
	if err := s.store.Groups.SetInviteCode(ctx, groupID, nil); err != nil {
		return errs.Unavailable(op, err)
	}
	s.emit(ctx, event.TypeInviteRevoked, groupID, actorID, "")
	return nil
}

func (s *InviteService) findByCode(ctx context.Context, store *repository.Store, op, code string) (*model.Group, error) {
	if code == "" {
		return nil, errs.NotFound(op, "invite", code)
	}
	group, err := store.Groups.FindByInviteCode(ctx, code)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound(op, "invite", code)
	}
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return group, nil
}

// Resolve shows what an invite link leads to without joining.
func (s *InviteService) Resolve(ctx context.Context, code string) (*model.GroupPreview, error) {
	const op = "invite.resolve"

	group, err := s.findByCode(ctx, s.store, op, code)
	if err != nil {
		return nil, err
	}
	count, err := s.store.Members.CountActive(ctx, group.ID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return &model.GroupPreview{
		ID:              group.ID,
		Name:            group.Name,
		Description:     group.Description,
		AvatarURL:       group.AvatarURL,
		RequireApproval: group.RequireApproval,
		MemberCount:     count,
	}, nil
}

// Join redeems an invite code. Groups that require approval get a pending
// request; others admit the user at once.
func (s *InviteService) Join(ctx context.Context, code, userID string) (*model.GroupMember, error) {
	const op = "invite.join"

	group, err := s.findByCode(ctx, s.store, op, code)
	if err != nil {
		return nil, err
	}

	var member *model.GroupMember
	_, err = s.messages.PostSystem(ctx, group.ID, userID, func(tx *repository.Store) (*SystemNote, error) {
		// 事务内重新解析，防止邀请码在此期间被撤销或轮换
		current, err := s.findByCode(ctx, tx, op, code)
		if err != nil {
			return nil, err
		}
		if current.ID != group.ID {
			return nil, errs.NotFound(op, "invite", code)
		}

		banned, err := tx.Bans.Exists(ctx, group.ID, userID)
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}
		if banned {
			return nil, errs.Banned(op, group.ID)
		}
		existing, err := loadMember(ctx, tx, op, group.ID, userID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return nil, errs.AlreadyMember(op, group.ID, userID)
		}

		status := model.MemberStatusActive
		if current.RequireApproval {
			status = model.MemberStatusPending
		}
		member = &model.GroupMember{
			ID:      uuid.NewString(),
			GroupID: group.ID,
			UserID:  userID,
			Role:    model.RoleMember,
			Status:  status,
		}
		err = tx.Members.Create(ctx, member)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errs.AlreadyMember(op, group.ID, userID)
		}
		if err != nil {
			return nil, errs.Unavailable(op, err)
		}

		if status == model.MemberStatusPending {
			return nil, nil
		}
		n := names(ctx, tx, userID)
		return &SystemNote{
			Event:   model.EventMemberJoined,
			Content: fmt.Sprintf("%s joined via invite link", n[userID]),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	if member.Status == model.MemberStatusPending {
		s.emit(ctx, event.TypeMemberRequested, group.ID, userID, userID)
	} else {
		s.emit(ctx, model.EventMemberJoined, group.ID, userID, userID)
	}
	return member, nil
}
