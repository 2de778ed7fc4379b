package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/config"
	"github.com/Gopher0727/GroupChat/internal/event"
	"github.com/Gopher0727/GroupChat/internal/model"
	"github.com/Gopher0727/GroupChat/internal/permission"
	"github.com/Gopher0727/GroupChat/internal/pkg/errs"
	"github.com/Gopher0727/GroupChat/internal/realtime"
	"github.com/Gopher0727/GroupChat/internal/repository"
	logger "github.com/Gopher0727/GroupChat/middleware/log"
	"github.com/Gopher0727/GroupChat/utils/snowflake"
)

// SystemNote describes the system message a membership change leaves in the
// group's feed.
type SystemNote struct {
	Event   string
	Content string
	// Revoke lists users whose live subscriptions to the group end when the
	// change commits, ahead of the system message itself.
	Revoke []string
}

// SystemMutation changes membership state inside the transaction that also
// stores its system message. Returning a nil note commits the change without
// a message.
type SystemMutation func(tx *repository.Store) (*SystemNote, error)

// IMessageService defines the interface for message operations
type IMessageService interface {
	Send(ctx context.Context, conv model.Conversation, senderID string, req *SendMessageRequest) (*model.Message, error)
	SoftDelete(ctx context.Context, conv model.Conversation, actorID, messageID string) error
	List(ctx context.Context, conv model.Conversation, actorID string, req *ListMessagesRequest) (*model.MessagePage, error)
	Lookup(ctx context.Context, messageID string) (*model.Message, error)
	Subscribe(ctx context.Context, conv model.Conversation, actorID string) (realtime.Subscription, error)
	MarkRead(ctx context.Context, actorID, messageID string) (*model.Message, error)
	MarkViewed(ctx context.Context, actorID, messageID string) (*model.Message, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
	ListDirectThreads(ctx context.Context, userID string) ([]*model.DirectThread, error)
	PostSystem(ctx context.Context, groupID, actorID string, mutate SystemMutation) (*model.Message, error)
	RevokeAccess(ctx context.Context, groupID string, userIDs ...string)
}

// MessageService stores messages and fans them out.
//
// Every write to a conversation holds that conversation's lock from sequence
// allocation through commit to publish, so on one node seq order, commit order
// and delivery order are the same.
type MessageService struct {
	store  *repository.Store
	seq    Sequencer
	bus    realtime.Bus
	events event.Publisher
	ids    *snowflake.Generator
	limits config.ChatConfig
	locks  *keyedMutex
	logger *logger.Logger
}

// NewMessageService creates a new MessageService instance
func NewMessageService(
	store *repository.Store,
	seq Sequencer,
	bus realtime.Bus,
	events event.Publisher,
	ids *snowflake.Generator,
	limits config.ChatConfig,
	log *logger.Logger,
) *MessageService {
	if events == nil {
		events = event.Nop()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &MessageService{
		store:  store,
		seq:    seq,
		bus:    bus,
		events: events,
		ids:    ids,
		limits: limits,
		locks:  newKeyedMutex(),
		logger: log,
	}
}

// Send appends a user message to a conversation.
func (s *MessageService) Send(ctx context.Context, conv model.Conversation, senderID string, req *SendMessageRequest) (*model.Message, error) {
	const op = "message.send"

	if err := validateStruct(op, req); err != nil {
		return nil, err
	}
	if err := checkConversation(op, conv); err != nil {
		return nil, err
	}
	content, err := normalizeContent(op, s.limits, req.Content)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		SenderID:   senderID,
		Kind:       model.MessageKindUser,
		Content:    content,
		IsViewOnce: req.ViewOnce,
	}
	if req.ReplyTo != "" {
		replyTo := req.ReplyTo
		msg.ReplyTo = &replyTo
	}

	if conv.IsGroup() {
		if req.ViewOnce {
			return nil, errs.Validation(op, "view-once is only available in direct messages")
		}
		groupID := conv.GroupID
		msg.GroupID = &groupID
	} else {
		if !conv.Includes(senderID) {
			return nil, errs.PermissionDenied(string(permission.ActionSendMessage), "conversation", conv.Key())
		}
		if conv.UserA == conv.UserB {
			return nil, errs.Validation(op, "cannot send a direct message to yourself")
		}
		receiver := conv.Peer(senderID)
		msg.ReceiverID = &receiver
	}

	saved, err := s.commit(ctx, op, conv, func(tx *repository.Store) (*model.Message, []string, error) {
		if conv.IsGroup() {
			group, role, err := loadGroupAndRole(ctx, tx, op, conv.GroupID, senderID)
			if err != nil {
				return nil, nil, err
			}
			if err := permission.Check(group, role, permission.ActionSendMessage); err != nil {
				return nil, nil, err
			}
		}
		if msg.ReplyTo != nil {
			if err := s.checkReply(ctx, tx, op, conv, *msg.ReplyTo); err != nil {
				return nil, nil, err
			}
		}
		return msg, nil, nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ctx, event.DomainEvent{
		Type:         event.TypeMessageSent,
		Category:     event.CategoryMessage,
		GroupID:      conv.GroupID,
		Conversation: conv.Key(),
		ActorID:      senderID,
		MessageID:    saved.ID,
		At:           saved.CreatedAt,
	})
	return saved, nil
}

// checkReply requires the parent to be a live message of the same conversation.
func (s *MessageService) checkReply(ctx context.Context, tx *repository.Store, op string, conv model.Conversation, parentID string) error {
	parent, err := tx.Messages.FindByID(ctx, parentID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.InvalidReply(op, parentID)
	}
	if err != nil {
		return errs.Unavailable(op, err)
	}
	if parent.ConversationID != conv.Key() {
		return errs.InvalidReply(op, parentID)
	}
	return nil
}

// SoftDelete hides a message the actor sent. The row is kept for audit.
func (s *MessageService) SoftDelete(ctx context.Context, conv model.Conversation, actorID, messageID string) error {
	const op = "message.delete"

	if err := checkConversation(op, conv); err != nil {
		return err
	}
	key := conv.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	msg, err := s.store.Messages.FindByID(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && msg.ConversationID != key) {
		return errs.NotFound(op, "message", messageID)
	}
	if err != nil {
		return errs.Unavailable(op, err)
	}
	if msg.Kind == model.MessageKindSystem {
		return errs.InvalidTarget(op, "message", messageID, "system messages cannot be deleted")
	}
	if msg.SenderID != actorID {
		return errs.PermissionDenied("delete_message", "message", messageID)
	}

	now := time.Now()
	ok, err := s.store.Messages.SoftDelete(ctx, messageID, now)
	if err != nil {
		return errs.Unavailable(op, err)
	}
	if !ok {
		return errs.NotFound(op, "message", messageID)
	}
	msg.DeletedAt = gorm.DeletedAt{Time: now, Valid: true}

	s.publish(ctx, realtime.EventUpdate, key, msg)
	s.events.Publish(ctx, event.DomainEvent{
		Type:         event.TypeMessageDeleted,
		Category:     event.CategoryMessage,
		GroupID:      conv.GroupID,
		Conversation: key,
		ActorID:      actorID,
		MessageID:    messageID,
		At:           now,
	})
	return nil
}

// List returns one page of history in ascending seq order.
func (s *MessageService) List(ctx context.Context, conv model.Conversation, actorID string, req *ListMessagesRequest) (*model.MessagePage, error) {
	const op = "message.list"

	if req == nil {
		req = &ListMessagesRequest{}
	}
	if err := validateStruct(op, req); err != nil {
		return nil, err
	}
	if err := checkConversation(op, conv); err != nil {
		return nil, err
	}
	if err := s.checkRead(ctx, op, conv, actorID); err != nil {
		return nil, err
	}

	limit := pageSize(s.limits, req.Limit)
	rows, err := s.store.Messages.ListBefore(ctx, conv.Key(), req.Before, limit+1)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}

	page := &model.MessagePage{HasMore: len(rows) > limit}
	if page.HasMore {
		rows = rows[:limit]
	}
	// 仓库按 seq 倒序返回，这里翻转为正序
	page.Messages = make([]*model.Message, len(rows))
	for i, m := range rows {
		page.Messages[len(rows)-1-i] = m.Redacted()
	}
	if page.HasMore {
		page.NextBefore = page.Messages[0].SeqID
	}
	return page, nil
}

// Lookup is the audit path: it also returns deleted messages, with their
// original content.
func (s *MessageService) Lookup(ctx context.Context, messageID string) (*model.Message, error) {
	const op = "message.lookup"

	msg, err := s.store.Messages.FindByIDUnscoped(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound(op, "message", messageID)
	}
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	return msg, nil
}

// Subscribe streams events published after the call returns. Earlier
// messages come from List. A group subscription closes as soon as the
// reader's membership ends; Revoked on the returned subscription then
// reports true.
func (s *MessageService) Subscribe(ctx context.Context, conv model.Conversation, actorID string) (realtime.Subscription, error) {
	const op = "message.subscribe"

	if err := checkConversation(op, conv); err != nil {
		return nil, err
	}
	if err := s.checkRead(ctx, op, conv, actorID); err != nil {
		return nil, err
	}
	sub, err := s.bus.Subscribe(ctx, conv.Key())
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if !conv.IsGroup() {
		return sub, nil
	}

	guarded := newMemberSubscription(sub, actorID)
	// 撤销可能发生在首次校验与订阅之间，订阅建立后再校验一次
	if err := s.checkRead(ctx, op, conv, actorID); err != nil {
		guarded.Close()
		return nil, err
	}
	return guarded, nil
}

func checkConversation(op string, conv model.Conversation) error {
	if err := conv.Validate(); err != nil {
		return errs.Validation(op, err.Error())
	}
	return nil
}

func (s *MessageService) checkRead(ctx context.Context, op string, conv model.Conversation, actorID string) error {
	if !conv.IsGroup() {
		if !conv.Includes(actorID) {
			return errs.PermissionDenied("read_messages", "conversation", conv.Key())
		}
		return nil
	}
	_, role, err := loadGroupAndRole(ctx, s.store, op, conv.GroupID, actorID)
	if err != nil {
		return err
	}
	if role == model.RoleNone {
		return errs.PermissionDenied("read_messages", "group", conv.GroupID)
	}
	return nil
}

// MarkRead flags a direct message as read by its receiver.
func (s *MessageService) MarkRead(ctx context.Context, actorID, messageID string) (*model.Message, error) {
	return s.markDirect(ctx, "message.mark_read", actorID, messageID, false)
}

// MarkViewed consumes a view-once message. Its content is no longer served
// afterwards.
func (s *MessageService) MarkViewed(ctx context.Context, actorID, messageID string) (*model.Message, error) {
	return s.markDirect(ctx, "message.mark_viewed", actorID, messageID, true)
}

func (s *MessageService) markDirect(ctx context.Context, op, actorID, messageID string, viewed bool) (*model.Message, error) {
	msg, err := s.store.Messages.FindByID(ctx, messageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound(op, "message", messageID)
	}
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if !msg.IsDirect() || *msg.ReceiverID != actorID {
		return nil, errs.PermissionDenied(op, "message", messageID)
	}
	if viewed && !msg.IsViewOnce {
		return nil, errs.InvalidTarget(op, "message", messageID, "message is not view-once")
	}

	unlock := s.locks.Lock(msg.ConversationID)
	defer unlock()

	typ := event.TypeMessageRead
	switch {
	case viewed && msg.IsViewed, !viewed && msg.IsRead:
		return msg.Redacted(), nil
	case viewed:
		err = s.store.Messages.MarkViewed(ctx, messageID)
		msg.IsViewed, msg.IsRead = true, true
		typ = event.TypeMessageViewed
	default:
		err = s.store.Messages.MarkRead(ctx, messageID)
		msg.IsRead = true
	}
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}

	s.publish(ctx, realtime.EventUpdate, msg.ConversationID, msg)
	s.events.Publish(ctx, event.DomainEvent{
		Type:         typ,
		Category:     event.CategoryMessage,
		Conversation: msg.ConversationID,
		ActorID:      actorID,
		MessageID:    messageID,
		At:           time.Now(),
	})
	return msg.Redacted(), nil
}

// ListDirectThreads is the direct-message inbox: one entry per peer with the
// latest live message, the peer's profile and the unread count, most recent
// first.
func (s *MessageService) ListDirectThreads(ctx context.Context, userID string) ([]*model.DirectThread, error) {
	const op = "message.list_direct_threads"

	latest, err := s.store.Messages.LatestDirectByUser(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	if len(latest) == 0 {
		return []*model.DirectThread{}, nil
	}

	threads := make([]*model.DirectThread, 0, len(latest))
	peers := make([]string, 0, len(latest))
	for _, m := range latest {
		peer := m.SenderID
		if peer == userID {
			peer = *m.ReceiverID
		}
		peers = append(peers, peer)
		threads = append(threads, &model.DirectThread{
			Conversation: m.ConversationID,
			PeerID:       peer,
			LastMessage:  m.Redacted(),
		})
	}

	profiles, err := s.store.Profiles.FindByIDs(ctx, peers)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	unread, err := s.store.Messages.CountUnreadDirectByConversation(ctx, userID)
	if err != nil {
		return nil, errs.Unavailable(op, err)
	}
	for _, th := range threads {
		th.Peer = profiles[th.PeerID]
		th.Unread = unread[th.Conversation]
	}
	sort.SliceStable(threads, func(i, j int) bool {
		return threads[i].LastMessage.CreatedAt.After(threads[j].LastMessage.CreatedAt)
	})
	return threads, nil
}

// UnreadCount counts live direct messages the user has not read.
func (s *MessageService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	count, err := s.store.Messages.CountUnreadDirect(ctx, userID)
	if err != nil {
		return 0, errs.Unavailable("message.unread_count", err)
	}
	return count, nil
}

// PostSystem runs mutate and stores the system message it describes in one
// transaction. System messages are authored by the actor who caused them and
// are not subject to the send permission.
func (s *MessageService) PostSystem(ctx context.Context, groupID, actorID string, mutate SystemMutation) (*model.Message, error) {
	const op = "message.post_system"

	return s.commit(ctx, op, model.GroupConversation(groupID), func(tx *repository.Store) (*model.Message, []string, error) {
		note, err := mutate(tx)
		if err != nil || note == nil {
			return nil, nil, err
		}
		gid := groupID
		return &model.Message{
			SenderID: actorID,
			GroupID:  &gid,
			Kind:     model.MessageKindSystem,
			Event:    note.Event,
			Content:  note.Content,
		}, note.Revoke, nil
	})
}

// RevokeAccess ends live group subscriptions of userIDs, or of every reader
// when none are given. Callers revoke after the change that removed access has
// committed.
func (s *MessageService) RevokeAccess(ctx context.Context, groupID string, userIDs ...string) {
	key := model.GroupConversation(groupID).Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	if len(userIDs) == 0 {
		s.revoke(ctx, key, "")
		return
	}
	for _, id := range userIDs {
		s.revoke(ctx, key, id)
	}
}

// commit runs build in a transaction under the conversation lock. When build
// returns a message, it receives the next seq and an ID, is inserted in the
// same transaction and, after commit, is published as an insert event. The
// users build revokes are published first, so none of them receives the
// message.
func (s *MessageService) commit(ctx context.Context, op string, conv model.Conversation, build func(tx *repository.Store) (*model.Message, []string, error)) (*model.Message, error) {
	key := conv.Key()
	unlock := s.locks.Lock(key)
	defer unlock()

	var (
		saved   *model.Message
		revoked []string
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		msg, revoke, err := build(tx)
		if err != nil {
			return err
		}
		revoked = revoke
		if msg == nil {
			return nil
		}

		// 序号在事务内分配：计数器丢失时从本事务可见的最大 seq 继续
		seq, err := s.seq.NextSeq(ctx, key, func(ctx context.Context) (int64, error) {
			return tx.Messages.MaxSeq(ctx, key)
		})
		if err != nil {
			return errs.Unavailable(op, err)
		}
		id, err := s.ids.NextString()
		if err != nil {
			return errs.Unavailable(op, err)
		}

		msg.ID = id
		msg.ConversationID = key
		msg.SeqID = seq
		msg.CreatedAt = time.Now()
		if err := tx.Messages.Create(ctx, msg); err != nil {
			return errs.Unavailable(op, err)
		}
		saved = msg
		return nil
	})
	if err != nil {
		return nil, errs.Wrap(op, err)
	}

	for _, id := range revoked {
		s.revoke(ctx, key, id)
	}
	if saved != nil {
		s.publish(ctx, realtime.EventInsert, key, saved)
	}
	return saved, nil
}

// publish never fails the caller: the change is already durable and clients
// backfill from List.
func (s *MessageService) publish(ctx context.Context, typ realtime.EventType, conversation string, msg *model.Message) {
	ev := realtime.Event{
		Type:         typ,
		Conversation: conversation,
		Message:      msg.Redacted(),
		At:           time.Now(),
	}
	if err := s.bus.Publish(context.WithoutCancel(ctx), conversation, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish realtime event",
			zap.String("conversation", conversation),
			zap.String("message_id", msg.ID),
			zap.String("type", string(typ)),
			zap.Error(err),
		)
	}
}

func (s *MessageService) revoke(ctx context.Context, conversation, userID string) {
	ev := realtime.Event{
		Type:         realtime.EventRevoke,
		Conversation: conversation,
		UserID:       userID,
		At:           time.Now(),
	}
	if err := s.bus.Publish(context.WithoutCancel(ctx), conversation, ev); err != nil {
		s.logger.WarnContext(ctx, "failed to publish revocation",
			zap.String("conversation", conversation),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
