package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/GroupChat/internal/model"
)

type IMessageRepository interface {
	Create(ctx context.Context, message *model.Message) error
	FindByID(ctx context.Context, id string) (*model.Message, error)
	FindByIDUnscoped(ctx context.Context, id string) (*model.Message, error)
	ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*model.Message, error)
	LatestByConversations(ctx context.Context, conversationIDs []string) (map[string]*model.Message, error)
	MaxSeq(ctx context.Context, conversationID string) (int64, error)
	SoftDelete(ctx context.Context, id string, at time.Time) (bool, error)
	MarkRead(ctx context.Context, id string) error
	MarkViewed(ctx context.Context, id string) error
	CountUnreadDirect(ctx context.Context, receiverID string) (int64, error)
	LatestDirectByUser(ctx context.Context, userID string) ([]*model.Message, error)
	CountUnreadDirectByConversation(ctx context.Context, receiverID string) (map[string]int64, error)
}

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) IMessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// FindByID skips soft-deleted rows.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// FindByIDUnscoped is the audit path: deleted rows are returned with their
// original content.
func (r *MessageRepository) FindByIDUnscoped(ctx context.Context, id string) (*model.Message, error) {
	var message model.Message
	if err := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).First(&message).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// ListBefore returns up to limit non-deleted messages with seq_id < beforeSeq,
// newest first. beforeSeq <= 0 starts from the latest message.
func (r *MessageRepository) ListBefore(ctx context.Context, conversationID string, beforeSeq int64, limit int) ([]*model.Message, error) {
	var messages []*model.Message

	query := r.db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if beforeSeq > 0 {
		query = query.Where("seq_id < ?", beforeSeq)
	}
	err := query.Order("seq_id DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// LatestByConversations returns the newest non-deleted message of each
// conversation that has one.
func (r *MessageRepository) LatestByConversations(ctx context.Context, conversationIDs []string) (map[string]*model.Message, error) {
	latest := make(map[string]*model.Message, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return latest, nil
	}

	sub := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("conversation_id, MAX(seq_id) AS max_seq").
		Where("conversation_id IN ?", conversationIDs).
		Group("conversation_id")

	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) AS latest ON latest.conversation_id = messages.conversation_id AND latest.max_seq = messages.seq_id", sub).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	for _, m := range messages {
		latest[m.ConversationID] = m
	}
	return latest, nil
}

// MaxSeq includes soft-deleted rows: sequence numbers are never reused.
func (r *MessageRepository) MaxSeq(ctx context.Context, conversationID string) (int64, error) {
	var seq int64
	err := r.db.WithContext(ctx).
		Unscoped().
		Model(&model.Message{}).
		Select("COALESCE(MAX(seq_id), 0)").
		Where("conversation_id = ?", conversationID).
		Scan(&seq).Error
	return seq, err
}

// SoftDelete stamps deleted_at once. It reports false when the row is missing
// or was already deleted.
func (r *MessageRepository) SoftDelete(ctx context.Context, id string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Unscoped().
		Model(&model.Message{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at)
	return res.RowsAffected > 0, res.Error
}

func (r *MessageRepository) MarkRead(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Update("is_read", true).Error
}

func (r *MessageRepository) MarkViewed(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.Message{}).Where("id = ?", id).Updates(map[string]any{
		"is_viewed": true,
		"is_read":   true,
	}).Error
}

func (r *MessageRepository) CountUnreadDirect(ctx context.Context, receiverID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Count(&count).Error
	return count, err
}

// LatestDirectByUser returns the newest non-deleted message of every direct
// conversation the user takes part in, newest first.
func (r *MessageRepository) LatestDirectByUser(ctx context.Context, userID string) ([]*model.Message, error) {
	sub := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("conversation_id, MAX(seq_id) AS max_seq").
		Where("receiver_id IS NOT NULL AND (sender_id = ? OR receiver_id = ?)", userID, userID).
		Group("conversation_id")

	var messages []*model.Message
	err := r.db.WithContext(ctx).
		Joins("JOIN (?) AS latest ON latest.conversation_id = messages.conversation_id AND latest.max_seq = messages.seq_id", sub).
		Order("messages.created_at DESC").Order("messages.id DESC").
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CountUnreadDirectByConversation splits CountUnreadDirect per thread.
func (r *MessageRepository) CountUnreadDirectByConversation(ctx context.Context, receiverID string) (map[string]int64, error) {
	var rows []struct {
		ConversationID string
		Total          int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.Message{}).
		Select("conversation_id, COUNT(*) AS total").
		Where("receiver_id = ? AND is_read = ?", receiverID, false).
		Group("conversation_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.ConversationID] = row.Total
	}
	return counts, nil
}
