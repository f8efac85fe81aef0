package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"

	"gorm.io/gorm"
)

type sessionRepositoryImpl struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) repository.SessionRepository {
	return &sessionRepositoryImpl{db: db}
}

func (r *sessionRepositoryImpl) CreateSession(ctx context.Context, session *conversation.Session) error {
	now := time.Now()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}
	return r.db.WithContext(ctx).Create(session).Error
}

func (r *sessionRepositoryImpl) GetSession(ctx context.Context, sessionID string) (*conversation.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, nil
	}

	var session conversation.Session
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Take(&session).Error
	if err == nil {
		return &session, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

func (r *sessionRepositoryImpl) ListSessionsByUser(ctx context.Context, userID string) ([]*conversation.Session, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []*conversation.Session{}, nil
	}

	var sessions []*conversation.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *sessionRepositoryImpl) CloseSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return r.db.WithContext(ctx).Model(&conversation.Session{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":     conversation.SessionStatusClosed,
			"updated_at": time.Now(),
		}).Error
}

func (r *sessionRepositoryImpl) TouchSession(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil
	}
	return r.db.WithContext(ctx).Model(&conversation.Session{}).
		Where("session_id = ?", sessionID).
		Update("updated_at", time.Now()).Error
}

func (r *sessionRepositoryImpl) DeleteSessionsByUser(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&conversation.Session{})
	return res.RowsAffected, res.Error
}

type messageRepositoryImpl struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) repository.MessageRepository {
	return &messageRepositoryImpl{db: db}
}

func (r *messageRepositoryImpl) AppendMessage(ctx context.Context, message *conversation.Message) error {
	if message == nil {
		return errors.New("nil message")
	}
	if strings.TrimSpace(message.SessionId) == "" {
		return errors.New("message missing session_id")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now()
	}
	if message.Category == "" {
		message.Category = conversation.DefaultCategory
	}
	if message.MetadataJson == "" {
		message.MetadataJson = "{}"
	}
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *messageRepositoryImpl) ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*conversation.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []*conversation.Message{}, nil
	}
	if limit <= 0 {
		limit = 200
	}

	var messages []*conversation.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *messageRepositoryImpl) ListSessionMessages(ctx context.Context, sessionID string, limit, offset int) ([]*conversation.Message, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []*conversation.Message{}, nil
	}
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	var messages []*conversation.Message
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepositoryImpl) GetMessagesByIDs(ctx context.Context, ids []int64) ([]*conversation.Message, error) {
	if len(ids) == 0 {
		return []*conversation.Message{}, nil
	}
	var messages []*conversation.Message
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&messages).Error
	return messages, err
}

func (r *messageRepositoryImpl) ListMessageIDsBySession(ctx context.Context, sessionID string) ([]int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return []int64{}, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&conversation.Message{}).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepositoryImpl) ListMessageIDsByUser(ctx context.Context, userID string) ([]int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return []int64{}, nil
	}
	var ids []int64
	err := r.db.WithContext(ctx).Model(&conversation.Message{}).
		Where("user_id = ?", userID).
		Order("id ASC").
		Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepositoryImpl) ListExpiredMessageIDs(ctx context.Context, filter repository.ExpiryFilter, limit int) ([]int64, error) {
	if filter.Before.IsZero() {
		return []int64{}, nil
	}
	if limit <= 0 {
		limit = 500
	}

	q := r.db.WithContext(ctx).Model(&conversation.Message{}).
		Where("created_at < ?", filter.Before)
	if len(filter.Categories) > 0 {
		q = q.Where("category IN ?", filter.Categories)
	}
	if len(filter.ExcludeCategories) > 0 {
		q = q.Where("category NOT IN ?", filter.ExcludeCategories)
	}

	var ids []int64
	err := q.Order("id ASC").Limit(limit).Pluck("id", &ids).Error
	return ids, err
}

func (r *messageRepositoryImpl) MergeMetadata(ctx context.Context, id int64, meta map[string]any) error {
	if id <= 0 || len(meta) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg conversation.Message
		if err := tx.Select("id", "metadata_json").Where("id = ?", id).Take(&msg).Error; err != nil {
			return err
		}
		merged := msg.Metadata()
		for k, v := range meta {
			merged[k] = v
		}
		msg.SetMetadata(merged)
		return tx.Model(&conversation.Message{}).
			Where("id = ?", id).
			Update("metadata_json", msg.MetadataJson).Error
	})
}

func (r *messageRepositoryImpl) SetEmbeddingRef(ctx context.Context, id int64, ref string) error {
	if id <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&conversation.Message{}).
		Where("id = ?", id).
		Update("embedding_ref", ref).Error
}

func (r *messageRepositoryImpl) SetCategory(ctx context.Context, id int64, category string) error {
	category = strings.TrimSpace(category)
	if id <= 0 || category == "" {
		return nil
	}
	return r.db.WithContext(ctx).Model(&conversation.Message{}).
		Where("id = ?", id).
		Update("category", category).Error
}

func (r *messageRepositoryImpl) DeleteByIDs(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Delete(&conversation.Message{})
	return res.RowsAffected, res.Error
}

func (r *messageRepositoryImpl) DeleteBySession(ctx context.Context, sessionID string) (int64, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Delete(&conversation.Message{})
	return res.RowsAffected, res.Error
}

func (r *messageRepositoryImpl) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&conversation.Message{})
	return res.RowsAffected, res.Error
}
