package repository

import (
	"context"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
)

// SessionRepository session persistence
type SessionRepository interface {
	CreateSession(ctx context.Context, session *conversation.Session) error
	// GetSession returns nil, nil when the session does not exist
	GetSession(ctx context.Context, sessionID string) (*conversation.Session, error)
	ListSessionsByUser(ctx context.Context, userID string) ([]*conversation.Session, error)
	CloseSession(ctx context.Context, sessionID string) error
	TouchSession(ctx context.Context, sessionID string) error
	DeleteSessionsByUser(ctx context.Context, userID string) (int64, error)
}

// ExpiryFilter selects messages for a retention rule.
// Categories restricts to those categories; ExcludeCategories is used by the default rule.
type ExpiryFilter struct {
	Categories        []string
	ExcludeCategories []string
	Before            time.Time
}

// MessageRepository durable, append-only message log keyed by session.
// Listing is always chronological (created_at, id ascending).
type MessageRepository interface {
	AppendMessage(ctx context.Context, message *conversation.Message) error
	// ListRecentMessages latest limit messages of the session, oldest first
	ListRecentMessages(ctx context.Context, sessionID string, limit int) ([]*conversation.Message, error)
	ListSessionMessages(ctx context.Context, sessionID string, limit, offset int) ([]*conversation.Message, error)
	GetMessagesByIDs(ctx context.Context, ids []int64) ([]*conversation.Message, error)
	ListMessageIDsBySession(ctx context.Context, sessionID string) ([]int64, error)
	ListMessageIDsByUser(ctx context.Context, userID string) ([]int64, error)
	ListExpiredMessageIDs(ctx context.Context, filter ExpiryFilter, limit int) ([]int64, error)

	// MergeMetadata adds keys to the message metadata, existing keys are overwritten
	MergeMetadata(ctx context.Context, id int64, meta map[string]any) error
	SetEmbeddingRef(ctx context.Context, id int64, ref string) error
	// SetCategory re-files a message under the retention category of its classified intent
	SetCategory(ctx context.Context, id int64, category string) error

	DeleteByIDs(ctx context.Context, ids []int64) (int64, error)
	DeleteBySession(ctx context.Context, sessionID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
