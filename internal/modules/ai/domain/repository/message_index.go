package repository

import (
	"context"
	"time"
)

// MessageIndex is the nearest-neighbour index over message embeddings.
//
// It is a derived index: entries reference messages by id only and never hold
// message objects, so a lost index is rebuilt by re-embedding from the store.
// Hits may point at messages that no longer exist; callers resolve and filter them.
type MessageIndex interface {
	Upsert(ctx context.Context, items []IndexItem) error
	Search(ctx context.Context, vector []float32, filter IndexFilter, limit int, minScore float32) ([]IndexHit, error)
	DeleteByIDs(ctx context.Context, ids []int64) error
}

// IndexItem vector plus the payload used for filtering
type IndexItem struct {
	MessageID int64
	Vector    []float32
	SessionID string
	UserID    string
	Role      string
	Category  string
	CreatedAt time.Time
}

// IndexFilter optional search filters; zero values mean "any"
type IndexFilter struct {
	SessionID string
	UserID    string
	DateFrom  *time.Time
	DateTo    *time.Time
}

type IndexHit struct {
	MessageID int64
	Score     float32
}
