package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/embedding"
	"SecAssist/pkg/zlog"

	einoEmbed "github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

const (
	DefaultRecallLimit = 10
	MaxRecallLimit     = 50
)

// RecallFilters zero values mean "any"
type RecallFilters struct {
	SessionID string
	UserID    string
	DateFrom  *time.Time
	DateTo    *time.Time
}

type RecallHit struct {
	Message *conversation.Message
	Score   float32
}

// SemanticRecall similarity search across past messages. The index only yields
// ids; every hit is resolved against the store and stale ids are skipped.
type SemanticRecall struct {
	embedder einoEmbed.Embedder
	index    repository.MessageIndex
	messages repository.MessageRepository
	timeout  time.Duration
}

func NewSemanticRecall(embedder einoEmbed.Embedder, index repository.MessageIndex, messages repository.MessageRepository, embedTimeout time.Duration) *SemanticRecall {
	return &SemanticRecall{embedder: embedder, index: index, messages: messages, timeout: embedTimeout}
}

func (r *SemanticRecall) Search(ctx context.Context, query string, filters RecallFilters, limit int, minScore float32) ([]RecallHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, conversation.ErrEmptyQuery
	}
	if r.embedder == nil || r.index == nil {
		return nil, errors.New("semantic recall not configured")
	}
	if limit <= 0 {
		limit = DefaultRecallLimit
	}
	if limit > MaxRecallLimit {
		limit = MaxRecallLimit
	}

	embedCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	vec, err := embedding.EmbedText(embedCtx, r.embedder, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	// over-fetch: some hits may point at deleted messages
	hits, err := r.index.Search(ctx, vec, repository.IndexFilter{
		SessionID: filters.SessionID,
		UserID:    filters.UserID,
		DateFrom:  filters.DateFrom,
		DateTo:    filters.DateTo,
	}, limit*2, minScore)
	if err != nil {
		return nil, fmt.Errorf("index search: %w", err)
	}
	if len(hits) == 0 {
		return []RecallHit{}, nil
	}

	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.MessageID)
	}
	msgs, err := r.messages.GetMessagesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", conversation.ErrStoreUnavailable, err)
	}
	byID := make(map[int64]*conversation.Message, len(msgs))
	for _, m := range msgs {
		byID[m.Id] = m
	}

	out := make([]RecallHit, 0, len(hits))
	stale := 0
	for _, h := range hits {
		if h.Score < minScore {
			continue
		}
		m, ok := byID[h.MessageID]
		if !ok {
			stale++
			continue
		}
		out = append(out, RecallHit{Message: m, Score: h.Score})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return newer(out[i].Message, out[j].Message)
	})
	if len(out) > limit {
		out = out[:limit]
	}

	zlog.Info("semantic recall done",
		zap.Int("hits", len(out)),
		zap.Int("stale", stale),
		zap.String("session_id", filters.SessionID),
	)
	return out, nil
}
