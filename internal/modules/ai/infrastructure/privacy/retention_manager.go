package privacy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

// ErasureStats counts removed by one DeleteUser call
type ErasureStats struct {
	Sessions     int64 `json:"sessions"`
	Messages     int64 `json:"messages"`
	IndexEntries int64 `json:"index_entries"`
}

// RetentionManager deletes expired or erased messages from the store and the index.
// Index entries are always removed before their store rows, so the index never
// keeps a vector whose message is gone for longer than one failed batch.
type RetentionManager struct {
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	index     repository.MessageIndex
	policy    *conversation.RetentionPolicy
	batchSize int
	metrics   *metrics.Metrics
}

func NewRetentionManager(
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	index repository.MessageIndex,
	policy *conversation.RetentionPolicy,
	batchSize int,
	m *metrics.Metrics,
) *RetentionManager {
	if batchSize <= 0 {
		batchSize = 500
	}
	if policy == nil {
		policy = conversation.NewRetentionPolicy(nil, defaultMaxAge)
	}
	return &RetentionManager{
		sessions:  sessions,
		messages:  messages,
		index:     index,
		policy:    policy,
		batchSize: batchSize,
		metrics:   m,
	}
}

// ApplyRetention deletes every message older than its category's max age.
// Partial failures are logged and left for the next run; only a cancelled
// context stops the pass early with an error.
func (m *RetentionManager) ApplyRetention(ctx context.Context, now time.Time) (int, error) {
	if m.messages == nil {
		return 0, errors.New("message repository is nil")
	}
	start := time.Now()
	named := m.policy.NamedCategories()

	total := 0
	for _, rule := range m.policy.Rules() {
		filter := repository.ExpiryFilter{Before: now.Add(-rule.MaxAge)}
		if rule.Category == conversation.DefaultCategory {
			filter.ExcludeCategories = named
		} else {
			filter.Categories = []string{rule.Category}
		}

		n, err := m.applyRule(ctx, rule, filter)
		total += n
		m.metrics.RetentionDeleted(rule.Category, n)
		if err != nil {
			return total, err
		}
	}

	zlog.Info("retention pass done",
		zap.Int("deleted", total),
		zap.Time("now", now),
		zap.Int64("cost_ms", time.Since(start).Milliseconds()),
	)
	return total, nil
}

func (m *RetentionManager) applyRule(ctx context.Context, rule conversation.RetentionRule, filter repository.ExpiryFilter) (int, error) {
	deleted := 0
	// ids whose deletion failed this run; excluded so paging terminates
	skipped := make(map[int64]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}

		ids, err := m.messages.ListExpiredMessageIDs(ctx, filter, m.batchSize+len(skipped))
		if err != nil {
			zlog.Warn("retention list expired failed", zap.String("category", rule.Category), zap.Error(err))
			return deleted, nil
		}
		batch := make([]int64, 0, len(ids))
		for _, id := range ids {
			if _, ok := skipped[id]; !ok {
				batch = append(batch, id)
			}
		}
		if len(batch) == 0 {
			return deleted, nil
		}
		if len(batch) > m.batchSize {
			batch = batch[:m.batchSize]
		}

		if m.index != nil {
			if err := m.index.DeleteByIDs(ctx, batch); err != nil {
				zlog.Warn("retention index delete failed, batch kept for next run",
					zap.String("category", rule.Category),
					zap.Int("batch", len(batch)),
					zap.Error(err),
				)
				markSkipped(skipped, batch)
				continue
			}
		}

		n, err := m.messages.DeleteByIDs(ctx, batch)
		if err != nil {
			zlog.Error("retention store delete failed",
				zap.String("category", rule.Category),
				zap.Int("batch", len(batch)),
				zap.Error(err),
			)
			markSkipped(skipped, batch)
			continue
		}
		deleted += int(n)

		if len(ids) < m.batchSize+len(skipped) && len(batch) == len(ids) {
			return deleted, nil
		}
	}
}

func markSkipped(skipped map[int64]struct{}, ids []int64) {
	for _, id := range ids {
		skipped[id] = struct{}{}
	}
}

// DeleteUser erases every session, message and index entry owned by userID.
// Calling it again for the same user reports zero counts.
func (m *RetentionManager) DeleteUser(ctx context.Context, userID string) (*ErasureStats, error) {
	if userID == "" {
		return nil, errors.New("user id is empty")
	}
	if m.sessions == nil || m.messages == nil {
		return nil, errors.New("repositories not configured")
	}

	stats := &ErasureStats{}
	sessions, err := m.sessions.ListSessionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	for _, s := range sessions {
		ids, err := m.messages.ListMessageIDsBySession(ctx, s.SessionId)
		if err != nil {
			return stats, fmt.Errorf("list messages of %s: %w", s.SessionId, err)
		}
		if len(ids) > 0 && m.index != nil {
			if err := m.index.DeleteByIDs(ctx, ids); err != nil {
				return stats, fmt.Errorf("delete index entries of %s: %w", s.SessionId, err)
			}
			stats.IndexEntries += int64(len(ids))
		}
		n, err := m.messages.DeleteBySession(ctx, s.SessionId)
		if err != nil {
			return stats, fmt.Errorf("delete messages of %s: %w", s.SessionId, err)
		}
		stats.Messages += n
	}

	// messages the user wrote into sessions they do not own
	ids, err := m.messages.ListMessageIDsByUser(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("list user messages: %w", err)
	}
	if len(ids) > 0 && m.index != nil {
		if err := m.index.DeleteByIDs(ctx, ids); err != nil {
			return stats, fmt.Errorf("delete user index entries: %w", err)
		}
		stats.IndexEntries += int64(len(ids))
	}
	n, err := m.messages.DeleteByUser(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("delete user messages: %w", err)
	}
	stats.Messages += n

	n, err = m.sessions.DeleteSessionsByUser(ctx, userID)
	if err != nil {
		return stats, fmt.Errorf("delete sessions: %w", err)
	}
	stats.Sessions = n

	zlog.Info("user erasure done",
		zap.String("user_id", userID),
		zap.Int64("sessions", stats.Sessions),
		zap.Int64("messages", stats.Messages),
		zap.Int64("index_entries", stats.IndexEntries),
	)
	return stats, nil
}
