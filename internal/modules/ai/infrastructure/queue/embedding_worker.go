package queue

import (
	"context"
	"errors"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/embedding"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/internal/modules/ai/infrastructure/mq"
	"SecAssist/internal/modules/ai/infrastructure/vectordb"
	"SecAssist/pkg/zlog"

	einoEmbed "github.com/cloudwego/eino/components/embedding"
	"go.uber.org/zap"
)

// EmbeddingWorker consumes embedding jobs and keeps the message index in sync
// with the store. The store stays the source of truth: a message deleted
// before its job runs is simply skipped.
type EmbeddingWorker struct {
	consumer mq.Consumer
	messages repository.MessageRepository
	index    repository.MessageIndex
	embedder einoEmbed.Embedder
	timeout  time.Duration
	metrics  *metrics.Metrics
}

func NewEmbeddingWorker(consumer mq.Consumer, messages repository.MessageRepository, index repository.MessageIndex, embedder einoEmbed.Embedder, embedTimeout time.Duration, m *metrics.Metrics) *EmbeddingWorker {
	return &EmbeddingWorker{
		consumer: consumer,
		messages: messages,
		index:    index,
		embedder: embedder,
		timeout:  embedTimeout,
		metrics:  m,
	}
}

func (w *EmbeddingWorker) Run(ctx context.Context) error {
	if w == nil || w.consumer == nil {
		return errors.New("consumer is nil")
	}
	if w.messages == nil || w.index == nil || w.embedder == nil {
		return errors.New("embedding worker not configured")
	}
	return w.consumer.Run(ctx, w)
}

// Handle returns an error only for transient failures so the consumer retries.
func (w *EmbeddingWorker) Handle(ctx context.Context, msg mq.Message) error {
	job, err := ParseEmbeddingJob(msg.Value)
	if err != nil {
		zlog.Warn("embedding worker invalid job", zap.String("topic", msg.Topic), zap.Error(err))
		w.metrics.EmbeddingJob("invalid")
		return nil
	}

	found, err := w.messages.GetMessagesByIDs(ctx, []int64{job.MessageID})
	if err != nil {
		zlog.Warn("embedding worker load message failed", zap.Int64("message_id", job.MessageID), zap.Error(err))
		return err
	}
	if len(found) == 0 {
		w.metrics.EmbeddingJob("skipped")
		return nil
	}
	m := found[0]
	if m.EmbeddingRef != nil && !job.Force {
		w.metrics.EmbeddingJob("skipped")
		return nil
	}

	if err := w.IndexMessage(ctx, m); err != nil {
		w.metrics.EmbeddingJob("failed")
		zlog.Warn("embedding worker index failed",
			zap.Int64("message_id", m.Id),
			zap.String("session_id", m.SessionId),
			zap.String("error", scrubErrMsg(err.Error())))
		return err
	}
	w.metrics.EmbeddingJob("indexed")
	return nil
}

// IndexMessage embeds the stored (redacted) content and records the index ref.
func (w *EmbeddingWorker) IndexMessage(ctx context.Context, m *conversation.Message) error {
	if m == nil || m.Id <= 0 {
		return errors.New("message not persisted")
	}
	if strings.TrimSpace(m.Content) == "" {
		return nil
	}

	ectx := ctx
	if w.timeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}
	vec, err := embedding.EmbedText(ectx, w.embedder, m.Content)
	if err != nil {
		return err
	}

	err = w.index.Upsert(ctx, []repository.IndexItem{{
		MessageID: m.Id,
		Vector:    vec,
		SessionID: m.SessionId,
		UserID:    m.UserId,
		Role:      m.Role,
		Category:  m.Category,
		CreatedAt: m.CreatedAt,
	}})
	if err != nil {
		return err
	}
	return w.messages.SetEmbeddingRef(ctx, m.Id, vectordb.RefForMessage(m.Id))
}

func scrubErrMsg(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	low := strings.ToLower(s)
	if strings.Contains(low, "api_key") || strings.Contains(low, "apikey") || strings.Contains(low, "secret") || strings.Contains(s, "sk-") {
		return "redacted"
	}
	if len(s) > 255 {
		return s[:255]
	}
	return s
}
