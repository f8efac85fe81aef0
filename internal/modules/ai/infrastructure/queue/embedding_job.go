package queue

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/infrastructure/mq"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

const headerJobType = "job-type"

// EmbeddingJob asks the indexer to embed one persisted message.
// Force re-embeds even when the message already has an embedding ref.
type EmbeddingJob struct {
	MessageID  int64     `json:"message_id"`
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	Force      bool      `json:"force,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

func (j EmbeddingJob) Validate() error {
	if j.MessageID <= 0 {
		return errors.New("embedding job without message id")
	}
	return nil
}

// ParseEmbeddingJob accepts the JSON payload or a bare message id.
func ParseEmbeddingJob(value []byte) (EmbeddingJob, error) {
	var job EmbeddingJob
	raw := strings.TrimSpace(string(value))
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return EmbeddingJob{}, err
		}
	} else if err := json.Unmarshal([]byte(raw), &job.MessageID); err != nil {
		return EmbeddingJob{}, err
	}
	return job, job.Validate()
}

// Enqueuer hands embedding work to the background indexer. Implementations
// must not block the request path on the index.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobs ...EmbeddingJob) error
}

type mqEnqueuer struct {
	pub   mq.Publisher
	topic string
}

func NewEnqueuer(pub mq.Publisher, topic string) Enqueuer {
	return &mqEnqueuer{pub: pub, topic: strings.TrimSpace(topic)}
}

// Enqueue publishes every job keyed by session so a session's jobs keep their order.
// The first publish error is returned after all jobs were attempted.
func (e *mqEnqueuer) Enqueue(ctx context.Context, jobs ...EmbeddingJob) error {
	if e == nil || e.pub == nil {
		return errors.New("publisher is nil")
	}
	var first error
	for _, job := range jobs {
		if err := job.Validate(); err != nil {
			continue
		}
		if job.EnqueuedAt.IsZero() {
			job.EnqueuedAt = time.Now()
		}
		b, err := json.Marshal(job)
		if err != nil {
			return err
		}
		_, err = e.pub.Publish(ctx, mq.Message{
			Topic:   e.topic,
			Key:     []byte(job.SessionID),
			Value:   b,
			Headers: map[string]string{headerJobType: "embed"},
		})
		if err != nil {
			zlog.Warn("enqueue embedding job failed",
				zap.Int64("message_id", job.MessageID),
				zap.String("session_id", job.SessionID),
				zap.Error(err))
			if first == nil {
				first = err
			}
		}
	}
	return first
}
