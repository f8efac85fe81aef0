package mq

import (
	"context"
	"time"
)

// Message transport-neutral record; Key keeps records of one session ordered
type Message struct {
	Topic   string
	Key     []byte
	Value   []byte
	Headers map[string]string
}

type PublishResult struct {
	Partition int32
	Offset    int64
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) (PublishResult, error)
	Close() error
}

// Handler returning an error asks the consumer to redeliver the message.
type Handler interface {
	Handle(ctx context.Context, msg Message) error
}

type HandlerFunc func(ctx context.Context, msg Message) error

func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

type Consumer interface {
	Run(ctx context.Context, handler Handler) error
	Close() error
}

// RetryDelay exponential backoff starting at base, doubling per attempt, capped at max.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt && d < max; i++ {
		d = d * 2
	}
	if d > max {
		d = max
	}
	return d
}

// handleWithRetry delivers msg up to maxAttempts times with backoff between tries.
// The last error is returned when every attempt failed.
func handleWithRetry(ctx context.Context, h Handler, msg Message, maxAttempts int, base, max time.Duration) error {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err = h.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == maxAttempts-1 {
			break
		}
		t := time.NewTimer(RetryDelay(attempt, base, max))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

// HandleWithRetry exported for transport implementations in sub-packages
func HandleWithRetry(ctx context.Context, h Handler, msg Message, maxAttempts int, base, max time.Duration) error {
	return handleWithRetry(ctx, h, msg, maxAttempts, base, max)
}
