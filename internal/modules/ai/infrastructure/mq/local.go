package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

// ErrBrokerClosed publish after Close
var ErrBrokerClosed = errors.New("local broker closed")

// LocalBroker in-process Publisher and Consumer used when no Kafka brokers are
// configured. Delivery is at-most-once: buffered messages are lost on exit.
type LocalBroker struct {
	ch          chan Message
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewLocalBroker(buffer, maxAttempts int) *LocalBroker {
	if buffer <= 0 {
		buffer = 1024
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &LocalBroker{
		ch:          make(chan Message, buffer),
		maxAttempts: maxAttempts,
		baseDelay:   500 * time.Millisecond,
		maxDelay:    30 * time.Second,
	}
}

// WithBackoff overrides retry delays (tests use milliseconds)
func (b *LocalBroker) WithBackoff(base, max time.Duration) *LocalBroker {
	b.baseDelay = base
	b.maxDelay = max
	return b
}

func (b *LocalBroker) Publish(ctx context.Context, msg Message) (PublishResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return PublishResult{}, ErrBrokerClosed
	}
	select {
	case b.ch <- msg:
		return PublishResult{Partition: 0, Offset: -1}, nil
	case <-ctx.Done():
		return PublishResult{}, ctx.Err()
	}
}

// Run delivers messages until ctx is done or the broker is closed.
func (b *LocalBroker) Run(ctx context.Context, handler Handler) error {
	if handler == nil {
		return errors.New("handler is nil")
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-b.ch:
			if !ok {
				return nil
			}
			if err := handleWithRetry(ctx, handler, msg, b.maxAttempts, b.baseDelay, b.maxDelay); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				zlog.Warn("local broker dropped message after retries",
					zap.String("topic", msg.Topic),
					zap.Int("attempts", b.maxAttempts),
					zap.Error(err))
			}
		}
	}
}

func (b *LocalBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
	return nil
}

var (
	_ Publisher = (*LocalBroker)(nil)
	_ Consumer  = (*LocalBroker)(nil)
)
