package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"SecAssist/internal/config"
	"SecAssist/internal/modules/ai/infrastructure/mq"
	"SecAssist/pkg/zlog"

	"github.com/IBM/sarama"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Topics      []string
	ClientID    string
	MaxAttempts int
}

type saramaConsumer struct {
	cg          sarama.ConsumerGroup
	topics      []string
	maxAttempts int
}

func NewConsumerFromConfig(kc config.KafkaConfig) (mq.Consumer, error) {
	return NewConsumer(ConsumerConfig{
		Brokers:     kc.Brokers,
		GroupID:     kc.ConsumerGroupID,
		Topics:      []string{kc.EmbeddingTopic},
		ClientID:    kc.ClientID,
		MaxAttempts: kc.MaxAttempts,
	})
}

func NewConsumer(cfg ConsumerConfig) (mq.Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers is empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("kafka consumer group id is empty")
	}
	if len(cfg.Topics) == 0 {
		return nil, errors.New("kafka topics is empty")
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Rebalance.Timeout = 30 * time.Second
	sc.Consumer.Group.Session.Timeout = 30 * time.Second
	sc.ClientID = strings.TrimSpace(cfg.ClientID)

	cg, err := sarama.NewConsumerGroup(cfg.Brokers, strings.TrimSpace(cfg.GroupID), sc)
	if err != nil {
		return nil, err
	}
	return &saramaConsumer{cg: cg, topics: cfg.Topics, maxAttempts: cfg.MaxAttempts}, nil
}

func (c *saramaConsumer) Run(ctx context.Context, handler mq.Handler) error {
	if handler == nil {
		return errors.New("handler is nil")
	}
	h := &consumerGroupHandler{h: handler, maxAttempts: c.maxAttempts}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := c.cg.Consume(ctx, c.topics, h); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			return err
		}
	}
}

func (c *saramaConsumer) Close() error {
	if c == nil {
		return nil
	}
	return c.cg.Close()
}

type consumerGroupHandler struct {
	h           mq.Handler
	maxAttempts int
}

func (consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim retries a failing record in place, then marks it anyway so one
// poisoned job cannot stall the partition. The message store stays the source
// of truth, a skipped job is recovered by a session reindex.
func (h *consumerGroupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for m := range claim.Messages() {
		msg := fromConsumerMessage(m)
		err := mq.HandleWithRetry(sess.Context(), h.h, msg, h.maxAttempts, 500*time.Millisecond, 30*time.Second)
		if err != nil {
			if sess.Context().Err() != nil {
				return nil
			}
			zlog.Error("kafka message dropped after retries",
				zap.String("topic", m.Topic),
				zap.Int32("partition", m.Partition),
				zap.Int64("offset", m.Offset),
				zap.Error(err))
		}
		sess.MarkMessage(m, "")
	}
	return nil
}

func fromConsumerMessage(m *sarama.ConsumerMessage) mq.Message {
	msg := mq.Message{
		Topic: m.Topic,
		Key:   m.Key,
		Value: m.Value,
	}
	if len(m.Headers) > 0 {
		msg.Headers = make(map[string]string, len(m.Headers))
		for _, hdr := range m.Headers {
			if hdr == nil || len(hdr.Key) == 0 {
				continue
			}
			msg.Headers[string(hdr.Key)] = string(hdr.Value)
		}
	}
	return msg
}
