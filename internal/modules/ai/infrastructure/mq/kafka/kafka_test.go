package kafka

import (
	"testing"
	"time"

	"SecAssist/internal/config"
	"SecAssist/internal/modules/ai/infrastructure/mq"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProducerMessageRoundTripHeaders(t *testing.T) {
	pm, err := toProducerMessage(mq.Message{
		Topic:   "secassist.embedding",
		Key:     []byte("S1"),
		Value:   []byte(`{"message_id":1}`),
		Headers: map[string]string{"job-type": "embed", " ": "dropped"},
	})
	require.NoError(t, err)
	require.Len(t, pm.Headers, 1)

	cm := &sarama.ConsumerMessage{
		Topic: pm.Topic,
		Key:   []byte("S1"),
		Value: []byte(`{"message_id":1}`),
		Headers: []*sarama.RecordHeader{
			{Key: pm.Headers[0].Key, Value: pm.Headers[0].Value},
			nil,
		},
	}
	msg := fromConsumerMessage(cm)
	assert.Equal(t, "embed", msg.Headers["job-type"])
	assert.Equal(t, "S1", string(msg.Key))

	_, err = toProducerMessage(mq.Message{Topic: " "})
	assert.Error(t, err)
}

func TestEmbeddingTopicFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	admin, spec := EmbeddingTopicFromConfig(cfg.KafkaConfig)
	assert.Equal(t, "secassist.embedding", spec.Name)
	assert.Equal(t, 24*time.Hour, admin.Retention)

	assert.Error(t, EnsureTopic(admin, spec), "no brokers configured")
}

func TestNewConsumerValidation(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{Brokers: []string{"localhost:9092"}, Topics: []string{"t"}})
	assert.Error(t, err)
	_, err = NewSaramaPublisher(PublisherConfig{})
	assert.Error(t, err)
}
