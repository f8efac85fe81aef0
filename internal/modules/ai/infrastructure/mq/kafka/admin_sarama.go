package kafka

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"SecAssist/internal/config"

	"github.com/IBM/sarama"
)

type TopicAdminConfig struct {
	Brokers   []string
	ClientID  string
	Retention time.Duration
}

// TopicSpec topic to create when missing
type TopicSpec struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
}

// EmbeddingTopicFromConfig the embedding job topic plus its admin settings.
func EmbeddingTopicFromConfig(kc config.KafkaConfig) (TopicAdminConfig, TopicSpec) {
	return TopicAdminConfig{
			Brokers:   kc.Brokers,
			ClientID:  kc.ClientID,
			Retention: time.Duration(kc.RetentionHours) * time.Hour,
		}, TopicSpec{
			Name:              kc.EmbeddingTopic,
			Partitions:        kc.Partitions,
			ReplicationFactor: kc.Replication,
		}
}

// EnsureTopic creates the topic if the cluster does not have it yet.
// Embedding jobs are derived data, a short retention is enough.
func EnsureTopic(cfg TopicAdminConfig, spec TopicSpec) error {
	if len(cfg.Brokers) == 0 {
		return errors.New("kafka brokers is empty")
	}
	topic := strings.TrimSpace(spec.Name)
	if topic == "" {
		return errors.New("kafka topic is empty")
	}
	partitions := spec.Partitions
	if partitions <= 0 {
		partitions = 1
	}
	replication := spec.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 24 * time.Hour
	}

	sc := sarama.NewConfig()
	sc.Version = sarama.V2_8_0_0
	sc.ClientID = strings.TrimSpace(cfg.ClientID)

	admin, err := sarama.NewClusterAdmin(cfg.Brokers, sc)
	if err != nil {
		return err
	}
	defer admin.Close()

	topics, err := admin.ListTopics()
	if err != nil {
		return err
	}
	if _, ok := topics[topic]; ok {
		return nil
	}

	td := &sarama.TopicDetail{
		NumPartitions:     partitions,
		ReplicationFactor: replication,
		ConfigEntries: map[string]*string{
			"retention.ms": strPtr(strconv.FormatInt(retention.Milliseconds(), 10)),
		},
	}
	if err := admin.CreateTopic(topic, td, false); err != nil {
		if errors.Is(err, sarama.ErrTopicAlreadyExists) {
			return nil
		}
		return err
	}
	return nil
}

func strPtr(v string) *string {
	s := v
	return &s
}
