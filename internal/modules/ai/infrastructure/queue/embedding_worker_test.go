package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/embedding"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/internal/modules/ai/infrastructure/mq"
	"SecAssist/internal/modules/ai/infrastructure/persistence"
	"SecAssist/internal/modules/ai/infrastructure/persistence/testdb"
	"SecAssist/internal/modules/ai/infrastructure/vectordb"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyIndex struct {
	*vectordb.MemoryMessageIndex
	failures int
}

func (f *flakyIndex) Upsert(ctx context.Context, items []repository.IndexItem) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("milvus unavailable")
	}
	return f.MemoryMessageIndex.Upsert(ctx, items)
}

func jobMessage(t *testing.T, job EmbeddingJob) mq.Message {
	b, err := json.Marshal(job)
	require.NoError(t, err)
	return mq.Message{Topic: "secassist.embedding", Key: []byte(job.SessionID), Value: b}
}

func TestParseEmbeddingJob(t *testing.T) {
	job, err := ParseEmbeddingJob([]byte(`{"message_id":7,"session_id":"S1"}`))
	require.NoError(t, err)
	assert.EqualValues(t, 7, job.MessageID)

	job, err = ParseEmbeddingJob([]byte(" 12 "))
	require.NoError(t, err)
	assert.EqualValues(t, 12, job.MessageID)

	_, err = ParseEmbeddingJob([]byte(`{"session_id":"S1"}`))
	assert.Error(t, err)
	_, err = ParseEmbeddingJob([]byte("abc"))
	assert.Error(t, err)
}

func TestEmbeddingWorker_IndexesAndSkips(t *testing.T) {
	db := testdb.Open(t)
	msgs := persistence.NewMessageRepository(db)
	index := vectordb.NewMemoryMessageIndex()
	m := metrics.New(prometheus.NewRegistry())
	w := NewEmbeddingWorker(nil, msgs, index, embedding.NewMockEmbedder(64), time.Second, m)
	ctx := context.Background()

	msg := &conversation.Message{SessionId: "S1", UserId: "u1", Role: conversation.RoleUser, Content: "ransomware en el servidor de ficheros"}
	require.NoError(t, msgs.AppendMessage(ctx, msg))

	require.NoError(t, w.Handle(ctx, jobMessage(t, EmbeddingJob{MessageID: msg.Id, SessionID: "S1"})))
	assert.True(t, index.Has(msg.Id))

	got, err := msgs.GetMessagesByIDs(ctx, []int64{msg.Id})
	require.NoError(t, err)
	require.NotNil(t, got[0].EmbeddingRef)
	assert.Equal(t, vectordb.RefForMessage(msg.Id), *got[0].EmbeddingRef)

	// already indexed, then deleted message, then garbage
	require.NoError(t, w.Handle(ctx, jobMessage(t, EmbeddingJob{MessageID: msg.Id})))
	require.NoError(t, w.Handle(ctx, jobMessage(t, EmbeddingJob{MessageID: 9999})))
	require.NoError(t, w.Handle(ctx, mq.Message{Value: []byte("not a job")}))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmbeddingJobsTotal.WithLabelValues("indexed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.EmbeddingJobsTotal.WithLabelValues("skipped")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EmbeddingJobsTotal.WithLabelValues("invalid")))
}

func TestEmbeddingWorker_RetriesThroughLocalBroker(t *testing.T) {
	db := testdb.Open(t)
	msgs := persistence.NewMessageRepository(db)
	index := &flakyIndex{MemoryMessageIndex: vectordb.NewMemoryMessageIndex(), failures: 2}
	broker := mq.NewLocalBroker(8, 3).WithBackoff(time.Millisecond, 5*time.Millisecond)
	w := NewEmbeddingWorker(broker, msgs, index, embedding.NewMockEmbedder(32), time.Second, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	msg := &conversation.Message{SessionId: "S1", UserId: "u1", Role: conversation.RoleAssistant, Content: "aplica el parche de seguridad"}
	require.NoError(t, msgs.AppendMessage(ctx, msg))
	require.NoError(t, NewEnqueuer(broker, "secassist.embedding").Enqueue(ctx, EmbeddingJob{MessageID: msg.Id, SessionID: "S1", UserID: "u1"}))

	require.Eventually(t, func() bool { return index.Has(msg.Id) }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, index.failures)
}
