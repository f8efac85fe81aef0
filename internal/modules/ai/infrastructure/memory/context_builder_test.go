package memory

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/llm"
	"SecAssist/internal/modules/ai/infrastructure/llm/llmtest"
	"SecAssist/internal/modules/ai/infrastructure/persistence"
	"SecAssist/internal/modules/ai/infrastructure/persistence/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func newBuilder(t *testing.T, summarizer Summarizer) (*ContextBuilder, repository.MessageRepository) {
	t.Helper()
	msgs := persistence.NewMessageRepository(testdb.Open(t))
	b := NewContextBuilder(msgs, summarizer, ContextBuilderConfig{
		HistoryCap:         200,
		HalfLife:           30 * time.Minute,
		RelevanceWeight:    0.25,
		SummarizeThreshold: 0.5,
	})
	b.now = func() time.Time { return testNow }
	return b, msgs
}

func appendMsg(t *testing.T, repo repository.MessageRepository, role, content string, age time.Duration) *conversation.Message {
	t.Helper()
	m := &conversation.Message{
		SessionId: "S1",
		UserId:    "u1",
		Role:      role,
		Content:   content,
		CreatedAt: testNow.Add(-age),
	}
	require.NoError(t, repo.AppendMessage(context.Background(), m))
	return m
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 4, EstimateTokens(""))
	assert.Equal(t, 5, EstimateTokens("abcd"))
	assert.Equal(t, 6, EstimateTokens("abcde"))
	// runes, not bytes
	assert.Equal(t, 5, EstimateTokens("ñáéí"))
}

func TestImportance_DecreasesWithAge(t *testing.T) {
	b, _ := newBuilder(t, nil)
	prev := 10.0
	for _, age := range []time.Duration{0, time.Minute, 30 * time.Minute, 2 * time.Hour, 48 * time.Hour} {
		m := &conversation.Message{CreatedAt: testNow.Add(-age)}
		got := b.Importance(m, testNow)
		assert.Less(t, got, prev)
		prev = got
	}

	half := &conversation.Message{CreatedAt: testNow.Add(-30 * time.Minute)}
	assert.InDelta(t, 0.5, b.Importance(half, testNow), 1e-9)

	confident := &conversation.Message{CreatedAt: testNow.Add(-30 * time.Minute)}
	confident.SetMetadata(map[string]any{conversation.MetaConfidence: 0.8})
	assert.InDelta(t, 0.7, b.Importance(confident, testNow), 1e-9)
}

func TestBuild_EmptyCases(t *testing.T) {
	b, msgs := newBuilder(t, nil)
	ctx := context.Background()

	w, err := b.Build(ctx, "S1", 100)
	require.NoError(t, err)
	assert.True(t, w.Empty())
	assert.False(t, w.OverBudget)

	appendMsg(t, msgs, conversation.RoleUser, "hola", time.Minute)
	w, err = b.Build(ctx, "S1", 0)
	require.NoError(t, err)
	assert.True(t, w.Empty())
}

func TestBuild_TwoTurnFollowUp(t *testing.T) {
	b, msgs := newBuilder(t, nil)
	q1 := appendMsg(t, msgs, conversation.RoleUser, "¿Cuáles son los tres riesgos principales de nuestra nube?", 3*time.Minute)
	a1 := appendMsg(t, msgs, conversation.RoleAssistant, "1. Buckets públicos. 2. Claves IAM sin rotar. 3. Grupos de seguridad abiertos.", 2*time.Minute)
	q2 := appendMsg(t, msgs, conversation.RoleUser, "Dame más detalles del primero", 0)

	w, err := b.Build(context.Background(), "S1", 3000)
	require.NoError(t, err)
	require.Len(t, w.Messages, 3)
	assert.Equal(t, []int64{q1.Id, a1.Id, q2.Id}, []int64{w.Messages[0].Id, w.Messages[1].Id, w.Messages[2].Id})
	assert.LessOrEqual(t, w.TokenCount, 3000)
	assert.Zero(t, w.Dropped)
}

func TestBuild_TokenBoundHolds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b, msgs := newBuilder(t, nil)
	for i := 0; i < 40; i++ {
		content := strings.Repeat("x", rng.Intn(400))
		appendMsg(t, msgs, conversation.RoleUser, content, time.Duration(40-i)*time.Minute)
	}

	for _, budget := range []int{1, 5, 20, 50, 120, 400, 1000, 5000} {
		w, err := b.Build(context.Background(), "S1", budget)
		require.NoError(t, err)
		require.NotEmpty(t, w.Messages)

		sum := 0
		for _, m := range w.Messages {
			sum += EstimateTokens(m.Content)
		}
		assert.Equal(t, sum, w.TokenCount)
		if w.OverBudget {
			assert.Len(t, w.Messages, 1, "budget %d", budget)
		} else {
			assert.LessOrEqual(t, w.TokenCount, budget, "budget %d", budget)
		}
		for i := 1; i < len(w.Messages); i++ {
			assert.False(t, w.Messages[i].CreatedAt.Before(w.Messages[i-1].CreatedAt))
		}
	}
}

func TestBuild_OverBudgetKeepsMostImportant(t *testing.T) {
	b, msgs := newBuilder(t, nil)
	appendMsg(t, msgs, conversation.RoleUser, strings.Repeat("a", 200), time.Hour)
	newest := appendMsg(t, msgs, conversation.RoleUser, strings.Repeat("b", 200), 0)

	w, err := b.Build(context.Background(), "S1", 10)
	require.NoError(t, err)
	assert.True(t, w.OverBudget)
	require.Len(t, w.Messages, 1)
	assert.Equal(t, newest.Id, w.Messages[0].Id)
	assert.Equal(t, 1, w.Dropped)
}

func TestBuild_SummarizesImportantMessages(t *testing.T) {
	gen := llmtest.Text("Resumen: buckets públicos expuestos.")
	b, msgs := newBuilder(t, NewGeneratorSummarizer(gen))

	long := appendMsg(t, msgs, conversation.RoleAssistant, strings.Repeat("detalle ", 100), 10*time.Minute)
	appendMsg(t, msgs, conversation.RoleUser, "y el segundo?", 0)

	w, err := b.Build(context.Background(), "S1", 40)
	require.NoError(t, err)
	require.Len(t, w.Messages, 2)
	assert.Equal(t, 1, w.Compressed)
	assert.Equal(t, conversation.RoleSummary, w.Messages[0].Role)
	assert.EqualValues(t, long.Id, w.Messages[0].Metadata()[conversation.MetaSummaryOf])
	assert.LessOrEqual(t, w.TokenCount, 40)
	assert.Equal(t, 1, gen.CallCount())
}

func TestBuild_SummarizerFailureDrops(t *testing.T) {
	gen := llmtest.Failing(llm.ErrGenerationUnavailable)
	b, msgs := newBuilder(t, NewGeneratorSummarizer(gen))

	appendMsg(t, msgs, conversation.RoleAssistant, strings.Repeat("uno ", 100), 2*time.Minute)
	appendMsg(t, msgs, conversation.RoleAssistant, strings.Repeat("dos ", 100), time.Minute)
	appendMsg(t, msgs, conversation.RoleUser, "ok", 0)

	w, err := b.Build(context.Background(), "S1", 40)
	require.NoError(t, err)
	require.Len(t, w.Messages, 1)
	assert.Equal(t, "ok", w.Messages[0].Content)
	assert.Equal(t, 2, w.Dropped)
	// disabled after the first failure
	assert.Equal(t, 1, gen.CallCount())
}

type brokenRepo struct {
	repository.MessageRepository
}

func (brokenRepo) ListRecentMessages(context.Context, string, int) ([]*conversation.Message, error) {
	return nil, errors.New("connection refused")
}

func TestBuild_StoreFailure(t *testing.T) {
	b := NewContextBuilder(brokenRepo{}, nil, ContextBuilderConfig{})
	_, err := b.Build(context.Background(), "S1", 100)
	assert.ErrorIs(t, err, conversation.ErrStoreUnavailable)
}
