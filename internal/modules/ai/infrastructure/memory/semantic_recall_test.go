package memory

import (
	"context"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/embedding"
	"SecAssist/internal/modules/ai/infrastructure/persistence"
	"SecAssist/internal/modules/ai/infrastructure/persistence/testdb"
	"SecAssist/internal/modules/ai/infrastructure/vectordb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSemanticRecall_Search(t *testing.T) {
	ctx := context.Background()
	msgs := persistence.NewMessageRepository(testdb.Open(t))
	index := vectordb.NewMemoryMessageIndex()
	em := embedding.NewMockEmbedder(256)

	store := func(sessionID, userID, content string) *conversation.Message {
		m := &conversation.Message{SessionId: sessionID, UserId: userID, Role: conversation.RoleUser, Content: content, CreatedAt: testNow}
		require.NoError(t, msgs.AppendMessage(ctx, m))
		vec, err := embedding.EmbedText(ctx, em, content)
		require.NoError(t, err)
		require.NoError(t, index.Upsert(ctx, []repository.IndexItem{{
			MessageID: m.Id, Vector: vec, SessionID: sessionID, UserID: userID, CreatedAt: m.CreatedAt,
		}}))
		return m
	}

	match := store("S1", "u1", "ransomware en el servidor de nóminas")
	store("S2", "u1", "política de contraseñas para el VPN")
	foreign := store("S3", "u2", "ransomware en el servidor de nóminas")
	gone := store("S1", "u1", "ransomware en el servidor de nóminas ayer")
	_, err := msgs.DeleteByIDs(ctx, []int64{gone.Id})
	require.NoError(t, err)

	r := NewSemanticRecall(em, index, msgs, time.Second)

	hits, err := r.Search(ctx, "ransomware servidor nóminas", RecallFilters{UserID: "u1"}, 0, 0.3)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, match.Id, hits[0].Message.Id)
	assert.GreaterOrEqual(t, hits[0].Score, float32(0.3))
	for _, h := range hits {
		assert.NotEqual(t, foreign.Id, h.Message.Id)
		assert.NotEqual(t, gone.Id, h.Message.Id)
	}

	hits, err = r.Search(ctx, "ransomware servidor nóminas", RecallFilters{}, 1, 0)
	require.NoError(t, err)
	assert.Len(t, hits, 1)

	_, err = r.Search(ctx, "  ", RecallFilters{}, 5, 0)
	assert.ErrorIs(t, err, conversation.ErrEmptyQuery)
}
