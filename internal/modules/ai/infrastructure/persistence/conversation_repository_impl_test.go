package persistence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/persistence/testdb"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSession(t *testing.T, repo repository.SessionRepository, sessionID, userID string) {
	t.Helper()
	require.NoError(t, repo.CreateSession(context.Background(), &conversation.Session{
		SessionId: sessionID,
		UserId:    userID,
		Status:    conversation.SessionStatusActive,
	}))
}

func TestMessageRepository_ChronologicalOrderMatchesPersistenceOrder(t *testing.T) {
	db := testdb.Open(t)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	var persisted []int64
	for i := 0; i < 6; i++ {
		m := &conversation.Message{
			SessionId: "S1",
			UserId:    "u1",
			Role:      conversation.RoleUser,
			Content:   fmt.Sprintf("turn %d", i),
			// two messages share a timestamp: id breaks the tie
			CreatedAt: base.Add(time.Duration(i/2) * time.Second),
		}
		require.NoError(t, msgs.AppendMessage(ctx, m))
		persisted = append(persisted, m.Id)
	}

	all, err := msgs.ListSessionMessages(ctx, "S1", 100, 0)
	require.NoError(t, err)
	got := make([]int64, 0, len(all))
	for _, m := range all {
		got = append(got, m.Id)
	}
	assert.Equal(t, persisted, got)

	recent, err := msgs.ListRecentMessages(ctx, "S1", 3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, "turn 3", recent[0].Content)
	assert.Equal(t, "turn 5", recent[2].Content)
}

func TestMessageRepository_AppendDefaults(t *testing.T) {
	db := testdb.Open(t)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	m := &conversation.Message{SessionId: "S1", UserId: "u1", Role: conversation.RoleUser, Content: "hola"}
	require.NoError(t, msgs.AppendMessage(ctx, m))
	assert.NotZero(t, m.Id)
	assert.Equal(t, conversation.DefaultCategory, m.Category)
	assert.False(t, m.CreatedAt.IsZero())

	assert.Error(t, msgs.AppendMessage(ctx, &conversation.Message{Content: "orphan"}))
}

func TestMessageRepository_MergeMetadataAndEmbeddingRef(t *testing.T) {
	db := testdb.Open(t)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	m := &conversation.Message{SessionId: "S1", UserId: "u1", Role: conversation.RoleUser, Content: "q"}
	m.SetMetadata(map[string]any{conversation.MetaPIIFlags: "email"})
	require.NoError(t, msgs.AppendMessage(ctx, m))

	require.NoError(t, msgs.MergeMetadata(ctx, m.Id, map[string]any{
		conversation.MetaIntent:     "risk",
		conversation.MetaConfidence: 0.9,
	}))
	require.NoError(t, msgs.SetEmbeddingRef(ctx, m.Id, fmt.Sprintf("%d", m.Id)))
	require.NoError(t, msgs.SetCategory(ctx, m.Id, "risk"))

	got, err := msgs.GetMessagesByIDs(ctx, []int64{m.Id, 9999})
	require.NoError(t, err)
	require.Len(t, got, 1)
	meta := got[0].Metadata()
	assert.Equal(t, "email", meta[conversation.MetaPIIFlags])
	assert.Equal(t, "risk", meta[conversation.MetaIntent])
	assert.InDelta(t, 0.9, got[0].Confidence(), 1e-9)
	assert.Equal(t, "risk", got[0].Category)
	require.NotNil(t, got[0].EmbeddingRef)
	assert.Equal(t, fmt.Sprintf("%d", m.Id), *got[0].EmbeddingRef)
}

func TestMessageRepository_ListExpiredMessageIDs(t *testing.T) {
	db := testdb.Open(t)
	msgs := NewMessageRepository(db)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	add := func(category string, age time.Duration) int64 {
		m := &conversation.Message{SessionId: "S1", UserId: "u1", Role: conversation.RoleUser, Category: category, CreatedAt: now.Add(-age)}
		require.NoError(t, msgs.AppendMessage(ctx, m))
		return m.Id
	}
	oldRisk := add("risk", 40*24*time.Hour)
	add("risk", 2*24*time.Hour)
	oldIncident := add("incident", 40*24*time.Hour)

	ids, err := msgs.ListExpiredMessageIDs(ctx, repository.ExpiryFilter{
		Categories: []string{"risk"},
		Before:     now.Add(-30 * 24 * time.Hour),
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{oldRisk}, ids)

	ids, err = msgs.ListExpiredMessageIDs(ctx, repository.ExpiryFilter{
		ExcludeCategories: []string{"risk"},
		Before:            now.Add(-30 * 24 * time.Hour),
	}, 10)
	require.NoError(t, err)
	assert.Equal(t, []int64{oldIncident}, ids)
}

func TestRepositories_DeleteByUserIsIdempotent(t *testing.T) {
	db := testdb.Open(t)
	sessions := NewSessionRepository(db)
	msgs := NewMessageRepository(db)
	ctx := context.Background()

	seedSession(t, sessions, "S1", "u1")
	seedSession(t, sessions, "S2", "u2")
	for _, sid := range []string{"S1", "S1", "S2"} {
		owner := "u1"
		if sid == "S2" {
			owner = "u2"
		}
		require.NoError(t, msgs.AppendMessage(ctx, &conversation.Message{SessionId: sid, UserId: owner, Role: conversation.RoleUser, Content: "x"}))
	}

	n, err := msgs.DeleteBySession(ctx, "S1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	n, err = sessions.DeleteSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = msgs.DeleteByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = sessions.DeleteSessionsByUser(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, n)

	left, err := msgs.ListSessionMessages(ctx, "S2", 10, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
}

func TestSessionRepository_CloseAndGet(t *testing.T) {
	db := testdb.Open(t)
	sessions := NewSessionRepository(db)
	ctx := context.Background()

	seedSession(t, sessions, "S1", "u1")
	s, err := sessions.GetSession(ctx, "S1")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.False(t, s.IsClosed())

	require.NoError(t, sessions.CloseSession(ctx, "S1"))
	s, err = sessions.GetSession(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, s.IsClosed())

	missing, err := sessions.GetSession(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
