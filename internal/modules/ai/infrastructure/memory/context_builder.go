package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"
	"unicode/utf8"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

// roleOverheadTokens per-message framing cost added to the content estimate
const roleOverheadTokens = 4

// EstimateTokens rough token cost of a message: ceil(runes/4) plus role overhead.
func EstimateTokens(content string) int {
	return (utf8.RuneCountInString(content)+3)/4 + roleOverheadTokens
}

type ContextBuilderConfig struct {
	HistoryCap         int
	HalfLife           time.Duration
	RelevanceWeight    float64
	SummarizeThreshold float64
}

// ContextBuilder assembles the token-bounded window of a session.
type ContextBuilder struct {
	messages   repository.MessageRepository
	summarizer Summarizer
	cfg        ContextBuilderConfig
	now        func() time.Time
}

// NewContextBuilder summarizer may be nil, in which case non-fitting messages are dropped.
func NewContextBuilder(messages repository.MessageRepository, summarizer Summarizer, cfg ContextBuilderConfig) *ContextBuilder {
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = 200
	}
	if cfg.HalfLife <= 0 {
		cfg.HalfLife = 30 * time.Minute
	}
	return &ContextBuilder{
		messages:   messages,
		summarizer: summarizer,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Importance recency decay (halves every HalfLife) plus a confidence bonus.
func (b *ContextBuilder) Importance(m *conversation.Message, now time.Time) float64 {
	age := now.Sub(m.CreatedAt)
	if age < 0 {
		age = 0
	}
	recency := math.Exp2(-float64(age) / float64(b.cfg.HalfLife))
	conf := m.Confidence()
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return recency + b.cfg.RelevanceWeight*conf
}

type scored struct {
	msg        *conversation.Message
	importance float64
	cost       int
}

// Build returns the most important messages of the session that fit in budget,
// in chronological order. The store is never modified.
func (b *ContextBuilder) Build(ctx context.Context, sessionID string, budget int) (*conversation.ContextWindow, error) {
	window := &conversation.ContextWindow{SessionID: sessionID, Budget: budget, Messages: []*conversation.Message{}}
	if budget <= 0 || sessionID == "" {
		return window, nil
	}

	history, err := b.messages.ListRecentMessages(ctx, sessionID, b.cfg.HistoryCap)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", conversation.ErrStoreUnavailable, err)
	}
	if len(history) == 0 {
		return window, nil
	}

	now := b.now()
	ranked := make([]scored, 0, len(history))
	for _, m := range history {
		ranked = append(ranked, scored{msg: m, importance: b.Importance(m, now), cost: EstimateTokens(m.Content)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].importance != ranked[j].importance {
			return ranked[i].importance > ranked[j].importance
		}
		return newer(ranked[i].msg, ranked[j].msg)
	})

	summarize := b.summarizer != nil
	selected := make([]*conversation.Message, 0, len(ranked))
	used := 0
	for _, s := range ranked {
		if used+s.cost <= budget {
			selected = append(selected, s.msg)
			used += s.cost
			continue
		}
		if !summarize || s.importance < b.cfg.SummarizeThreshold {
			window.Dropped++
			continue
		}
		room := budget - used - roleOverheadTokens
		if room <= 0 {
			window.Dropped++
			continue
		}
		summary, err := b.summarizer.Summarize(ctx, s.msg, room)
		if err != nil {
			// generation unavailable: stop trying for the rest of this window
			zlog.Warn("context summarize failed, dropping", zap.String("session_id", sessionID), zap.Int64("message_id", s.msg.Id), zap.Error(err))
			summarize = false
			window.Dropped++
			continue
		}
		summary = truncateRunes(summary, room*4)
		if summary == "" {
			window.Dropped++
			continue
		}
		stand := summaryMessage(s.msg, summary)
		cost := EstimateTokens(stand.Content)
		if used+cost > budget {
			window.Dropped++
			continue
		}
		selected = append(selected, stand)
		used += cost
		window.Compressed++
	}

	if len(selected) == 0 {
		top := ranked[0]
		window.Messages = []*conversation.Message{top.msg}
		window.TokenCount = top.cost
		window.OverBudget = true
		window.Dropped = len(ranked) - 1
		window.Compressed = 0
		return window, nil
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return newer(selected[j], selected[i])
	})
	window.Messages = selected
	window.TokenCount = used
	return window, nil
}

func summaryMessage(orig *conversation.Message, summary string) *conversation.Message {
	m := &conversation.Message{
		Id:        orig.Id,
		SessionId: orig.SessionId,
		UserId:    orig.UserId,
		Role:      conversation.RoleSummary,
		Content:   summary,
		Category:  orig.Category,
		CreatedAt: orig.CreatedAt,
	}
	m.SetMetadata(map[string]any{conversation.MetaSummaryOf: orig.Id, "role": orig.Role})
	return m
}

// newer reports whether a was created after b (id breaks ties)
func newer(a, b *conversation.Message) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.Id > b.Id
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	r := []rune(s)
	return string(r[:max])
}
