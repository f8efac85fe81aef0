package service

import (
	"context"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/dto/respond"
	"SecAssist/internal/modules/ai/infrastructure/memory"
	"SecAssist/pkg/xerr"
)

// RetrieveService 历史对话语义检索服务
type RetrieveService interface {
	// SearchConversations 在调用者自己的历史消息中做相似度检索
	//
	// 参数：
	//   - req: 检索请求（query 必填，session_id / 日期范围可选）
	//   - userID: 从 JWT 提取，检索范围强制限定为该用户
	SearchConversations(ctx context.Context, req request.SearchConversationsRequest, userID string) (*respond.SearchConversationsRespond, error)
}

type retrieveServiceImpl struct {
	recall *memory.SemanticRecall
}

func NewRetrieveService(recall *memory.SemanticRecall) RetrieveService {
	return &retrieveServiceImpl{recall: recall}
}

func (s *retrieveServiceImpl) SearchConversations(ctx context.Context, req request.SearchConversationsRequest, userID string) (*respond.SearchConversationsRespond, error) {
	if s.recall == nil {
		return nil, xerr.New(xerr.ServiceUnavailable, "semantic search is not configured")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, xerr.New(xerr.Unauthorized, "user id is required")
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, xerr.New(xerr.BadRequest, "query is required")
	}
	from, err := parseDate(req.DateFrom)
	if err != nil {
		return nil, xerr.New(xerr.BadRequest, "date_from must be RFC3339")
	}
	to, err := parseDate(req.DateTo)
	if err != nil {
		return nil, xerr.New(xerr.BadRequest, "date_to must be RFC3339")
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, xerr.New(xerr.BadRequest, "date_to is before date_from")
	}

	start := time.Now()
	hits, err := s.recall.Search(ctx, query, memory.RecallFilters{
		SessionID: strings.TrimSpace(req.SessionID),
		UserID:    userID,
		DateFrom:  from,
		DateTo:    to,
	}, req.Limit, req.MinScore)
	if err != nil {
		return nil, toCodeError(err)
	}

	resp := &respond.SearchConversationsRespond{
		Query:      query,
		Hits:       make([]*respond.SearchHit, 0, len(hits)),
		DurationMs: time.Since(start).Milliseconds(),
	}
	for _, h := range hits {
		// the index filter already scopes to userID; the store row is the authority
		if h.Message == nil || h.Message.UserId != userID {
			continue
		}
		resp.Hits = append(resp.Hits, &respond.SearchHit{Message: toMessageItem(h.Message), Score: h.Score})
	}
	return resp, nil
}

func parseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
