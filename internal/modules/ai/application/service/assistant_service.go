package service

import (
	"context"
	"strings"

	"SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/dto/respond"
	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/pipeline"
	"SecAssist/pkg/xerr"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// AssistantService 安全助手会话服务
type AssistantService interface {
	// Process 处理一轮安全查询（意图路由 → 处理器并发执行 → 汇总）
	//
	// userID 从 JWT 提取；当 ErrAllHandlersFailed 时仍返回带有错误提示文本的响应。
	Process(ctx context.Context, req request.ProcessRequest, userID string) (*respond.ProcessRespond, error)
	// CloseSession 关闭会话，之后的请求返回 409
	CloseSession(ctx context.Context, req request.CloseSessionRequest, userID string) (*respond.CloseSessionRespond, error)
	// ListSessionMessages 按时间正序返回会话消息（脱敏后的内容）
	ListSessionMessages(ctx context.Context, req request.SessionMessagesRequest, userID string) (*respond.SessionMessagesRespond, error)
}

type assistantServiceImpl struct {
	pipeline *pipeline.OrchestratorPipeline
	sessions repository.SessionRepository
	messages repository.MessageRepository
}

func NewAssistantService(p *pipeline.OrchestratorPipeline, sessions repository.SessionRepository, messages repository.MessageRepository) AssistantService {
	return &assistantServiceImpl{pipeline: p, sessions: sessions, messages: messages}
}

func (s *assistantServiceImpl) Process(ctx context.Context, req request.ProcessRequest, userID string) (*respond.ProcessRespond, error) {
	if s.pipeline == nil {
		return nil, xerr.ErrServerError
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, xerr.New(xerr.Unauthorized, "user id is required")
	}

	res, err := s.pipeline.Process(ctx, &pipeline.ProcessRequest{
		Query:     req.Query,
		SessionID: strings.TrimSpace(req.SessionID),
		UserID:    userID,
	})
	if res == nil || (err != nil && res.Text == "") {
		return nil, toCodeError(err)
	}
	return toProcessRespond(res), toCodeError(err)
}

func (s *assistantServiceImpl) CloseSession(ctx context.Context, req request.CloseSessionRequest, userID string) (*respond.CloseSessionRespond, error) {
	sess, err := s.ownedSession(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}
	if !sess.IsClosed() {
		if err := s.sessions.CloseSession(ctx, sess.SessionId); err != nil {
			zlog.Error("close session failed", zap.String("session_id", sess.SessionId), zap.Error(err))
			return nil, toCodeError(conversation.ErrStoreUnavailable)
		}
	}
	return &respond.CloseSessionRespond{SessionID: sess.SessionId, Closed: true}, nil
}

func (s *assistantServiceImpl) ListSessionMessages(ctx context.Context, req request.SessionMessagesRequest, userID string) (*respond.SessionMessagesRespond, error) {
	sess, err := s.ownedSession(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	offset := req.Offset
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.messages.ListSessionMessages(ctx, sess.SessionId, limit, offset)
	if err != nil {
		zlog.Error("list session messages failed", zap.String("session_id", sess.SessionId), zap.Error(err))
		return nil, toCodeError(conversation.ErrStoreUnavailable)
	}
	items := make([]*respond.MessageItem, 0, len(msgs))
	for _, m := range msgs {
		items = append(items, toMessageItem(m))
	}
	return &respond.SessionMessagesRespond{SessionID: sess.SessionId, Messages: items, Total: len(items)}, nil
}

// ownedSession loads a session and checks it belongs to userID
func (s *assistantServiceImpl) ownedSession(ctx context.Context, sessionID, userID string) (*conversation.Session, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, xerr.New(xerr.BadRequest, "session_id is required")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, xerr.New(xerr.Unauthorized, "user id is required")
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		zlog.Error("get session failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, toCodeError(conversation.ErrStoreUnavailable)
	}
	if sess == nil {
		return nil, toCodeError(conversation.ErrSessionNotFound)
	}
	if sess.UserId != userID {
		return nil, toCodeError(conversation.ErrAccessDenied)
	}
	return sess, nil
}

func toProcessRespond(res *pipeline.ProcessResult) *respond.ProcessRespond {
	out := &respond.ProcessRespond{
		SessionID:             res.SessionID,
		Text:                  res.Text,
		Intent:                string(res.Intent),
		Confidence:            res.Confidence,
		Route:                 string(res.Route),
		HandlersUsed:          res.HandlersUsed,
		Sources:               res.Sources,
		TimingMs:              res.TimingMs,
		Timing:                res.Timing,
		Degraded:              res.Degraded,
		LowConfidence:         res.LowConfidence,
		ClarificationRequired: res.ClarificationRequired,
	}
	for _, o := range res.Outcomes {
		out.Outcomes = append(out.Outcomes, respond.HandlerOutcome{
			Handler:   o.Handler,
			OK:        o.OK,
			Error:     o.Error,
			LatencyMs: o.LatencyMs,
		})
	}
	return out
}

func toMessageItem(m *conversation.Message) *respond.MessageItem {
	return &respond.MessageItem{
		ID:        m.Id,
		Role:      m.Role,
		Content:   m.Content,
		Category:  m.Category,
		Metadata:  m.Metadata(),
		CreatedAt: m.CreatedAt,
	}
}
