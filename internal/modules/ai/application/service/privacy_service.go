package service

import (
	"context"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/dto/respond"
	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/repository"
	"SecAssist/internal/modules/ai/infrastructure/privacy"
	"SecAssist/internal/modules/ai/infrastructure/queue"
	"SecAssist/pkg/xerr"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

// PrivacyService 用户数据删除、保留策略与索引重建
type PrivacyService interface {
	// DeleteUserData 删除该用户的全部会话、消息与向量索引，重复调用返回 0
	DeleteUserData(ctx context.Context, req request.DeleteUserDataRequest, userID string) (*respond.DeleteUserDataRespond, error)
	// ApplyRetention 按类别保留期清理过期消息（定时任务与管理接口共用）
	ApplyRetention(ctx context.Context, req request.ApplyRetentionRequest) (*respond.ApplyRetentionRespond, error)
	// ReindexSession 为会话内所有消息重新投递 embedding 任务
	ReindexSession(ctx context.Context, req request.ReindexSessionRequest) (*respond.ReindexSessionRespond, error)
}

type privacyServiceImpl struct {
	retention *privacy.RetentionManager
	sessions  repository.SessionRepository
	messages  repository.MessageRepository
	enqueuer  queue.Enqueuer
}

func NewPrivacyService(
	retention *privacy.RetentionManager,
	sessions repository.SessionRepository,
	messages repository.MessageRepository,
	enqueuer queue.Enqueuer,
) PrivacyService {
	return &privacyServiceImpl{retention: retention, sessions: sessions, messages: messages, enqueuer: enqueuer}
}

func (s *privacyServiceImpl) DeleteUserData(ctx context.Context, req request.DeleteUserDataRequest, userID string) (*respond.DeleteUserDataRespond, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, xerr.New(xerr.Unauthorized, "user id is required")
	}
	if !req.Confirm {
		return nil, xerr.New(xerr.BadRequest, "confirm must be true")
	}
	stats, err := s.retention.DeleteUser(ctx, userID)
	if err != nil {
		zlog.Error("delete user data failed", zap.String("user_id", userID), zap.Error(err))
		return nil, toCodeError(err)
	}
	zlog.Info("user data deleted",
		zap.String("user_id", userID),
		zap.Int64("sessions", stats.Sessions),
		zap.Int64("messages", stats.Messages),
	)
	return &respond.DeleteUserDataRespond{
		Sessions:     stats.Sessions,
		Messages:     stats.Messages,
		IndexEntries: stats.IndexEntries,
	}, nil
}

func (s *privacyServiceImpl) ApplyRetention(ctx context.Context, req request.ApplyRetentionRequest) (*respond.ApplyRetentionRespond, error) {
	now := time.Now()
	if strings.TrimSpace(req.Now) != "" {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(req.Now))
		if err != nil {
			return nil, xerr.New(xerr.BadRequest, "now must be RFC3339")
		}
		now = t
	}
	start := time.Now()
	n, err := s.retention.ApplyRetention(ctx, now)
	if err != nil {
		return nil, toCodeError(err)
	}
	return &respond.ApplyRetentionRespond{Deleted: n, DurationMs: time.Since(start).Milliseconds()}, nil
}

func (s *privacyServiceImpl) ReindexSession(ctx context.Context, req request.ReindexSessionRequest) (*respond.ReindexSessionRespond, error) {
	if s.enqueuer == nil {
		return nil, xerr.New(xerr.ServiceUnavailable, "embedding queue is not configured")
	}
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, xerr.New(xerr.BadRequest, "session_id is required")
	}
	sess, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, toCodeError(conversation.ErrStoreUnavailable)
	}
	if sess == nil {
		return nil, toCodeError(conversation.ErrSessionNotFound)
	}
	ids, err := s.messages.ListMessageIDsBySession(ctx, sessionID)
	if err != nil {
		return nil, toCodeError(conversation.ErrStoreUnavailable)
	}

	now := time.Now()
	jobs := make([]queue.EmbeddingJob, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, queue.EmbeddingJob{
			MessageID:  id,
			SessionID:  sessionID,
			UserID:     sess.UserId,
			Force:      true,
			EnqueuedAt: now,
		})
	}
	if len(jobs) > 0 {
		if err := s.enqueuer.Enqueue(ctx, jobs...); err != nil {
			zlog.Error("reindex enqueue failed", zap.String("session_id", sessionID), zap.Error(err))
			return nil, xerr.Wrap(xerr.ServiceUnavailable, "embedding queue unavailable", err)
		}
	}
	zlog.Info("session reindex enqueued", zap.String("session_id", sessionID), zap.Int("jobs", len(jobs)))
	return &respond.ReindexSessionRespond{SessionID: sessionID, Enqueued: len(jobs)}, nil
}
