package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/service"
	"SecAssist/pkg/zlog"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const defaultRunTimeout = 30 * time.Minute

// RetentionScheduler runs the retention pass on a cron schedule.
// A run still in progress when the next tick fires makes that tick a no-op.
type RetentionScheduler struct {
	cron     *cron.Cron
	svc      service.PrivacyService
	cronExpr string
	timeout  time.Duration

	mu      sync.Mutex
	running bool
	started bool
}

// NewRetentionScheduler expr is a standard 5-field cron expression
func NewRetentionScheduler(svc service.PrivacyService, expr string, timeout time.Duration) *RetentionScheduler {
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	return &RetentionScheduler{
		// 使用标准5段Cron表达式（不含秒）
		cron:     cron.New(),
		svc:      svc,
		cronExpr: expr,
		timeout:  timeout,
	}
}

func (s *RetentionScheduler) Start() error {
	if s.svc == nil {
		return errors.New("privacy service is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}
	if _, err := s.cron.AddFunc(s.cronExpr, func() { s.RunOnce(context.Background()) }); err != nil {
		return err
	}
	s.cron.Start()
	s.started = true
	zlog.Info("retention scheduler started", zap.String("cron", s.cronExpr))
	return nil
}

// Stop waits for a running pass to finish or ctx to expire
func (s *RetentionScheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		zlog.Warn("retention scheduler stop timed out")
	}
}

// RunOnce executes one pass; returns false when another pass is still running
func (s *RetentionScheduler) RunOnce(ctx context.Context) bool {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		zlog.Warn("retention pass still running, tick skipped")
		return false
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	defer func() {
		if r := recover(); r != nil {
			zlog.Error("retention pass panic", zap.Any("panic", r))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	res, err := s.svc.ApplyRetention(runCtx, request.ApplyRetentionRequest{})
	if err != nil {
		zlog.Error("scheduled retention failed", zap.Error(err))
		return true
	}
	zlog.Info("scheduled retention done", zap.Int("deleted", res.Deleted), zap.Int64("cost_ms", res.DurationMs))
	return true
}
