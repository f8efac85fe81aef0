package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/application/dto/request"
	"SecAssist/internal/modules/ai/application/dto/respond"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrivacy struct {
	calls   atomic.Int32
	release chan struct{}
	err     error
}

func (s *stubPrivacy) DeleteUserData(context.Context, request.DeleteUserDataRequest, string) (*respond.DeleteUserDataRespond, error) {
	return nil, errors.New("not used")
}

func (s *stubPrivacy) ApplyRetention(ctx context.Context, _ request.ApplyRetentionRequest) (*respond.ApplyRetentionRespond, error) {
	s.calls.Add(1)
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &respond.ApplyRetentionRespond{Deleted: 3}, nil
}

func (s *stubPrivacy) ReindexSession(context.Context, request.ReindexSessionRequest) (*respond.ReindexSessionRespond, error) {
	return nil, errors.New("not used")
}

func TestRetentionScheduler_RunOnce(t *testing.T) {
	svc := &stubPrivacy{}
	s := NewRetentionScheduler(svc, "0 3 * * *", time.Second)
	assert.True(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, svc.calls.Load())

	svc.err = errors.New("store down")
	assert.True(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 2, svc.calls.Load())
}

func TestRetentionScheduler_OverlappingRunSkipped(t *testing.T) {
	svc := &stubPrivacy{release: make(chan struct{})}
	s := NewRetentionScheduler(svc, "0 3 * * *", 5*time.Second)

	done := make(chan bool)
	go func() { done <- s.RunOnce(context.Background()) }()
	require.Eventually(t, func() bool { return svc.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	assert.False(t, s.RunOnce(context.Background()))
	close(svc.release)
	assert.True(t, <-done)
	assert.EqualValues(t, 1, svc.calls.Load())
}

func TestRetentionScheduler_StartValidatesCron(t *testing.T) {
	assert.Error(t, NewRetentionScheduler(&stubPrivacy{}, "not a cron", 0).Start())
	assert.Error(t, NewRetentionScheduler(nil, "0 3 * * *", 0).Start())

	s := NewRetentionScheduler(&stubPrivacy{}, "0 3 * * *", 0)
	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
