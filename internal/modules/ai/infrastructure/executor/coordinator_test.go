package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/plugins"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	text  string
	err   error
	delay time.Duration
	panic bool
}

type fakeRunner struct {
	steps   map[string]step
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeRunner) Execute(ctx context.Context, name string, req *plugins.HandlerRequest) (*plugins.HandlerResponse, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	s, ok := f.steps[name]
	if !ok {
		return nil, intent.ErrHandlerNotRegistered
	}
	if s.panic {
		panic("boom")
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &plugins.HandlerResponse{Output: s.text, Sources: []string{name + "-src"}}, nil
}

func descs(names ...string) []intent.HandlerDescriptor {
	out := make([]intent.HandlerDescriptor, len(names))
	for i, n := range names {
		out[i] = intent.HandlerDescriptor{Name: n}
	}
	return out
}

var generic = intent.HandlerDescriptor{Name: plugins.GenericHandlerName}

func TestCoordinator_PartialFailureOfThree(t *testing.T) {
	runner := &fakeRunner{steps: map[string]step{
		"risk_analyst":       {text: "riesgo alto", delay: 20 * time.Millisecond},
		"compliance_advisor": {err: errors.New("model overloaded"), delay: 10 * time.Millisecond},
		"threat_intel":       {text: "tarde", delay: time.Second},
	}}
	c := NewCoordinator(runner, generic, Options{HandlerTimeout: 200 * time.Millisecond, OverallTimeout: time.Second, MaxParallel: 3}, nil)

	start := time.Now()
	outcomes, err := c.Execute(context.Background(), descs("risk_analyst", "compliance_advisor", "threat_intel"), &plugins.HandlerRequest{Query: "q"})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)

	require.Len(t, outcomes, 3)
	assert.Equal(t, "risk_analyst", outcomes[0].Handler)
	assert.True(t, outcomes[0].OK())
	assert.Equal(t, "riesgo alto", outcomes[0].Text)
	assert.Equal(t, "compliance_advisor", outcomes[1].Handler)
	assert.False(t, outcomes[1].OK())
	assert.Equal(t, "threat_intel", outcomes[2].Handler)
	assert.ErrorIs(t, outcomes[2].Err, context.DeadlineExceeded)
	assert.EqualValues(t, 3, runner.peak.Load())
}

func TestCoordinator_AllFail(t *testing.T) {
	runner := &fakeRunner{steps: map[string]step{
		"a": {err: errors.New("x")},
		"b": {panic: true},
	}}
	c := NewCoordinator(runner, generic, Options{MaxParallel: 2}, nil)

	outcomes, err := c.Execute(context.Background(), descs("a", "b"), &plugins.HandlerRequest{Query: "q"})
	assert.ErrorIs(t, err, intent.ErrAllHandlersFailed)
	require.Len(t, outcomes, 2)
	assert.Contains(t, outcomes[1].Err.Error(), "panic")
}

func TestCoordinator_SingleHandlerErrorSurfaces(t *testing.T) {
	cause := errors.New("rate limited")
	runner := &fakeRunner{steps: map[string]step{"risk_analyst": {err: cause}}}
	c := NewCoordinator(runner, generic, Options{}, nil)

	outcomes, err := c.Execute(context.Background(), descs("risk_analyst"), &plugins.HandlerRequest{Query: "q"})
	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, intent.ErrAllHandlersFailed)
	assert.Len(t, outcomes, 1)
}

func TestCoordinator_EmptySelectionRunsGeneric(t *testing.T) {
	runner := &fakeRunner{steps: map[string]step{plugins.GenericHandlerName: {text: "hola"}}}
	c := NewCoordinator(runner, generic, Options{}, nil)

	outcomes, err := c.Execute(context.Background(), nil, &plugins.HandlerRequest{Query: "q"})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, plugins.GenericHandlerName, outcomes[0].Handler)
	assert.Equal(t, "hola", outcomes[0].Text)
}

func TestCoordinator_PoolBound(t *testing.T) {
	steps := map[string]step{}
	names := []string{"a", "b", "c", "d"}
	for _, n := range names {
		steps[n] = step{text: n, delay: 30 * time.Millisecond}
	}
	runner := &fakeRunner{steps: steps}
	c := NewCoordinator(runner, generic, Options{MaxParallel: 2}, nil)

	outcomes, err := c.Execute(context.Background(), descs(names...), &plugins.HandlerRequest{Query: "q"})
	require.NoError(t, err)
	assert.Len(t, outcomes, 4)
	assert.LessOrEqual(t, runner.peak.Load(), int32(2))
}
