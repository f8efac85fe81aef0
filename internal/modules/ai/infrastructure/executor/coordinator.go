package executor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/internal/modules/ai/infrastructure/plugins"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HandlerRunner executes one registered handler by name
type HandlerRunner interface {
	Execute(ctx context.Context, name string, req *plugins.HandlerRequest) (*plugins.HandlerResponse, error)
}

type Options struct {
	HandlerTimeout time.Duration // per handler call
	OverallTimeout time.Duration // whole fan-out
	MaxParallel    int
}

// Coordinator runs the selected handlers. A single handler is called directly;
// several run concurrently on a bounded pool and fail independently.
type Coordinator struct {
	runner  HandlerRunner
	generic intent.HandlerDescriptor
	opts    Options
	metrics *metrics.Metrics
}

// NewCoordinator generic is run when the selection is empty.
func NewCoordinator(runner HandlerRunner, generic intent.HandlerDescriptor, opts Options, m *metrics.Metrics) *Coordinator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = 3
	}
	return &Coordinator{runner: runner, generic: generic, opts: opts, metrics: m}
}

// Execute returns one outcome per handler in selection order. The error is
// non-nil only when no handler succeeded; it wraps intent.ErrAllHandlersFailed.
func (c *Coordinator) Execute(ctx context.Context, handlers []intent.HandlerDescriptor, req *plugins.HandlerRequest) ([]intent.HandlerOutcome, error) {
	if len(handlers) == 0 {
		handlers = []intent.HandlerDescriptor{c.generic}
	}

	if len(handlers) == 1 {
		out := c.runOne(ctx, handlers[0], req)
		outcomes := []intent.HandlerOutcome{out}
		if out.Err != nil {
			return outcomes, fmt.Errorf("%w: %s: %w", intent.ErrAllHandlersFailed, out.Handler, out.Err)
		}
		return outcomes, nil
	}

	fanCtx := ctx
	if c.opts.OverallTimeout > 0 {
		var cancel context.CancelFunc
		fanCtx, cancel = context.WithTimeout(ctx, c.opts.OverallTimeout)
		defer cancel()
	}

	outcomes := make([]intent.HandlerOutcome, len(handlers))
	// plain group: one handler failing must not cancel the others
	var g errgroup.Group
	g.SetLimit(c.opts.MaxParallel)
	for i, h := range handlers {
		g.Go(func() error {
			outcomes[i] = c.runOne(fanCtx, h, req)
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	var errs []error
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o.Handler)
			errs = append(errs, fmt.Errorf("%s: %w", o.Handler, o.Err))
		}
	}
	zlog.Info("execute handlers done",
		zap.String("session_id", req.SessionID),
		zap.Int("handlers", len(handlers)),
		zap.Strings("failed", failed))

	if len(failed) == len(outcomes) {
		return outcomes, fmt.Errorf("%w: %s: %w", intent.ErrAllHandlersFailed, strings.Join(failed, ","), errors.Join(errs...))
	}
	return outcomes, nil
}

func (c *Coordinator) runOne(ctx context.Context, h intent.HandlerDescriptor, req *plugins.HandlerRequest) intent.HandlerOutcome {
	start := time.Now()
	callCtx := ctx
	if c.opts.HandlerTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.opts.HandlerTimeout)
		defer cancel()
	}

	out := intent.HandlerOutcome{Handler: h.Name}
	resp, err := c.runSafe(callCtx, h.Name, req)
	out.LatencyMs = time.Since(start).Milliseconds()
	if err != nil {
		out.Err = err
		c.metrics.HandlerFailed(h.Name)
		zlog.Warn("handler failed",
			zap.String("handler", h.Name),
			zap.Int64("latency_ms", out.LatencyMs),
			zap.Error(err))
		return out
	}
	out.Text = resp.Output
	out.Sources = resp.Sources
	return out
}

// runSafe turns a handler panic into a failed outcome
func (c *Coordinator) runSafe(ctx context.Context, name string, req *plugins.HandlerRequest) (resp *plugins.HandlerResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	resp, err = c.runner.Execute(ctx, name, req)
	if err == nil && resp == nil {
		err = errors.New("handler returned no response")
	}
	return resp, err
}
