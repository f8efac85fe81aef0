package pipeline

import (
	"context"
	"fmt"
	"time"

	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/llm"
	"SecAssist/internal/modules/ai/infrastructure/plugins"
	"SecAssist/pkg/zlog"

	"go.uber.org/zap"
)

// CacheInterface response cache used for idempotent handlers (Redis in production)
type CacheInterface interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)
}

// HandlerPipeline runs one registered security handler:
// validate, cache lookup, prompt, generation, parse, cache write.
type HandlerPipeline struct {
	gen      llm.Generator
	cache    CacheInterface
	handlers map[string]plugins.SecurityHandler
	order    []string
}

// NewHandlerPipeline cache may be nil
func NewHandlerPipeline(gen llm.Generator, cache CacheInterface) *HandlerPipeline {
	return &HandlerPipeline{
		gen:      gen,
		cache:    cache,
		handlers: make(map[string]plugins.SecurityHandler),
	}
}

// RegisterHandler called at startup only; the map is read-only afterwards.
func (p *HandlerPipeline) RegisterHandler(h plugins.SecurityHandler) {
	name := h.Descriptor().Name
	if _, exists := p.handlers[name]; !exists {
		p.order = append(p.order, name)
	}
	p.handlers[name] = h
	zlog.Info("security handler registered", zap.String("handler", name))
}

// Descriptors in registration order
func (p *HandlerPipeline) Descriptors() []intent.HandlerDescriptor {
	out := make([]intent.HandlerDescriptor, 0, len(p.order))
	for _, name := range p.order {
		out = append(out, p.handlers[name].Descriptor())
	}
	return out
}

// Execute runs the named handler once.
func (p *HandlerPipeline) Execute(ctx context.Context, name string, req *plugins.HandlerRequest) (*plugins.HandlerResponse, error) {
	startTime := time.Now()

	h, ok := p.handlers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", intent.ErrHandlerNotRegistered, name)
	}
	if err := h.Validate(ctx, req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	cacheKey := h.CacheKey(ctx, req)
	if cacheKey != "" && p.cache != nil {
		if cached, err := p.cache.Get(ctx, cacheKey); err == nil && cached != "" {
			resp, perr := h.ParseResponse(ctx, cached, req)
			if perr == nil {
				resp.CacheHit = true
				zlog.Info("handler cache hit", zap.String("handler", name))
				return resp, nil
			}
		}
	}

	promptMsgs, err := h.BuildPrompt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("build prompt failed: %w", err)
	}

	llmStart := time.Now()
	out, err := p.gen.Generate(ctx, promptMsgs, nil)
	llmMs := time.Since(llmStart).Milliseconds()
	if err != nil {
		zlog.Warn("handler generate failed",
			zap.Error(err),
			zap.String("handler", name),
			zap.Int64("llm_latency_ms", llmMs))
		return nil, fmt.Errorf("llm generate failed: %w", err)
	}

	resp, err := h.ParseResponse(ctx, out.Text, req)
	if err != nil {
		return nil, fmt.Errorf("parse response failed: %w", err)
	}

	if cacheKey != "" && p.cache != nil {
		if err := p.cache.Set(ctx, cacheKey, out.Text, h.CacheTTL()); err != nil {
			zlog.Warn("handler cache set failed", zap.Error(err), zap.String("handler", name))
		}
	}

	zlog.Info("handler execute done",
		zap.String("handler", name),
		zap.String("session_id", req.SessionID),
		zap.Int64("total_latency_ms", time.Since(startTime).Milliseconds()),
		zap.Int64("llm_latency_ms", llmMs),
		zap.Int("sources", len(resp.Sources)))

	return resp, nil
}
