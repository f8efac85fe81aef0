package plugins

import (
	"context"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"

	"github.com/cloudwego/eino/schema"
)

// SecurityHandler specialised responder for one or more intents.
//
// Every handler follows the same cycle: Validate the request, BuildPrompt,
// one generation call, ParseResponse. The handler pipeline drives it, so
// adding a capability only means implementing this interface and registering it.
type SecurityHandler interface {
	// Descriptor static registration data: name, served intents, entity markers
	Descriptor() intent.HandlerDescriptor

	BuildPrompt(ctx context.Context, req *HandlerRequest) ([]*schema.Message, error)

	// ParseResponse turns raw model output into text plus cited sources
	ParseResponse(ctx context.Context, llmOutput string, req *HandlerRequest) (*HandlerResponse, error)

	Validate(ctx context.Context, req *HandlerRequest) error

	// CacheKey "" disables caching for this request
	CacheKey(ctx context.Context, req *HandlerRequest) string

	CacheTTL() time.Duration
}

// HandlerRequest input shared by all handlers of one request
type HandlerRequest struct {
	UserID    string                      `json:"user_id"`
	SessionID string                      `json:"session_id"`
	Query     string                      `json:"query"`
	Intent    intent.Intent               `json:"intent"`
	Window    *conversation.ContextWindow `json:"-"`
}

// HandlerResponse normalised handler output
type HandlerResponse struct {
	Output   string         `json:"output"`
	Sources  []string       `json:"sources"`
	Metadata map[string]any `json:"metadata"`
	CacheHit bool           `json:"cache_hit"`
}
