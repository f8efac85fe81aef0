package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrGenerationUnavailable no chat model configured
var ErrGenerationUnavailable = errors.New("generation service unavailable")

// Generation reply of one call; ToolCalls is set when the model chose a tool
type Generation struct {
	Text      string
	ToolCalls []schema.ToolCall
}

// Generator synchronous text generation with context cancellation.
type Generator interface {
	Generate(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*Generation, error)
}

type ChatGenerator struct {
	chatModel model.BaseChatModel
	timeout   time.Duration
}

// NewChatGenerator wraps an eino chat model; timeout <= 0 disables the per-call deadline.
func NewChatGenerator(chatModel model.BaseChatModel, timeout time.Duration) *ChatGenerator {
	return &ChatGenerator{chatModel: chatModel, timeout: timeout}
}

func (g *ChatGenerator) Generate(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*Generation, error) {
	if g == nil || g.chatModel == nil {
		return nil, ErrGenerationUnavailable
	}
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	var opts []model.Option
	if len(tools) > 0 {
		opts = append(opts, model.WithTools(tools))
	}
	resp, err := g.chatModel.Generate(ctx, msgs, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate: %w", err)
	}
	if resp == nil {
		return nil, errors.New("generate: empty response")
	}
	return &Generation{
		Text:      strings.TrimSpace(resp.Content),
		ToolCalls: resp.ToolCalls,
	}, nil
}

var _ Generator = (*ChatGenerator)(nil)
