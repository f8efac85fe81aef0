// Package llmtest offers an in-memory Generator for package tests.
package llmtest

import (
	"context"
	"sync"

	"SecAssist/internal/modules/ai/infrastructure/llm"

	"github.com/cloudwego/eino/schema"
)

// Call one recorded Generate invocation
type Call struct {
	Messages []*schema.Message
	Tools    []*schema.ToolInfo
}

// Func answers a call; returning an error simulates an unavailable service
type Func func(ctx context.Context, call Call) (*llm.Generation, error)

// Generator records every call and delegates to Respond. Safe for concurrent use.
type Generator struct {
	Respond Func

	mu    sync.Mutex
	calls []Call
}

func New(respond Func) *Generator {
	return &Generator{Respond: respond}
}

// Text always answers text
func Text(text string) *Generator {
	return New(func(context.Context, Call) (*llm.Generation, error) {
		return &llm.Generation{Text: text}, nil
	})
}

// Failing always returns err
func Failing(err error) *Generator {
	return New(func(context.Context, Call) (*llm.Generation, error) {
		return nil, err
	})
}

func (g *Generator) Generate(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*llm.Generation, error) {
	call := Call{Messages: msgs, Tools: tools}
	g.mu.Lock()
	g.calls = append(g.calls, call)
	g.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Respond(ctx, call)
}

func (g *Generator) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

func (g *Generator) CallCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// LastUserContent content of the last user message of a call
func (c Call) LastUserContent() string {
	for i := len(c.Messages) - 1; i >= 0; i-- {
		if c.Messages[i] != nil && c.Messages[i].Role == schema.User {
			return c.Messages[i].Content
		}
	}
	return ""
}

// SystemContent content of the first system message of a call
func (c Call) SystemContent() string {
	for _, m := range c.Messages {
		if m != nil && m.Role == schema.System {
			return m.Content
		}
	}
	return ""
}

var _ llm.Generator = (*Generator)(nil)
