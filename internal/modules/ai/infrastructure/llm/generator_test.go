package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowChatModel struct {
	delay time.Duration
}

func (s *slowChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	select {
	case <-time.After(s.delay):
		return &schema.Message{Role: schema.Assistant, Content: "late"}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *slowChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestChatGenerator_Timeout(t *testing.T) {
	g := NewChatGenerator(&slowChatModel{delay: time.Second}, 20*time.Millisecond)
	_, err := g.Generate(context.Background(), []*schema.Message{schema.UserMessage("hola")}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChatGenerator_Unavailable(t *testing.T) {
	var g *ChatGenerator
	_, err := g.Generate(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrGenerationUnavailable)
}

func TestMockChatModel_ToolCall(t *testing.T) {
	g := NewChatGenerator(NewMockChatModel(), time.Second)
	tools := []*schema.ToolInfo{{Name: "classify_intent", Desc: "classify"}}

	out, err := g.Generate(context.Background(), []*schema.Message{schema.UserMessage("Tenemos un incidente de ransomware")}, tools)
	require.NoError(t, err)
	require.Len(t, out.ToolCalls, 1)
	assert.Equal(t, "classify_intent", out.ToolCalls[0].Function.Name)
	assert.Contains(t, out.ToolCalls[0].Function.Arguments, `"intent":"incident"`)

	out, err = g.Generate(context.Background(), []*schema.Message{schema.UserMessage("hola")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "[mock] hola", out.Text)
}
