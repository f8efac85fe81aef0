package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"SecAssist/internal/config"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// MockChatModel offline chat model for local runs. Tool requests get a
// keyword-based classify_intent call, everything else a canned answer.
type MockChatModel struct{}

func NewMockChatModel() *MockChatModel {
	return &MockChatModel{}
}

func buildMockChatModel(_ context.Context, c config.AIChatModelConfig) (model.BaseChatModel, string, error) {
	name := strings.TrimSpace(c.Model)
	if name == "" {
		name = "mock"
	}
	return NewMockChatModel(), name, nil
}

var mockKeywords = []struct {
	tag      string
	keywords []string
}{
	{"incident", []string{"incidente", "incident", "brecha", "breach", "ransomware", "ataque"}},
	{"compliance", []string{"gdpr", "rgpd", "iso 27001", "cumplimiento", "compliance", "normativa", "pci"}},
	{"threat", []string{"amenaza", "threat", "apt", "phishing", "malware"}},
	{"reporting", []string{"informe", "report", "dashboard", "resumen ejecutivo"}},
	{"proactive_review", []string{"revisión", "review", "auditoría proactiva", "hardening"}},
	{"risk", []string{"riesgo", "risk", "vulnerabilidad", "vulnerability"}},
}

func (m *MockChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	o := model.GetCommonOptions(&model.Options{}, opts...)
	last := ""
	if n := len(input); n > 0 && input[n-1] != nil {
		last = input[n-1].Content
	}

	if len(o.Tools) > 0 {
		args, _ := json.Marshal(mockClassify(last))
		return &schema.Message{
			Role: schema.Assistant,
			ToolCalls: []schema.ToolCall{{
				ID:       "mock-call-1",
				Function: schema.FunctionCall{Name: o.Tools[0].Name, Arguments: string(args)},
			}},
		}, nil
	}

	snippet := []rune(strings.TrimSpace(last))
	if len(snippet) > 120 {
		snippet = snippet[:120]
	}
	return &schema.Message{Role: schema.Assistant, Content: fmt.Sprintf("[mock] %s", string(snippet))}, nil
}

func (m *MockChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func mockClassify(text string) map[string]any {
	lower := strings.ToLower(text)
	for _, k := range mockKeywords {
		for _, w := range k.keywords {
			if strings.Contains(lower, w) {
				return map[string]any{"intent": k.tag, "confidence": 0.9, "entities": []string{w}}
			}
		}
	}
	return map[string]any{"intent": "general", "confidence": 0.9, "entities": []string{}}
}

var _ model.BaseChatModel = (*MockChatModel)(nil)
