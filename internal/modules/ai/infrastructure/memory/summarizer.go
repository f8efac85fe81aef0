package memory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/infrastructure/llm"

	"github.com/cloudwego/eino/schema"
)

// Summarizer compresses one message into at most maxTokens
type Summarizer interface {
	Summarize(ctx context.Context, msg *conversation.Message, maxTokens int) (string, error)
}

// GeneratorSummarizer single-message summary through the generation service
type GeneratorSummarizer struct {
	gen llm.Generator
}

func NewGeneratorSummarizer(gen llm.Generator) *GeneratorSummarizer {
	return &GeneratorSummarizer{gen: gen}
}

func (s *GeneratorSummarizer) Summarize(ctx context.Context, msg *conversation.Message, maxTokens int) (string, error) {
	if s == nil || s.gen == nil {
		return "", llm.ErrGenerationUnavailable
	}
	if msg == nil {
		return "", errors.New("nil message")
	}

	sys := fmt.Sprintf("Resume el siguiente mensaje de una conversación de seguridad en un máximo de %d palabras. "+
		"Conserva datos técnicos, nombres de sistemas, CVEs y decisiones. Responde solo con el resumen.", maxTokens*3/4+1)
	out, err := s.gen.Generate(ctx, []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage(fmt.Sprintf("[%s] %s", msg.Role, msg.Content)),
	}, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", errors.New("empty summary")
	}
	return text, nil
}
