package synthesis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/llm"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/internal/modules/ai/infrastructure/plugins"
	"SecAssist/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const synthesisSystemPrompt = `Eres el redactor final de un asistente de ciberseguridad. Recibirás las respuestas
de varios especialistas a la misma consulta. Combínalas en una única respuesta coherente:
elimina repeticiones, resuelve contradicciones indicando la opción más prudente y conserva
los datos técnicos concretos. No inventes información nueva ni añadas una sección de fuentes.`

// Result merged reply; Fallback is set when the labelled concatenation was used
type Result struct {
	Text     string
	Sources  []string
	Handlers []string
	Fallback bool
}

// Synthesizer merges successful handler outputs into one reply.
type Synthesizer struct {
	gen     llm.Generator
	metrics *metrics.Metrics
}

func NewSynthesizer(gen llm.Generator, m *metrics.Metrics) *Synthesizer {
	return &Synthesizer{gen: gen, metrics: m}
}

// Synthesize never fails once at least one outcome succeeded.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, outcomes []intent.HandlerOutcome) (*Result, error) {
	ok := make([]intent.HandlerOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.OK() {
			ok = append(ok, o)
		}
	}
	if len(ok) == 0 {
		return nil, intent.ErrAllHandlersFailed
	}

	res := &Result{}
	for _, o := range ok {
		res.Handlers = append(res.Handlers, o.Handler)
		res.Sources = plugins.DedupSources(res.Sources, o.Sources)
	}

	if len(ok) == 1 {
		res.Text = ok[0].Text
		return res, nil
	}

	start := time.Now()
	text, err := s.merge(ctx, query, ok)
	if err != nil {
		s.metrics.SynthesisFallback()
		zlog.Warn("synthesis failed, using labelled concatenation",
			zap.Strings("handlers", res.Handlers),
			zap.Error(err))
		res.Text = Concatenate(ok)
		res.Fallback = true
		return res, nil
	}

	zlog.Info("synthesis done",
		zap.Strings("handlers", res.Handlers),
		zap.Int64("cost_ms", time.Since(start).Milliseconds()))
	res.Text = text
	return res, nil
}

func (s *Synthesizer) merge(ctx context.Context, query string, ok []intent.HandlerOutcome) (string, error) {
	if s.gen == nil {
		return "", llm.ErrGenerationUnavailable
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Consulta del usuario: %s\n\n", query)
	for _, o := range ok {
		fmt.Fprintf(&b, "=== Especialista: %s ===\n%s\n\n", o.Handler, o.Text)
	}
	out, err := s.gen.Generate(ctx, []*schema.Message{
		schema.SystemMessage(synthesisSystemPrompt),
		schema.UserMessage(b.String()),
	}, nil)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("empty synthesis")
	}
	return text, nil
}

// Concatenate labelled sections in outcome order
func Concatenate(outcomes []intent.HandlerOutcome) string {
	parts := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		parts = append(parts, fmt.Sprintf("### %s\n%s", o.Handler, strings.TrimSpace(o.Text)))
	}
	return strings.Join(parts, "\n\n")
}
