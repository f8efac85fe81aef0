package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/llm"
	"SecAssist/internal/modules/ai/infrastructure/metrics"
	"SecAssist/pkg/zlog"

	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
)

const classifyToolName = "classify_intent"

// classifier sees at most this many recent window messages
const classifyContextMessages = 6

const classifySystemPrompt = `Eres el clasificador de intención de un asistente de ciberseguridad.
Clasifica la última consulta del usuario en exactamente una de estas intenciones:
- risk: análisis o evaluación de riesgos y vulnerabilidades
- incident: un incidente en curso o pasado, respuesta y contención
- compliance: normativa, marcos de control, auditorías de cumplimiento
- threat: inteligencia de amenazas, actores, malware, TTPs
- reporting: informes, métricas, resúmenes ejecutivos
- proactive_review: revisiones preventivas de configuración o postura
- general: cualquier otra cosa
Usa la conversación previa para resolver referencias como "el primero" o "eso".
Llama a la herramienta classify_intent con intent, confidence (0 a 1) y entities
(sistemas, normas, CVEs o tecnologías mencionadas).`

const strictRetryPrompt = `Tu respuesta anterior no era válida. Responde ÚNICAMENTE con un objeto JSON
en una sola línea, sin texto adicional, con esta forma exacta:
{"intent":"<risk|incident|compliance|threat|reporting|proactive_review|general>","confidence":<número entre 0 y 1>,"entities":["..."]}`

// ClassifyTool tool schema offered to the model
func ClassifyTool() *schema.ToolInfo {
	tags := make([]string, len(intent.AllTags))
	for i, t := range intent.AllTags {
		tags[i] = string(t)
	}
	return &schema.ToolInfo{
		Name: classifyToolName,
		Desc: "Registra la intención clasificada de la consulta del usuario",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"intent": {
				Type:     schema.String,
				Desc:     "intención de la consulta",
				Enum:     tags,
				Required: true,
			},
			"confidence": {
				Type:     schema.Number,
				Desc:     "confianza entre 0 y 1",
				Required: true,
			},
			"entities": {
				Type:     schema.Array,
				Desc:     "entidades relevantes mencionadas",
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
		}),
	}
}

// ClassifierGate one classification call (plus one strict retry) and the
// confidence gate. It never returns an error: failures fall back to general/0.
type ClassifierGate struct {
	gen        llm.Generator
	thresholds Thresholds
	metrics    *metrics.Metrics
}

func NewClassifierGate(gen llm.Generator, thresholds Thresholds, m *metrics.Metrics) *ClassifierGate {
	return &ClassifierGate{gen: gen, thresholds: thresholds, metrics: m}
}

func (c *ClassifierGate) Thresholds() Thresholds {
	return c.thresholds
}

func (c *ClassifierGate) Classify(ctx context.Context, query string, window *conversation.ContextWindow) intent.Decision {
	start := time.Now()
	base := []*schema.Message{
		schema.SystemMessage(classifySystemPrompt),
		schema.UserMessage(renderClassifyInput(query, window)),
	}
	tools := []*schema.ToolInfo{ClassifyTool()}

	var lastErr error
	attempts := 0
	for attempts < 2 {
		attempts++
		msgs := base
		if attempts > 1 {
			msgs = append(append([]*schema.Message{}, base...), schema.SystemMessage(strictRetryPrompt))
		}

		in, err := c.classifyOnce(ctx, msgs, tools)
		if err == nil {
			d := intent.Decision{Intent: in, Route: c.thresholds.Route(in.Confidence), Attempts: attempts}
			zlog.Info("classify intent done",
				zap.String("intent", string(in.Tag)),
				zap.Float64("confidence", in.Confidence),
				zap.String("route", string(d.Route)),
				zap.Int("attempts", attempts),
				zap.Int64("cost_ms", time.Since(start).Milliseconds()))
			return d
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	c.metrics.ClassificationFallback()
	zlog.Warn("classify intent failed, falling back to general",
		zap.Int("attempts", attempts),
		zap.Error(lastErr))
	fallback := intent.Intent{Tag: intent.TagGeneral, Confidence: 0, Entities: []string{}}
	return intent.Decision{
		Intent:   fallback,
		Route:    c.thresholds.Route(0),
		Attempts: attempts,
		Fallback: true,
	}
}

func (c *ClassifierGate) classifyOnce(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (intent.Intent, error) {
	if c.gen == nil {
		return intent.Intent{}, llm.ErrGenerationUnavailable
	}
	out, err := c.gen.Generate(ctx, msgs, tools)
	if err != nil {
		return intent.Intent{}, err
	}
	for _, tc := range out.ToolCalls {
		if tc.Function.Name == classifyToolName || tc.Function.Name == "" {
			return ParseClassification(tc.Function.Arguments)
		}
	}
	return ParseClassification(out.Text)
}

type classificationPayload struct {
	Intent     string          `json:"intent"`
	Confidence json.RawMessage `json:"confidence"`
	Entities   []string        `json:"entities"`
}

// ParseClassification validates the {"intent","confidence","entities"} contract.
// Surrounding prose and code fences are tolerated.
func ParseClassification(content string) (intent.Intent, error) {
	raw := extractJSONObject(content)
	if raw == "" {
		return intent.Intent{}, fmt.Errorf("%w: json not found", intent.ErrInvalidClassification)
	}
	var p classificationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return intent.Intent{}, fmt.Errorf("%w: %v", intent.ErrInvalidClassification, err)
	}

	tag, ok := intent.ParseTag(p.Intent)
	if !ok {
		return intent.Intent{}, fmt.Errorf("%w: unknown intent %q", intent.ErrInvalidClassification, p.Intent)
	}
	var conf float64
	if len(p.Confidence) == 0 {
		return intent.Intent{}, fmt.Errorf("%w: missing confidence", intent.ErrInvalidClassification)
	}
	if err := json.Unmarshal(p.Confidence, &conf); err != nil {
		return intent.Intent{}, fmt.Errorf("%w: confidence is not a number", intent.ErrInvalidClassification)
	}
	if math.IsNaN(conf) || conf < 0 || conf > 1 {
		return intent.Intent{}, fmt.Errorf("%w: confidence %v out of range", intent.ErrInvalidClassification, conf)
	}

	entities := make([]string, 0, len(p.Entities))
	for _, e := range p.Entities {
		if e = strings.TrimSpace(e); e != "" {
			entities = append(entities, e)
		}
	}
	return intent.Intent{Tag: tag, Confidence: conf, Entities: entities}, nil
}

func renderClassifyInput(query string, window *conversation.ContextWindow) string {
	var b strings.Builder
	if !window.Empty() {
		msgs := window.Messages
		if n := len(msgs); n > 0 && msgs[n-1].Role == conversation.RoleUser && msgs[n-1].Content == query {
			msgs = msgs[:n-1]
		}
		if len(msgs) > classifyContextMessages {
			msgs = msgs[len(msgs)-classifyContextMessages:]
		}
		if len(msgs) > 0 {
			b.WriteString("Conversación previa:\n")
			for _, m := range msgs {
				fmt.Fprintf(&b, "[%s] %s\n", m.Role, m.Content)
			}
			b.WriteString("\n")
		}
	}
	b.WriteString("Consulta: ")
	b.WriteString(query)
	return b.String()
}

func extractJSONObject(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
