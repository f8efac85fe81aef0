package plugins

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"

	"github.com/cloudwego/eino/schema"
)

// GenericHandlerName handler used when no specialised handler is selected
const GenericHandlerName = "general_assistant"

// maxQueryRunes guards against pasting whole log files into one prompt
const maxQueryRunes = 8000

// PromptHandler SecurityHandler driven by a fixed system prompt.
// The built-in security capabilities only differ in descriptor and prompt.
type PromptHandler struct {
	desc         intent.HandlerDescriptor
	systemPrompt string
	cacheTTL     time.Duration
}

func NewPromptHandler(desc intent.HandlerDescriptor, systemPrompt string, cacheTTL time.Duration) *PromptHandler {
	return &PromptHandler{desc: desc, systemPrompt: systemPrompt, cacheTTL: cacheTTL}
}

func (h *PromptHandler) Descriptor() intent.HandlerDescriptor {
	return h.desc
}

const sourcesInstruction = `

Si te basas en normas, marcos, CVEs, informes o documentación concreta, termina con una línea:
Fuentes: fuente1; fuente2
Si no hay fuentes, omite esa línea. Responde en el idioma del usuario.`

func (h *PromptHandler) BuildPrompt(ctx context.Context, req *HandlerRequest) ([]*schema.Message, error) {
	msgs := make([]*schema.Message, 0, 8)
	sys := h.systemPrompt + sourcesInstruction
	if len(req.Intent.Entities) > 0 {
		sys += "\n\nEntidades detectadas: " + strings.Join(req.Intent.Entities, ", ")
	}
	msgs = append(msgs, schema.SystemMessage(sys))
	msgs = append(msgs, WindowMessages(req.Window, req.Query)...)
	msgs = append(msgs, schema.UserMessage(req.Query))
	return msgs, nil
}

func (h *PromptHandler) ParseResponse(ctx context.Context, llmOutput string, req *HandlerRequest) (*HandlerResponse, error) {
	body, sources := ParseSources(llmOutput)
	if body == "" {
		return nil, errors.New("empty handler output")
	}
	return &HandlerResponse{
		Output:  body,
		Sources: sources,
		Metadata: map[string]any{
			"handler": h.desc.Name,
			"format":  "markdown",
		},
	}, nil
}

func (h *PromptHandler) Validate(ctx context.Context, req *HandlerRequest) error {
	if req == nil || strings.TrimSpace(req.Query) == "" {
		return conversation.ErrEmptyQuery
	}
	if len([]rune(req.Query)) > maxQueryRunes {
		return fmt.Errorf("query exceeds %d characters", maxQueryRunes)
	}
	return nil
}

// CacheKey only idempotent handlers are cached; the key covers query and window.
func (h *PromptHandler) CacheKey(ctx context.Context, req *HandlerRequest) string {
	if h.desc.Mode != intent.ModeIdempotent || h.cacheTTL <= 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(req.Query)
	if req.Window != nil {
		for _, m := range req.Window.Messages {
			fmt.Fprintf(&b, "|%s:%s", m.Role, m.Content)
		}
	}
	hash := md5.Sum([]byte(b.String()))
	return fmt.Sprintf("secassist:handler:%s:%s:%s", h.desc.Name, req.UserID, hex.EncodeToString(hash[:]))
}

func (h *PromptHandler) CacheTTL() time.Duration {
	return h.cacheTTL
}

// WindowMessages renders the context window as chat history. The trailing
// copy of the current query, already persisted, is skipped.
func WindowMessages(w *conversation.ContextWindow, query string) []*schema.Message {
	if w.Empty() {
		return nil
	}
	msgs := w.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == conversation.RoleUser && msgs[n-1].Content == query {
		msgs = msgs[:n-1]
	}
	out := make([]*schema.Message, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case conversation.RoleAssistant:
			out = append(out, schema.AssistantMessage(m.Content, nil))
		case conversation.RoleSummary:
			out = append(out, schema.SystemMessage("Resumen de un mensaje anterior: "+m.Content))
		default:
			out = append(out, schema.UserMessage(m.Content))
		}
	}
	return out
}

func NewRiskHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name:    "risk_analyst",
		Tags:    []intent.Tag{intent.TagRisk},
		Markers: []string{"riesgo", "risk", "vulnerabilidad", "vulnerability", "cvss", "exposición", "exposure"},
		Mode:    intent.ModeStateless,
	}, `Eres un analista de riesgos de ciberseguridad. Identifica activos, amenazas y vulnerabilidades
implicados en la consulta, estima probabilidad e impacto de forma cualitativa (alto/medio/bajo) y
propón controles priorizados. Sé concreto y usa listas numeradas.`, 0)
}

func NewIncidentHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name:    "incident_responder",
		Tags:    []intent.Tag{intent.TagIncident},
		Markers: []string{"incidente", "incident", "brecha", "breach", "ransomware", "intrusión", "compromiso"},
		Mode:    intent.ModeStateless,
	}, `Eres un coordinador de respuesta a incidentes. Estructura la respuesta en contención,
erradicación, recuperación y lecciones aprendidas. Señala qué evidencias conservar y a quién notificar.`, 0)
}

func NewComplianceHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name:    "compliance_advisor",
		Tags:    []intent.Tag{intent.TagCompliance},
		Markers: []string{"gdpr", "rgpd", "iso 27001", "iso27001", "soc2", "soc 2", "pci", "hipaa", "nist", "cumplimiento", "normativa", "lopd", "ens", "nis2", "dora"},
		Mode:    intent.ModeIdempotent,
	}, `Eres un asesor de cumplimiento normativo en seguridad de la información. Relaciona la consulta
con los requisitos aplicables, indica qué evidencias se esperan en una auditoría y cita el artículo o
control concreto cuando sea posible.`, 10*time.Minute)
}

func NewThreatHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name:    "threat_intel",
		Tags:    []intent.Tag{intent.TagThreat},
		Markers: []string{"amenaza", "threat", "apt", "ioc", "phishing", "malware", "mitre", "att&ck", "ttp"},
		Mode:    intent.ModeStateless,
	}, `Eres un analista de inteligencia de amenazas. Describe actores, técnicas (MITRE ATT&CK cuando
aplique), indicadores de compromiso y medidas de detección y mitigación.`, 0)
}

func NewReportingHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name:    "security_reporter",
		Tags:    []intent.Tag{intent.TagReporting},
		Markers: []string{"informe", "report", "kpi", "métrica", "metric", "dashboard", "resumen ejecutivo"},
		Mode:    intent.ModeStateless,
	}, `Eres un responsable de reporting de seguridad. Produce contenido apto para un informe: resumen
ejecutivo, hallazgos clave, métricas sugeridas y próximos pasos.`, 0)
}

func NewProactiveReviewHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name:    "proactive_reviewer",
		Tags:    []intent.Tag{intent.TagProactiveReview},
		Markers: []string{"revisión", "review", "hardening", "bastionado", "auditoría", "audit", "configuración"},
		Mode:    intent.ModeStateless,
	}, `Eres un revisor proactivo de postura de seguridad. Propón una lista de comprobación de
configuraciones, brechas habituales y mejoras preventivas ordenadas por impacto.`, 0)
}

// NewGenericHandler direct generation for general queries; it has no intent tags
// so the selector never picks it as a primary or secondary.
func NewGenericHandler() *PromptHandler {
	return NewPromptHandler(intent.HandlerDescriptor{
		Name: GenericHandlerName,
		Mode: intent.ModeStateless,
	}, `Eres un asistente de ciberseguridad para equipos de una organización. Responde de forma clara y
práctica.`, 0)
}

// DefaultHandlers built-in specialised handlers in registration order
func DefaultHandlers() []SecurityHandler {
	return []SecurityHandler{
		NewRiskHandler(),
		NewIncidentHandler(),
		NewComplianceHandler(),
		NewThreatHandler(),
		NewReportingHandler(),
		NewProactiveReviewHandler(),
	}
}
