package plugins

import (
	"context"
	"strings"
	"testing"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSources(t *testing.T) {
	cases := []struct {
		name    string
		in      string
		body    string
		sources []string
	}{
		{"none", "Aplica MFA.", "Aplica MFA.", nil},
		{"inline", "Aplica MFA.\nFuentes: NIST SP 800-63B; CIS Control 6", "Aplica MFA.", []string{"NIST SP 800-63B", "CIS Control 6"}},
		{"comma", "Texto\nSources: GDPR Art. 33, GDPR Art. 34", "Texto", []string{"GDPR Art. 33", "GDPR Art. 34"}},
		{"list", "Texto\n**Fuentes:**\n- ISO 27001 A.5.24\n- iso 27001 a.5.24\n- ENISA", "Texto", []string{"ISO 27001 A.5.24", "ENISA"}},
		{
			"prefix mid reply is body",
			"Resumen del riesgo.\nFuente: el informe DBIR indica que el phishing domina.\n1. Activa MFA.\n2. Forma a los usuarios.",
			"Resumen del riesgo.\nFuente: el informe DBIR indica que el phishing domina.\n1. Activa MFA.\n2. Forma a los usuarios.",
			nil,
		},
		{"trailing blank lines", "Texto\nFuente: MITRE ATT&CK\n\n", "Texto", []string{"MITRE ATT&CK"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body, sources := ParseSources(tc.in)
			assert.Equal(t, tc.body, body)
			assert.Equal(t, tc.sources, sources)
		})
	}
}

func TestDedupSources(t *testing.T) {
	got := DedupSources([]string{"CVE-2024-3094", "NIST"}, []string{"nist", "MITRE T1486", ""})
	assert.Equal(t, []string{"CVE-2024-3094", "NIST", "MITRE T1486"}, got)
}

func TestPromptHandler_BuildPrompt(t *testing.T) {
	h := NewRiskHandler()
	window := &conversation.ContextWindow{Messages: []*conversation.Message{
		{Role: conversation.RoleUser, Content: "¿Riesgos de la nube?"},
		{Role: conversation.RoleAssistant, Content: "1. Buckets públicos"},
		{Role: conversation.RoleSummary, Content: "se habló de IAM"},
		{Role: conversation.RoleUser, Content: "Dame más detalles del primero"},
	}}
	req := &HandlerRequest{
		Query:  "Dame más detalles del primero",
		Intent: intent.Intent{Tag: intent.TagRisk, Entities: []string{"buckets"}},
		Window: window,
	}

	require.NoError(t, h.Validate(context.Background(), req))
	msgs, err := h.BuildPrompt(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "buckets")
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.True(t, strings.HasPrefix(msgs[3].Content, "Resumen"))
	assert.Equal(t, schema.User, msgs[4].Role)
	assert.Equal(t, req.Query, msgs[4].Content)

	assert.ErrorIs(t, h.Validate(context.Background(), &HandlerRequest{Query: " "}), conversation.ErrEmptyQuery)
}

func TestPromptHandler_CacheKey(t *testing.T) {
	ctx := context.Background()
	req := &HandlerRequest{UserID: "u1", Query: "¿Qué exige el artículo 32 del RGPD?"}

	assert.Empty(t, NewRiskHandler().CacheKey(ctx, req), "stateless handlers are not cached")

	c := NewComplianceHandler()
	k1 := c.CacheKey(ctx, req)
	assert.True(t, strings.HasPrefix(k1, "secassist:handler:compliance_advisor:u1:"))
	assert.Equal(t, k1, c.CacheKey(ctx, req))

	other := *req
	other.Query = "¿Y el 33?"
	assert.NotEqual(t, k1, c.CacheKey(ctx, &other))
}

func TestDefaultHandlers_UniqueNames(t *testing.T) {
	seen := map[string]bool{}
	for _, h := range DefaultHandlers() {
		d := h.Descriptor()
		assert.False(t, seen[d.Name], d.Name)
		seen[d.Name] = true
		assert.NotEmpty(t, d.Tags)
	}
	assert.Empty(t, NewGenericHandler().Descriptor().Tags)
}
