package routing

import (
	"context"
	"errors"
	"testing"
	"time"

	"SecAssist/internal/modules/ai/domain/conversation"
	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/llm"
	"SecAssist/internal/modules/ai/infrastructure/llm/llmtest"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThresholds_Boundaries(t *testing.T) {
	th := DefaultThresholds()
	cases := []struct {
		conf float64
		want intent.Route
	}{
		{1, intent.RouteDirect},
		{0.85, intent.RouteDirect},
		{0.8499, intent.RouteFlagged},
		{0.70, intent.RouteFlagged},
		{0.6999, intent.RouteClarify},
		{0, intent.RouteClarify},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, th.Route(tc.conf), "confidence %v", tc.conf)
	}

	th.ClarifyMediumBand = true
	assert.Equal(t, intent.RouteClarify, th.Route(0.75))
	assert.Equal(t, intent.RouteDirect, th.Route(0.9))
}

func TestParseClassification(t *testing.T) {
	in, err := ParseClassification("```json\n{\"intent\":\"Proactive-Review\",\"confidence\":0.91,\"entities\":[\" AWS \",\"\"]}\n```")
	require.NoError(t, err)
	assert.Equal(t, intent.TagProactiveReview, in.Tag)
	assert.InDelta(t, 0.91, in.Confidence, 1e-9)
	assert.Equal(t, []string{"AWS"}, in.Entities)

	for _, bad := range []string{
		"no json here",
		`{"intent":"weather","confidence":0.9}`,
		`{"intent":"risk","confidence":"high"}`,
		`{"intent":"risk","confidence":1.4}`,
		`{"intent":"risk"}`,
	} {
		_, err := ParseClassification(bad)
		assert.ErrorIs(t, err, intent.ErrInvalidClassification, bad)
	}
}

func toolCall(args string) *llm.Generation {
	return &llm.Generation{ToolCalls: []schema.ToolCall{{
		ID:       "c1",
		Function: schema.FunctionCall{Name: "classify_intent", Arguments: args},
	}}}
}

func TestClassifierGate_ToolCall(t *testing.T) {
	gen := llmtest.New(func(ctx context.Context, call llmtest.Call) (*llm.Generation, error) {
		return toolCall(`{"intent":"risk","confidence":0.92,"entities":["S3"]}`), nil
	})
	gate := NewClassifierGate(gen, DefaultThresholds(), nil)

	window := &conversation.ContextWindow{Messages: []*conversation.Message{
		{Role: conversation.RoleAssistant, Content: "1. Buckets públicos"},
	}}
	d := gate.Classify(context.Background(), "Dame más detalles del primero", window)
	assert.Equal(t, intent.TagRisk, d.Intent.Tag)
	assert.Equal(t, intent.RouteDirect, d.Route)
	assert.Equal(t, 1, d.Attempts)
	assert.False(t, d.Fallback)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	require.Len(t, calls[0].Tools, 1)
	assert.Equal(t, "classify_intent", calls[0].Tools[0].Name)
	assert.Contains(t, calls[0].LastUserContent(), "Buckets públicos")
}

func TestClassifierGate_RetryThenSuccess(t *testing.T) {
	n := 0
	gen := llmtest.New(func(ctx context.Context, call llmtest.Call) (*llm.Generation, error) {
		n++
		if n == 1 {
			return &llm.Generation{Text: "creo que es sobre riesgos"}, nil
		}
		return &llm.Generation{Text: `{"intent":"compliance","confidence":0.75,"entities":["GDPR"]}`}, nil
	})
	gate := NewClassifierGate(gen, DefaultThresholds(), nil)

	d := gate.Classify(context.Background(), "¿Qué pide el RGPD?", nil)
	assert.Equal(t, intent.TagCompliance, d.Intent.Tag)
	assert.Equal(t, intent.RouteFlagged, d.Route)
	assert.True(t, d.LowConfidence())
	assert.Equal(t, 2, d.Attempts)
	assert.Contains(t, gen.Calls()[1].Messages[len(gen.Calls()[1].Messages)-1].Content, "ÚNICAMENTE")
}

func TestClassifierGate_FallbackAfterTwoFailures(t *testing.T) {
	gen := llmtest.Failing(errors.New("timeout"))
	gate := NewClassifierGate(gen, DefaultThresholds(), nil)

	d := gate.Classify(context.Background(), "hola", nil)
	assert.True(t, d.Fallback)
	assert.Equal(t, intent.TagGeneral, d.Intent.Tag)
	assert.Zero(t, d.Intent.Confidence)
	assert.Equal(t, intent.RouteClarify, d.Route)
	assert.Equal(t, 2, gen.CallCount())
}

func TestClassifierGate_CancelledContextDoesNotRetry(t *testing.T) {
	gen := llmtest.Text(`{"intent":"risk","confidence":0.9}`)
	gate := NewClassifierGate(gen, DefaultThresholds(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)
	d := gate.Classify(ctx, "hola", nil)
	assert.True(t, d.Fallback)
	assert.Equal(t, 1, gen.CallCount())
}

func testDescriptors() []intent.HandlerDescriptor {
	return []intent.HandlerDescriptor{
		{Name: "risk_analyst", Tags: []intent.Tag{intent.TagRisk}, Markers: []string{"riesgo", "cvss"}},
		{Name: "incident_responder", Tags: []intent.Tag{intent.TagIncident}, Markers: []string{"ransomware", "brecha"}},
		{Name: "compliance_advisor", Tags: []intent.Tag{intent.TagCompliance}, Markers: []string{"gdpr", "iso 27001"}},
		{Name: "threat_intel", Tags: []intent.Tag{intent.TagThreat}, Markers: []string{"apt", "malware"}},
	}
}

func names(ds []intent.HandlerDescriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func TestRegistry_Select(t *testing.T) {
	r, err := NewRegistry(3, testDescriptors()...)
	require.NoError(t, err)

	assert.Equal(t, []string{"risk_analyst"}, names(r.Select(intent.Intent{Tag: intent.TagRisk, Entities: []string{"S3"}})))

	got := r.Select(intent.Intent{Tag: intent.TagIncident, Entities: []string{"malware LockBit", "GDPR notificación", "riesgo residual"}})
	assert.Equal(t, []string{"incident_responder", "risk_analyst", "compliance_advisor"}, names(got))

	assert.Empty(t, r.Select(intent.Intent{Tag: intent.TagGeneral, Entities: []string{"gdpr"}}))
	assert.Empty(t, r.Select(intent.Intent{Tag: intent.TagReporting}))

	one, err := NewRegistry(1, testDescriptors()...)
	require.NoError(t, err)
	assert.Len(t, one.Select(intent.Intent{Tag: intent.TagIncident, Entities: []string{"gdpr"}}), 1)

	_, err = NewRegistry(3, testDescriptors()[0], testDescriptors()[0])
	assert.Error(t, err)
}
