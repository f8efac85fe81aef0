package synthesis

import (
	"context"
	"errors"
	"testing"

	"SecAssist/internal/modules/ai/domain/intent"
	"SecAssist/internal/modules/ai/infrastructure/llm/llmtest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSynthesize_SingleSuccessPassesThrough(t *testing.T) {
	gen := llmtest.Text("should not be called")
	s := NewSynthesizer(gen, nil)

	res, err := s.Synthesize(context.Background(), "q", []intent.HandlerOutcome{
		{Handler: "risk_analyst", Text: "Riesgo alto en S3", Sources: []string{"CIS AWS 2.1"}},
		{Handler: "threat_intel", Err: errors.New("timeout")},
	})
	require.NoError(t, err)
	assert.Equal(t, "Riesgo alto en S3", res.Text)
	assert.Equal(t, []string{"CIS AWS 2.1"}, res.Sources)
	assert.Equal(t, []string{"risk_analyst"}, res.Handlers)
	assert.False(t, res.Fallback)
	assert.Zero(t, gen.CallCount())
}

func TestSynthesize_MergesSeveral(t *testing.T) {
	gen := llmtest.Text("respuesta combinada")
	s := NewSynthesizer(gen, nil)

	res, err := s.Synthesize(context.Background(), "q", []intent.HandlerOutcome{
		{Handler: "incident_responder", Text: "Aísla el host", Sources: []string{"NIST 800-61", "MITRE T1486"}},
		{Handler: "compliance_advisor", Text: "Notifica en 72h", Sources: []string{"GDPR Art. 33", "nist 800-61"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "respuesta combinada", res.Text)
	assert.Equal(t, []string{"NIST 800-61", "MITRE T1486", "GDPR Art. 33"}, res.Sources)
	assert.False(t, res.Fallback)
	require.Equal(t, 1, gen.CallCount())
	assert.Contains(t, gen.Calls()[0].LastUserContent(), "=== Especialista: compliance_advisor ===")
}

func TestSynthesize_FailureConcatenates(t *testing.T) {
	s := NewSynthesizer(llmtest.Failing(errors.New("503")), nil)

	res, err := s.Synthesize(context.Background(), "q", []intent.HandlerOutcome{
		{Handler: "incident_responder", Text: "Aísla el host"},
		{Handler: "compliance_advisor", Text: "Notifica en 72h "},
	})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Equal(t, "### incident_responder\nAísla el host\n\n### compliance_advisor\nNotifica en 72h", res.Text)
}

func TestSynthesize_NothingSucceeded(t *testing.T) {
	s := NewSynthesizer(llmtest.Text("x"), nil)
	_, err := s.Synthesize(context.Background(), "q", []intent.HandlerOutcome{{Handler: "a", Err: errors.New("x")}})
	assert.ErrorIs(t, err, intent.ErrAllHandlersFailed)
}
