package intent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseTag(t *testing.T) {
	for in, want := range map[string]Tag{
		"risk":             TagRisk,
		" Incident ":       TagIncident,
		"proactive-review": TagProactiveReview,
		"Proactive Review": TagProactiveReview,
	} {
		got, ok := ParseTag(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseTag("weather")
	assert.False(t, ok)
}

func TestHandlerDescriptor_Recognizes(t *testing.T) {
	d := HandlerDescriptor{
		Name:    "compliance_advisor",
		Tags:    []Tag{TagCompliance},
		Markers: []string{"gdpr", "iso 27001", "pci"},
	}

	assert.True(t, d.Recognizes("GDPR"))
	assert.True(t, d.Recognizes("requisitos GDPR art. 33"))
	assert.True(t, d.Recognizes("ISO-27001"))
	assert.True(t, d.Recognizes("compliance"))
	assert.False(t, d.Recognizes("specific host"), "marker must match a whole word")
	assert.False(t, d.Recognizes(""))
	assert.True(t, d.Serves(TagCompliance))
	assert.False(t, d.Serves(TagRisk))
}

func TestDecision(t *testing.T) {
	assert.True(t, Decision{Route: RouteFlagged}.LowConfidence())
	assert.True(t, Decision{Route: RouteClarify}.ClarificationRequired())
	assert.False(t, Decision{Route: RouteDirect}.ClarificationRequired())
}
