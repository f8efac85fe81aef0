package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	conf, err := Parse(``)
	require.NoError(t, err)

	assert.Equal(t, "SecAssist", conf.MainConfig.AppName)
	assert.Equal(t, 0.85, conf.OrchestratorConfig.HighThreshold)
	assert.Equal(t, 0.70, conf.OrchestratorConfig.MediumThreshold)
	assert.Equal(t, "flag", conf.OrchestratorConfig.MediumBandPolicy)
	assert.Equal(t, 3, conf.OrchestratorConfig.MaxHandlers)
	assert.Equal(t, 30*time.Second, conf.OrchestratorConfig.RequestTimeout())
	assert.Equal(t, conf.OrchestratorConfig.GenerationTimeout(), conf.OrchestratorConfig.HandlerTimeout())
	assert.Equal(t, 200, conf.ContextConfig.HistoryCap)
	assert.Equal(t, 30*time.Minute, conf.ContextConfig.HalfLife())

	require.Len(t, conf.RetentionConfig.Rules, 1)
	assert.Equal(t, "default", conf.RetentionConfig.Rules[0].Category)
}

func TestParse_Sections(t *testing.T) {
	conf, err := Parse(`
[mainConfig]
port = 9001

[orchestratorConfig]
highThreshold = 0.9
mediumThreshold = 0.6
mediumBandPolicy = "clarify"

[privacyConfig]
exemptCategories = ["ip_address", "name"]

[[retentionConfig.rules]]
category = "incident"
maxAgeDays = 365
`)
	require.NoError(t, err)

	assert.Equal(t, 9001, conf.MainConfig.Port)
	assert.Equal(t, 0.9, conf.OrchestratorConfig.HighThreshold)
	assert.Equal(t, "clarify", conf.OrchestratorConfig.MediumBandPolicy)
	assert.Equal(t, []string{"ip_address", "name"}, conf.PrivacyConfig.ExemptCategories)

	cats := make([]string, 0, len(conf.RetentionConfig.Rules))
	for _, r := range conf.RetentionConfig.Rules {
		cats = append(cats, r.Category)
	}
	assert.Equal(t, []string{"incident", "default"}, cats)
}

func TestParse_Invalid(t *testing.T) {
	cases := map[string]string{
		"medium above high": `
[orchestratorConfig]
highThreshold = 0.6
mediumThreshold = 0.8
`,
		"unknown policy": `
[orchestratorConfig]
mediumBandPolicy = "block"
`,
		"duplicate rule": `
[[retentionConfig.rules]]
category = "risk"
maxAgeDays = 10
[[retentionConfig.rules]]
category = "risk"
maxAgeDays = 20
`,
		"non positive age": `
[[retentionConfig.rules]]
category = "risk"
maxAgeDays = 0
`,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse(data)
			assert.Error(t, err)
		})
	}
}
