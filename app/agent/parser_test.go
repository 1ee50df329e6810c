package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance-rag/config"
	"compliance-rag/types"
)

func TestParseVerdict(t *testing.T) {
	rules := config.Default().FallbackRules

	tests := []struct {
		name       string
		raw        string
		provenance types.Provenance
		anchors    []string
		severities []types.Severity
	}{
		{
			name:       "findings object",
			raw:        `{"findings":[{"anchor":"UAE Courts","comment":"c","severity":"High"},{"anchor":"Dubai","comment":"d"}]}`,
			provenance: types.ProvenanceStructured,
			anchors:    []string{"UAE Courts", "Dubai"},
			severities: []types.Severity{types.SeverityHigh, types.SeverityMedium},
		},
		{
			name:       "fenced json with prose",
			raw:        "Sure!\n```json\n{\"findings\": [{\"text\": \"clause 4\", \"recommendation\": \"r\", \"severity\": \"low\"}]}\n```",
			provenance: types.ProvenanceStructured,
			anchors:    []string{"clause 4"},
			severities: []types.Severity{types.SeverityLow},
		},
		{
			name:       "bare array",
			raw:        `[{"anchor":"a","severity":"Medium"},{"anchor":"b","severity":"unknown"}]`,
			provenance: types.ProvenanceStructured,
			anchors:    []string{"a", "b"},
			severities: []types.Severity{types.SeverityMedium, types.SeverityMedium},
		},
		{
			name:       "legacy mapping sorted by anchor",
			raw:        `{"zeta": {"comment": "z", "severity": "Low"}, "alpha": {"comment": "a", "severity": "High"}}`,
			provenance: types.ProvenanceStructured,
			anchors:    []string{"alpha", "zeta"},
			severities: []types.Severity{types.SeverityHigh, types.SeverityLow},
		},
		{
			name:       "empty findings",
			raw:        `{"findings": []}`,
			provenance: types.ProvenanceStructured,
			anchors:    []string{},
		},
		{
			name:       "prose mentioning jurisdiction",
			raw:        "The Jurisdiction clause refers to onshore courts.",
			provenance: types.ProvenanceFallback,
			anchors:    []string{"jurisdiction"},
			severities: []types.Severity{types.SeverityHigh},
		},
		{
			name:       "prose without known terms",
			raw:        "Looks fine to me.",
			provenance: types.ProvenanceFallback,
			anchors:    []string{},
		},
		{
			name:       "broken json falls back",
			raw:        `{"findings": [{"anchor": "jurisdiction"`,
			provenance: types.ProvenanceFallback,
			anchors:    []string{"jurisdiction"},
			severities: []types.Severity{types.SeverityHigh},
		},
		{
			name:       "object of scalars is not a mapping",
			raw:        `{"status": "ok"}`,
			provenance: types.ProvenanceFallback,
			anchors:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseVerdict(tt.raw, rules)
			assert.Equal(t, tt.raw, res.Raw)
			assert.Equal(t, tt.provenance, res.Provenance)
			require.NotNil(t, res.Findings)

			anchors := make([]string, 0, len(res.Findings))
			for i, f := range res.Findings {
				anchors = append(anchors, f.Anchor)
				if tt.severities != nil {
					assert.Equal(t, tt.severities[i], f.Severity)
				}
			}
			assert.Equal(t, tt.anchors, anchors)
		})
	}
}

func TestParseVerdict_FallbackUsesRuleText(t *testing.T) {
	rules := []config.FallbackRule{
		{Term: "Registered Office", Severity: "Medium", Recommendation: "State an ADGM address."},
		{Term: "jurisdiction", Severity: "High", Recommendation: "Use ADGM Courts."},
	}

	res := ParseVerdict("no registered office given; jurisdiction unclear", rules)
	require.Len(t, res.Findings, 2)
	assert.Equal(t, "Registered Office", res.Findings[0].Anchor)
	assert.Equal(t, "State an ADGM address.", res.Findings[0].Recommendation)
	assert.Equal(t, types.SeverityMedium, res.Findings[0].Severity)
	assert.Equal(t, "jurisdiction", res.Findings[1].Anchor)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
}
