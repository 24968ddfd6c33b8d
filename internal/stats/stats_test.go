package stats_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadfunnel/leadfunnel/internal/funnel"
	"github.com/leadfunnel/leadfunnel/internal/stats"
	"github.com/leadfunnel/leadfunnel/internal/store"
)

func TestZScore(t *testing.T) {
	assert.InDelta(t, 1.645, stats.ZScore(0.90), 0.01)
	assert.InDelta(t, 1.96, stats.ZScore(0.95), 0.01)
	assert.InDelta(t, 2.576, stats.ZScore(0.99), 0.01)
}

func TestWilsonInterval(t *testing.T) {
	lower, upper := stats.WilsonInterval(50, 100, 0.95)
	assert.InDelta(t, 0.40, lower, 0.02)
	assert.InDelta(t, 0.60, upper, 0.02)

	lower, upper = stats.WilsonInterval(0, 0, 0.95)
	assert.Zero(t, lower)
	assert.Zero(t, upper)

	lower, upper = stats.WilsonInterval(0, 100, 0.95)
	assert.Zero(t, lower)
	assert.InDelta(t, 0.03, upper, 0.02)

	lower, upper = stats.WilsonInterval(100, 100, 0.95)
	assert.InDelta(t, 0.97, lower, 0.02)
	assert.LessOrEqual(t, upper, 1.0)

	lower, upper = stats.WilsonInterval(5, 10, 0.95)
	assert.Greater(t, upper-lower, 0.3, "small samples give wide intervals")
}

func TestSignificanceTest(t *testing.T) {
	assert.Equal(t, 0.5, stats.SignificanceTest(0, 0, 5, 100))
	assert.Equal(t, 0.5, stats.SignificanceTest(10, 100, 10, 100))
	assert.Greater(t, stats.SignificanceTest(30, 100, 10, 100), 0.99)
	assert.Less(t, stats.SignificanceTest(10, 100, 30, 100), 0.01)
	assert.Equal(t, 1.0, stats.SignificanceTest(100, 100, 0, 100))
}

func TestAnalyze(t *testing.T) {
	step := &funnel.MessageStep{StepBase: funnel.StepBase{
		ID:            "hero",
		ABTestEnabled: true,
		Variants: []funnel.StepVariant{
			{ID: "A", Name: "Control", Weight: 50},
			{ID: "B", Name: "Bold", Weight: 50},
			{ID: "C", Name: "Quiet", Weight: 0},
		},
	}}

	res := stats.Analyze(step, []store.VariantStats{
		{VariantID: "A", Views: 1000, Conversions: 100},
		{VariantID: "B", Views: 1000, Conversions: 160},
	})

	require.Len(t, res.Variants, 3)
	assert.Equal(t, "hero", res.StepID)
	assert.Equal(t, 1, res.LeadingVariant)
	assert.InDelta(t, 0.16, res.Variants[1].Rate, 1e-9)
	assert.Zero(t, res.Variants[2].Views)
	assert.True(t, res.Confident)
}

func TestAnalyze_ControlLeading(t *testing.T) {
	step := &funnel.MessageStep{StepBase: funnel.StepBase{
		ID:            "hero",
		ABTestEnabled: true,
		Variants:      []funnel.StepVariant{{ID: "A"}, {ID: "B"}},
	}}

	res := stats.Analyze(step, []store.VariantStats{
		{VariantID: "A", Views: 100, Conversions: 12},
		{VariantID: "B", Views: 100, Conversions: 10},
	})
	assert.Equal(t, 0, res.LeadingVariant)
	assert.False(t, res.Confident)
	assert.Greater(t, res.ConfidenceLevel, 0.5)
}

func TestAnalyze_NoVariants(t *testing.T) {
	step := &funnel.WelcomeStep{StepBase: funnel.StepBase{ID: "w"}}
	res := stats.Analyze(step, nil)
	require.Len(t, res.Variants, 1)
	assert.Equal(t, funnel.OriginalVariantID, res.Variants[0].ID)
	assert.Zero(t, res.ConfidenceLevel)
}
