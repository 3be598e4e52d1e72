package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coursebridge/proposal-cli/internal/model"
)

func plainCandidate() model.CandidateEntity {
	return model.CandidateEntity{
		Name:      "Quiet Books LLC",
		SizeClass: model.SizeMidMarket,
	}
}

func TestEstimatePrice_BaseOnly(t *testing.T) {
	e := NewEngine(DefaultTable())

	b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, plainCandidate())
	require.NoError(t, err)

	// 12*8*4*45 + 500 = 17780
	assert.Equal(t, 17780.0, b.BaseSubtotal)
	assert.Empty(t, b.Adjustments)
	assert.Equal(t, 17800.0, b.FinalPrice) // rounded to nearest 100
}

func TestEstimatePrice_AdvancedTier(t *testing.T) {
	e := NewEngine(DefaultTable())

	b, err := e.EstimatePrice(10, 6, 3, model.TierAdvanced, plainCandidate())
	require.NoError(t, err)

	// 10*6*3*65 + 1200 = 12900
	assert.Equal(t, 12900.0, b.BaseSubtotal)
	assert.Equal(t, 12900.0, b.FinalPrice)
}

func TestEstimatePrice_InvalidInputs(t *testing.T) {
	e := NewEngine(DefaultTable())

	_, err := e.EstimatePrice(0, 8, 4, model.TierStandard, plainCandidate())
	assert.Error(t, err)
	_, err = e.EstimatePrice(12, -1, 4, model.TierStandard, plainCandidate())
	assert.Error(t, err)
	_, err = e.EstimatePrice(12, 8, 0, model.TierStandard, plainCandidate())
	assert.Error(t, err)
	_, err = e.EstimatePrice(12, 8, 4, model.DifficultyTier("heroic"), plainCandidate())
	assert.Error(t, err)
}

func TestEstimatePrice_UrgencyBands(t *testing.T) {
	e := NewEngine(DefaultTable())

	tests := []struct {
		open int
		want float64
	}{
		{0, 0},    // no adjustment at all
		{1, 1.05},
		{3, 1.05},
		{4, 1.12},
		{10, 1.12},
		{11, 1.20},
		{50, 1.20},
	}
	for _, tt := range tests {
		c := plainCandidate()
		c.Intel = &model.MarketIntel{OpenPositions: tt.open}

		b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, c)
		require.NoError(t, err)

		if tt.want == 0 {
			assert.Empty(t, b.Adjustments, "open=%d", tt.open)
			continue
		}
		require.Len(t, b.Adjustments, 1, "open=%d", tt.open)
		assert.Equal(t, "hiring_urgency", b.Adjustments[0].Name)
		assert.Equal(t, tt.want, b.Adjustments[0].Multiplier, "open=%d", tt.open)
	}
}

func TestEstimatePrice_FundingStageLookup(t *testing.T) {
	e := NewEngine(DefaultTable())

	c := plainCandidate()
	c.Intel = &model.MarketIntel{FundingStage: "Bootstrapped"}

	b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	require.Len(t, b.Adjustments, 1)
	assert.Equal(t, "funding_stage", b.Adjustments[0].Name)
	assert.Equal(t, 0.90, b.Adjustments[0].Multiplier)

	c.Intel.FundingStage = "series_c"
	b, err = e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	assert.Equal(t, 1.15, b.Adjustments[0].Multiplier)

	// Unknown stages contribute nothing.
	c.Intel.FundingStage = "angel"
	b, err = e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	assert.Empty(t, b.Adjustments)
}

func TestEstimatePrice_TechComplexityBands(t *testing.T) {
	e := NewEngine(DefaultTable())

	c := plainCandidate()
	c.Intel = &model.MarketIntel{Technologies: []string{"Kubernetes"}}

	b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	require.Len(t, b.Adjustments, 1)
	assert.Equal(t, "tech_complexity", b.Adjustments[0].Name)
	assert.Equal(t, 1.08, b.Adjustments[0].Multiplier)

	c.Intel.Technologies = []string{"kubernetes", "terraform", "kafka", "excel"}
	b, err = e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	assert.Equal(t, 1.15, b.Adjustments[0].Multiplier)

	c.Intel.Technologies = []string{"excel", "word"}
	b, err = e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	assert.Empty(t, b.Adjustments)
}

func TestEstimatePrice_StrategicAndSize(t *testing.T) {
	e := NewEngine(DefaultTable())

	c := model.CandidateEntity{
		Name:          "Beacon Health Network",
		SizeClass:     model.SizeEnterprise,
		InferredNeeds: []string{"digital transformation of patient intake"},
	}

	b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	require.Len(t, b.Adjustments, 2)
	assert.Equal(t, "strategic_value", b.Adjustments[0].Name)
	assert.Equal(t, 1.10, b.Adjustments[0].Multiplier)
	assert.Equal(t, "org_size", b.Adjustments[1].Name)
	assert.Equal(t, 1.15, b.Adjustments[1].Multiplier)
}

func TestEstimatePrice_SmallAndNonprofitDiscount(t *testing.T) {
	e := NewEngine(DefaultTable())

	for _, size := range []model.SizeClass{model.SizeSmall, model.SizeNonprofit} {
		c := plainCandidate()
		c.SizeClass = size
		b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, c)
		require.NoError(t, err)
		require.Len(t, b.Adjustments, 1)
		assert.Equal(t, 0.85, b.Adjustments[0].Multiplier)
	}
}

func TestEstimatePrice_AdjustmentOrderFixed(t *testing.T) {
	e := NewEngine(DefaultTable())

	c := model.CandidateEntity{
		Name:          "Hyperloop Logistics",
		SizeClass:     model.SizeEnterprise,
		InferredNeeds: []string{"expansion into new market"},
		Intel: &model.MarketIntel{
			OpenPositions: 12,
			FundingStage:  "series_b",
			Technologies:  []string{"kafka", "spark", "snowflake"},
		},
	}

	b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)

	names := make([]string, len(b.Adjustments))
	for i, a := range b.Adjustments {
		names[i] = a.Name
	}
	assert.Equal(t, []string{"hiring_urgency", "funding_stage", "tech_complexity", "strategic_value", "org_size"}, names)
}

// Replaying the adjustment list against the base must reproduce the final
// price for every input combination.
func TestReplay_ReproducesFinalPrice(t *testing.T) {
	e := NewEngine(DefaultTable())

	candidates := []model.CandidateEntity{
		plainCandidate(),
		{
			Name:      "Tiny Nonprofit",
			SizeClass: model.SizeNonprofit,
			Intel:     &model.MarketIntel{OpenPositions: 2, FundingStage: "seed"},
		},
		{
			Name:          "Colossus Corp",
			SizeClass:     model.SizeEnterprise,
			InferredNeeds: []string{"launch a modernization program"},
			Intel: &model.MarketIntel{
				OpenPositions: 20,
				FundingStage:  "public",
				Technologies:  []string{"rust", "kubernetes", "pytorch", "kafka"},
			},
		},
	}

	for _, c := range candidates {
		for _, weeks := range []int{6, 12, 15} {
			for _, hours := range []int{4, 10} {
				for _, team := range []int{2, 5} {
					for _, tier := range []model.DifficultyTier{model.TierStandard, model.TierAdvanced} {
						b, err := e.EstimatePrice(weeks, hours, team, tier, c)
						require.NoError(t, err)

						assert.Equal(t, b.FinalPrice, e.Replay(b),
							"candidate=%s weeks=%d hours=%d team=%d tier=%s",
							c.Name, weeks, hours, team, tier)
					}
				}
			}
		}
	}
}

func TestRounding_NearestUnit(t *testing.T) {
	e := NewEngine(DefaultTable())

	b, err := e.EstimatePrice(12, 8, 4, model.TierStandard, plainCandidate())
	require.NoError(t, err)
	assert.Zero(t, math.Mod(b.FinalPrice, 100))

	c := plainCandidate()
	c.Intel = &model.MarketIntel{OpenPositions: 5}
	b, err = e.EstimatePrice(12, 8, 4, model.TierStandard, c)
	require.NoError(t, err)
	// 17780 * 1.12 = 19913.6 → 19900
	assert.Equal(t, 19900.0, b.FinalPrice)
}
