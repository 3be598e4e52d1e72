package pricing

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// TierRate holds the base labor rate and materials allowance for one
// difficulty tier.
type TierRate struct {
	HourlyRate float64 `yaml:"hourly_rate"`
	Materials  float64 `yaml:"materials"`
}

// UrgencyBand maps an open-position threshold to a multiplier. Bands are
// evaluated highest threshold first.
type UrgencyBand struct {
	MinOpenPositions int     `yaml:"min_open_positions"`
	Multiplier       float64 `yaml:"multiplier"`
}

// Table is the full pricing rate table. A YAML file can override the
// compiled-in defaults.
type Table struct {
	Tiers             map[string]TierRate `yaml:"tiers"`
	UrgencyBands      []UrgencyBand       `yaml:"urgency_bands"`
	FundingStages     map[string]float64  `yaml:"funding_stages"`
	AdvancedTech      []string            `yaml:"advanced_tech"`
	TechBandLow       float64             `yaml:"tech_band_low"`  // 1-2 recognized matches
	TechBandHigh      float64             `yaml:"tech_band_high"` // 3+ recognized matches
	StrategicKeywords []string            `yaml:"strategic_keywords"`
	StrategicPremium  float64             `yaml:"strategic_premium"`
	SizeAdjustments   map[string]float64  `yaml:"size_adjustments"`
	RoundingUnit      float64             `yaml:"rounding_unit"`
}

// DefaultTable returns the compiled-in rate table.
func DefaultTable() Table {
	return Table{
		Tiers: map[string]TierRate{
			"standard": {HourlyRate: 45, Materials: 500},
			"advanced": {HourlyRate: 65, Materials: 1200},
		},
		UrgencyBands: []UrgencyBand{
			{MinOpenPositions: 11, Multiplier: 1.20},
			{MinOpenPositions: 4, Multiplier: 1.12},
			{MinOpenPositions: 1, Multiplier: 1.05},
			{MinOpenPositions: 0, Multiplier: 1.0},
		},
		FundingStages: map[string]float64{
			"bootstrapped": 0.90,
			"seed":         0.95,
			"series_a":     1.05,
			"series_b":     1.10,
			"series_c":     1.15,
			"public":       1.10,
		},
		AdvancedTech: []string{
			"machine learning", "kubernetes", "terraform", "rust", "golang",
			"react", "tensorflow", "pytorch", "spark", "kafka", "snowflake",
		},
		TechBandLow:  1.08,
		TechBandHigh: 1.15,
		StrategicKeywords: []string{
			"digital transformation", "expansion", "new market", "launch",
			"modernization", "rebrand",
		},
		StrategicPremium: 1.10,
		SizeAdjustments: map[string]float64{
			"small":      0.85,
			"nonprofit":  0.85,
			"enterprise": 1.15,
		},
		RoundingUnit: 100,
	}
}

// LoadTable reads a rate table from a YAML file. Fields omitted in the file
// keep their defaults.
func LoadTable(path string) (Table, error) {
	table := DefaultTable()

	data, err := os.ReadFile(path)
	if err != nil {
		return table, eris.Wrapf(err, "pricing: read table %s", path)
	}

	var wrapper struct {
		Pricing Table `yaml:"pricing"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return table, eris.Wrap(err, "pricing: parse table")
	}

	override := wrapper.Pricing
	if len(override.Tiers) > 0 {
		table.Tiers = override.Tiers
	}
	if len(override.UrgencyBands) > 0 {
		table.UrgencyBands = override.UrgencyBands
	}
	if len(override.FundingStages) > 0 {
		table.FundingStages = override.FundingStages
	}
	if len(override.AdvancedTech) > 0 {
		table.AdvancedTech = override.AdvancedTech
	}
	if override.TechBandLow > 0 {
		table.TechBandLow = override.TechBandLow
	}
	if override.TechBandHigh > 0 {
		table.TechBandHigh = override.TechBandHigh
	}
	if len(override.StrategicKeywords) > 0 {
		table.StrategicKeywords = override.StrategicKeywords
	}
	if override.StrategicPremium > 0 {
		table.StrategicPremium = override.StrategicPremium
	}
	if len(override.SizeAdjustments) > 0 {
		table.SizeAdjustments = override.SizeAdjustments
	}
	if override.RoundingUnit > 0 {
		table.RoundingUnit = override.RoundingUnit
	}

	return table, nil
}
