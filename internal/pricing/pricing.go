// Package pricing computes a deterministic price estimate for a proposal:
// a tiered base subtotal plus an ordered list of named multiplicative
// adjustments. Replaying the adjustment list against the base reproduces the
// final price exactly.
package pricing

import (
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/coursebridge/proposal-cli/internal/model"
)

// Engine prices proposals using a rate table. Pure; no I/O.
type Engine struct {
	table Table
}

// NewEngine creates a pricing engine with the given rate table.
func NewEngine(table Table) *Engine {
	return &Engine{table: table}
}

// EstimatePrice computes the full pricing breakdown for a project. The
// adjustment order is fixed: hiring urgency, funding stage, technology
// complexity, strategic value, organization size.
func (e *Engine) EstimatePrice(weeks, hoursPerWeek, teamSize int, tier model.DifficultyTier, candidate model.CandidateEntity) (model.PricingBreakdown, error) {
	if weeks <= 0 || hoursPerWeek <= 0 || teamSize <= 0 {
		return model.PricingBreakdown{}, eris.New("pricing: weeks, hours per week, and team size must be positive")
	}

	rate, ok := e.table.Tiers[string(tier)]
	if !ok {
		return model.PricingBreakdown{}, eris.Errorf("pricing: unknown tier %q", tier)
	}

	base := float64(weeks)*float64(hoursPerWeek)*float64(teamSize)*rate.HourlyRate + rate.Materials

	breakdown := model.PricingBreakdown{BaseSubtotal: base}

	if adj := e.hiringUrgency(candidate); adj != nil {
		breakdown.Adjustments = append(breakdown.Adjustments, *adj)
	}
	if adj := e.fundingStage(candidate); adj != nil {
		breakdown.Adjustments = append(breakdown.Adjustments, *adj)
	}
	if adj := e.techComplexity(candidate); adj != nil {
		breakdown.Adjustments = append(breakdown.Adjustments, *adj)
	}
	if adj := e.strategicValue(candidate); adj != nil {
		breakdown.Adjustments = append(breakdown.Adjustments, *adj)
	}
	if adj := e.orgSize(candidate); adj != nil {
		breakdown.Adjustments = append(breakdown.Adjustments, *adj)
	}

	price := base
	for _, a := range breakdown.Adjustments {
		price *= a.Multiplier
	}
	breakdown.FinalPrice = e.roundToUnit(price)

	return breakdown, nil
}

// Replay recomputes the final price from a breakdown's base and adjustment
// list, applying the same rounding. Used to verify breakdown integrity.
func (e *Engine) Replay(b model.PricingBreakdown) float64 {
	price := b.BaseSubtotal
	for _, a := range b.Adjustments {
		price *= a.Multiplier
	}
	return e.roundToUnit(price)
}

func (e *Engine) hiringUrgency(c model.CandidateEntity) *model.PriceAdjustment {
	if c.Intel == nil {
		return nil
	}
	open := c.Intel.OpenPositions
	for _, band := range e.table.UrgencyBands {
		if open >= band.MinOpenPositions {
			if band.Multiplier == 1.0 {
				return nil
			}
			return &model.PriceAdjustment{
				Name:       "hiring_urgency",
				Multiplier: band.Multiplier,
				Rationale:  fmt.Sprintf("%d open positions signal hiring urgency", open),
			}
		}
	}
	return nil
}

func (e *Engine) fundingStage(c model.CandidateEntity) *model.PriceAdjustment {
	if c.Intel == nil || c.Intel.FundingStage == "" {
		return nil
	}
	stage := strings.ToLower(c.Intel.FundingStage)
	mult, ok := e.table.FundingStages[stage]
	if !ok || mult == 1.0 {
		return nil
	}
	kind := "premium"
	if mult < 1.0 {
		kind = "discount"
	}
	return &model.PriceAdjustment{
		Name:       "funding_stage",
		Multiplier: mult,
		Rationale:  fmt.Sprintf("funding stage %s %s", stage, kind),
	}
}

func (e *Engine) techComplexity(c model.CandidateEntity) *model.PriceAdjustment {
	if c.Intel == nil || len(c.Intel.Technologies) == 0 {
		return nil
	}
	matches := 0
	for _, tech := range c.Intel.Technologies {
		lower := strings.ToLower(tech)
		for _, adv := range e.table.AdvancedTech {
			if strings.Contains(lower, adv) || strings.Contains(adv, lower) {
				matches++
				break
			}
		}
	}
	switch {
	case matches >= 3:
		return &model.PriceAdjustment{
			Name:       "tech_complexity",
			Multiplier: e.table.TechBandHigh,
			Rationale:  fmt.Sprintf("%d advanced technologies in stack", matches),
		}
	case matches >= 1:
		return &model.PriceAdjustment{
			Name:       "tech_complexity",
			Multiplier: e.table.TechBandLow,
			Rationale:  fmt.Sprintf("%d advanced technologies in stack", matches),
		}
	default:
		return nil
	}
}

func (e *Engine) strategicValue(c model.CandidateEntity) *model.PriceAdjustment {
	needs := strings.ToLower(strings.Join(c.InferredNeeds, " "))
	for _, kw := range e.table.StrategicKeywords {
		if strings.Contains(needs, kw) {
			return &model.PriceAdjustment{
				Name:       "strategic_value",
				Multiplier: e.table.StrategicPremium,
				Rationale:  fmt.Sprintf("stated need matches strategic initiative %q", kw),
			}
		}
	}
	return nil
}

func (e *Engine) orgSize(c model.CandidateEntity) *model.PriceAdjustment {
	mult, ok := e.table.SizeAdjustments[string(c.SizeClass)]
	if !ok || mult == 1.0 {
		return nil
	}
	kind := "premium"
	if mult < 1.0 {
		kind = "discount"
	}
	return &model.PriceAdjustment{
		Name:       "org_size",
		Multiplier: mult,
		Rationale:  fmt.Sprintf("%s organization %s", c.SizeClass, kind),
	}
}

func (e *Engine) roundToUnit(price float64) float64 {
	unit := e.table.RoundingUnit
	if unit <= 0 {
		unit = 100
	}
	return math.Round(price/unit) * unit
}
