// Package scoring computes alignment, feasibility, and market-fit scores for
// generated proposals. All entry points degrade to fixed fallbacks instead of
// returning errors, so callers can never propagate a scoring failure.
package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/config"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
)

// Engine scores proposals. The generative client is used only for the
// alignment dimension; everything else is pure arithmetic.
type Engine struct {
	ai    anthropic.Client
	model string
	cfg   config.ScoringConfig
}

// NewEngine creates a scoring engine. ai may be nil, in which case alignment
// always takes the fallback value.
func NewEngine(ai anthropic.Client, modelID string, cfg config.ScoringConfig) *Engine {
	// Each weight defaults independently so a partial config override never
	// zeroes the others.
	if cfg.AlignmentWeight == 0 {
		cfg.AlignmentWeight = 0.5
	}
	if cfg.FeasibilityWeight == 0 {
		cfg.FeasibilityWeight = 0.3
	}
	if cfg.MutualBenefitWeight == 0 {
		cfg.MutualBenefitWeight = 0.2
	}
	if cfg.AlignmentFallback == 0 {
		cfg.AlignmentFallback = 0.7
	}
	return &Engine{ai: ai, model: modelID, cfg: cfg}
}

const alignmentPrompt = `You are evaluating how well a project proposal covers a course's learning outcomes.

Learning outcomes:
%s

Project tasks:
%s

Project deliverables:
%s

Estimate what percentage of the learning outcomes are meaningfully exercised by the tasks and deliverables. Return a valid JSON object:
{"coverage_pct": <0-100>}`

// AlignmentScore returns the fraction of learning outcomes covered by the
// proposal's tasks and deliverables, in [0,1]. On any service failure or
// malformed output it returns the configured fallback. It never returns an
// error.
func (e *Engine) AlignmentScore(ctx context.Context, tasks, deliverables, outcomes []string) float64 {
	if e.ai == nil || len(outcomes) == 0 {
		return e.cfg.AlignmentFallback
	}

	prompt := fmt.Sprintf(alignmentPrompt,
		bulleted(outcomes), bulleted(tasks), bulleted(deliverables))

	resp, err := e.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: 128,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("scoring: alignment call failed, using fallback", zap.Error(err))
		return e.cfg.AlignmentFallback
	}
	resp.Usage.LogCost(e.model, "alignment_score")

	var out struct {
		CoveragePct float64 `json:"coverage_pct"`
	}
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &out); err != nil {
		zap.L().Warn("scoring: malformed alignment response, using fallback", zap.Error(err))
		return e.cfg.AlignmentFallback
	}
	if out.CoveragePct < 0 || out.CoveragePct > 100 {
		return e.cfg.AlignmentFallback
	}
	return out.CoveragePct / 100
}

// FeasibilityScore maps course duration to a fixed feasibility band.
func FeasibilityScore(weeks int) float64 {
	if weeks >= 12 {
		return 0.85
	}
	return 0.65
}

// MutualBenefitScore is fixed: a generated proposal that references specific
// candidate needs is assumed mutually beneficial.
func MutualBenefitScore() float64 {
	return 0.80
}

// FinalScore combines the three dimensions with the configured weights,
// rounded to 2 decimals.
func (e *Engine) FinalScore(alignment, feasibility, mutualBenefit float64) float64 {
	final := e.cfg.AlignmentWeight*alignment +
		e.cfg.FeasibilityWeight*feasibility +
		e.cfg.MutualBenefitWeight*mutualBenefit
	return round2(final)
}

// ScoreProposal computes the full score triple for a proposal.
func (e *Engine) ScoreProposal(ctx context.Context, p model.Proposal, course model.Course) model.Score {
	al := e.AlignmentScore(ctx, p.Tasks, p.Deliverables, course.LearningOutcomes)
	fe := FeasibilityScore(course.DurationWeeks)
	mb := MutualBenefitScore()
	return model.Score{
		Alignment:     al,
		Feasibility:   fe,
		MutualBenefit: mb,
		Final:         e.FinalScore(al, fe, mb),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func bulleted(items []string) string {
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteString("\n")
	}
	return b.String()
}

// extractJSON trims markdown fences and surrounding prose, leaving the first
// JSON object in the text.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
