package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/coursebridge/proposal-cli/internal/config"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
)

var (
	testOutcomes     = []string{"analyze data", "present findings", "build a dashboard"}
	testTasks        = []string{"collect usage data", "build reporting dashboard"}
	testDeliverables = []string{"dashboard", "final report"}
)

func newTestEngine(ai anthropic.Client) *Engine {
	return NewEngine(ai, "claude-haiku-4-5-20251001", config.ScoringConfig{})
}

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{Text: body}
}

func TestAlignmentScore_ParsesCoverage(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"coverage_pct": 80}`), nil)

	score := newTestEngine(ai).AlignmentScore(context.Background(), testTasks, testDeliverables, testOutcomes)
	assert.InDelta(t, 0.8, score, 1e-9)
	ai.AssertExpectations(t)
}

func TestAlignmentScore_AlwaysErroringStubYieldsFallback(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("service unavailable"))

	score := newTestEngine(ai).AlignmentScore(context.Background(), testTasks, testDeliverables, testOutcomes)
	assert.Equal(t, 0.7, score)
}

func TestAlignmentScore_MalformedJSONYieldsFallback(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("I think the coverage is pretty good"), nil)

	score := newTestEngine(ai).AlignmentScore(context.Background(), testTasks, testDeliverables, testOutcomes)
	assert.Equal(t, 0.7, score)
}

func TestAlignmentScore_OutOfRangeYieldsFallback(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse(`{"coverage_pct": 140}`), nil)

	score := newTestEngine(ai).AlignmentScore(context.Background(), testTasks, testDeliverables, testOutcomes)
	assert.Equal(t, 0.7, score)
}

func TestAlignmentScore_FencedJSONAccepted(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(textResponse("```json\n{\"coverage_pct\": 55}\n```"), nil)

	score := newTestEngine(ai).AlignmentScore(context.Background(), testTasks, testDeliverables, testOutcomes)
	assert.InDelta(t, 0.55, score, 1e-9)
}

func TestAlignmentScore_NilClientYieldsFallback(t *testing.T) {
	score := newTestEngine(nil).AlignmentScore(context.Background(), testTasks, testDeliverables, testOutcomes)
	assert.Equal(t, 0.7, score)
}

func TestFeasibilityScore_Bands(t *testing.T) {
	assert.Equal(t, 0.85, FeasibilityScore(12))
	assert.Equal(t, 0.85, FeasibilityScore(16))
	assert.Equal(t, 0.65, FeasibilityScore(11))
	assert.Equal(t, 0.65, FeasibilityScore(0))
}

func TestMutualBenefitScore_Fixed(t *testing.T) {
	assert.Equal(t, 0.80, MutualBenefitScore())
}

func TestFinalScore_WeightedFormula(t *testing.T) {
	e := newTestEngine(nil)

	tests := []struct {
		alignment, feasibility, mutual float64
		want                           float64
	}{
		{1.0, 1.0, 1.0, 1.0},
		{0.0, 0.0, 0.0, 0.0},
		{0.7, 0.85, 0.80, 0.77}, // 0.35 + 0.255 + 0.16 = 0.765 → 0.77
		{0.8, 0.65, 0.80, 0.76}, // 0.40 + 0.195 + 0.16 = 0.755 → 0.76
		{0.5, 0.5, 0.5, 0.5},
	}
	for _, tt := range tests {
		got := e.FinalScore(tt.alignment, tt.feasibility, tt.mutual)
		assert.Equal(t, tt.want, got)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
	}
}

func TestNewEngine_PartialWeightOverrideKeepsOtherDefaults(t *testing.T) {
	e := NewEngine(nil, "claude-haiku-4-5-20251001", config.ScoringConfig{AlignmentWeight: 0.6})

	// 0.6*1 + 0.3*1 + 0.2*1 = 1.1 proves the unset weights kept their
	// defaults instead of collapsing to zero.
	assert.Equal(t, 1.1, e.FinalScore(1.0, 1.0, 1.0))
	assert.Equal(t, 0.6, e.FinalScore(1.0, 0.0, 0.0))
	assert.InDelta(t, 0.3, e.FinalScore(0.0, 1.0, 0.0), 0.001)
	assert.InDelta(t, 0.2, e.FinalScore(0.0, 0.0, 1.0), 0.001)
}

func TestScoreProposal_DegradedPathStaysInRange(t *testing.T) {
	ai := &mockAnthropicClient{}
	ai.On("CreateMessage", mock.Anything, mock.Anything).
		Return(nil, errors.New("down"))

	score := newTestEngine(ai).ScoreProposal(context.Background(), model.Proposal{
		Tasks:        testTasks,
		Deliverables: testDeliverables,
	}, model.Course{
		LearningOutcomes: testOutcomes,
		DurationWeeks:    14,
	})

	assert.Equal(t, 0.7, score.Alignment)
	assert.Equal(t, 0.85, score.Feasibility)
	assert.Equal(t, 0.80, score.MutualBenefit)
	assert.Equal(t, 0.77, score.Final)
}
