package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/generate"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/pricing"
	"github.com/coursebridge/proposal-cli/internal/resilience"
	"github.com/coursebridge/proposal-cli/internal/sourcing"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testCourse() *model.Course {
	return &model.Course{
		ID:               "course-1",
		OwnerID:          "owner-1",
		Title:            "Applied Data Analytics",
		LearningOutcomes: []string{"Build predictive models"},
		DurationWeeks:    12,
		HoursPerWeek:     8,
		TeamSize:         4,
	}
}

func testRequest() model.RunRequest {
	return model.RunRequest{
		CourseID:       "course-1",
		PrincipalID:    "owner-1",
		CandidateCount: 2,
	}
}

func candidate(name string) model.CandidateEntity {
	return model.CandidateEntity{Name: name, Source: model.SourceDiscovery}
}

func pendingRun() *model.GenerationRun {
	return &model.GenerationRun{ID: "run-1", CourseID: "course-1", Status: model.RunStatusPending}
}

func newOrchestrator(st *mockStore, sourcer *stubSourcer, gen *stubGenerator) *Orchestrator {
	return New(st, sourcer, gen,
		&stubScorer{score: model.Score{Alignment: 0.8, Feasibility: 0.85, MutualBenefit: 0.8, Final: 0.81}},
		pricing.NewEngine(pricing.DefaultTable()),
		&stubMapper{},
		WithPacing(0))
}

func TestRun_AllCandidatesSucceed(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("PersistProject", mock.Anything, mock.Anything).Return("proj-1", nil).Once()
	st.On("PersistProject", mock.Anything, mock.Anything).Return("proj-2", nil).Once()
	st.On("CompleteRun", mock.Anything, "run-1", 2, true).Return(nil).Once()

	sourcer := &stubSourcer{candidates: []model.CandidateEntity{candidate("Org A"), candidate("Org B")}}
	o := newOrchestrator(st, sourcer, &stubGenerator{})

	result, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"proj-1", "proj-2"}, result.ProjectIDs)
	assert.True(t, result.UsingRealData)
	assert.Empty(t, result.Errors)
	st.AssertExpectations(t)
}

func TestRun_FailedCandidateDoesNotAbortRun(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("PersistProject", mock.Anything, mock.Anything).Return("proj-1", nil).Once()
	st.On("CompleteRun", mock.Anything, "run-1", 1, true).Return(nil).Once()

	sourcer := &stubSourcer{candidates: []model.CandidateEntity{candidate("Org A"), candidate("Org B")}}
	gen := &stubGenerator{errs: map[string]error{"Org B": generate.ErrGenerationExhausted}}

	result, err := newOrchestrator(st, sourcer, gen).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, []string{"proj-1"}, result.ProjectIDs)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Org B", result.Errors[0].Candidate)
	st.AssertExpectations(t)
}

func TestRun_CourseNotFound(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(nil, nil).Once()

	result, err := newOrchestrator(st, &stubSourcer{}, &stubGenerator{}).Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, resilience.CategoryPermanent, resilience.Classify(err))
	st.AssertNotCalled(t, "CreateRun")
}

func TestRun_OwnershipMismatch(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()

	req := testRequest()
	req.PrincipalID = "someone-else"

	result, err := newOrchestrator(st, &stubSourcer{}, &stubGenerator{}).Run(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.Equal(t, resilience.CategoryPermanent, resilience.Classify(err))
	st.AssertNotCalled(t, "CreateRun")
}

func TestRun_SourcingFailureFailsRun(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("FailRun", mock.Anything, "run-1", mock.Anything).Return(nil).Once()

	sourcer := &stubSourcer{err: sourcing.ErrNoCandidates}

	result, err := newOrchestrator(st, sourcer, &stubGenerator{}).Run(context.Background(), testRequest())
	require.Error(t, err)
	require.NotNil(t, result)

	assert.False(t, result.Success)
	assert.Equal(t, "run-1", result.GenerationRunID)
	require.Len(t, result.Errors, 1)
	st.AssertExpectations(t)
	st.AssertNotCalled(t, "CompleteRun")
}

func TestRun_GenerativeCandidatesMarkSyntheticData(t *testing.T) {
	synthetic := candidate("Invented Org")
	synthetic.Source = model.SourceGenerative

	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("PersistProject", mock.Anything, mock.Anything).Return("proj-1", nil).Once()
	st.On("CompleteRun", mock.Anything, "run-1", 1, false).Return(nil).Once()

	sourcer := &stubSourcer{candidates: []model.CandidateEntity{synthetic}}

	result, err := newOrchestrator(st, sourcer, &stubGenerator{}).Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.False(t, result.UsingRealData)
	st.AssertExpectations(t)
}

func TestRun_NeedsReviewExportsCard(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("PersistProject", mock.Anything, mock.Anything).Return("proj-1", nil).Once()
	st.On("CompleteRun", mock.Anything, "run-1", 1, true).Return(nil).Once()

	flagged := &generate.Result{
		Proposal: model.Proposal{Title: "Rough Draft", Difficulty: model.TierStandard, NeedsReview: true, Attempts: 3},
		ModelID:  "test-model",
	}
	gen := &stubGenerator{results: map[string]*generate.Result{"Org A": flagged}}

	nc := &mockNotionClient{}
	nc.On("CreatePage", mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	sourcer := &stubSourcer{candidates: []model.CandidateEntity{candidate("Org A")}}
	o := New(st, sourcer, gen,
		&stubScorer{}, pricing.NewEngine(pricing.DefaultTable()), &stubMapper{},
		WithPacing(0), WithReviewBoard(nc, "db-1"))

	// The export failure is swallowed; the run still completes.
	result, err := o.Run(context.Background(), testRequest())
	require.NoError(t, err)
	assert.True(t, result.Success)
	nc.AssertExpectations(t)
	st.AssertExpectations(t)
}

// liveContext matches a context that has not been cancelled. Run bookkeeping
// must reach the store even after the run context is done, or the run row
// would stay pending forever.
func liveContext() interface{} {
	return mock.MatchedBy(func(ctx context.Context) bool { return ctx.Err() == nil })
}

func TestRun_CancellationCompletesWithPartialResults(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("CompleteRun", liveContext(), "run-1", 0, true).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sourcer := &stubSourcer{candidates: []model.CandidateEntity{candidate("Org A"), candidate("Org B")}}
	gen := &stubGenerator{}

	result, err := newOrchestrator(st, sourcer, gen).Run(ctx, testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Empty(t, result.ProjectIDs)
	assert.Equal(t, 0, gen.calls)
	st.AssertExpectations(t)
}

func TestRun_SourcingFailureAfterCancellationStillFailsRun(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("FailRun", liveContext(), "run-1", mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sourcer := &stubSourcer{err: context.Canceled}

	result, err := newOrchestrator(st, sourcer, &stubGenerator{}).Run(ctx, testRequest())
	require.Error(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Success)
	st.AssertExpectations(t)
}

func TestRun_PricingFailureIsolatedToCandidate(t *testing.T) {
	st := &mockStore{}
	st.On("GetCourse", mock.Anything, "course-1").Return(testCourse(), nil).Once()
	st.On("CreateRun", mock.Anything, "course-1", 2).Return(pendingRun(), nil).Once()
	st.On("CompleteRun", mock.Anything, "run-1", 0, true).Return(nil).Once()

	// An unknown tier makes pricing fail for this candidate.
	bad := &generate.Result{
		Proposal: model.Proposal{Title: "Odd Tier", Difficulty: "heroic", Attempts: 1},
		ModelID:  "test-model",
	}
	gen := &stubGenerator{results: map[string]*generate.Result{"Org A": bad}}
	sourcer := &stubSourcer{candidates: []model.CandidateEntity{candidate("Org A")}}

	result, err := newOrchestrator(st, sourcer, gen).Run(context.Background(), testRequest())
	require.NoError(t, err)

	assert.True(t, result.Success)
	require.Len(t, result.Errors, 1)
	st.AssertNotCalled(t, "PersistProject")
	st.AssertExpectations(t)
}
