package pipeline

import (
	"context"
	"time"

	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/mock"

	"github.com/coursebridge/proposal-cli/internal/generate"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/sourcing"
	"github.com/coursebridge/proposal-cli/internal/store"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) CreateRun(ctx context.Context, courseID string, requestedCount int) (*model.GenerationRun, error) {
	args := m.Called(ctx, courseID, requestedCount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GenerationRun), args.Error(1)
}

func (m *mockStore) CompleteRun(ctx context.Context, runID string, projectsGenerated int, usingRealData bool) error {
	return m.Called(ctx, runID, projectsGenerated, usingRealData).Error(0)
}

func (m *mockStore) FailRun(ctx context.Context, runID string, reason string) error {
	return m.Called(ctx, runID, reason).Error(0)
}

func (m *mockStore) GetRun(ctx context.Context, runID string) (*model.GenerationRun, error) {
	args := m.Called(ctx, runID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.GenerationRun), args.Error(1)
}

func (m *mockStore) ListRuns(ctx context.Context, filter store.RunFilter) ([]model.GenerationRun, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.GenerationRun), args.Error(1)
}

func (m *mockStore) GetCourse(ctx context.Context, courseID string) (*model.Course, error) {
	args := m.Called(ctx, courseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Course), args.Error(1)
}

func (m *mockStore) ListEnrichedBatch(ctx context.Context, batchID string, limit int) ([]model.CandidateEntity, error) {
	args := m.Called(ctx, batchID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CandidateEntity), args.Error(1)
}

func (m *mockStore) ListLocalEntities(ctx context.Context, filter store.EntityFilter) ([]model.CandidateEntity, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CandidateEntity), args.Error(1)
}

func (m *mockStore) GetCachedFilter(ctx context.Context, key string) ([]model.RankedCandidate, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.RankedCandidate), args.Error(1)
}

func (m *mockStore) SetCachedFilter(ctx context.Context, key string, ranked []model.RankedCandidate, ttl time.Duration) error {
	return m.Called(ctx, key, ranked, ttl).Error(0)
}

func (m *mockStore) DeleteExpiredFilters(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *mockStore) PersistProject(ctx context.Context, bundle store.ProjectBundle) (string, error) {
	args := m.Called(ctx, bundle)
	return args.String(0), args.Error(1)
}

func (m *mockStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Migrate(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockStore) Close() error {
	return m.Called().Error(0)
}

// stubSourcer returns a fixed candidate set or error.
type stubSourcer struct {
	candidates []model.CandidateEntity
	err        error
}

func (s *stubSourcer) Source(ctx context.Context, req sourcing.Request) ([]model.CandidateEntity, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candidates, nil
}

// stubGenerator maps candidate name to a canned result or error.
type stubGenerator struct {
	results map[string]*generate.Result
	errs    map[string]error
	calls   int
}

func (s *stubGenerator) Generate(ctx context.Context, candidate model.CandidateEntity, course model.Course) (*generate.Result, error) {
	s.calls++
	if err := s.errs[candidate.Name]; err != nil {
		return nil, err
	}
	if r, ok := s.results[candidate.Name]; ok {
		return r, nil
	}
	return &generate.Result{
		Proposal: model.Proposal{Title: "Proposal for " + candidate.Name, Difficulty: model.TierStandard, Attempts: 1},
		ModelID:  "test-model",
	}, nil
}

type stubScorer struct {
	score model.Score
}

func (s *stubScorer) ScoreProposal(ctx context.Context, p model.Proposal, course model.Course) model.Score {
	return s.score
}

type stubMapper struct {
	detail *model.AlignmentDetail
}

func (s *stubMapper) Map(ctx context.Context, p model.Proposal, course model.Course) *model.AlignmentDetail {
	return s.detail
}

type mockNotionClient struct {
	mock.Mock
}

func (m *mockNotionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*notionapi.Page), args.Error(1)
}
