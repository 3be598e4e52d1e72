package sourcing

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/store"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
	"github.com/coursebridge/proposal-cli/pkg/intel"
)

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

type mockIntelClient struct {
	mock.Mock
}

func (m *mockIntelClient) SearchOrganizations(ctx context.Context, req intel.SearchRequest) (*intel.SearchResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*intel.SearchResponse), args.Error(1)
}

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

// fakeStage is a canned chain member for exercising the fallback logic
// without real data sources.
type fakeStage struct {
	stageName model.CandidateSource
	entities  []model.CandidateEntity
	err       error
	calls     int
}

func (f *fakeStage) name() model.CandidateSource { return f.stageName }

func (f *fakeStage) source(ctx context.Context, req Request, want int) ([]model.CandidateEntity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.entities) > want {
		return f.entities[:want], nil
	}
	return f.entities, nil
}
