// Package store provides persistence for generation runs, sourced partner
// entities, the relevance cache, and the atomic project write.
package store

import (
	"context"
	"time"

	"github.com/coursebridge/proposal-cli/internal/model"
)

// RunFilter specifies criteria for listing generation runs.
type RunFilter struct {
	Status   model.RunStatus `json:"status,omitempty"`
	CourseID string          `json:"course_id,omitempty"`
	Limit    int             `json:"limit,omitempty"`
	Offset   int             `json:"offset,omitempty"`
}

// EntityFilter specifies criteria for querying locally stored partner
// entities.
type EntityFilter struct {
	Location   string   `json:"location,omitempty"`
	Industries []string `json:"industries,omitempty"`
	Limit      int      `json:"limit,omitempty"`
}

// ProjectBundle is everything the atomic project write records: the parent
// row plus detail and metadata dependents derived from one candidate's
// processing.
type ProjectBundle struct {
	RunID       string
	Course      model.Course
	Candidate   model.CandidateEntity
	Proposal    model.Proposal
	Score       model.Score
	Pricing     model.PricingBreakdown
	Alignment   *model.AlignmentDetail
	ModelID     string
	TotalTokens int64
}

// Store defines the persistence interface for the proposal pipeline.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, courseID string, requestedCount int) (*model.GenerationRun, error)
	CompleteRun(ctx context.Context, runID string, projectsGenerated int, usingRealData bool) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*model.GenerationRun, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.GenerationRun, error)

	// Courses
	GetCourse(ctx context.Context, courseID string) (*model.Course, error)

	// Partner entities
	ListEnrichedBatch(ctx context.Context, batchID string, limit int) ([]model.CandidateEntity, error)
	ListLocalEntities(ctx context.Context, filter EntityFilter) ([]model.CandidateEntity, error)

	// Relevance cache
	GetCachedFilter(ctx context.Context, key string) ([]model.RankedCandidate, error)
	SetCachedFilter(ctx context.Context, key string, ranked []model.RankedCandidate, ttl time.Duration) error
	DeleteExpiredFilters(ctx context.Context) (int, error)

	// Projects. PersistProject writes the parent row and both dependents in
	// one transaction; on any failure nothing is committed.
	PersistProject(ctx context.Context, bundle ProjectBundle) (string, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
