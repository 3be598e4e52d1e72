// Package pipeline drives one generation run end to end: ownership check,
// candidate sourcing, per-candidate proposal generation, scoring, pricing,
// alignment mapping, and the atomic persistence of each result.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/generate"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/pricing"
	"github.com/coursebridge/proposal-cli/internal/resilience"
	"github.com/coursebridge/proposal-cli/internal/sourcing"
	"github.com/coursebridge/proposal-cli/internal/store"
	"github.com/coursebridge/proposal-cli/pkg/notion"
)

// candidateSourcer, proposalGenerator, proposalScorer, and alignmentMapper
// narrow the pipeline's collaborators to what the orchestrator calls, so
// tests can stub them.
type candidateSourcer interface {
	Source(ctx context.Context, req sourcing.Request) ([]model.CandidateEntity, error)
}

type proposalGenerator interface {
	Generate(ctx context.Context, candidate model.CandidateEntity, course model.Course) (*generate.Result, error)
}

type proposalScorer interface {
	ScoreProposal(ctx context.Context, p model.Proposal, course model.Course) model.Score
}

type alignmentMapper interface {
	Map(ctx context.Context, p model.Proposal, course model.Course) *model.AlignmentDetail
}

// Orchestrator is the top-level run driver.
type Orchestrator struct {
	store     store.Store
	sourcer   candidateSourcer
	generator proposalGenerator
	scorer    proposalScorer
	pricer    *pricing.Engine
	mapper    alignmentMapper
	notion    notion.Client
	reviewDB  string
	pacing    time.Duration
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithReviewBoard enables the needs-review export to a Notion database.
func WithReviewBoard(client notion.Client, dbID string) Option {
	return func(o *Orchestrator) {
		o.notion = client
		o.reviewDB = dbID
	}
}

// WithPacing sets the inter-candidate delay. Default 400ms.
func WithPacing(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.pacing = d
	}
}

// New creates an Orchestrator.
func New(st store.Store, sourcer candidateSourcer, gen proposalGenerator, scorer proposalScorer, pricer *pricing.Engine, mapper alignmentMapper, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		sourcer:   sourcer,
		generator: gen,
		scorer:    scorer,
		pricer:    pricer,
		mapper:    mapper,
		pacing:    400 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one generation run. One candidate's failure never aborts the
// others; partial success still completes the run. Only an ownership failure
// or a total sourcing failure aborts.
func (o *Orchestrator) Run(ctx context.Context, req model.RunRequest) (*model.RunResult, error) {
	course, err := o.store.GetCourse(ctx, req.CourseID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load course")
	}
	if course == nil {
		return nil, resilience.Permanent(eris.Errorf("pipeline: course not found: %s", req.CourseID))
	}
	if course.OwnerID != req.PrincipalID {
		return nil, resilience.Permanent(eris.Errorf("pipeline: course %s not owned by principal", req.CourseID))
	}

	run, err := o.store.CreateRun(ctx, course.ID, req.CandidateCount)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	logger := zap.L().With(zap.String("run_id", run.ID), zap.String("course_id", course.ID))
	logger.Info("pipeline: run started",
		zap.Int("requested", req.CandidateCount),
		zap.Strings("industries", req.Industries))

	candidates, err := o.sourcer.Source(ctx, sourcing.Request{
		Course:            *course,
		Industries:        req.Industries,
		Count:             req.CandidateCount,
		EnrichmentBatchID: req.EnrichmentBatchID,
	})
	if err != nil {
		reason := resilience.ExternalMessage(err)
		if failErr := o.store.FailRun(context.WithoutCancel(ctx), run.ID, reason); failErr != nil {
			logger.Error("pipeline: fail run bookkeeping", zap.Error(failErr))
		}
		return &model.RunResult{
			Success:         false,
			GenerationRunID: run.ID,
			Errors:          []model.CandidateError{{Reason: reason}},
		}, eris.Wrap(err, "pipeline: sourcing")
	}

	usingReal := sourcing.UsingRealData(candidates)
	result := &model.RunResult{
		GenerationRunID: run.ID,
		UsingRealData:   usingReal,
	}

	for i, candidate := range candidates {
		// Cancellation is checked between candidates only; an aborted
		// candidate commits nothing.
		if ctx.Err() != nil {
			logger.Warn("pipeline: run cancelled", zap.Int("processed", i))
			break
		}
		if i > 0 && o.pacing > 0 {
			if err := sleepCtx(ctx, o.pacing); err != nil {
				break
			}
		}

		projectID, perr := o.processCandidate(ctx, run.ID, *course, candidate)
		if perr != nil {
			logger.Warn("pipeline: candidate failed",
				zap.String("candidate", candidate.Name),
				zap.Error(perr))
			result.Errors = append(result.Errors, model.CandidateError{
				Candidate: candidate.Name,
				Reason:    resilience.ExternalMessage(perr),
			})
			continue
		}
		result.ProjectIDs = append(result.ProjectIDs, projectID)
	}

	// The terminal write must land even when the run context is already
	// cancelled, or the run row stays pending forever.
	if err := o.store.CompleteRun(context.WithoutCancel(ctx), run.ID, len(result.ProjectIDs), usingReal); err != nil {
		return result, eris.Wrap(err, "pipeline: complete run")
	}
	result.Success = true

	logger.Info("pipeline: run completed",
		zap.Int("projects_generated", len(result.ProjectIDs)),
		zap.Int("failed_candidates", len(result.Errors)),
		zap.Bool("using_real_data", usingReal))
	return result, nil
}

// processCandidate runs generate, score, price, map, persist for one
// candidate. Any error here is isolated to this candidate.
func (o *Orchestrator) processCandidate(ctx context.Context, runID string, course model.Course, candidate model.CandidateEntity) (string, error) {
	gen, err := o.generator.Generate(ctx, candidate, course)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: generate for %s", candidate.Name)
	}

	score := o.scorer.ScoreProposal(ctx, gen.Proposal, course)

	breakdown, err := o.pricer.EstimatePrice(course.DurationWeeks, course.HoursPerWeek, course.TeamSize, gen.Proposal.Difficulty, candidate)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: price for %s", candidate.Name)
	}

	alignment := o.mapper.Map(ctx, gen.Proposal, course)

	projectID, err := o.store.PersistProject(ctx, store.ProjectBundle{
		RunID:       runID,
		Course:      course,
		Candidate:   candidate,
		Proposal:    gen.Proposal,
		Score:       score,
		Pricing:     breakdown,
		Alignment:   alignment,
		ModelID:     gen.ModelID,
		TotalTokens: gen.Usage.Total(),
	})
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: persist for %s", candidate.Name)
	}

	if gen.Proposal.NeedsReview && o.notion != nil && o.reviewDB != "" {
		card := notion.ReviewCard{
			ProjectID:   projectID,
			Title:       gen.Proposal.Title,
			PartnerName: candidate.Name,
			CourseTitle: course.Title,
			Reason:      "quality issues after final generation attempt",
		}
		if err := notion.CreateReviewCard(ctx, o.notion, o.reviewDB, card); err != nil {
			// Export is best-effort; the project is already committed.
			zap.L().Warn("pipeline: review card export failed",
				zap.String("project_id", projectID),
				zap.Error(err))
		}
	}

	return projectID, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
