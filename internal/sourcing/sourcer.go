// Package sourcing resolves a ranked list of candidate partner organizations
// for a course through a cascading fallback chain of data sources.
package sourcing

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/config"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/store"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
	"github.com/coursebridge/proposal-cli/pkg/intel"
)

// ErrNoCandidates is returned when every stage, including the generative
// fallback, produced nothing. This is the only sourcing outcome that aborts a
// run.
var ErrNoCandidates = eris.New("sourcing: no candidates from any stage")

// chainEntry tags a stage with whether it only runs as a last resort.
type chainEntry struct {
	stage      stage
	lastResort bool
}

// Sourcer runs the fallback chain. Stage order is fixed at construction and
// never reordered at runtime: richer, faster sources first.
type Sourcer struct {
	chain []chainEntry
}

// New builds the standard four-stage chain: enriched batch, active discovery,
// local store with intelligence filtering, then the generative fallback.
func New(st store.Store, discovery intel.Client, ai anthropic.Client, modelID string, cfg config.SourcingConfig) *Sourcer {
	filter := NewFilter(ai, modelID, st, cfg.RelevanceCutoff, daysToTTL(cfg.CacheTTLDays))
	return &Sourcer{
		chain: []chainEntry{
			{stage: &enrichedBatchStage{store: st}},
			{stage: &discoveryStage{client: discovery}},
			{stage: &localStoreStage{store: st, filter: filter, limit: cfg.LocalStoreLimit}},
			{stage: &generativeStage{ai: ai, modelID: modelID}, lastResort: true},
		},
	}
}

// Source accumulates up to req.Count candidates. Each stage is invoked only
// to fill the remaining deficit; the last-resort stage runs only when the
// real stages produced nothing at all.
func (s *Sourcer) Source(ctx context.Context, req Request) ([]model.CandidateEntity, error) {
	if req.Count <= 0 {
		return nil, eris.Errorf("sourcing: invalid count %d", req.Count)
	}

	var sourced []model.CandidateEntity
	seen := make(map[string]bool)

	for _, entry := range s.chain {
		if len(sourced) >= req.Count {
			break
		}
		if entry.lastResort && len(sourced) > 0 {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "sourcing: cancelled")
		}

		want := req.Count - len(sourced)
		entities, err := entry.stage.source(ctx, req, want)
		if err != nil {
			// A failed stage degrades to the next one; only total failure
			// aborts.
			zap.L().Warn("sourcing: stage failed, falling through",
				zap.String("stage", string(entry.stage.name())),
				zap.Error(err))
			continue
		}

		added := 0
		for _, e := range entities {
			if len(sourced) >= req.Count {
				break
			}
			k := entityKey(e)
			if seen[k] {
				continue
			}
			seen[k] = true
			sourced = append(sourced, e)
			added++
		}
		zap.L().Info("sourcing: stage complete",
			zap.String("stage", string(entry.stage.name())),
			zap.Int("added", added),
			zap.Int("total", len(sourced)))
	}

	if len(sourced) == 0 {
		return nil, ErrNoCandidates
	}
	return sourced, nil
}

// UsingRealData reports whether a sourced set came from real data sources
// rather than the generative fallback.
func UsingRealData(candidates []model.CandidateEntity) bool {
	for _, c := range candidates {
		if c.Source == model.SourceGenerative {
			return false
		}
	}
	return len(candidates) > 0
}

func entityKey(e model.CandidateEntity) string {
	if e.ID != "" {
		return "id:" + e.ID
	}
	return "name:" + e.Name
}

func daysToTTL(days int) time.Duration {
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}
