package sourcing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/resilience"
	"github.com/coursebridge/proposal-cli/internal/store"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
	"github.com/coursebridge/proposal-cli/pkg/intel"
)

// Request carries everything one sourcing invocation needs.
type Request struct {
	Course            model.Course
	Industries        []string
	Count             int
	EnrichmentBatchID string
}

// stage is one member of the fallback chain, asked to supply up to `want`
// candidates.
type stage interface {
	name() model.CandidateSource
	source(ctx context.Context, req Request, want int) ([]model.CandidateEntity, error)
}

// enrichedBatchStage pulls entities from a prior external-enrichment batch,
// richest records first.
type enrichedBatchStage struct {
	store store.Store
}

func (s *enrichedBatchStage) name() model.CandidateSource { return model.SourceEnrichedBatch }

func (s *enrichedBatchStage) source(ctx context.Context, req Request, want int) ([]model.CandidateEntity, error) {
	if req.EnrichmentBatchID == "" {
		return nil, nil
	}
	entities, err := s.store.ListEnrichedBatch(ctx, req.EnrichmentBatchID, want)
	if err != nil {
		return nil, eris.Wrapf(err, "sourcing: enriched batch %s", req.EnrichmentBatchID)
	}
	return entities, nil
}

// discoveryStage queries the external discovery service for fresh candidates.
// Results carry market-intelligence fields when the provider has them.
type discoveryStage struct {
	client intel.Client
}

func (s *discoveryStage) name() model.CandidateSource { return model.SourceDiscovery }

func (s *discoveryStage) source(ctx context.Context, req Request, want int) ([]model.CandidateEntity, error) {
	if s.client == nil {
		return nil, nil
	}

	resp, err := resilience.DoVal(ctx, resilience.RetryConfig{
		MaxAttempts: 3,
		OnRetry:     resilience.RetryLogger("intel", "search_organizations"),
	}, func(ctx context.Context) (*intel.SearchResponse, error) {
		r, err := s.client.SearchOrganizations(ctx, intel.SearchRequest{
			Location:   req.Course.Location,
			Industries: req.Industries,
			Limit:      want,
		})
		if err != nil {
			return nil, classifyIntelError(err)
		}
		return r, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "sourcing: discovery search")
	}

	entities := make([]model.CandidateEntity, 0, len(resp.Organizations))
	for _, org := range resp.Organizations {
		entities = append(entities, fromOrganization(org))
	}
	return entities, nil
}

func classifyIntelError(err error) error {
	var se *intel.StatusError
	if errors.As(err, &se) {
		if se.StatusCode == 429 {
			return resilience.RateLimited(err, se.RetryAfter)
		}
		return resilience.FromStatus(err, se.StatusCode)
	}
	return resilience.External(err)
}

func fromOrganization(org intel.Organization) model.CandidateEntity {
	e := model.CandidateEntity{
		Name:          org.Name,
		Sector:        org.Sector,
		SizeClass:     model.SizeClass(org.SizeClass),
		Location:      org.Location,
		Website:       org.Website,
		InferredNeeds: org.InferredNeeds,
		Source:        model.SourceDiscovery,
		Completeness:  organizationCompleteness(org),
	}
	if org.OpenPositions > 0 || len(org.JobSignals) > 0 || len(org.Technologies) > 0 || org.FundingStage != "" {
		e.Intel = &model.MarketIntel{
			OpenPositions: org.OpenPositions,
			JobSignals:    org.JobSignals,
			Technologies:  org.Technologies,
			FundingStage:  org.FundingStage,
		}
	}
	return e
}

// organizationCompleteness scores how many useful fields the provider filled
// in, 0.0 to 1.0.
func organizationCompleteness(org intel.Organization) float64 {
	fields := 0
	total := 7
	for _, present := range []bool{
		org.Sector != "",
		org.SizeClass != "",
		org.Website != "",
		len(org.InferredNeeds) > 0,
		len(org.JobSignals) > 0,
		len(org.Technologies) > 0,
		org.FundingStage != "",
	} {
		if present {
			fields++
		}
	}
	return float64(fields) / float64(total)
}

// localStoreStage queries previously enriched entities near the course
// location and keeps only those the intelligence filter judges relevant.
type localStoreStage struct {
	store  store.Store
	filter *Filter
	limit  int
}

func (s *localStoreStage) name() model.CandidateSource { return model.SourceLocalStore }

func (s *localStoreStage) source(ctx context.Context, req Request, want int) ([]model.CandidateEntity, error) {
	limit := s.limit
	if limit <= 0 {
		limit = 25
	}
	entities, err := s.store.ListLocalEntities(ctx, store.EntityFilter{
		Location:   req.Course.Location,
		Industries: req.Industries,
		Limit:      limit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "sourcing: local entities")
	}
	if len(entities) == 0 {
		return nil, nil
	}

	ranked := s.filter.Rank(ctx, req.Course, entities)
	out := make([]model.CandidateEntity, 0, want)
	for _, rc := range ranked {
		if len(out) >= want {
			break
		}
		out = append(out, rc.Candidate)
	}
	return out, nil
}

// generativeStage asks the generative service to invent plausible candidates.
// Last resort; its output is lower trust and never mixed with real data.
type generativeStage struct {
	ai      anthropic.Client
	modelID string
}

func (s *generativeStage) name() model.CandidateSource { return model.SourceGenerative }

const generativePrompt = `Suggest %d plausible, real-world partner organizations near %s in these industries: %s.
Each should be a realistic organization a %s-level course titled %q could partner with.
Return a valid JSON array, nothing else:
[{"name": "<org name>", "sector": "<sector>", "size_class": "small" | "nonprofit" | "mid_market" | "enterprise", "inferred_needs": ["<need>", ...]}]`

func (s *generativeStage) source(ctx context.Context, req Request, want int) ([]model.CandidateEntity, error) {
	if s.ai == nil {
		return nil, nil
	}

	industries := strings.Join(req.Industries, ", ")
	if industries == "" {
		industries = "any"
	}
	prompt := fmt.Sprintf(generativePrompt, want, req.Course.Location, industries, req.Course.Level, req.Course.Title)

	resp, err := s.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     s.modelID,
		MaxTokens: 1536,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "sourcing: generative fallback")
	}
	resp.Usage.LogCost(s.modelID, "generative_sourcing")

	var fabricated []struct {
		Name          string   `json:"name"`
		Sector        string   `json:"sector"`
		SizeClass     string   `json:"size_class"`
		InferredNeeds []string `json:"inferred_needs"`
	}
	if err := json.Unmarshal([]byte(extractJSONArray(resp.Text)), &fabricated); err != nil {
		return nil, eris.Wrap(err, "sourcing: parse generative candidates")
	}

	entities := make([]model.CandidateEntity, 0, len(fabricated))
	for _, f := range fabricated {
		if f.Name == "" {
			continue
		}
		entities = append(entities, model.CandidateEntity{
			Name:          f.Name,
			Sector:        f.Sector,
			SizeClass:     model.SizeClass(f.SizeClass),
			Location:      req.Course.Location,
			InferredNeeds: f.InferredNeeds,
			Source:        model.SourceGenerative,
		})
	}
	zap.L().Info("sourcing: generative fallback produced candidates",
		zap.Int("count", len(entities)))
	return entities, nil
}

func extractJSONArray(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		}
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}
