package sourcing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/store"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
)

// Filter is the intelligence filter: it scores a batch of entities for
// relevance against a course's learning outcomes, keeps those at or above the
// cutoff, and caches the result. It never fails the caller; on generative
// unavailability it degrades to a keyword exclusion heuristic.
type Filter struct {
	ai      anthropic.Client
	modelID string
	cache   store.Store
	cutoff  int
	ttl     time.Duration
}

// NewFilter creates a Filter. cache may be nil to disable caching.
func NewFilter(ai anthropic.Client, modelID string, cache store.Store, cutoff int, ttl time.Duration) *Filter {
	if cutoff <= 0 {
		cutoff = 35
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Filter{ai: ai, modelID: modelID, cache: cache, cutoff: cutoff, ttl: ttl}
}

const relevancePrompt = `You are matching partner organizations with an academic course. Be generous and creative: a plausible stretch match is better than a missed opportunity.

Course level: %s
Learning outcomes:
%s

Organizations (numbered from 0):
%s

Score each organization's relevance to the course outcomes from 0 to 100. Return a valid JSON object, nothing else:
{"scores": [{"index": 0, "score": <0-100>}, ...]}`

// Rank scores entities against the course and returns those at or above the
// cutoff, sorted by relevance descending. Cached results are reused within
// the expiry window.
func (f *Filter) Rank(ctx context.Context, course model.Course, entities []model.CandidateEntity) []model.RankedCandidate {
	if len(entities) == 0 {
		return nil
	}

	key := f.cacheKey(course, entities)
	if f.cache != nil {
		cached, err := f.cache.GetCachedFilter(ctx, key)
		if err != nil {
			zap.L().Warn("sourcing: filter cache read failed", zap.Error(err))
		} else if cached != nil {
			zap.L().Debug("sourcing: filter cache hit", zap.String("key", key))
			return cached
		}
	}

	ranked, ok := f.rankGenerative(ctx, course, entities)
	if !ok {
		ranked = f.rankKeyword(entities)
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Relevance > ranked[j].Relevance
	})

	if f.cache != nil {
		if err := f.cache.SetCachedFilter(ctx, key, ranked, f.ttl); err != nil {
			zap.L().Warn("sourcing: filter cache write failed", zap.Error(err))
		}
	}
	return ranked
}

func (f *Filter) rankGenerative(ctx context.Context, course model.Course, entities []model.CandidateEntity) ([]model.RankedCandidate, bool) {
	if f.ai == nil {
		return nil, false
	}

	var listing strings.Builder
	for i, e := range entities {
		fmt.Fprintf(&listing, "%d. %s (%s", i, e.Name, e.Sector)
		if len(e.InferredNeeds) > 0 {
			fmt.Fprintf(&listing, "; needs: %s", strings.Join(e.InferredNeeds, ", "))
		}
		listing.WriteString(")\n")
	}

	prompt := fmt.Sprintf(relevancePrompt, course.Level,
		"- "+strings.Join(course.LearningOutcomes, "\n- "), listing.String())

	resp, err := f.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     f.modelID,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("sourcing: relevance scoring failed, using keyword heuristic", zap.Error(err))
		return nil, false
	}
	resp.Usage.LogCost(f.modelID, "relevance_filter")

	var parsed struct {
		Scores []struct {
			Index int `json:"index"`
			Score int `json:"score"`
		} `json:"scores"`
	}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Text)), &parsed); err != nil {
		zap.L().Warn("sourcing: malformed relevance response, using keyword heuristic", zap.Error(err))
		return nil, false
	}
	if len(parsed.Scores) == 0 {
		return nil, false
	}

	var ranked []model.RankedCandidate
	for _, sc := range parsed.Scores {
		if sc.Index < 0 || sc.Index >= len(entities) {
			continue
		}
		if sc.Score >= f.cutoff {
			ranked = append(ranked, model.RankedCandidate{
				Candidate: entities[sc.Index],
				Relevance: sc.Score,
			})
		}
	}
	return ranked, true
}

// genericNeeds are signals too vague to justify a pairing on their own.
var genericNeeds = map[string]bool{
	"growth":          true,
	"marketing":       true,
	"more customers":  true,
	"revenue":         true,
	"sales":           true,
	"efficiency":      true,
	"visibility":      true,
	"brand awareness": true,
	"expansion":       true,
	"help":            true,
	"support":         true,
}

// rankKeyword is the degraded path: drop entities whose only signals are
// generic, keep the rest at the cutoff score so ordering stays stable.
func (f *Filter) rankKeyword(entities []model.CandidateEntity) []model.RankedCandidate {
	var ranked []model.RankedCandidate
	for _, e := range entities {
		if onlyGenericNeeds(e.InferredNeeds) {
			continue
		}
		ranked = append(ranked, model.RankedCandidate{Candidate: e, Relevance: f.cutoff})
	}
	return ranked
}

func onlyGenericNeeds(needs []string) bool {
	if len(needs) == 0 {
		return true
	}
	for _, n := range needs {
		if !genericNeeds[strings.ToLower(strings.TrimSpace(n))] {
			return false
		}
	}
	return true
}

// cacheKey derives a deterministic signature from the sorted outcome list,
// the course level, and the sorted candidate identity set.
func (f *Filter) cacheKey(course model.Course, entities []model.CandidateEntity) string {
	outcomes := append([]string(nil), course.LearningOutcomes...)
	sort.Strings(outcomes)

	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.ID != "" {
			ids = append(ids, e.ID)
		} else {
			ids = append(ids, e.Name)
		}
	}
	sort.Strings(ids)

	h := sha256.New()
	for _, o := range outcomes {
		h.Write([]byte(o))
		h.Write([]byte{0})
	}
	h.Write([]byte(course.Level))
	h.Write([]byte{0})
	for _, id := range ids {
		h.Write([]byte(id))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func extractJSONObject(text string) string {
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
