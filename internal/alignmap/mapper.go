// Package alignmap produces the advisory outcome-to-work mapping for a
// proposal. It is best-effort: every failure path returns nil, and a nil
// mapping never blocks persistence.
package alignmap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
)

// Mapper calls the generative service once per proposal.
type Mapper struct {
	ai    anthropic.Client
	model string
}

// New creates a Mapper. ai may be nil, in which case Map always returns nil.
func New(ai anthropic.Client, modelID string) *Mapper {
	return &Mapper{ai: ai, model: modelID}
}

const mappingPrompt = `You are mapping a course's learning outcomes to the project work that exercises them.

Learning outcomes (numbered):
%s

Project tasks (numbered from 0):
%s

Project deliverables (numbered from 0):
%s

For each outcome, identify which task and deliverable indexes address it and estimate coverage. Also list outcomes with no meaningful coverage as gaps. Return a valid JSON object:
{"outcomes": [{"outcome": "<text>", "task_indexes": [0], "deliverable_indexes": [0], "coverage_pct": <0-100>}], "gaps": ["<outcome text>"], "overall_pct": <0-100>}`

// Map produces the outcome coverage detail, or nil on any failure: service
// error, malformed JSON, or a response missing the required shape.
func (m *Mapper) Map(ctx context.Context, p model.Proposal, course model.Course) *model.AlignmentDetail {
	if m.ai == nil || len(course.LearningOutcomes) == 0 {
		return nil
	}

	prompt := fmt.Sprintf(mappingPrompt,
		numbered(course.LearningOutcomes), numbered(p.Tasks), numbered(p.Deliverables))

	resp, err := m.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     m.model,
		MaxTokens: 1024,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("alignmap: mapping call failed", zap.Error(err))
		return nil
	}
	resp.Usage.LogCost(m.model, "alignment_map")

	var detail model.AlignmentDetail
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &detail); err != nil {
		zap.L().Warn("alignmap: malformed mapping response", zap.Error(err))
		return nil
	}
	if len(detail.Outcomes) == 0 {
		zap.L().Warn("alignmap: mapping response missing outcomes")
		return nil
	}
	for _, oc := range detail.Outcomes {
		if oc.CoveragePct < 0 || oc.CoveragePct > 100 {
			zap.L().Warn("alignmap: coverage out of range", zap.Int("pct", oc.CoveragePct))
			return nil
		}
	}

	return &detail
}

func numbered(items []string) string {
	var b strings.Builder
	for i, it := range items {
		fmt.Fprintf(&b, "%d. %s\n", i, it)
	}
	return b.String()
}

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
