// Package generate drives the generative service to produce one validated
// proposal per candidate, with a bounded retry budget.
package generate

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/coursebridge/proposal-cli/internal/config"
	"github.com/coursebridge/proposal-cli/internal/model"
	"github.com/coursebridge/proposal-cli/internal/resilience"
	"github.com/coursebridge/proposal-cli/pkg/anthropic"
)

// ErrGenerationExhausted is returned when every attempt for a candidate
// failed at the transport or parse level. Quality issues alone never produce
// it; a final attempt with residual quality issues is flagged for review
// instead.
var ErrGenerationExhausted = eris.New("generate: attempt budget exhausted")

// Result carries the proposal plus the attribution the metadata row records.
type Result struct {
	Proposal model.Proposal
	ModelID  string
	Usage    anthropic.TokenUsage
}

// Generator produces proposals for candidate/course pairs.
type Generator struct {
	ai          anthropic.Client
	modelID     string
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	validator   validator

	// sleep is swappable in tests.
	sleep func(context.Context, time.Duration) error
}

// New creates a Generator from config. Zero config fields fall back to the
// shipped defaults.
func New(ai anthropic.Client, modelID string, cfg config.GenerationConfig) *Generator {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BackoffBaseMs <= 0 {
		cfg.BackoffBaseMs = 1000
	}
	if cfg.BackoffCapMs <= 0 {
		cfg.BackoffCapMs = 8000
	}
	if cfg.MinDescriptionLn <= 0 {
		cfg.MinDescriptionLn = 120
	}
	if cfg.MinTasks <= 0 {
		cfg.MinTasks = 3
	}
	if cfg.MinDeliverables <= 0 {
		cfg.MinDeliverables = 2
	}

	return &Generator{
		ai:          ai,
		modelID:     modelID,
		maxAttempts: cfg.MaxAttempts,
		backoffBase: time.Duration(cfg.BackoffBaseMs) * time.Millisecond,
		backoffCap:  time.Duration(cfg.BackoffCapMs) * time.Millisecond,
		validator: validator{
			minDescriptionLen: cfg.MinDescriptionLn,
			minTasks:          cfg.MinTasks,
			minDeliverables:   cfg.MinDeliverables,
		},
		sleep: sleepCtx,
	}
}

// Generate runs the attempt loop for one candidate. Transport and parse
// failures back off exponentially; quality issues back off linearly. A final
// attempt that still has quality issues returns the proposal with NeedsReview
// set rather than failing the candidate.
func (g *Generator) Generate(ctx context.Context, candidate model.CandidateEntity, course model.Course) (*Result, error) {
	prompt := buildPrompt(candidate, course)
	var usage anthropic.TokenUsage
	var lastErr error

	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "generate: cancelled")
		}

		proposal, callUsage, err := g.attempt(ctx, prompt)
		usage.Add(callUsage)
		if err != nil {
			lastErr = err
			if resilience.Classify(err) == resilience.CategoryPermanent {
				return nil, eris.Wrap(err, "generate: permanent failure")
			}
			if attempt == g.maxAttempts {
				break
			}
			delay := g.transportBackoff(attempt, err)
			zap.L().Warn("generate: attempt failed",
				zap.String("candidate", candidate.Name),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", delay),
				zap.Error(err))
			if err := g.sleep(ctx, delay); err != nil {
				return nil, eris.Wrap(err, "generate: cancelled during backoff")
			}
			continue
		}

		cleanProposal(proposal)
		issues := g.validator.validate(*proposal)
		proposal.Attempts = attempt

		if len(issues) == 0 {
			usage.LogCost(g.modelID, "proposal_generation")
			return &Result{Proposal: *proposal, ModelID: g.modelID, Usage: usage}, nil
		}

		if attempt == g.maxAttempts {
			// Keep the imperfect proposal and surface it for a human pass.
			proposal.NeedsReview = true
			zap.L().Warn("generate: flagging for review",
				zap.String("candidate", candidate.Name),
				zap.Strings("issues", issueStrings(issues)))
			usage.LogCost(g.modelID, "proposal_generation")
			return &Result{Proposal: *proposal, ModelID: g.modelID, Usage: usage}, nil
		}

		delay := g.backoffBase * time.Duration(attempt)
		zap.L().Info("generate: quality issues, retrying",
			zap.String("candidate", candidate.Name),
			zap.Int("attempt", attempt),
			zap.Strings("issues", issueStrings(issues)))
		if err := g.sleep(ctx, delay); err != nil {
			return nil, eris.Wrap(err, "generate: cancelled during backoff")
		}
	}

	usage.LogCost(g.modelID, "proposal_generation")
	return nil, eris.Wrap(ErrGenerationExhausted, resilience.ExternalMessage(lastErr))
}

// attempt performs one service call and structural parse.
func (g *Generator) attempt(ctx context.Context, prompt string) (*model.Proposal, anthropic.TokenUsage, error) {
	resp, err := g.ai.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     g.modelID,
		MaxTokens: 2048,
		System:    systemPrompt,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return nil, anthropic.TokenUsage{}, asExternal(eris.Wrap(err, "generate: service call"))
	}

	var p model.Proposal
	if err := json.Unmarshal([]byte(extractJSON(resp.Text)), &p); err != nil {
		return nil, resp.Usage, asExternal(eris.Wrap(err, "generate: malformed response"))
	}

	return &p, resp.Usage, nil
}

// asExternal tags an unclassified error as a provider failure. An explicit
// classification already in the chain, permanent auth errors included, must
// stay visible to Classify, so those errors pass through untagged.
func asExternal(err error) error {
	if resilience.Classify(err) == resilience.CategoryInternal {
		return resilience.External(err)
	}
	return err
}

func (g *Generator) transportBackoff(attempt int, err error) time.Duration {
	d := g.backoffBase << (attempt - 1)
	if d > g.backoffCap {
		d = g.backoffCap
	}
	if hint := resilience.Delay(err); hint > d {
		d = hint
	}
	return d
}

func issueStrings(issues []QualityIssue) []string {
	out := make([]string, len(issues))
	for i, q := range issues {
		out[i] = q.String()
	}
	return out
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
