package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/coursebridge/proposal-cli/internal/alignmap"
	"github.com/coursebridge/proposal-cli/internal/generate"
	"github.com/coursebridge/proposal-cli/internal/pipeline"
	"github.com/coursebridge/proposal-cli/internal/pricing"
	"github.com/coursebridge/proposal-cli/internal/scoring"
	"github.com/coursebridge/proposal-cli/internal/sourcing"
	"github.com/coursebridge/proposal-cli/internal/store"
	anthropicpkg "github.com/coursebridge/proposal-cli/pkg/anthropic"
	"github.com/coursebridge/proposal-cli/pkg/intel"
	"github.com/coursebridge/proposal-cli/pkg/notion"
)

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "proposals.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// pipelineEnv bundles the orchestrator with the resources it borrows, so
// commands can close everything in one place.
type pipelineEnv struct {
	Orchestrator *pipeline.Orchestrator
	Store        store.Store
}

func (e *pipelineEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	if cfg.Anthropic.Key == "" {
		st.Close()
		return nil, eris.New("anthropic API key is required (COURSEBRIDGE_ANTHROPIC_KEY)")
	}
	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	var intelClient intel.Client
	if cfg.Intel.Key != "" {
		intelClient = intel.NewClient(cfg.Intel.Key,
			intel.WithBaseURL(cfg.Intel.BaseURL),
			intel.WithRateLimit(cfg.Intel.RPS),
		)
	}

	table := pricing.DefaultTable()
	if cfg.Pricing.TablePath != "" {
		table, err = pricing.LoadTable(cfg.Pricing.TablePath)
		if err != nil {
			st.Close()
			return nil, eris.Wrap(err, "load pricing table")
		}
	}

	sourcer := sourcing.New(st, intelClient, aiClient, cfg.Anthropic.HaikuModel, cfg.Sourcing)
	generator := generate.New(aiClient, cfg.Anthropic.SonnetModel, cfg.Generation)
	scorer := scoring.NewEngine(aiClient, cfg.Anthropic.HaikuModel, cfg.Scoring)
	pricer := pricing.NewEngine(table)
	mapper := alignmap.New(aiClient, cfg.Anthropic.HaikuModel)

	opts := []pipeline.Option{
		pipeline.WithPacing(time.Duration(cfg.Sourcing.PacingDelayMs) * time.Millisecond),
	}
	if cfg.Notion.Token != "" && cfg.Notion.ReviewDB != "" {
		opts = append(opts, pipeline.WithReviewBoard(notion.NewClient(cfg.Notion.Token), cfg.Notion.ReviewDB))
	}

	orch := pipeline.New(st, sourcer, generator, scorer, pricer, mapper, opts...)
	return &pipelineEnv{Orchestrator: orch, Store: st}, nil
}
