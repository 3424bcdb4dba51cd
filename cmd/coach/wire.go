package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"aramcoach/internal/config"
	"aramcoach/internal/facts"
	"aramcoach/internal/guides"
	"aramcoach/internal/llm"
	"aramcoach/internal/pipeline"
	"aramcoach/internal/priors"
	"aramcoach/internal/retrieval"
	"aramcoach/internal/server"
	"aramcoach/internal/strategy"
	"aramcoach/internal/threat"
)

// app holds the wired components of one process
type app struct {
	store   facts.Store
	patches server.PatchLister
	ctrl    *pipeline.Controller
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp builds every component from cfg. ctx bounds background work such
// as the fact directory watcher.
func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}

	base, err := openStore(ctx, cfg.Data, a)
	if err != nil {
		a.Close()
		return nil, err
	}
	cached := facts.NewCachedStore(base)
	a.store = cached
	if dir, ok := base.(*facts.DirStore); ok {
		a.patches = dir
		if cfg.Data.Watch {
			if err := cached.Watch(ctx, dir, logger); err != nil {
				logger.Warn("fact directory watch disabled", zap.Error(err))
			}
		}
	}

	gen, err := llm.New(ctx, llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.LLM.Timeout,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}

	src, err := priorSource(ctx, cfg.Priors, logger, a)
	if err != nil {
		a.Close()
		return nil, err
	}

	norm := threat.Normalization{Offset: cfg.Threat.PriorOffset, Scale: cfg.Threat.PriorScale}
	estimator, err := threat.New(cfg.Threat.Mode, src, gen, norm, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithTopK(cfg.Retrieval.TopK),
		pipeline.WithMaxLoops(cfg.Pipeline.MaxLoops),
		pipeline.WithStageTimeout(cfg.Pipeline.StageTimeout),
		pipeline.WithDefaultPatch(cfg.Data.DefaultPatch),
	}
	if cfg.Guides.Enabled {
		gopts := []guides.Option{
			guides.WithConcurrency(cfg.Guides.Concurrency),
			guides.WithTimeout(cfg.Guides.Timeout),
			guides.WithTTL(cfg.Guides.TTL),
		}
		if cfg.Guides.BaseURL != "" {
			gopts = append(gopts, guides.WithBaseURL(cfg.Guides.BaseURL))
		}
		opts = append(opts, pipeline.WithGuideFetcher(guides.NewFetcher(logger, gopts...)))
	}

	a.ctrl = pipeline.NewController(
		a.store,
		retrieval.NewRanker(retrieval.Mode(cfg.Retrieval.Mode), retrieval.WithParams(cfg.Retrieval.K1, cfg.Retrieval.B)),
		estimator,
		strategy.New(gen, cfg.LLM.Strict, cfg.LLM.SnippetTokens, logger.Named("strategy")),
		opts...,
	)

	logger.Info("pipeline ready",
		zap.String("data_backend", cfg.Data.Backend),
		zap.String("threat_mode", cfg.Threat.Mode),
		zap.String("llm_provider", cfg.LLM.Provider),
		zap.Bool("guides", cfg.Guides.Enabled))
	return a, nil
}

func openStore(ctx context.Context, cfg config.DataConfig, a *app) (facts.Store, error) {
	if cfg.Backend == config.BackendDir {
		return facts.NewDirStore(cfg.Root), nil
	}
	store, err := facts.OpenSQLStore(ctx, cfg.Backend, cfg.DSN, cfg.AuthToken)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() { store.Close() })
	return store, nil
}

// priorSource chains the configured win-rate sources behind a TTL cache.
// It returns nil when none is configured.
func priorSource(ctx context.Context, cfg config.PriorsConfig, logger *zap.Logger, a *app) (priors.Source, error) {
	var sources []priors.Source
	if len(cfg.Static) > 0 {
		sources = append(sources, priors.StaticSource(cfg.Static))
	}
	if cfg.DatabaseURL != "" {
		pg, err := priors.NewPostgresSource(ctx, cfg.DatabaseURL, cfg.MinGames)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pg.Close)
		sources = append(sources, pg)
	}
	if cfg.MetaSrc {
		var opts []priors.MetaSrcOption
		if cfg.MetaSrcURL != "" {
			opts = append(opts, priors.WithStatsURL(cfg.MetaSrcURL))
		}
		sources = append(sources, priors.NewMetaSrcSource(cfg.TTL, opts...))
	}

	if len(sources) == 0 {
		return nil, nil
	}
	return priors.NewCachedSource(priors.NewChainSource(logger.Named("priors"), sources...), cfg.TTL), nil
}
