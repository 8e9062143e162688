// Package app wires configuration into a runnable pipeline.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agenthands/lineage/internal/catalog"
	"github.com/agenthands/lineage/internal/config"
	"github.com/agenthands/lineage/internal/core"
	"github.com/agenthands/lineage/internal/core/commit"
	"github.com/agenthands/lineage/internal/core/conflict"
	"github.com/agenthands/lineage/internal/core/extraction"
	"github.com/agenthands/lineage/internal/core/identity"
	"github.com/agenthands/lineage/internal/core/merge"
	"github.com/agenthands/lineage/internal/core/resolve"
	"github.com/agenthands/lineage/internal/driver"
	"github.com/agenthands/lineage/internal/fetch"
	"github.com/agenthands/lineage/internal/llm"
	"github.com/agenthands/lineage/internal/lock"
	"github.com/agenthands/lineage/internal/logger"
	"github.com/agenthands/lineage/internal/pipeline"
)

type Options struct {
	// Decider answers interactive conflicts. When nil, resolve.decisions_file
	// is used if configured.
	Decider resolve.Decider
	// Mode overrides resolve.mode when set.
	Mode resolve.Mode
	// MemoryGraph uses an in-process graph even if neo4j.uri is set.
	MemoryGraph bool
	// Fetcher replaces the HTTP fetcher.
	Fetcher fetch.DocumentFetcher
}

type App struct {
	Config   *config.Config
	Log      *logger.Logger
	Catalog  *catalog.Catalog
	Store    driver.GraphStore
	Engine   *core.Engine
	Pipeline *pipeline.Pipeline

	closers []func(context.Context) error
}

func New(ctx context.Context, cfg *config.Config, log *logger.Logger, opts Options) (_ *App, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	a := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			_ = a.Close(context.WithoutCancel(ctx))
		}
	}()

	a.Catalog, err = catalog.Open(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return a.Catalog.Close() })

	if a.Store, err = openStore(ctx, cfg, opts, log); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.Store.Close)

	var names identity.NameNormalizer
	if cfg.Identity.VariantsFile != "" {
		if names, err = identity.LoadVariants(cfg.Identity.VariantsFile); err != nil {
			return nil, err
		}
	}
	ids := identity.NewResolver(a.Store, names, log)
	ids.NameFallback = cfg.Identity.NameFallback

	decider := opts.Decider
	if decider == nil && cfg.Resolve.DecisionsFile != "" {
		if decider, err = resolve.LoadScriptedDecider(cfg.Resolve.DecisionsFile); err != nil {
			return nil, err
		}
	}
	mode := resolve.Mode(cfg.Resolve.Mode)
	if opts.Mode != "" {
		mode = opts.Mode
	}
	resolver := resolve.NewResolver(resolve.Config{
		Mode:              mode,
		OverrideThreshold: cfg.Resolve.OverrideThreshold,
		DecisionTimeout:   cfg.Resolve.DecisionTimeout.Duration,
	}, decider, log)

	locker, err := a.openLocker(ctx)
	if err != nil {
		return nil, err
	}

	a.Engine = core.NewEngine(
		merge.NewMerger(cfg.Merge.HighThreshold),
		ids,
		conflict.NewDetector(cfg.Conflict.PlaceTolerance),
		resolver,
		commit.NewCommitter(a.Store, cfg.Pipeline.CommitTimeout.Duration, log),
		locker,
		log,
	)

	extractors, err := a.buildExtractors(ctx)
	if err != nil {
		return nil, err
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.NewHTTPFetcher(cfg.Pipeline.FetchTimeout.Duration, cfg.Pipeline.RequestsPerSecond, cfg.Pipeline.UserAgent, log)
	}
	if cfg.Pipeline.CacheSize > 0 {
		if fetcher, err = fetch.NewCachingFetcher(fetcher, cfg.Pipeline.CacheSize); err != nil {
			return nil, err
		}
	}

	a.Pipeline = pipeline.New(a.Catalog, fetcher, fetch.NewRegistry(nil), extractors, a.Engine, pipeline.Config{
		Workers:        cfg.Pipeline.Workers,
		Retry:          pipeline.Policy{Limit: cfg.Pipeline.RetryLimit, Base: cfg.Pipeline.BackoffBase.Duration},
		ExtractTimeout: cfg.Pipeline.ExtractTimeout.Duration,
	}, log)

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, opts Options, log *logger.Logger) (driver.GraphStore, error) {
	if cfg.Neo4j.URI == "" || opts.MemoryGraph {
		log.Info("using in-memory graph")
		return driver.NewMemoryStore(), nil
	}
	store, err := driver.NewNeo4jStore(ctx, cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, cfg.Neo4j.Database, driver.Flavor(cfg.Neo4j.Flavor), log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to graph: %w", err)
	}
	if err := store.BuildIndices(ctx); err != nil {
		_ = store.Close(ctx)
		return nil, fmt.Errorf("failed to build indices: %w", err)
	}
	return store, nil
}

func (a *App) openLocker(ctx context.Context) (lock.KeyLocker, error) {
	if a.Config.Lock.Backend != "redis" {
		return lock.NewMemoryLocker(), nil
	}
	l, err := lock.NewRedisLocker(ctx, a.Config.Lock.RedisAddr, a.Config.Lock.RedisPassword, a.Config.Lock.RedisDB, a.Config.Lock.TTL.Duration, a.Log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return l.Close() })
	return l, nil
}

func (a *App) buildExtractors(ctx context.Context) ([]extraction.Extractor, error) {
	var out []extraction.Extractor
	for _, provider := range a.Config.ModelProviders() {
		llmCfg := a.Config.LLM
		llmCfg.Provider = provider
		client, err := llm.NewClient(ctx, llmCfg, a.Log)
		if err != nil {
			return nil, err
		}
		if c, ok := client.(io.Closer); ok {
			a.closers = append(a.closers, func(context.Context) error { return c.Close() })
		}
		out = append(out, extraction.NewLLMExtractor(client, strings.ToLower(provider), a.Config.LLM.Prompt))
	}
	if a.Config.Pipeline.PatternExtractor {
		out = append(out, extraction.NewPatternExtractor())
	}
	return out, nil
}

// Close releases everything New opened, last opened first.
func (a *App) Close(ctx context.Context) error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
