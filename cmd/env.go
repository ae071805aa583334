package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/capability"
	"github.com/sells-group/refine-cli/internal/config"
	"github.com/sells-group/refine-cli/internal/cost"
	"github.com/sells-group/refine-cli/internal/loop"
	"github.com/sells-group/refine-cli/internal/refiner"
	"github.com/sells-group/refine-cli/internal/resilience"
	"github.com/sells-group/refine-cli/internal/store"
	"github.com/sells-group/refine-cli/internal/validator"
	anthropicpkg "github.com/sells-group/refine-cli/pkg/anthropic"
	"github.com/sells-group/refine-cli/pkg/edgar"
	"github.com/sells-group/refine-cli/pkg/jina"
	"github.com/sells-group/refine-cli/pkg/perplexity"
)

// refineEnv holds the store, API clients, and capability set shared by the
// run/batch/validate/serve commands. Controllers are built per run because
// each run carries its own cost tracker.
type refineEnv struct {
	Store      store.Store
	Anthropic  anthropicpkg.Client
	Calculator *cost.Calculator
	Caps       capability.Set
}

// Close releases resources held by the environment.
func (e *refineEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "refine.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, API clients, and the capability set. Callers
// should defer env.Close().
func initEnv(ctx context.Context) (*refineEnv, error) {
	if cfg.Anthropic.Key == "" {
		return nil, eris.New("anthropic API key is required (REFINE_ANTHROPIC_KEY)")
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	anthropicClient := anthropicpkg.NewClient(cfg.Anthropic.Key)

	// Search providers register under their names; config picks one.
	registry := capability.NewRegistry()
	if cfg.Perplexity.Key != "" {
		perplexityClient := perplexity.NewClient(cfg.Perplexity.Key,
			perplexity.WithBaseURL(cfg.Perplexity.BaseURL),
			perplexity.WithModel(cfg.Perplexity.Model),
		)
		registry.Register(capability.NewBreakerSearch(
			capability.NewPerplexitySearch(perplexityClient, cfg.Perplexity.Model),
			resilience.FromCircuitConfig(cfg.Search.BreakerFailures, cfg.Search.BreakerResetSecs),
		))
	}
	if cfg.Jina.Key != "" {
		jinaOpts := []jina.Option{}
		if cfg.Jina.SearchBaseURL != "" {
			jinaOpts = append(jinaOpts, jina.WithSearchBaseURL(cfg.Jina.SearchBaseURL))
		}
		registry.Register(capability.NewBreakerSearch(
			capability.NewJinaSearch(jina.NewClient(cfg.Jina.Key, jinaOpts...)),
			resilience.FromCircuitConfig(cfg.Search.BreakerFailures, cfg.Search.BreakerResetSecs),
		))
	}

	caps := capability.Set{
		Compute: capability.NewFormulaCompute(),
	}

	if cfg.Edgar.UserAgent != "" {
		edgarClient := edgar.NewClient(cfg.Edgar.UserAgent,
			edgar.WithRateLimit(cfg.Edgar.RequestsPerSec),
		)
		caps.Fetcher = capability.NewEdgarFetcher(edgarClient)
	} else {
		zap.L().Warn("edgar user agent not configured, document fetching disabled")
	}

	if provider, err := registry.Get(cfg.Search.Provider); err != nil {
		zap.L().Warn("search provider unavailable, claim verification disabled",
			zap.String("provider", cfg.Search.Provider),
			zap.Error(err),
		)
	} else {
		caps.Search = provider
		zap.L().Info("search provider selected", zap.String("provider", provider.Name()))
	}

	return &refineEnv{
		Store:      st,
		Anthropic:  anthropicClient,
		Calculator: cost.NewCalculator(ratesFromConfig(cfg.Pricing)),
		Caps:       caps,
	}, nil
}

// newController builds a controller with a fresh cost tracker. The tracker
// is returned so callers can fold totals into the run result.
func (e *refineEnv) newController() (*loop.Controller, *cost.Tracker) {
	tracker := cost.NewTracker(e.Calculator)
	retry := resilience.FromRetryConfig(
		cfg.Retry.MaxAttempts,
		cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs,
		cfg.Retry.Multiplier,
		cfg.Retry.JitterFraction,
	)
	v := validator.New(e.Anthropic, cfg.Validator, cfg.Loop.ScoreThreshold, e.Caps, tracker)
	v.SetRetry(retry)
	r := refiner.New(e.Anthropic, cfg.Refiner, e.Caps, tracker)
	r.SetRetry(retry)
	return loop.NewController(v, r, cfg.Loop, tracker), tracker
}

// ratesFromConfig converts configured pricing into calculator rates.
func ratesFromConfig(p config.PricingConfig) cost.Rates {
	rates := cost.DefaultRates()
	for mdl, mp := range p.Anthropic {
		rates.Anthropic[mdl] = cost.ModelRate{
			Input:         mp.Input,
			Output:        mp.Output,
			CacheWriteMul: mp.CacheWriteMul,
			CacheReadMul:  mp.CacheReadMul,
		}
	}
	if p.Perplexity.PerQuery > 0 {
		rates.Perplexity.PerQuery = p.Perplexity.PerQuery
	}
	if p.Jina.PerQuery > 0 {
		rates.Jina.PerQuery = p.Jina.PerQuery
	}
	return rates
}
