package cost

import (
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/model"
)

// Tracker accumulates token usage and dollar cost for every capability call
// made by every stage of one full analysis. A single tracker is threaded
// through the draft stage, every validation pass, and every refinement pass,
// so the final total covers all stages rather than only the first.
type Tracker struct {
	mu     sync.Mutex
	calc   *Calculator
	total  model.TokenUsage
	stages map[string]model.TokenUsage

	searchCalls  int
	computeCalls int
	fetchCalls   int
}

// NewTracker creates a Tracker using the given pricing calculator.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{
		calc:   calc,
		stages: make(map[string]model.TokenUsage),
	}
}

// Seed records usage already consumed before the loop started (the analyst's
// drafting stages). Seeding keeps the run total honest for artifacts that
// arrive with prior usage attached.
func (t *Tracker) Seed(stage string, usage model.TokenUsage) {
	t.add(stage, usage)
}

// RecordClaude attributes a Claude call's usage to a stage, pricing it by
// model.
func (t *Tracker) RecordClaude(stage, mdl string, usage model.TokenUsage) {
	usage.Cost = t.calc.Claude(mdl, usage.InputTokens, usage.OutputTokens, usage.CacheCreationTokens, usage.CacheReadTokens)
	t.add(stage, usage)
}

// RecordSearch attributes one search query to a stage.
func (t *Tracker) RecordSearch(stage, provider string) {
	t.mu.Lock()
	t.searchCalls++
	t.mu.Unlock()
	t.add(stage, model.TokenUsage{SearchQueries: 1, Cost: t.calc.SearchQuery(provider)})
}

// RecordCompute counts one formula evaluation. Compute is in-process and
// free, but the call count is part of the usage trail.
func (t *Tracker) RecordCompute(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.computeCalls++
}

// RecordFetch counts one document fetch.
func (t *Tracker) RecordFetch(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fetchCalls++
}

func (t *Tracker) add(stage string, usage model.TokenUsage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.total.Add(usage)
	s := t.stages[stage]
	s.Add(usage)
	t.stages[stage] = s
}

// Total returns the accumulated usage across all stages.
func (t *Tracker) Total() model.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Stage returns the accumulated usage for one stage.
func (t *Tracker) Stage(name string) model.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stages[name]
}

// Counts returns the capability call counts (search, compute, fetch).
func (t *Tracker) Counts() (searches, computes, fetches int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.searchCalls, t.computeCalls, t.fetchCalls
}

// LogTotal logs the accumulated usage with structured fields.
func (t *Tracker) LogTotal(ticker string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	zap.L().Info("cost attribution",
		zap.String("ticker", ticker),
		zap.Int("input_tokens", t.total.InputTokens),
		zap.Int("output_tokens", t.total.OutputTokens),
		zap.Int("cache_write_tokens", t.total.CacheCreationTokens),
		zap.Int("cache_read_tokens", t.total.CacheReadTokens),
		zap.Int("search_queries", t.total.SearchQueries),
		zap.Int("compute_calls", t.computeCalls),
		zap.Int("fetch_calls", t.fetchCalls),
		zap.Float64("estimated_cost_usd", t.total.Cost),
	)
}
