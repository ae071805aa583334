package cost

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/refine-cli/internal/model"
)

func testRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"haiku": {
				Input: 0.80, Output: 4.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"sonnet": {
				Input: 3.00, Output: 15.00,
				CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
		Perplexity: PerplexityRate{PerQuery: 0.005},
		Jina:       JinaRate{PerQuery: 0.002},
	}
}

func TestClaude(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name       string
		model      string
		input      int
		output     int
		cacheWrite int
		cacheRead  int
		want       float64
	}{
		{
			name:  "haiku simple",
			model: "haiku",
			input: 1000000, output: 100000,
			want: 0.80 + 0.40, // 0.80 input + 0.40 output
		},
		{
			name:  "haiku with cache",
			model: "haiku",
			input: 500000, output: 50000,
			cacheWrite: 200000, cacheRead: 300000,
			// in: 0.5M/1M * 0.80 = 0.40
			// out: 0.05M/1M * 4.00 = 0.20
			// cw: 0.2M/1M * 0.80 * 1.25 = 0.20
			// cr: 0.3M/1M * 0.80 * 0.1 = 0.024
			want: 0.40 + 0.20 + 0.20 + 0.024,
		},
		{
			name:  "sonnet simple",
			model: "sonnet",
			input: 1000000, output: 1000000,
			want: 3.00 + 15.00,
		},
		{
			name:  "unknown model is free",
			model: "claude-nonexistent",
			input: 1000000, output: 1000000,
			want: 0,
		},
		{
			name:  "zero usage",
			model: "haiku",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calc.Claude(tt.model, tt.input, tt.output, tt.cacheWrite, tt.cacheRead)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestSearchQuery(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	assert.InDelta(t, 0.005, calc.SearchQuery("perplexity"), 1e-9)
	assert.InDelta(t, 0.002, calc.SearchQuery("jina"), 1e-9)
	assert.Zero(t, calc.SearchQuery("duckduckgo"))
}

func TestDefaultRates(t *testing.T) {
	t.Parallel()
	rates := DefaultRates()
	assert.Contains(t, rates.Anthropic, "claude-sonnet-4-5-20250929")
	assert.Contains(t, rates.Anthropic, "claude-haiku-4-5-20251001")
	assert.Positive(t, rates.Perplexity.PerQuery)
	assert.Positive(t, rates.Jina.PerQuery)
}

func TestTracker_AccumulatesAcrossStages(t *testing.T) {
	t.Parallel()
	tr := NewTracker(NewCalculator(testRates()))

	tr.Seed("draft", model.TokenUsage{InputTokens: 100, OutputTokens: 50, Cost: 0.01})
	tr.RecordClaude("validate", "haiku", model.TokenUsage{InputTokens: 1000000, OutputTokens: 100000})
	tr.RecordClaude("refine", "sonnet", model.TokenUsage{InputTokens: 1000000, OutputTokens: 1000000})
	tr.RecordSearch("validate", "perplexity")
	tr.RecordCompute("validate")
	tr.RecordCompute("validate")
	tr.RecordFetch("validate")

	total := tr.Total()
	assert.Equal(t, 2000100, total.InputTokens)
	assert.Equal(t, 1100050, total.OutputTokens)
	assert.Equal(t, 1, total.SearchQueries)
	assert.InDelta(t, 0.01+1.20+18.00+0.005, total.Cost, 1e-9)

	searches, computes, fetches := tr.Counts()
	assert.Equal(t, 1, searches)
	assert.Equal(t, 2, computes)
	assert.Equal(t, 1, fetches)
}

func TestTracker_StageAttribution(t *testing.T) {
	t.Parallel()
	tr := NewTracker(NewCalculator(testRates()))

	tr.RecordClaude("validate", "haiku", model.TokenUsage{InputTokens: 10, OutputTokens: 5})
	tr.RecordClaude("refine", "haiku", model.TokenUsage{InputTokens: 20, OutputTokens: 10})

	assert.Equal(t, 10, tr.Stage("validate").InputTokens)
	assert.Equal(t, 20, tr.Stage("refine").InputTokens)
	assert.Zero(t, tr.Stage("draft").InputTokens)
}
