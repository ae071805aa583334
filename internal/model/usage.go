package model

// TokenUsage tracks token consumption for one or more capability calls.
type TokenUsage struct {
	InputTokens         int     `json:"input_tokens"`
	OutputTokens        int     `json:"output_tokens"`
	CacheCreationTokens int     `json:"cache_creation_tokens"`
	CacheReadTokens     int     `json:"cache_read_tokens"`
	SearchQueries       int     `json:"search_queries"`
	Cost                float64 `json:"cost"`
}

// Add merges token usage from another instance.
func (t *TokenUsage) Add(other TokenUsage) {
	t.InputTokens += other.InputTokens
	t.OutputTokens += other.OutputTokens
	t.CacheCreationTokens += other.CacheCreationTokens
	t.CacheReadTokens += other.CacheReadTokens
	t.SearchQueries += other.SearchQueries
	t.Cost += other.Cost
}

// Since returns the usage accumulated after the earlier snapshot.
func (t TokenUsage) Since(earlier TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:         t.InputTokens - earlier.InputTokens,
		OutputTokens:        t.OutputTokens - earlier.OutputTokens,
		CacheCreationTokens: t.CacheCreationTokens - earlier.CacheCreationTokens,
		CacheReadTokens:     t.CacheReadTokens - earlier.CacheReadTokens,
		SearchQueries:       t.SearchQueries - earlier.SearchQueries,
		Cost:                t.Cost - earlier.Cost,
	}
}

// Total returns the combined input+output token count.
func (t TokenUsage) Total() int {
	return t.InputTokens + t.OutputTokens
}
