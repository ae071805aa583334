// Package capability defines the verification tools available to the
// validator and refiner: deterministic formula evaluation, regulatory
// document retrieval, and live fact search. Providers are pluggable so
// tests can substitute fakes.
package capability

import (
	"context"

	"github.com/sells-group/refine-cli/internal/formula"
)

// Compute evaluates a named financial formula deterministically.
type Compute interface {
	Compute(ctx context.Context, formulaID string, inputs map[string]float64) (*formula.Result, error)
}

// DocumentFetcher retrieves regulatory or financial documents. Section
// may be empty, in which case the full document text is returned.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, ticker, docType, section string) (string, error)
}

// SearchProvider looks up current facts for claim verification.
type SearchProvider interface {
	// Name returns the provider identifier used in config and cost tracking.
	Name() string
	Search(ctx context.Context, query string) (*SearchResult, error)
}

// SearchSource is a single cited source backing a search result.
type SearchSource struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResult is a provider-neutral search response. Answer is a
// synthesized response when the provider produces one; raw result
// providers leave it empty and populate Sources only.
type SearchResult struct {
	Answer  string         `json:"answer,omitempty"`
	Sources []SearchSource `json:"sources"`
}

// Set bundles the capabilities handed to the validator and refiner.
// Any field may be nil; callers must treat a nil capability as
// unavailable rather than an error.
type Set struct {
	Compute Compute
	Fetcher DocumentFetcher
	Search  SearchProvider
}
