package capability

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/resilience"
	"github.com/sells-group/refine-cli/pkg/jina"
	"github.com/sells-group/refine-cli/pkg/perplexity"
)

// Registry manages the available search providers. The active provider
// is selected by name from config.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]SearchProvider
}

// NewRegistry creates an empty search provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]SearchProvider)}
}

// Register adds a provider to the registry.
func (r *Registry) Register(p SearchProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (SearchProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, eris.Errorf("capability: unknown search provider %q", name)
	}
	return p, nil
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// perplexitySearch answers queries with Perplexity's search-grounded
// chat completions. The model returns a synthesized answer plus the
// citation URLs it drew from.
type perplexitySearch struct {
	client perplexity.Client
	model  string
}

// NewPerplexitySearch returns a SearchProvider backed by Perplexity.
// An empty model uses the client's default.
func NewPerplexitySearch(client perplexity.Client, model string) SearchProvider {
	return &perplexitySearch{client: client, model: model}
}

func (p *perplexitySearch) Name() string { return "perplexity" }

func (p *perplexitySearch) Search(ctx context.Context, query string) (*SearchResult, error) {
	resp, err := p.client.ChatCompletion(ctx, perplexity.ChatCompletionRequest{
		Model: p.model,
		Messages: []perplexity.Message{
			{Role: "system", Content: "Answer concisely with current, verifiable facts. Include specific numbers and dates where relevant."},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "capability: perplexity search")
	}

	result := &SearchResult{Answer: resp.Answer()}
	for _, url := range resp.Citations {
		result.Sources = append(result.Sources, SearchSource{URL: url})
	}
	return result, nil
}

// jinaSearch returns raw web results from the Jina Search API with no
// synthesized answer.
type jinaSearch struct {
	client jina.Client
}

// NewJinaSearch returns a SearchProvider backed by Jina Search.
func NewJinaSearch(client jina.Client) SearchProvider {
	return &jinaSearch{client: client}
}

func (j *jinaSearch) Name() string { return "jina" }

func (j *jinaSearch) Search(ctx context.Context, query string) (*SearchResult, error) {
	resp, err := j.client.Search(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "capability: jina search")
	}

	result := &SearchResult{}
	for _, d := range resp.Data {
		snippet := d.Description
		if snippet == "" {
			snippet = d.Content
		}
		result.Sources = append(result.Sources, SearchSource{
			Title:   d.Title,
			URL:     d.URL,
			Snippet: snippet,
		})
	}
	return result, nil
}

// breakerSearch wraps a provider with a circuit breaker so a failing
// search API stops burning queries. When the circuit is open the
// validator treats search as unavailable and marks claims unverifiable
// instead of blocking the loop.
type breakerSearch struct {
	inner   SearchProvider
	breaker *resilience.CircuitBreaker
}

// NewBreakerSearch wraps provider with a circuit breaker using cfg.
func NewBreakerSearch(provider SearchProvider, cfg resilience.CircuitBreakerConfig) SearchProvider {
	if cfg.OnStateChange == nil {
		name := provider.Name()
		cfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("search circuit state change",
				zap.String("provider", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &breakerSearch{inner: provider, breaker: resilience.NewCircuitBreaker(cfg)}
}

func (b *breakerSearch) Name() string { return b.inner.Name() }

func (b *breakerSearch) Search(ctx context.Context, query string) (*SearchResult, error) {
	return resilience.ExecuteVal(ctx, b.breaker, func(ctx context.Context) (*SearchResult, error) {
		return b.inner.Search(ctx, query)
	})
}
