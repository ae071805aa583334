package capability

import (
	"context"

	"github.com/sells-group/refine-cli/pkg/edgar"
	"github.com/sells-group/refine-cli/pkg/jina"
	"github.com/sells-group/refine-cli/pkg/perplexity"
)

// mockEdgar implements edgar.Client for testing.
type mockEdgar struct {
	cik       string
	cikErr    error
	filing    *edgar.Filing
	filingErr error
	document  string
	docErr    error
	gotTicker string
	gotForm   string
}

func (m *mockEdgar) ResolveCIK(_ context.Context, ticker string) (string, error) {
	m.gotTicker = ticker
	return m.cik, m.cikErr
}

func (m *mockEdgar) LatestFiling(_ context.Context, _, form string) (*edgar.Filing, error) {
	m.gotForm = form
	return m.filing, m.filingErr
}

func (m *mockEdgar) FetchDocument(_ context.Context, _ *edgar.Filing) (string, error) {
	return m.document, m.docErr
}

// mockPerplexity implements perplexity.Client for testing.
type mockPerplexity struct {
	resp     *perplexity.ChatCompletionResponse
	err      error
	gotQuery string
	gotModel string
}

func (m *mockPerplexity) ChatCompletion(_ context.Context, req perplexity.ChatCompletionRequest) (*perplexity.ChatCompletionResponse, error) {
	m.gotModel = req.Model
	if len(req.Messages) > 0 {
		m.gotQuery = req.Messages[len(req.Messages)-1].Content
	}
	return m.resp, m.err
}

// mockJina implements jina.Client for testing.
type mockJina struct {
	resp *jina.SearchResponse
	err  error
}

func (m *mockJina) Search(_ context.Context, _ string, _ ...jina.SearchOption) (*jina.SearchResponse, error) {
	return m.resp, m.err
}
