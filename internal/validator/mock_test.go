package validator

import (
	"context"

	"github.com/sells-group/refine-cli/internal/capability"
	"github.com/sells-group/refine-cli/pkg/anthropic"
)

// mockClaude implements anthropic.Client, returning queued text responses.
type mockClaude struct {
	responses []string
	err       error
	requests  []anthropic.MessageRequest
}

func (m *mockClaude) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	text := "{}"
	if len(m.responses) > 0 {
		text = m.responses[0]
		m.responses = m.responses[1:]
	}
	return &anthropic.MessageResponse{
		Model:      req.Model,
		Content:    []anthropic.ContentBlock{{Type: "text", Text: text}},
		StopReason: "end_turn",
		Usage:      anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}, nil
}

// mockSearch implements capability.SearchProvider.
type mockSearch struct {
	result  *capability.SearchResult
	err     error
	queries []string
}

func (m *mockSearch) Name() string { return "mock" }

func (m *mockSearch) Search(_ context.Context, query string) (*capability.SearchResult, error) {
	m.queries = append(m.queries, query)
	return m.result, m.err
}

// mockFetcher implements capability.DocumentFetcher.
type fetchCall struct {
	ticker, docType, section string
}

type mockFetcher struct {
	text  string
	err   error
	calls []fetchCall
}

func (m *mockFetcher) FetchDocument(_ context.Context, ticker, docType, section string) (string, error) {
	m.calls = append(m.calls, fetchCall{ticker, docType, section})
	if m.err != nil {
		return "", m.err
	}
	return m.text, nil
}
