package loop

import (
	"context"
	"fmt"

	"github.com/sells-group/refine-cli/internal/cost"
	"github.com/sells-group/refine-cli/internal/model"
)

// mockValidator implements Validator with scripted results.
type mockValidator struct {
	results []*model.ValidationResult
	errs    []error
	calls   int
	seen    []*model.Artifact
}

func (m *mockValidator) Validate(_ context.Context, a *model.Artifact) (*model.ValidationResult, error) {
	i := m.calls
	m.calls++
	m.seen = append(m.seen, a.Clone())
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.results) {
		return m.results[i], nil
	}
	return m.results[len(m.results)-1], nil
}

// mockRefiner implements Refiner with scripted patches.
type mockRefiner struct {
	patches   []*model.RefinementPatch
	errs      []error
	calls     int
	gotNames  [][]string
	gotIssues [][]model.Issue
}

func (m *mockRefiner) Refine(_ context.Context, _ *model.Artifact, issues []model.Issue, names []string) (*model.RefinementPatch, error) {
	i := m.calls
	m.calls++
	m.gotNames = append(m.gotNames, names)
	m.gotIssues = append(m.gotIssues, issues)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.patches) {
		return m.patches[i], nil
	}
	return &model.RefinementPatch{}, nil
}

// meteredRefiner charges a fixed amount of usage to the tracker on every
// call, the way the real refiner records its API spend.
type meteredRefiner struct {
	tracker *cost.Tracker
	usage   model.TokenUsage
	calls   int
}

func (m *meteredRefiner) Refine(_ context.Context, _ *model.Artifact, _ []model.Issue, _ []string) (*model.RefinementPatch, error) {
	m.calls++
	m.tracker.RecordClaude("refine", "claude-sonnet-4-5-20250929", m.usage)
	return &model.RefinementPatch{
		Edits: []model.SectionEdit{
			{TargetName: "Valuation", Operation: model.EditOpReplace, Content: fmt.Sprintf("revision %d", m.calls)},
		},
	}, nil
}
