package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/refine-cli/internal/model"
)

func TestFilterIssues_SeverityOrdering(t *testing.T) {
	issues := []model.Issue{
		{Severity: model.SeverityMinor, Category: "citation", Description: "vague source"},
		{Severity: model.SeverityCritical, Category: "calculation", Description: "wrong margin of safety"},
		{Severity: model.SeverityImportant, Category: "price", Description: "stale price"},
	}

	fixable := FilterIssues(issues)
	require.Len(t, fixable, 3)
	assert.Equal(t, model.SeverityCritical, fixable[0].Severity)
	assert.Equal(t, model.SeverityImportant, fixable[1].Severity)
	assert.Equal(t, model.SeverityMinor, fixable[2].Severity)
}

func TestFilterIssues_TiesKeepOriginalOrder(t *testing.T) {
	issues := []model.Issue{
		{Severity: model.SeverityImportant, Category: "citation", Description: "first"},
		{Severity: model.SeverityImportant, Category: "price", Description: "second"},
		{Severity: model.SeverityImportant, Category: "date", Description: "third"},
	}

	fixable := FilterIssues(issues)
	require.Len(t, fixable, 3)
	assert.Equal(t, "first", fixable[0].Description)
	assert.Equal(t, "second", fixable[1].Description)
	assert.Equal(t, "third", fixable[2].Description)
}

func TestFilterIssues_UnfixableCategoryExcluded(t *testing.T) {
	issues := []model.Issue{
		{Severity: model.SeverityCritical, Category: "calculation", Description: "bad math"},
		{Severity: model.SeverityCritical, Category: "moat", Description: "weak competitive position"},
		{Severity: model.SeverityImportant, Category: "style", Description: "verbose"},
	}

	fixable := FilterIssues(issues)
	require.Len(t, fixable, 1)
	assert.Equal(t, "calculation", fixable[0].Category)
}

func TestFilterIssues_UnfixableMarkersExcluded(t *testing.T) {
	issues := []model.Issue{
		{Severity: model.SeverityImportant, Category: "data", Description: "segment revenue is not publicly disclosed"},
		{Severity: model.SeverityImportant, Category: "decision", Description: "conviction level is a subjective call"},
		{Severity: model.SeverityImportant, Category: "price", Description: "price is three weeks old"},
	}

	fixable := FilterIssues(issues)
	require.Len(t, fixable, 1)
	assert.Equal(t, "price", fixable[0].Category)
}

func TestFilterIssues_SetsFixable(t *testing.T) {
	issues := []model.Issue{
		{Severity: model.SeverityMinor, Category: "citation", Description: "x"},
	}

	fixable := FilterIssues(issues)
	require.Len(t, fixable, 1)
	assert.True(t, fixable[0].Fixable)
	assert.False(t, issues[0].Fixable, "input slice untouched")
}

func TestFilterIssues_Empty(t *testing.T) {
	assert.Empty(t, FilterIssues(nil))
	assert.Empty(t, FilterIssues([]model.Issue{}))
}
