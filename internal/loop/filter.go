package loop

import (
	"sort"
	"strings"

	"github.com/sells-group/refine-cli/internal/model"
)

// fixableCategories are issue categories a refiner can plausibly address
// through recomputation, lookup, or prose correction.
var fixableCategories = map[string]bool{
	"calculation": true,
	"metadata":    true,
	"citation":    true,
	"price":       true,
	"date":        true,
	"leadership":  true,
	"data":        true,
	"decision":    true,
}

// unfixableMarkers in an issue description signal a defect no capability
// call can cure: missing data or a judgment call.
var unfixableMarkers = []string{
	"unavailable",
	"not publicly",
	"no public data",
	"cannot be obtained",
	"cannot be verified",
	"subjective",
	"judgment call",
	"matter of opinion",
}

// FilterIssues returns the fixable issues ordered critical, important,
// minor, with ties kept in original order. Each returned issue has
// Fixable set. An empty result is the controller's early-exit signal: if
// nothing is fixable, iterating further cannot raise the score.
func FilterIssues(issues []model.Issue) []model.Issue {
	fixable := make([]model.Issue, 0, len(issues))
	for _, is := range issues {
		if !isFixable(is) {
			continue
		}
		is.Fixable = true
		fixable = append(fixable, is)
	}

	sort.SliceStable(fixable, func(i, j int) bool {
		return fixable[i].Severity.Rank() < fixable[j].Severity.Rank()
	})

	return fixable
}

func isFixable(is model.Issue) bool {
	if !fixableCategories[strings.ToLower(is.Category)] {
		return false
	}
	desc := strings.ToLower(is.Description)
	for _, marker := range unfixableMarkers {
		if strings.Contains(desc, marker) {
			return false
		}
	}
	return true
}
