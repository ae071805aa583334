package refiner

import (
	"fmt"
	"strings"

	"github.com/sells-group/refine-cli/internal/model"
)

const refineSystemPrompt = `You make surgical corrections to equity research reports. You fix exactly what is flagged and touch nothing else.

Output format, strictly:
- To replace a section's body:
<<<SECTION exact section name>>>
corrected body
<<<END>>>
- To report recomputed or newly looked-up numeric values (REQUIRED whenever a correction changes a number):
<<<METADATA>>>
{"field_name": value}
<<<END>>>
- Only if the entire report must be rebuilt (rare), emit a single full rewrite with every section as a "## Name" heading:
<<<FULL_REWRITE>>>
## First Section
...
<<<END>>>

Rules:
- Use ONLY the section names listed in the request, copied verbatim. Do not invent, rename, or abbreviate section names.
- Rewrite the complete body of any section you touch; the body you emit replaces the old one entirely.
- Every corrected numeric value must appear both in the edited prose and in the METADATA block.
- No commentary outside the delimited blocks.`

// buildRefinePrompt renders the fixable issues and the canonical section
// names. The names come straight from the section index; the merger does
// exact matching, so the model must echo them byte for byte.
func buildRefinePrompt(a *model.Artifact, issues []model.Issue, sectionNames []string, evidence []issueEvidence) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Ticker: %s\n\nSection names you may target (copy exactly):\n", a.Ticker)
	for _, name := range sectionNames {
		fmt.Fprintf(&sb, "- %s\n", name)
	}

	sb.WriteString("\nIssues to fix, in priority order:\n")
	for i, is := range issues {
		fmt.Fprintf(&sb, "%d. [%s/%s] %s", i+1, is.Severity, is.Category, is.Description)
		if is.FixSuggestion != "" {
			fmt.Fprintf(&sb, "\n   Suggested fix: %s", is.FixSuggestion)
		}
		sb.WriteString("\n")
	}

	if len(evidence) > 0 {
		sb.WriteString("\nCurrent data gathered for these fixes:\n")
		for _, ev := range evidence {
			fmt.Fprintf(&sb, "- Query: %s\n  %s\n", ev.query, ev.summary)
		}
	}

	sb.WriteString("\nFull report:\n\n")
	for _, s := range a.Narrative {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", s.Name, s.Body)
	}

	return sb.String()
}
