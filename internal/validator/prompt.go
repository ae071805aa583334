package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sells-group/refine-cli/internal/model"
)

const validateSystemPrompt = `You are a strict reviewer of equity research reports. You score a report against a fixed checklist and list its defects.

Rules:
- Score 0-100. A report with any internally contradictory number scores below 60.
- Every defect becomes one issue with severity "critical", "important" or "minor" and a category from: calculation, metadata, citation, leadership, price, decision, completeness, style.
- When a claim may simply postdate your training data (an executive name, a share price, a recent filing), do NOT flag it as wrong. Instead set "needs_verification": true and provide a short "verify_query" a web search could answer. Only claims you can show are internally inconsistent get flagged directly.
- When a claim cites a specific SEC filing (a figure attributed to the 10-K, a risk factor, a segment breakdown), set "needs_verification": true with "verify_doc_type" (e.g. "10-K", "10-Q") and, when known, "verify_section" (e.g. "Item 1A") so the claim can be checked against the filing text itself.
- Provide a concrete "fix_suggestion" for every issue.

Respond with JSON only:
{"score": <int>, "strengths": ["..."], "issues": [{"severity": "...", "category": "...", "description": "...", "fix_suggestion": "...", "needs_verification": false, "verify_query": "", "verify_doc_type": "", "verify_section": ""}]}`

const confirmSystemPrompt = `You judge whether retrieved evidence (a search result or a filing excerpt) confirms or contradicts a claim from a research report. Respond with JSON only: {"claim_correct": true|false}. When the evidence is inconclusive, answer true (do not flag what you cannot disprove).`

// buildValidatePrompt renders the full artifact and rubric for scoring.
// The entire narrative is included untruncated; scoring a prefix produces
// misleading completeness issues.
func buildValidatePrompt(a *model.Artifact, rubric Rubric, knowledgeCutoff string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Ticker: %s\nAnalysis type: %s\nRubric version: %s\n", a.Ticker, rubric.Type, rubric.Version)
	if knowledgeCutoff != "" {
		fmt.Fprintf(&sb, "Your knowledge cutoff: %s. Facts claimed after this date need verification, not flagging.\n", knowledgeCutoff)
	}

	sb.WriteString("\nChecklist:\n")
	for i, item := range rubric.Items {
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, item.Key, item.Prompt)
	}

	sb.WriteString("\nStructured metadata:\n")
	meta, err := json.MarshalIndent(a.Metadata, "", "  ")
	if err == nil {
		sb.Write(meta)
	}

	sb.WriteString("\n\nReport narrative:\n\n")
	for _, s := range a.Narrative {
		fmt.Fprintf(&sb, "## %s\n\n%s\n\n", s.Name, s.Body)
	}

	return sb.String()
}

// buildConfirmPrompt renders one claim and its search evidence.
func buildConfirmPrompt(claim string, result *searchEvidence) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Claim under review:\n%s\n\nSearch evidence:\n", claim)
	if result.answer != "" {
		fmt.Fprintf(&sb, "%s\n", result.answer)
	}
	for _, src := range result.sources {
		fmt.Fprintf(&sb, "- %s %s %s\n", src.Title, src.URL, src.Snippet)
	}
	return sb.String()
}

// buildFilingConfirmPrompt renders one claim and the filing excerpt that
// should settle it.
func buildFilingConfirmPrompt(claim, docType, excerpt string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Claim under review:\n%s\n\nExcerpt from the company's latest %s:\n%s\n", claim, docType, excerpt)
	return sb.String()
}
