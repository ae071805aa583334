package validator

import "github.com/sells-group/refine-cli/internal/model"

// RubricVersion identifies the checklist revision. Bump when items change
// so stored scores remain comparable within a version.
const RubricVersion = "2026-08"

// ChecklistItem is a single rubric criterion presented to the scoring model.
type ChecklistItem struct {
	Key    string
	Prompt string
}

// Rubric is the fixed checklist an artifact is scored against.
type Rubric struct {
	Version string
	Type    model.AnalysisType
	Items   []ChecklistItem
}

var fullChecklist = []ChecklistItem{
	{Key: "thesis", Prompt: "The investment thesis is stated explicitly and the decision follows from it."},
	{Key: "valuation_arithmetic", Prompt: "All valuation arithmetic is internally consistent: margin of safety agrees with intrinsic value and current price, ROIC and owner earnings agree with their stated inputs."},
	{Key: "metadata_consistency", Prompt: "Every numeric value stated in the narrative matches the corresponding structured metadata field exactly."},
	{Key: "citations", Prompt: "Factual claims cite a specific source (filing, date, or named publication), not vague attributions."},
	{Key: "leadership_currency", Prompt: "Named executives and board members are current as of the analysis date."},
	{Key: "price_currency", Prompt: "The quoted share price and derived ratios reflect a recent trading date, stated explicitly."},
	{Key: "risks", Prompt: "Material risks are identified with their plausible impact, not merely listed."},
	{Key: "moat", Prompt: "Competitive position claims are supported by evidence (market share, switching costs, unit economics)."},
	{Key: "capital_allocation", Prompt: "Management's capital allocation record is assessed with concrete figures."},
	{Key: "decision_consistency", Prompt: "The final decision and conviction level are consistent with the margin of safety and the risk discussion."},
}

// quickChecklist is the lighter rubric for quick-look analyses: arithmetic,
// consistency and currency checks only, no depth criteria.
var quickChecklist = []ChecklistItem{
	{Key: "valuation_arithmetic", Prompt: "All valuation arithmetic is internally consistent."},
	{Key: "metadata_consistency", Prompt: "Numeric values in the narrative match the structured metadata fields."},
	{Key: "price_currency", Prompt: "The quoted share price reflects a recent trading date."},
	{Key: "decision_consistency", Prompt: "The decision follows from the stated margin of safety."},
}

// ForType returns the rubric matching the artifact's declared analysis type.
func ForType(t model.AnalysisType) Rubric {
	if t == model.AnalysisTypeQuick {
		return Rubric{Version: RubricVersion, Type: t, Items: quickChecklist}
	}
	return Rubric{Version: RubricVersion, Type: model.AnalysisTypeFull, Items: fullChecklist}
}
