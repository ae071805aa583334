package model

// Severity ranks how badly an issue damages the analysis.
type Severity string

const (
	SeverityCritical  Severity = "critical"
	SeverityImportant Severity = "important"
	SeverityMinor     Severity = "minor"
)

// Rank returns the sort rank for a severity (lower sorts first). Unknown
// severities sort last.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityImportant:
		return 1
	case SeverityMinor:
		return 2
	default:
		return 3
	}
}

// Issue is a single defect the validator found in an artifact. Fixable is
// assigned by the issue filter, never by the validator itself.
type Issue struct {
	Severity      Severity `json:"severity"`
	Category      string   `json:"category"`
	Description   string   `json:"description"`
	FixSuggestion string   `json:"fix_suggestion,omitempty"`
	Fixable       bool     `json:"fixable"`
}

// ValidationResult is the validator's verdict on one artifact version.
type ValidationResult struct {
	Score     int      `json:"score"` // 0-100
	Approved  bool     `json:"approved"`
	Issues    []Issue  `json:"issues"`
	Strengths []string `json:"strengths,omitempty"` // diagnostic only
}
