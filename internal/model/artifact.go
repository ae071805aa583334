package model

import (
	"encoding/json"
	"strconv"
	"time"
)

// AnalysisType selects the validation checklist depth.
type AnalysisType string

const (
	AnalysisTypeFull  AnalysisType = "full"
	AnalysisTypeQuick AnalysisType = "quick"
)

// Section is a named, ordered block of narrative text within an Artifact.
type Section struct {
	Name  string `json:"name"`
	Body  string `json:"body"`
	Added bool   `json:"added,omitempty"` // appended during refinement rather than written by the analyst
}

// Artifact is the versioned narrative+metadata document under iteration.
// Narrative order is meaningful and preserved across edits. Once the
// convergence loop terminates the Artifact is immutable and handed to
// storage.
type Artifact struct {
	Ticker            string            `json:"ticker"`
	Narrative         []Section         `json:"narrative"`
	Metadata          map[string]any    `json:"metadata"`
	RefinementHistory []IterationRecord `json:"refinement_history,omitempty"`
}

// IterationRecord is the write-once outcome of one full refine cycle,
// appended by the controller.
type IterationRecord struct {
	IterationIndex  int        `json:"iteration_index"`
	ScoreBefore     int        `json:"score_before"`
	ScoreAfter      int        `json:"score_after"`
	IssuesAddressed int        `json:"issues_addressed"`
	IssuesRemaining int        `json:"issues_remaining"`
	Failed          bool       `json:"failed,omitempty"`
	Note            string     `json:"note,omitempty"`
	Duration        int64      `json:"duration_ms"`
	Usage           TokenUsage `json:"usage"`
}

// Clone returns a deep copy of the artifact. The controller clones before
// each cycle so a failed cycle can roll back to the pre-cycle state.
func (a *Artifact) Clone() *Artifact {
	c := &Artifact{
		Ticker:    a.Ticker,
		Narrative: make([]Section, len(a.Narrative)),
		Metadata:  make(map[string]any, len(a.Metadata)),
	}
	copy(c.Narrative, a.Narrative)
	for k, v := range a.Metadata {
		c.Metadata[k] = v
	}
	if len(a.RefinementHistory) > 0 {
		c.RefinementHistory = make([]IterationRecord, len(a.RefinementHistory))
		copy(c.RefinementHistory, a.RefinementHistory)
	}
	return c
}

// SectionByName returns the section with the given exact name, or nil.
func (a *Artifact) SectionByName(name string) *Section {
	for i := range a.Narrative {
		if a.Narrative[i].Name == name {
			return &a.Narrative[i]
		}
	}
	return nil
}

// AnalysisType reads the artifact's declared analysis type from metadata.
// Both "analysis_type" and the legacy "type" key are accepted; anything
// unrecognized falls back to the full checklist.
func (a *Artifact) AnalysisType() AnalysisType {
	for _, key := range []string{"analysis_type", "type"} {
		if v, ok := a.Metadata[key]; ok {
			if s, ok := v.(string); ok && AnalysisType(s) == AnalysisTypeQuick {
				return AnalysisTypeQuick
			}
		}
	}
	return AnalysisTypeFull
}

// MetadataFloat returns a metadata field coerced to float64. JSON decoding
// yields float64 for numbers, but metadata may also carry ints or numeric
// strings from upstream tooling.
func (a *Artifact) MetadataFloat(key string) (float64, bool) {
	v, ok := a.Metadata[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// FinalArtifact is the produced interface handed to storage: the finalized
// artifact plus the terminal disposition, keyed by ticker and timestamp.
type FinalArtifact struct {
	Artifact    *Artifact `json:"artifact"`
	Approved    bool      `json:"approved"`
	FinalScore  int       `json:"final_score"`
	Terminal    string    `json:"terminal"` // "approved" or "exhausted"
	CompletedAt time.Time `json:"completed_at"`
}
