package model

// EditOp is the operation a SectionEdit performs.
type EditOp string

const (
	EditOpReplace     EditOp = "replace"
	EditOpAppend      EditOp = "append"
	EditOpFullRewrite EditOp = "full_rewrite"
)

// SectionEdit is a proposed change to a single narrative section.
type SectionEdit struct {
	TargetName string `json:"target_name"`
	Operation  EditOp `json:"operation"`
	Content    string `json:"content"`
}

// RefinementPatch is the refiner's structured output: section-scoped edits
// plus the metadata updates produced by the same call. Coupling the two in
// one patch is what keeps narrative and metadata from diverging.
type RefinementPatch struct {
	Edits           []SectionEdit  `json:"edits"`
	MetadataUpdates map[string]any `json:"metadata_updates,omitempty"`

	// FullRewrite signals an explicit complete document replacement. It is
	// only honored when the refiner emits the rewrite sentinel; a patch that
	// merely lacks structure never rewrites anything.
	FullRewrite bool `json:"full_rewrite,omitempty"`

	// Warnings records parse anomalies (discarded fragments, malformed
	// blocks). A patch with warnings and no edits leaves the artifact
	// untouched.
	Warnings []string `json:"warnings,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p *RefinementPatch) Empty() bool {
	return len(p.Edits) == 0 && len(p.MetadataUpdates) == 0 && !p.FullRewrite
}
