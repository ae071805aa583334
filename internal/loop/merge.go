package loop

import (
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/model"
)

// addedSuffix tags sections appended because the refiner targeted a name
// missing from the canonical index. The suffix keeps the mismatch visible
// to a reviewer instead of silently absorbing it.
const addedSuffix = " (ADDED)"

// Merge applies a refinement patch to an artifact and returns a new
// artifact; the input is never mutated. Per edit:
//
//   - an exact name match replaces that section's body, leaving every
//     other section byte-identical;
//   - an unmatched name appends a new section tagged as added, never
//     touching existing content;
//   - a full rewrite replaces the whole narrative, and only when the
//     patch carries the explicit rewrite signal.
//
// An empty patch returns an artifact identical to the input. Section
// count never shrinks except through the explicit full rewrite.
func Merge(a *model.Artifact, patch *model.RefinementPatch) *model.Artifact {
	next := a.Clone()
	if patch == nil || patch.Empty() {
		return next
	}

	if patch.FullRewrite {
		narrative := make([]model.Section, 0, len(patch.Edits))
		for _, edit := range patch.Edits {
			narrative = append(narrative, model.Section{Name: edit.TargetName, Body: edit.Content})
		}
		if len(narrative) == 0 {
			// A rewrite with no sections would destroy the document.
			zap.L().Warn("merge: rewrite patch carried no sections, preserving original",
				zap.String("ticker", a.Ticker),
			)
			return next
		}
		zap.L().Info("merge: full rewrite applied",
			zap.String("ticker", a.Ticker),
			zap.Int("sections_before", len(a.Narrative)),
			zap.Int("sections_after", len(narrative)),
		)
		next.Narrative = narrative
		return next
	}

	for _, edit := range patch.Edits {
		if edit.Content == "" {
			continue
		}
		if s := next.SectionByName(edit.TargetName); s != nil {
			s.Body = edit.Content
			zap.L().Debug("merge: section replaced",
				zap.String("ticker", a.Ticker),
				zap.String("section", edit.TargetName),
			)
			continue
		}
		// Name mismatch: append rather than guess which section was
		// meant. Fuzzy matching hides the inconsistency; the appended
		// tag surfaces it.
		next.Narrative = append(next.Narrative, model.Section{
			Name:  edit.TargetName + addedSuffix,
			Body:  edit.Content,
			Added: true,
		})
		zap.L().Warn("merge: edit targeted unknown section, appended",
			zap.String("ticker", a.Ticker),
			zap.String("target", edit.TargetName),
		)
	}

	return next
}
