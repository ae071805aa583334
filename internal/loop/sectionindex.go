package loop

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/refine-cli/internal/model"
)

// Section-header markers recognized inside narrative bodies: a markdown
// heading and a standalone bold label.
var (
	headingMarker   = regexp.MustCompile(`(?m)^#{2,3}\s+(.+?)\s*$`)
	boldLabelMarker = regexp.MustCompile(`(?m)^\*\*([^*\n]+?)\*\*:?\s*$`)
	innerSpace      = regexp.MustCompile(`\s+`)
)

// minSectionNameLen guards against incidental bold text being read as a
// heading.
const minSectionNameLen = 4

// ExtractSections returns the canonical section names of an artifact in
// first-seen order: the structured section names, then any headers
// embedded in section bodies. Names are whitespace-normalized and
// deduplicated case-insensitively; very short names are dropped as false
// positives. The index must be recomputed from the current artifact
// before every refiner call; a stale index offers the refiner names that
// no longer exist.
func ExtractSections(a *model.Artifact) []string {
	names := make([]string, 0, len(a.Narrative))
	for _, s := range a.Narrative {
		names = append(names, s.Name)
	}
	for _, s := range a.Narrative {
		for _, m := range headingMarker.FindAllStringSubmatch(s.Body, -1) {
			names = append(names, m[1])
		}
		for _, m := range boldLabelMarker.FindAllStringSubmatch(s.Body, -1) {
			names = append(names, m[1])
		}
	}
	return dedupeNames(names)
}

func dedupeNames(names []string) []string {
	folder := cases.Fold()
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(innerSpace.ReplaceAllString(name, " "))
		name = strings.TrimSuffix(name, ":")
		if len(name) < minSectionNameLen {
			continue
		}
		key := folder.String(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}
