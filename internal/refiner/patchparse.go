package refiner

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/sells-group/refine-cli/internal/model"
)

// The refiner model must respond in a strict delimited-block grammar:
//
//	<<<SECTION name>>>
//	replacement body
//	<<<END>>>
//
//	<<<METADATA>>>
//	{"field": value}
//	<<<END>>>
//
//	<<<FULL_REWRITE>>>
//	## Section Name
//	body
//	<<<END>>>
//
// Anything that does not parse becomes a warning, never an edit. An
// unparseable response therefore yields an empty patch and the original
// artifact survives untouched.
var sectionStart = regexp.MustCompile(`^<<<SECTION (.+?)>>>\s*$`)

const (
	metadataStart    = "<<<METADATA>>>"
	fullRewriteStart = "<<<FULL_REWRITE>>>"
	blockEnd         = "<<<END>>>"
)

type blockKind int

const (
	blockNone blockKind = iota
	blockSection
	blockMetadata
	blockRewrite
)

// ParsePatch parses refiner output into a RefinementPatch. It never
// returns an error: malformed input degrades to warnings and omitted
// edits, which the merger treats as "preserve the original".
func ParsePatch(text string) *model.RefinementPatch {
	patch := &model.RefinementPatch{}

	var (
		kind    = blockNone
		name    string
		content []string
		sawAny  bool
	)

	flush := func(terminated bool) {
		if kind == blockNone {
			return
		}
		body := strings.TrimSpace(strings.Join(content, "\n"))
		if !terminated {
			patch.Warnings = append(patch.Warnings,
				fmt.Sprintf("unterminated block discarded (%s)", blockLabel(kind, name)))
		} else {
			applyBlock(patch, kind, name, body)
		}
		kind, name, content = blockNone, "", nil
	}

	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case sectionStart.MatchString(trimmed):
			flush(false)
			sawAny = true
			kind = blockSection
			name = strings.TrimSpace(sectionStart.FindStringSubmatch(trimmed)[1])
		case trimmed == metadataStart:
			flush(false)
			sawAny = true
			kind = blockMetadata
		case trimmed == fullRewriteStart:
			flush(false)
			sawAny = true
			kind = blockRewrite
		case trimmed == blockEnd:
			if kind == blockNone {
				patch.Warnings = append(patch.Warnings, "stray end delimiter ignored")
				continue
			}
			flush(true)
		default:
			if kind != blockNone {
				content = append(content, line)
			}
		}
	}
	flush(false)

	if !sawAny && strings.TrimSpace(text) != "" {
		patch.Warnings = append(patch.Warnings, "no recognizable edit blocks in refiner output")
	}

	return patch
}

func applyBlock(patch *model.RefinementPatch, kind blockKind, name, body string) {
	switch kind {
	case blockSection:
		if name == "" {
			patch.Warnings = append(patch.Warnings, "section block with empty name discarded")
			return
		}
		if body == "" {
			// An empty body would erase the section, which replace must
			// never do.
			patch.Warnings = append(patch.Warnings,
				fmt.Sprintf("empty section block %q discarded", name))
			return
		}
		patch.Edits = append(patch.Edits, model.SectionEdit{
			TargetName: name,
			Operation:  model.EditOpReplace,
			Content:    body,
		})
	case blockMetadata:
		var updates map[string]any
		if err := json.Unmarshal([]byte(body), &updates); err != nil {
			patch.Warnings = append(patch.Warnings,
				fmt.Sprintf("metadata block is not a JSON object: %v", err))
			return
		}
		if patch.MetadataUpdates == nil {
			patch.MetadataUpdates = make(map[string]any)
		}
		for k, v := range updates {
			patch.MetadataUpdates[k] = v
		}
	case blockRewrite:
		edits := splitRewrite(body)
		if len(edits) == 0 {
			patch.Warnings = append(patch.Warnings,
				"full rewrite block has no section headings, preserving original")
			return
		}
		patch.FullRewrite = true
		patch.Edits = append(patch.Edits, edits...)
	}
}

// splitRewrite parses a full-document rewrite into sections by markdown
// heading. A rewrite with no headings is unusable and yields nothing.
func splitRewrite(body string) []model.SectionEdit {
	var edits []model.SectionEdit
	var current *model.SectionEdit
	var lines []string

	flush := func() {
		if current == nil {
			return
		}
		current.Content = strings.TrimSpace(strings.Join(lines, "\n"))
		edits = append(edits, *current)
		current, lines = nil, nil
	}

	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(strings.TrimSpace(line), "## "); ok {
			flush()
			current = &model.SectionEdit{
				TargetName: strings.TrimSpace(name),
				Operation:  model.EditOpFullRewrite,
			}
			continue
		}
		if current != nil {
			lines = append(lines, line)
		}
	}
	flush()

	return edits
}

func blockLabel(kind blockKind, name string) string {
	switch kind {
	case blockSection:
		return "section " + name
	case blockMetadata:
		return "metadata"
	case blockRewrite:
		return "full rewrite"
	default:
		return "unknown"
	}
}
