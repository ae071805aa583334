package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/refine-cli/internal/model"
)

func TestExtractSections_Order(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{
			{Name: "Investment Thesis", Body: "text"},
			{Name: "Valuation", Body: "text"},
			{Name: "Risks", Body: "text"},
		},
	}

	names := ExtractSections(a)
	assert.Equal(t, []string{"Investment Thesis", "Valuation", "Risks"}, names)
}

func TestExtractSections_EmbeddedMarkers(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{
			{Name: "Valuation", Body: "intro\n\n## DCF Assumptions\n\nnumbers\n\n**Sensitivity Analysis**\n\ntable"},
		},
	}

	names := ExtractSections(a)
	assert.Equal(t, []string{"Valuation", "DCF Assumptions", "Sensitivity Analysis"}, names)
}

func TestExtractSections_CaselessDedup(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{
			{Name: "Valuation", Body: "## VALUATION\n\nrepeat of the section name in caps"},
			{Name: "Risks", Body: ""},
		},
	}

	names := ExtractSections(a)
	assert.Equal(t, []string{"Valuation", "Risks"}, names)
}

func TestExtractSections_ShortNamesDropped(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{
			{Name: "Valuation", Body: "**Yes**\n\nincidental bold word\n\n**ROI**:\n\nthree chars after trim"},
		},
	}

	names := ExtractSections(a)
	assert.Equal(t, []string{"Valuation"}, names)
}

func TestExtractSections_WhitespaceNormalized(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{
			{Name: "Current   Leadership", Body: ""},
		},
	}

	names := ExtractSections(a)
	assert.Equal(t, []string{"Current Leadership"}, names)
}

func TestExtractSections_BoldLabelColonStripped(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{
			{Name: "Valuation", Body: "**Owner Earnings:**\n\n$99.1B"},
		},
	}

	names := ExtractSections(a)
	assert.Equal(t, []string{"Valuation", "Owner Earnings"}, names)
}

func TestExtractSections_FreshAfterAppend(t *testing.T) {
	a := &model.Artifact{
		Narrative: []model.Section{{Name: "Valuation", Body: ""}},
	}
	merged := Merge(a, &model.RefinementPatch{
		Edits: []model.SectionEdit{{TargetName: "Leadership Update", Operation: model.EditOpReplace, Content: "new"}},
	})

	names := ExtractSections(merged)
	assert.Equal(t, []string{"Valuation", "Leadership Update (ADDED)"}, names)
}
