package loop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/refine-cli/internal/model"
)

func mergeArtifact() *model.Artifact {
	return &model.Artifact{
		Ticker: "AAPL",
		Narrative: []model.Section{
			{Name: "Investment Thesis", Body: "thesis body"},
			{Name: "Current Leadership", Body: "Luca Maestri is CFO."},
			{Name: "Valuation", Body: "valuation body"},
		},
		Metadata: map[string]any{"intrinsic_value": 53.0},
	}
}

func TestMerge_EmptyPatchIsIdentity(t *testing.T) {
	a := mergeArtifact()

	merged := Merge(a, &model.RefinementPatch{})
	assert.Equal(t, a, merged)

	merged = Merge(a, nil)
	assert.Equal(t, a, merged)
}

func TestMerge_ReplaceIsolation(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{
		Edits: []model.SectionEdit{
			{TargetName: "Current Leadership", Operation: model.EditOpReplace, Content: "Kevan Parekh is CFO."},
		},
	}

	merged := Merge(a, patch)

	require.Len(t, merged.Narrative, 3)
	assert.Equal(t, "thesis body", merged.Narrative[0].Body)
	assert.Equal(t, "Kevan Parekh is CFO.", merged.Narrative[1].Body)
	assert.Equal(t, "valuation body", merged.Narrative[2].Body)
	// Order unchanged.
	assert.Equal(t, "Investment Thesis", merged.Narrative[0].Name)
	assert.Equal(t, "Current Leadership", merged.Narrative[1].Name)
	assert.Equal(t, "Valuation", merged.Narrative[2].Name)
}

func TestMerge_InputNeverMutated(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{
		Edits: []model.SectionEdit{
			{TargetName: "Valuation", Operation: model.EditOpReplace, Content: "new valuation"},
		},
	}

	_ = Merge(a, patch)
	assert.Equal(t, "valuation body", a.Narrative[2].Body)
}

func TestMerge_UnmatchedNameAppends(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{
		Edits: []model.SectionEdit{
			{TargetName: "Current Leadership Analysis", Operation: model.EditOpReplace, Content: "new analysis"},
		},
	}

	merged := Merge(a, patch)

	require.Len(t, merged.Narrative, 4, "section count grows by exactly one")
	for i := range a.Narrative {
		assert.Equal(t, a.Narrative[i], merged.Narrative[i], "original sections unchanged")
	}
	added := merged.Narrative[3]
	assert.Equal(t, "Current Leadership Analysis (ADDED)", added.Name)
	assert.Equal(t, "new analysis", added.Body)
	assert.True(t, added.Added)
}

func TestMerge_SectionCountNeverShrinks(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{
		Edits: []model.SectionEdit{
			{TargetName: "Valuation", Operation: model.EditOpReplace, Content: "x"},
			{TargetName: "Brand New", Operation: model.EditOpReplace, Content: "y"},
		},
	}

	merged := Merge(a, patch)
	assert.GreaterOrEqual(t, len(merged.Narrative), len(a.Narrative))
}

func TestMerge_FullRewrite(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{
		FullRewrite: true,
		Edits: []model.SectionEdit{
			{TargetName: "Summary", Operation: model.EditOpFullRewrite, Content: "rebuilt summary"},
			{TargetName: "Decision", Operation: model.EditOpFullRewrite, Content: "rebuilt decision"},
		},
	}

	merged := Merge(a, patch)

	require.Len(t, merged.Narrative, 2)
	assert.Equal(t, "Summary", merged.Narrative[0].Name)
	assert.Equal(t, "Decision", merged.Narrative[1].Name)
	// Original input untouched even by a rewrite.
	assert.Len(t, a.Narrative, 3)
}

func TestMerge_RewriteSignalWithoutSectionsPreservesOriginal(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{FullRewrite: true}

	merged := Merge(a, patch)
	assert.Equal(t, a.Narrative, merged.Narrative)
}

func TestMerge_EmptyEditContentSkipped(t *testing.T) {
	a := mergeArtifact()
	patch := &model.RefinementPatch{
		Edits: []model.SectionEdit{
			{TargetName: "Valuation", Operation: model.EditOpReplace, Content: ""},
		},
	}

	merged := Merge(a, patch)
	assert.Equal(t, "valuation body", merged.Narrative[2].Body)
	assert.Len(t, merged.Narrative, 3)
}

func TestSyncMetadata(t *testing.T) {
	a := mergeArtifact()

	SyncMetadata(a, map[string]any{"intrinsic_value": 60.92, "current_price": 52.10})

	assert.Equal(t, 60.92, a.Metadata["intrinsic_value"])
	assert.Equal(t, 52.10, a.Metadata["current_price"])
}

func TestSyncMetadata_UntouchedFieldsRemain(t *testing.T) {
	a := mergeArtifact()
	a.Metadata["decision"] = "buy"

	SyncMetadata(a, map[string]any{"intrinsic_value": 60.92})

	assert.Equal(t, "buy", a.Metadata["decision"])
}

func TestSyncMetadata_NilUpdatesNoOp(t *testing.T) {
	a := mergeArtifact()
	SyncMetadata(a, nil)
	assert.Equal(t, 53.0, a.Metadata["intrinsic_value"])
}

func TestSyncMetadata_NilMetadataMap(t *testing.T) {
	a := &model.Artifact{Ticker: "AAPL"}
	SyncMetadata(a, map[string]any{"roic": 0.31})
	assert.Equal(t, 0.31, a.Metadata["roic"])
}
