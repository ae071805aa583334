package store

import (
	"context"

	"github.com/sells-group/refine-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Ticker string          `json:"ticker,omitempty"`
	Limit  int             `json:"limit,omitempty"`
	Offset int             `json:"offset,omitempty"`
}

// Store defines the persistence interface for refinement runs and their
// artifacts. Final artifacts are keyed by ticker and completion time;
// draft artifacts by ticker alone.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, ticker string) (*model.Run, error)
	UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error
	UpdateRunResult(ctx context.Context, runID string, status model.RunStatus, result *model.RunResult) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Final artifacts
	SaveArtifact(ctx context.Context, runID string, final *model.FinalArtifact) (string, error)
	LatestArtifact(ctx context.Context, ticker string) (*model.FinalArtifact, error)
	ListArtifacts(ctx context.Context, ticker string, limit int) ([]model.FinalArtifact, error)

	// Draft artifacts awaiting refinement
	SaveDraft(ctx context.Context, a *model.Artifact) error
	BulkSaveDrafts(ctx context.Context, drafts []*model.Artifact) (int64, error)
	GetDraft(ctx context.Context, ticker string) (*model.Artifact, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
