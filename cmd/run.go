package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/cost"
	"github.com/sells-group/refine-cli/internal/model"
	"github.com/sells-group/refine-cli/internal/store"
)

var (
	runTicker string
	runInput  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Refine a single artifact to convergence",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		artifact, err := loadArtifact(ctx, env.Store, runTicker, runInput)
		if err != nil {
			return err
		}

		final, err := refineArtifact(ctx, env, artifact)
		if err != nil {
			return err
		}

		zap.L().Info("refinement complete",
			zap.String("ticker", final.Artifact.Ticker),
			zap.Bool("approved", final.Approved),
			zap.Int("final_score", final.FinalScore),
			zap.Int("iterations", len(final.Artifact.RefinementHistory)),
		)

		// Print result JSON to stdout
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(final)
	},
}

func init() {
	runCmd.Flags().StringVar(&runTicker, "ticker", "", "ticker of a stored draft artifact")
	runCmd.Flags().StringVar(&runInput, "input", "", "path to an artifact JSON file")
	rootCmd.AddCommand(runCmd)
}

// loadArtifact reads the draft from a file when --input is given, otherwise
// from the draft store by ticker.
func loadArtifact(ctx context.Context, st store.Store, ticker, input string) (*model.Artifact, error) {
	if input != "" {
		data, err := os.ReadFile(input)
		if err != nil {
			return nil, eris.Wrapf(err, "read artifact %s", input)
		}
		var a model.Artifact
		if err := json.Unmarshal(data, &a); err != nil {
			return nil, eris.Wrapf(err, "parse artifact %s", input)
		}
		if a.Ticker == "" {
			a.Ticker = ticker
		}
		if a.Ticker == "" {
			return nil, eris.New("artifact has no ticker; pass --ticker")
		}
		return &a, nil
	}

	if ticker == "" {
		return nil, eris.New("either --input or --ticker is required")
	}
	a, err := st.GetDraft(ctx, ticker)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, eris.Errorf("no draft artifact stored for %s", ticker)
	}
	return a, nil
}

// refineArtifact drives one artifact through the loop with full run
// bookkeeping: run row, status transitions, artifact persistence, and the
// final result summary.
func refineArtifact(ctx context.Context, env *refineEnv, artifact *model.Artifact) (*model.FinalArtifact, error) {
	run, err := env.Store.CreateRun(ctx, artifact.Ticker)
	if err != nil {
		return nil, err
	}
	if err := env.Store.UpdateRunStatus(ctx, run.ID, model.RunStatusValidating); err != nil {
		return nil, err
	}

	controller, tracker := env.newController()

	// Usage from earlier drafting stages counts toward the run total.
	for _, rec := range artifact.RefinementHistory {
		tracker.Seed("prior", rec.Usage)
	}

	final, err := controller.Run(ctx, artifact)
	if err != nil {
		result := &model.RunResult{Error: err.Error()}
		if uErr := env.Store.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, result); uErr != nil {
			zap.L().Warn("failed to record run failure", zap.Error(uErr))
		}
		return nil, eris.Wrap(err, "refine run")
	}

	if _, err := env.Store.SaveArtifact(ctx, run.ID, final); err != nil {
		return nil, err
	}

	status := model.RunStatusExhausted
	if final.Approved {
		status = model.RunStatusApproved
	}
	if err := env.Store.UpdateRunResult(ctx, run.ID, status, buildRunResult(final, tracker)); err != nil {
		return nil, err
	}
	return final, nil
}

func buildRunResult(final *model.FinalArtifact, tracker *cost.Tracker) *model.RunResult {
	usage := tracker.Total()
	searches, computes, _ := tracker.Counts()
	return &model.RunResult{
		FinalScore:   final.FinalScore,
		Approved:     final.Approved,
		Iterations:   len(final.Artifact.RefinementHistory),
		History:      final.Artifact.RefinementHistory,
		TotalTokens:  usage.Total(),
		TotalCost:    usage.Cost,
		SearchCalls:  searches,
		ComputeCalls: computes,
	}
}
