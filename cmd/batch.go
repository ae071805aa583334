package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/refine-cli/internal/model"
)

var (
	batchDir   string
	batchLimit int
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Refine a directory of artifact JSON files concurrently",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		artifacts, err := loadArtifactDir(batchDir)
		if err != nil {
			return err
		}

		return processBatch(ctx, artifacts, batchLimit, cfg.Batch.MaxConcurrentArtifacts, func(ctx context.Context, a *model.Artifact) (*model.FinalArtifact, error) {
			return refineArtifact(ctx, env, a)
		})
	},
}

func init() {
	batchCmd.Flags().StringVar(&batchDir, "dir", "", "directory of artifact JSON files (required)")
	batchCmd.Flags().IntVar(&batchLimit, "limit", 0, "max number of artifacts to process (0 = all)")
	_ = batchCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(batchCmd)
}

// loadArtifactDir reads every .json file in dir as an artifact. Files that
// fail to parse are skipped with a warning rather than aborting the batch.
func loadArtifactDir(dir string) ([]*model.Artifact, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, eris.Wrapf(err, "glob %s", dir)
	}

	var artifacts []*model.Artifact
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			zap.L().Warn("skipping unreadable artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		var a model.Artifact
		if err := json.Unmarshal(data, &a); err != nil {
			zap.L().Warn("skipping malformed artifact", zap.String("path", path), zap.Error(err))
			continue
		}
		if a.Ticker == "" {
			zap.L().Warn("skipping artifact without ticker", zap.String("path", path))
			continue
		}
		artifacts = append(artifacts, &a)
	}
	return artifacts, nil
}

// refineFunc is the callback signature for refining one artifact.
type refineFunc func(ctx context.Context, a *model.Artifact) (*model.FinalArtifact, error)

// processBatch applies limit, then refines artifacts concurrently. Each
// artifact gets its own controller; an individual failure never aborts the
// batch.
func processBatch(ctx context.Context, artifacts []*model.Artifact, limit, concurrency int, refine refineFunc) error {
	if len(artifacts) == 0 {
		zap.L().Info("no artifacts to process")
		return nil
	}

	if limit > 0 && len(artifacts) > limit {
		artifacts = artifacts[:limit]
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	zap.L().Info("processing batch",
		zap.Int("artifacts", len(artifacts)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	var approved, exhausted, failed atomic.Int64

	for _, artifact := range artifacts {
		g.Go(func() error {
			log := zap.L().With(zap.String("ticker", artifact.Ticker))

			final, err := refine(gctx, artifact)
			if err != nil {
				failed.Add(1)
				log.Error("refinement failed", zap.Error(err))
				return nil // don't abort batch on individual failure
			}

			if final.Approved {
				approved.Add(1)
			} else {
				exhausted.Add(1)
			}
			log.Info("refinement complete",
				zap.Bool("approved", final.Approved),
				zap.Int("final_score", final.FinalScore),
				zap.Int("iterations", len(final.Artifact.RefinementHistory)),
			)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return eris.Wrap(err, "batch processing")
	}

	zap.L().Info("batch complete",
		zap.Int64("approved", approved.Load()),
		zap.Int64("exhausted", exhausted.Load()),
		zap.Int64("failed", failed.Load()),
	)
	return nil
}
