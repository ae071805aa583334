// Package loop implements the validate-refine convergence loop: score an
// artifact, pick the fixable defects, request targeted corrections,
// merge them without losing content, and keep prose and metadata in
// agreement, all within a bounded iteration budget.
package loop

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/config"
	"github.com/sells-group/refine-cli/internal/cost"
	"github.com/sells-group/refine-cli/internal/model"
)

// Terminal dispositions.
const (
	TerminalApproved  = "approved"
	TerminalExhausted = "exhausted"
)

// Validator scores an artifact. Implemented by internal/validator.
type Validator interface {
	Validate(ctx context.Context, a *model.Artifact) (*model.ValidationResult, error)
}

// Refiner produces a patch for the fixable issues. Implemented by
// internal/refiner.
type Refiner interface {
	Refine(ctx context.Context, a *model.Artifact, issues []model.Issue, sectionNames []string) (*model.RefinementPatch, error)
}

// Controller owns one artifact for the duration of its refinement. It is
// single-threaded and strictly sequential; independent artifacts get
// independent controllers.
type Controller struct {
	validator Validator
	refiner   Refiner
	cfg       config.LoopConfig
	tracker   *cost.Tracker
}

// NewController creates a controller. Tracker may be nil.
func NewController(v Validator, r Refiner, cfg config.LoopConfig, tracker *cost.Tracker) *Controller {
	return &Controller{validator: v, refiner: r, cfg: cfg, tracker: tracker}
}

// Run drives the loop to a terminal state and always returns a usable
// artifact with its full refinement history, approved or not. The only
// error case is the initial validation failing outright, where no score
// was ever produced.
func (c *Controller) Run(ctx context.Context, a *model.Artifact) (*model.FinalArtifact, error) {
	log := zap.L().With(zap.String("ticker", a.Ticker))
	log.Info("loop: starting refinement",
		zap.Int("max_iterations", c.cfg.MaxIterations),
		zap.Int("score_threshold", c.cfg.ScoreThreshold),
	)

	// The controller owns the artifact exclusively from here; the
	// caller's copy is never touched.
	work := a.Clone()

	result, err := c.validator.Validate(ctx, work)
	if err != nil {
		return nil, eris.Wrap(err, "loop: initial validation")
	}

	iteration := 0
	for {
		if result.Approved {
			return c.finish(log, work, result.Score, TerminalApproved), nil
		}
		if iteration >= c.cfg.MaxIterations {
			log.Info("loop: iteration budget exhausted", zap.Int("iterations", iteration))
			return c.finish(log, work, result.Score, TerminalExhausted), nil
		}

		fixable := FilterIssues(result.Issues)
		if len(fixable) == 0 {
			// Nothing a refiner can address; more iterations cannot
			// raise the score.
			log.Info("loop: no fixable issues, stopping",
				zap.Int("score", result.Score),
				zap.Int("issues_total", len(result.Issues)),
			)
			return c.finish(log, work, result.Score, TerminalExhausted), nil
		}

		scoreBefore := result.Score
		var usageBefore model.TokenUsage
		if c.tracker != nil {
			usageBefore = c.tracker.Total()
		}
		start := time.Now()
		next, warnings, cycleErr := c.runCycle(ctx, work, fixable)
		iteration++

		record := model.IterationRecord{
			IterationIndex:  iteration,
			ScoreBefore:     scoreBefore,
			IssuesAddressed: len(fixable),
		}
		if len(warnings) > 0 {
			// Degraded refiner output is not a failure, but History must
			// show the cycle had nothing usable to apply.
			log.Warn("loop: refiner output degraded",
				zap.Int("iteration", iteration),
				zap.Strings("warnings", warnings),
			)
			record.Note = "refiner output degraded: " + strings.Join(warnings, "; ")
		}

		if cycleErr != nil {
			// The cycle is atomic: any failure rolls back to the
			// pre-cycle artifact and consumes one iteration.
			log.Warn("loop: cycle failed, rolled back",
				zap.Int("iteration", iteration),
				zap.Error(cycleErr),
			)
			record.Failed = true
			record.Note = cycleErr.Error()
			record.ScoreAfter = scoreBefore
			record.IssuesRemaining = len(result.Issues)
			record.Duration = time.Since(start).Milliseconds()
			if c.tracker != nil {
				record.Usage = c.tracker.Total().Since(usageBefore)
			}
			work.RefinementHistory = append(work.RefinementHistory, record)
			continue
		}

		revalidated, err := c.validator.Validate(ctx, next)
		if err != nil {
			// Merged content without a fresh score is unusable; keep
			// the pre-cycle artifact and stop.
			log.Warn("loop: re-validation failed, keeping pre-cycle artifact", zap.Error(err))
			record.Failed = true
			record.Note = fmt.Sprintf("re-validation failed: %v", err)
			record.ScoreAfter = scoreBefore
			record.IssuesRemaining = len(result.Issues)
			record.Duration = time.Since(start).Milliseconds()
			if c.tracker != nil {
				record.Usage = c.tracker.Total().Since(usageBefore)
			}
			work.RefinementHistory = append(work.RefinementHistory, record)
			return c.finish(log, work, scoreBefore, TerminalExhausted), nil
		}
		record.Duration = time.Since(start).Milliseconds()
		record.ScoreAfter = revalidated.Score
		record.IssuesRemaining = len(revalidated.Issues)
		// Usage covers this cycle only, never the running total, so the
		// history sums to the loop's true spend.
		if c.tracker != nil {
			record.Usage = c.tracker.Total().Since(usageBefore)
		}

		next.RefinementHistory = append(next.RefinementHistory, record)
		work = next
		result = revalidated

		log.Info("loop: iteration complete",
			zap.Int("iteration", iteration),
			zap.Int("score_before", record.ScoreBefore),
			zap.Int("score_after", record.ScoreAfter),
			zap.Int("issues_addressed", record.IssuesAddressed),
			zap.Int("issues_remaining", record.IssuesRemaining),
		)
	}
}

// runCycle executes one FILTER -> REFINE -> MERGE -> SYNC pass on a
// clone. Returning an error leaves the caller's artifact untouched, which
// is what makes the cycle atomic. Patch warnings surface to the caller so
// the iteration record can note output the merge could not use.
func (c *Controller) runCycle(ctx context.Context, work *model.Artifact, fixable []model.Issue) (*model.Artifact, []string, error) {
	// Fresh index each cycle: appended or rewritten sections from prior
	// iterations must be offered to the refiner under their real names.
	names := ExtractSections(work)

	patch, err := c.refiner.Refine(ctx, work, fixable, names)
	if err != nil {
		return nil, nil, eris.Wrap(err, "refine")
	}

	next := Merge(work, patch)
	// Sync runs with Merge in the same step, never separately.
	SyncMetadata(next, patch.MetadataUpdates)

	return next, patch.Warnings, nil
}

func (c *Controller) finish(log *zap.Logger, work *model.Artifact, score int, terminal string) *model.FinalArtifact {
	if c.tracker != nil {
		c.tracker.LogTotal(work.Ticker)
	}
	log.Info("loop: terminal state reached",
		zap.String("terminal", terminal),
		zap.Int("final_score", score),
		zap.Int("iterations", len(work.RefinementHistory)),
	)
	return &model.FinalArtifact{
		Artifact:    work,
		Approved:    terminal == TerminalApproved,
		FinalScore:  score,
		Terminal:    terminal,
		CompletedAt: time.Now().UTC(),
	}
}
