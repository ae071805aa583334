// Package refiner turns a set of fixable issues into a structured
// refinement patch via an LLM call constrained to a strict block grammar.
package refiner

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/capability"
	"github.com/sells-group/refine-cli/internal/config"
	"github.com/sells-group/refine-cli/internal/cost"
	"github.com/sells-group/refine-cli/internal/model"
	"github.com/sells-group/refine-cli/internal/resilience"
	"github.com/sells-group/refine-cli/pkg/anthropic"
)

const stage = "refine"

// maxLookups bounds the search calls made to gather current values
// before the refinement request.
const maxLookups = 3

// lookupCategories are issue categories whose fixes usually need a live
// value (a price, a name, a date) rather than a recomputation.
var lookupCategories = map[string]bool{
	"price":      true,
	"leadership": true,
	"date":       true,
}

// issueEvidence is one search result attached to the refine prompt.
type issueEvidence struct {
	query   string
	summary string
}

// Refiner produces RefinementPatches for the convergence loop.
type Refiner struct {
	client  anthropic.Client
	cfg     config.RoleConfig
	caps    capability.Set
	tracker *cost.Tracker
	retry   resilience.RetryConfig
}

// New creates a Refiner. Tracker may be nil.
func New(client anthropic.Client, cfg config.RoleConfig, caps capability.Set, tracker *cost.Tracker) *Refiner {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "refine")
	return &Refiner{
		client:  client,
		cfg:     cfg,
		caps:    caps,
		tracker: tracker,
		retry:   retry,
	}
}

// SetRetry overrides the default retry policy for API calls. The retry
// logger is kept unless cfg brings its own callback.
func (r *Refiner) SetRetry(cfg resilience.RetryConfig) {
	if cfg.OnRetry == nil {
		cfg.OnRetry = r.retry.OnRetry
	}
	r.retry = cfg
}

// Refine requests targeted corrections for the fixable issues. The
// returned patch may be empty (with warnings) when the model's output
// does not conform to the grammar; that is a no-op, not an error.
func (r *Refiner) Refine(ctx context.Context, a *model.Artifact, issues []model.Issue, sectionNames []string) (*model.RefinementPatch, error) {
	if len(issues) == 0 {
		return &model.RefinementPatch{}, nil
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	evidence := r.gatherEvidence(ctx, a, issues)
	prompt := buildRefinePrompt(a, issues, sectionNames, evidence)

	resp, err := resilience.DoVal(ctx, r.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return r.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     r.cfg.Model,
			MaxTokens: r.cfg.MaxTokens,
			System:    []anthropic.SystemBlock{{Text: refineSystemPrompt}},
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "refiner: refine call")
	}
	if r.tracker != nil {
		r.tracker.RecordClaude(stage, r.cfg.Model, model.TokenUsage{
			InputTokens:         int(resp.Usage.InputTokens),
			OutputTokens:        int(resp.Usage.OutputTokens),
			CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
			CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
		})
	}

	patch := ParsePatch(resp.Text())
	for _, w := range patch.Warnings {
		zap.L().Warn("refiner: patch warning",
			zap.String("ticker", a.Ticker),
			zap.String("warning", w),
		)
	}

	zap.L().Info("refiner: patch produced",
		zap.String("ticker", a.Ticker),
		zap.Int("edits", len(patch.Edits)),
		zap.Int("metadata_updates", len(patch.MetadataUpdates)),
		zap.Bool("full_rewrite", patch.FullRewrite),
		zap.Int("warnings", len(patch.Warnings)),
	)

	return patch, nil
}

// gatherEvidence looks up current values for issues whose fix needs live
// data. A failed lookup is skipped; the model is told to fix what it can.
func (r *Refiner) gatherEvidence(ctx context.Context, a *model.Artifact, issues []model.Issue) []issueEvidence {
	if r.caps.Search == nil {
		return nil
	}

	var evidence []issueEvidence
	for _, is := range issues {
		if len(evidence) >= maxLookups || !lookupCategories[is.Category] {
			continue
		}

		query := a.Ticker + " " + firstSentence(is.FixSuggestion)
		if strings.TrimSpace(is.FixSuggestion) == "" {
			query = a.Ticker + " " + firstSentence(is.Description)
		}

		res, err := r.caps.Search.Search(ctx, query)
		if r.tracker != nil {
			r.tracker.RecordSearch(stage, r.caps.Search.Name())
		}
		if err != nil {
			zap.L().Warn("refiner: evidence lookup failed",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}

		evidence = append(evidence, issueEvidence{query: query, summary: summarize(res)})
	}
	return evidence
}

func summarize(res *capability.SearchResult) string {
	if res.Answer != "" {
		return res.Answer
	}
	var parts []string
	for i, src := range res.Sources {
		if i >= 3 {
			break
		}
		parts = append(parts, src.Title+": "+src.Snippet)
	}
	return strings.Join(parts, "; ")
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexAny(s, ".;\n"); idx > 0 {
		return s[:idx]
	}
	return s
}
