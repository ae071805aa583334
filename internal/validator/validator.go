// Package validator scores research artifacts against a fixed rubric and
// produces the issue list the refinement loop works from.
package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
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

const stage = "validate"

// maxVerifications bounds the capability calls spent confirming claims the
// model could not judge from training data.
const maxVerifications = 3

// maxFilingExcerpt caps the filing text forwarded to a confirmation call.
const maxFilingExcerpt = 12000

// Validator scores an artifact with an LLM call, cross-checks arithmetic
// through the compute capability, and verifies post-cutoff claims against
// search results or the cited filing before letting them stand as issues.
type Validator struct {
	client    anthropic.Client
	cfg       config.RoleConfig
	threshold int
	caps      capability.Set
	tracker   *cost.Tracker
	retry     resilience.RetryConfig
}

// New creates a Validator. The tracker may be nil when cost attribution is
// not needed (tests).
func New(client anthropic.Client, cfg config.RoleConfig, threshold int, caps capability.Set, tracker *cost.Tracker) *Validator {
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "validate")
	return &Validator{
		client:    client,
		cfg:       cfg,
		threshold: threshold,
		caps:      caps,
		tracker:   tracker,
		retry:     retry,
	}
}

// SetRetry overrides the default retry policy for API calls. The retry
// logger is kept unless cfg brings its own callback.
func (v *Validator) SetRetry(cfg resilience.RetryConfig) {
	if cfg.OnRetry == nil {
		cfg.OnRetry = v.retry.OnRetry
	}
	v.retry = cfg
}

// llmIssue is the issue shape the scoring model returns.
type llmIssue struct {
	Severity          string `json:"severity"`
	Category          string `json:"category"`
	Description       string `json:"description"`
	FixSuggestion     string `json:"fix_suggestion"`
	NeedsVerification bool   `json:"needs_verification"`
	VerifyQuery       string `json:"verify_query"`
	VerifyDocType     string `json:"verify_doc_type"`
	VerifySection     string `json:"verify_section"`
}

type llmVerdict struct {
	Score     int        `json:"score"`
	Strengths []string   `json:"strengths"`
	Issues    []llmIssue `json:"issues"`
}

type searchEvidence struct {
	answer  string
	sources []capability.SearchSource
}

// Validate scores the artifact against the rubric for its declared
// analysis type. The full narrative is always sent untruncated.
func (v *Validator) Validate(ctx context.Context, a *model.Artifact) (*model.ValidationResult, error) {
	if v.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.cfg.Timeout)
		defer cancel()
	}

	rubric := ForType(a.AnalysisType())

	// Deterministic arithmetic cross-checks run before the model sees
	// anything, so a contradictory number is always caught.
	issues := v.verifyArithmetic(ctx, a)

	prompt := buildValidatePrompt(a, rubric, v.cfg.KnowledgeCutoff)

	resp, err := resilience.DoVal(ctx, v.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return v.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     v.cfg.Model,
			MaxTokens: v.cfg.MaxTokens,
			System:    []anthropic.SystemBlock{{Text: validateSystemPrompt}},
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "validator: scoring call")
	}
	v.recordUsage(resp)

	verdict, err := parseVerdict(resp.Text())
	if err != nil {
		return nil, eris.Wrap(err, "validator: parse verdict")
	}

	verified := 0
	for _, li := range verdict.Issues {
		if li.NeedsVerification && verified < maxVerifications {
			// Claims tied to a specific filing are checked against the
			// filing itself; everything else goes through search.
			switch {
			case li.VerifyDocType != "" && v.caps.Fetcher != nil:
				verified++
				if v.filingConfirms(ctx, a.Ticker, li) {
					zap.L().Debug("validator: claim confirmed by filing, dropping issue",
						zap.String("ticker", a.Ticker),
						zap.String("category", li.Category),
						zap.String("doc_type", li.VerifyDocType),
					)
					continue
				}
			case li.VerifyQuery != "" && v.caps.Search != nil:
				verified++
				if v.claimConfirmed(ctx, li) {
					zap.L().Debug("validator: claim confirmed by search, dropping issue",
						zap.String("ticker", a.Ticker),
						zap.String("category", li.Category),
					)
					continue
				}
			}
		}
		issues = append(issues, model.Issue{
			Severity:      model.Severity(li.Severity),
			Category:      li.Category,
			Description:   li.Description,
			FixSuggestion: li.FixSuggestion,
		})
	}

	score := verdict.Score
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	// Arithmetic contradictions cap the score below approval regardless
	// of how the model scored the prose.
	if hasCriticalCalculation(issues) && score >= v.threshold {
		score = v.threshold - 1
	}

	result := &model.ValidationResult{
		Score:     score,
		Approved:  score >= v.threshold,
		Issues:    issues,
		Strengths: verdict.Strengths,
	}

	zap.L().Info("validator: artifact scored",
		zap.String("ticker", a.Ticker),
		zap.String("analysis_type", string(rubric.Type)),
		zap.Int("score", result.Score),
		zap.Bool("approved", result.Approved),
		zap.Int("issues", len(result.Issues)),
	)

	return result, nil
}

// verifyArithmetic cross-checks the valuation fields in metadata through
// the compute capability. Capability failure is a warning, never an error.
func (v *Validator) verifyArithmetic(ctx context.Context, a *model.Artifact) []model.Issue {
	var issues []model.Issue
	if v.caps.Compute == nil {
		return issues
	}

	iv, haveIV := a.MetadataFloat("intrinsic_value")
	price, havePrice := a.MetadataFloat("current_price")
	mos, haveMoS := a.MetadataFloat("margin_of_safety")

	if haveIV && havePrice && haveMoS {
		res, err := v.caps.Compute.Compute(ctx, "margin_of_safety", map[string]float64{
			"intrinsic_value": iv,
			"price":           price,
		})
		if v.tracker != nil {
			v.tracker.RecordCompute(stage)
		}
		switch {
		case err != nil:
			zap.L().Warn("validator: margin of safety check unavailable",
				zap.String("ticker", a.Ticker),
				zap.Error(err),
			)
		case !withinTolerance(res.Value, mos):
			issues = append(issues, model.Issue{
				Severity: model.SeverityCritical,
				Category: "calculation",
				Description: fmt.Sprintf(
					"metadata margin_of_safety is %.4f but intrinsic_value %.2f and current_price %.2f imply %.4f",
					mos, iv, price, res.Value),
				FixSuggestion: fmt.Sprintf("recompute margin_of_safety as (intrinsic_value - price) / intrinsic_value = %.4f and update both prose and metadata", res.Value),
			})
		}
	}

	// A buy decision with a negative margin of safety is contradictory on
	// its face; no model call needed.
	if decision, ok := a.Metadata["decision"].(string); ok && haveMoS {
		if strings.EqualFold(decision, "buy") && mos < 0 {
			issues = append(issues, model.Issue{
				Severity:      model.SeverityCritical,
				Category:      "decision",
				Description:   fmt.Sprintf("decision is %q but margin_of_safety is %.4f (price above intrinsic value)", decision, mos),
				FixSuggestion: "reconcile the decision with the valuation: either revise the intrinsic value inputs or change the decision",
			})
		}
	}

	return issues
}

// claimConfirmed looks the claim up through the search capability and asks
// the model whether the evidence confirms it. True means the issue should
// be dropped. Any capability failure keeps the issue.
func (v *Validator) claimConfirmed(ctx context.Context, li llmIssue) bool {
	res, err := v.caps.Search.Search(ctx, li.VerifyQuery)
	if v.tracker != nil {
		v.tracker.RecordSearch(stage, v.caps.Search.Name())
	}
	if err != nil {
		zap.L().Warn("validator: verification search failed, keeping issue",
			zap.String("query", li.VerifyQuery),
			zap.Error(err),
		)
		return false
	}

	evidence := &searchEvidence{answer: res.Answer, sources: res.Sources}
	return v.evidenceConfirms(ctx, buildConfirmPrompt(li.Description, evidence))
}

// filingConfirms pulls the cited filing section through the document
// fetcher and asks the model whether its text supports the claim. True
// means the issue should be dropped. Any capability failure keeps the
// issue.
func (v *Validator) filingConfirms(ctx context.Context, ticker string, li llmIssue) bool {
	text, err := v.caps.Fetcher.FetchDocument(ctx, ticker, li.VerifyDocType, li.VerifySection)
	if v.tracker != nil {
		v.tracker.RecordFetch(stage)
	}
	if err != nil {
		zap.L().Warn("validator: filing fetch failed, keeping issue",
			zap.String("ticker", ticker),
			zap.String("doc_type", li.VerifyDocType),
			zap.Error(err),
		)
		return false
	}
	return v.evidenceConfirms(ctx, buildFilingConfirmPrompt(li.Description, li.VerifyDocType, truncate(text, maxFilingExcerpt)))
}

// evidenceConfirms runs one confirmation call over rendered evidence.
func (v *Validator) evidenceConfirms(ctx context.Context, prompt string) bool {
	resp, err := v.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     v.cfg.Model,
		MaxTokens: 256,
		System:    []anthropic.SystemBlock{{Text: confirmSystemPrompt}},
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		zap.L().Warn("validator: confirmation call failed, keeping issue", zap.Error(err))
		return false
	}
	v.recordUsage(resp)

	var confirm struct {
		ClaimCorrect bool `json:"claim_correct"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(resp.Text())), &confirm); err != nil {
		return false
	}
	return confirm.ClaimCorrect
}

func (v *Validator) recordUsage(resp *anthropic.MessageResponse) {
	if v.tracker == nil || resp == nil {
		return
	}
	v.tracker.RecordClaude(stage, v.cfg.Model, model.TokenUsage{
		InputTokens:         int(resp.Usage.InputTokens),
		OutputTokens:        int(resp.Usage.OutputTokens),
		CacheCreationTokens: int(resp.Usage.CacheCreationInputTokens),
		CacheReadTokens:     int(resp.Usage.CacheReadInputTokens),
	})
}

func parseVerdict(text string) (*llmVerdict, error) {
	var verdict llmVerdict
	if err := json.Unmarshal([]byte(cleanJSON(text)), &verdict); err != nil {
		return nil, eris.Wrapf(err, "unmarshal verdict from %q", truncate(text, 120))
	}
	return &verdict, nil
}

func hasCriticalCalculation(issues []model.Issue) bool {
	for _, is := range issues {
		if is.Severity == model.SeverityCritical && is.Category == "calculation" {
			return true
		}
	}
	return false
}

func withinTolerance(computed, stated float64) bool {
	diff := math.Abs(computed - stated)
	if diff <= 0.005 {
		return true
	}
	return diff <= 0.01*math.Max(1, math.Abs(computed))
}

// cleanJSON strips markdown fences and extracts the outermost JSON object.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}

	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
