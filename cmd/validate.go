package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/validator"
)

var (
	validateTicker string
	validateInput  string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score an artifact once without refining it",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		artifact, err := loadArtifact(ctx, env.Store, validateTicker, validateInput)
		if err != nil {
			return err
		}

		v := validator.New(env.Anthropic, cfg.Validator, cfg.Loop.ScoreThreshold, env.Caps, nil)
		result, err := v.Validate(ctx, artifact)
		if err != nil {
			return err
		}

		zap.L().Info("validation complete",
			zap.String("ticker", artifact.Ticker),
			zap.Int("score", result.Score),
			zap.Bool("approved", result.Approved),
			zap.Int("issues", len(result.Issues)),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateTicker, "ticker", "", "ticker of a stored draft artifact")
	validateCmd.Flags().StringVar(&validateInput, "input", "", "path to an artifact JSON file")
	rootCmd.AddCommand(validateCmd)
}
