package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/refine-cli/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "refine-cli",
	Short: "Validate-refine convergence loop for investment research artifacts",
	Long:  "Scores draft research artifacts with a validator model, filters fixable issues, requests surgical corrections, and merges them until the artifact is approved or the iteration budget runs out.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
