package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importDir string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import draft artifacts from a directory into the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		drafts, err := loadArtifactDir(importDir)
		if err != nil {
			return err
		}

		n, err := st.BulkSaveDrafts(ctx, drafts)
		if err != nil {
			return err
		}

		zap.L().Info("drafts imported",
			zap.Int64("imported", n),
			zap.Int("scanned", len(drafts)),
			zap.String("dir", importDir),
		)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importDir, "dir", "", "directory of draft artifact JSON files (required)")
	_ = importCmd.MarkFlagRequired("dir")
	rootCmd.AddCommand(importCmd)
}
