package cmd

import (
	"github.com/shouni/go-storyboard-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

var referencesCmd = &cobra.Command{
	Use:   "references",
	Short: "一貫性参照の集計と実績シードを表示するのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.ExecuteReferences(cmd.Context(), opts, cmd.OutOrStdout())
	},
}
