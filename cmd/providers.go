package cmd

import (
	"github.com/shouni/go-storyboard-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:     "providers",
	Short:   "設定済みプロバイダへの疎通と本日の予算を確認するのだ。",
	PreRunE: preRunAppE,
	RunE: func(cmd *cobra.Command, args []string) error {
		return pipeline.ExecuteProviderCheck(cmd.Context(), loadConfig(), cmd.OutOrStdout())
	},
}
