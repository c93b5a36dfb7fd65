package cmd

import (
	"time"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

var cleanupMaxAge time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "保存済み画像のうち古いものを削除するのだ。",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := pipeline.ExecuteCleanup(opts, cleanupMaxAge, time.Now(), cmd.OutOrStdout())
		return err
	},
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupMaxAge, "max-age", config.DefaultCleanupMaxAge, "この期間より古いファイルを消すのだ。")
}
