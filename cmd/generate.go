package cmd

import (
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/internal/pipeline"

	"github.com/spf13/cobra"
)

// generateCmd は、分镜の全ショットについて画像を一括生成するのだ。
var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "分镜の全ショットの画像を一括生成するのだ。",
	Long: `分镜とロスターからショットごとのプロンプトを組み立て、プロバイダに画像を依頼するのだ。
結果は <project>/output 配下にレポートとして書き出すのだよ。`,
	PreRunE: preRunAppE,
	RunE:    generateCommand,
}

func init() {
	generateCmd.Flags().IntVarP(&opts.Variants, "variants", "n", 0, "ショットごとのバリエーション数なのだ（0 なら設定ファイルの値）。")
}

func generateCommand(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()

	slog.Info("バッチ生成パイプラインを起動するのだ！",
		"project", opts.ProjectDir,
		"storyboard", opts.StoryboardFile,
		"provider", opts.Provider)

	result, err := pipeline.Execute(ctx, cfg)
	if err != nil {
		return fmt.Errorf("パイプライン実行中にエラーが発生したのだ: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "成功 %d / %d ショット、画像 %d 枚、総コスト ¥%.2f\n",
		result.Successful, result.TotalShots, result.TotalImages, result.TotalCost)
	return nil
}
