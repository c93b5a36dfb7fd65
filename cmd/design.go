package cmd

import (
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/internal/pipeline"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"

	"github.com/spf13/cobra"
)

var designCmd = &cobra.Command{
	Use:     "design",
	Short:   "キャラクターとシーンの設定画を生成し、Seed値を参照に登録するのだ。",
	Long:    "ロスターのキャラクター設定画（白背景・多視点）と背景設定画を生成するのだ。高評価のシードは一貫性参照に登録され、generate で再利用されるのだよ。",
	PreRunE: preRunAppE,
	RunE: func(cmd *cobra.Command, args []string) error {
		charIDs, err := cmd.Flags().GetStringSlice("chars")
		if err != nil {
			return fmt.Errorf("--chars フラグの解析に失敗しました: %w", err)
		}
		sceneIDs, err := cmd.Flags().GetStringSlice("scenes")
		if err != nil {
			return fmt.Errorf("--scenes フラグの解析に失敗しました: %w", err)
		}
		view, err := cmd.Flags().GetString("view")
		if err != nil {
			return err
		}
		workspace, err := cmd.Flags().GetString("workspace")
		if err != nil {
			return err
		}

		results, err := pipeline.ExecuteDesign(cmd.Context(), loadConfig(), pipeline.DesignRequest{
			CharacterIDs: charIDs,
			SceneIDs:     sceneIDs,
			View:         prompts.SheetView(view),
			Workspace:    domain.WorkspaceType(workspace),
		})
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, strings.Repeat("=", 50))
		for _, r := range results {
			target := r.Image.Metadata.CharacterID
			if target == "" {
				target = r.Image.Metadata.SceneID
			}
			fmt.Fprintf(w, "%-12s seed %-12d score %.2f  %s\n", target, r.Image.Seed, r.Quality.OverallScore, location(r.Image))
		}
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintln(w, "高評価のシードは参照に登録済みなのだ。reuse_seeds が有効なら generate で再利用されるのだよ！")
		return nil
	},
}

func init() {
	designCmd.Flags().StringSlice("chars", nil, "生成対象のキャラクターID（カンマ区切り）")
	designCmd.Flags().StringSlice("scenes", nil, "生成対象のシーンID（カンマ区切り）")
	designCmd.Flags().String("view", string(prompts.ViewFullBody), "full_body / close_up / side_view")
	designCmd.Flags().String("workspace", string(domain.WorkspaceManga), "除外タグに使うワークスペースなのだ。")
}

func location(img domain.GeneratedImage) string {
	if img.LocalPath != "" {
		return img.LocalPath
	}
	return img.URL
}
