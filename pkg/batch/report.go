package batch

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/router"
)

const (
	ReportJSONName = "generation_report.json"
	ReportTextName = "generation_report.txt"
	ruleWidth      = 60
)

// WriteReports は機械可読な JSON と人が読むテキストの2つのレポートを dir に書き出すのだ。
func WriteReports(dir string, result *domain.BatchResult, stats router.CostStats) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("レポートディレクトリの作成に失敗しました: %w", err)
	}

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("レポートのエンコードに失敗しました: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ReportJSONName), data, 0o644); err != nil {
		return fmt.Errorf("レポートの書き込みに失敗しました: %w", err)
	}

	text := TextReport(result, stats)
	if err := os.WriteFile(filepath.Join(dir, ReportTextName), []byte(text), 0o644); err != nil {
		return fmt.Errorf("テキストレポートの書き込みに失敗しました: %w", err)
	}
	return nil
}

// TextReport はバッチ結果と当日の支出状況を整形するのだ。
func TextReport(result *domain.BatchResult, stats router.CostStats) string {
	var sb strings.Builder
	rule := strings.Repeat("=", ruleWidth)

	line := func(format string, args ...any) {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteString("\n")
	}

	line("%s", rule)
	line("バッチ画像生成レポート")
	line("%s", rule)
	line("")

	line("概要:")
	line("  総ショット数: %d", result.TotalShots)
	line("  成功: %d", result.Successful)
	line("  失敗: %d", result.Failed)
	line("  総画像数: %d", result.TotalImages)
	line("  総コスト: ¥%.2f", result.TotalCost)
	line("  総所要時間: %.1f秒", result.TotalTime.Seconds())
	if result.Aborted {
		line("  ※ 途中で打ち切られました")
	}
	line("")

	line("平均指標:")
	if result.Successful > 0 {
		line("  ショットあたりの平均コスト: ¥%.2f", result.TotalCost/float64(result.Successful))
		line("  ショットあたりの平均時間: %.1f秒", result.TotalTime.Seconds()/float64(result.Successful))
	}
	line("")

	line("一貫性スコア:")
	line("  キャラクター一貫性: %.1f%%", result.Consistency.Character*100)
	line("  シーン一貫性: %.1f%%", result.Consistency.Scene*100)
	line("")

	line("コスト統計:")
	line("  本日の使用額: ¥%.2f", stats.DailyCost)
	line("  日次予算: ¥%.2f", stats.MaxDailyCost)
	line("  残り予算: ¥%.2f", stats.Remaining)
	line("  使用率: %.1f%%", stats.Utilization*100)
	line("")

	if len(result.Failures) > 0 {
		line("失敗したショット:")
		for _, f := range result.Failures {
			line("  - %s: %s", f.ShotKey, f.Error)
		}
		line("")
	}

	sb.WriteString(rule)
	return sb.String()
}
