package quality

import (
	"fmt"
	"strings"
)

var reportRule = strings.Repeat("=", 40)

// Report は評価結果を人間向けのテキストに整形するのだ。
func Report(r Result) string {
	var sb strings.Builder
	sb.WriteString("画像品質レポート\n")
	sb.WriteString(reportRule + "\n\n")

	status := "✗ 不合格"
	if r.Passed {
		status = "✓ 合格"
	}
	fmt.Fprintf(&sb, "総合スコア: %s\n", percent(r.OverallScore))
	fmt.Fprintf(&sb, "判定: %s\n", status)

	if r.TechnicalScore != nil {
		fmt.Fprintf(&sb, "\n技術品質: %s\n", percent(*r.TechnicalScore))
	}
	if c := r.Consistency; c != nil {
		sb.WriteString("\n一貫性スコア:\n")
		fmt.Fprintf(&sb, "  キャラクター外見: %s\n", percent(c.CharacterAppearance))
		fmt.Fprintf(&sb, "  キャラクター衣装: %s\n", percent(c.CharacterOutfit))
		fmt.Fprintf(&sb, "  シーン構図: %s\n", percent(c.SceneLayout))
		fmt.Fprintf(&sb, "  シーン照明: %s\n", percent(c.SceneLighting))
	}
	writeList(&sb, "検出された問題:", r.Issues)
	writeList(&sb, "改善の提案:", r.Suggestions)

	sb.WriteString("\n" + reportRule)
	return sb.String()
}

func writeList(sb *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	sb.WriteString("\n" + title + "\n")
	for _, it := range items {
		fmt.Fprintf(sb, "  - %s\n", it)
	}
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
