package quality

import (
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// SelectBest は全候補を評価し、最高スコアに最初に達した画像とその位置を返すのだ。
// 候補が空なら false を返すのだよ。
func SelectBest(s Scorer, images []domain.GeneratedImage) (domain.GeneratedImage, int, bool) {
	if len(images) == 0 {
		return domain.GeneratedImage{}, -1, false
	}
	if len(images) == 1 {
		return images[0], 0, true
	}

	best := 0
	bestScore := s.CheckImage(images[0]).OverallScore
	for i := 1; i < len(images); i++ {
		if score := s.CheckImage(images[i]).OverallScore; score > bestScore {
			best, bestScore = i, score
		}
	}
	return images[best], best, true
}

// BatchSummary は複数画像の評価の集計です。
type BatchSummary struct {
	Total        int     `json:"total"`
	Passed       int     `json:"passed"`
	Failed       int     `json:"failed"`
	AverageScore float64 `json:"average_score"`
}

// BatchResult は CheckBatch の戻り値です。
type BatchResult struct {
	Results []Result     `json:"results"`
	Summary BatchSummary `json:"summary"`
}

// CheckBatch は全画像を評価して合否と平均を集計するのだ。
func CheckBatch(s Scorer, images []domain.GeneratedImage) BatchResult {
	out := BatchResult{Results: make([]Result, 0, len(images))}
	var sum float64
	for _, img := range images {
		r := s.CheckImage(img)
		out.Results = append(out.Results, r)
		sum += r.OverallScore
		if r.Passed {
			out.Summary.Passed++
		}
	}
	out.Summary.Total = len(images)
	out.Summary.Failed = out.Summary.Total - out.Summary.Passed
	if len(images) > 0 {
		out.Summary.AverageScore = sum / float64(len(images))
	}
	return out
}

// Comparison は2枚の画像の類似度と相違点です。
type Comparison struct {
	Similarity  float64  `json:"similarity"`
	Differences []string `json:"differences"`
}

// CompareImages はメタデータとプロンプトの語彙の重なりで2枚を比べるのだ。
func CompareImages(a, b domain.GeneratedImage) Comparison {
	out := Comparison{Similarity: 1.0, Differences: []string{}}
	if a.Metadata.CharacterID != b.Metadata.CharacterID {
		out.Differences = append(out.Differences, "キャラクターが異なります")
		out.Similarity -= 0.3
	}
	if a.Metadata.SceneID != b.Metadata.SceneID {
		out.Differences = append(out.Differences, "シーンが異なります")
		out.Similarity -= 0.2
	}
	if promptSimilarity(a.Prompt, b.Prompt) < 0.5 {
		out.Differences = append(out.Differences, "プロンプトの差が大きいです")
		out.Similarity -= 0.2
	}
	out.Similarity = max(0, out.Similarity)
	return out
}

// promptSimilarity は空白区切りの語の Jaccard 係数なのだ。
func promptSimilarity(p1, p2 string) float64 {
	w1 := wordSet(p1)
	w2 := wordSet(p2)
	if len(w1) == 0 && len(w2) == 0 {
		return 1
	}

	inter := 0
	union := len(w2)
	for w := range w1 {
		if _, ok := w2[w]; ok {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}
