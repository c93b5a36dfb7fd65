package quality

import (
	"fmt"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	// DefaultMinAcceptable 以上の総合スコアで合格なのだ。
	DefaultMinAcceptable = 0.7

	technicalBase        = 0.8
	technicalMissingURL  = 0.1
	detailedPromptLength = 50
	minPlausibleDuration = 5 * time.Second
	maxPlausibleDuration = 120 * time.Second
	consistencyBaseline  = 0.85
	consistencyWarnBelow = 0.8
)

// ConsistencyScore は一貫性ヒューリスティックの内訳なのだ。
type ConsistencyScore struct {
	Overall             float64  `json:"overall"`
	CharacterAppearance float64  `json:"character_appearance"`
	CharacterOutfit     float64  `json:"character_outfit"`
	SceneLayout         float64  `json:"scene_layout"`
	SceneLighting       float64  `json:"scene_lighting"`
	Issues              []string `json:"issues,omitempty"`
	Suggestions         []string `json:"suggestions,omitempty"`
}

// Result は1枚の画像の評価結果です。計算しなかったサブスコアは nil なのだ。
type Result struct {
	OverallScore   float64           `json:"overall_score"`
	Passed         bool              `json:"passed"`
	TechnicalScore *float64          `json:"technical_score,omitempty"`
	Consistency    *ConsistencyScore `json:"consistency,omitempty"`
	Issues         []string          `json:"issues"`
	Suggestions    []string          `json:"suggestions"`
}

// Scorer は画像を 0.0-1.0 で評価する契約なのだ。
// 画像解析による実装に差し替えられるよう、バッチ処理はこのインターフェースだけに依存するのだよ。
type Scorer interface {
	CheckImage(img domain.GeneratedImage) Result
}

// Options は HeuristicChecker の評価項目の切り替えです。
type Options struct {
	CheckTechnical   bool
	CheckConsistency bool
	MinAcceptable    float64
}

// DefaultOptions は全項目を評価し、0.7 を合格線とするのだ。
func DefaultOptions() Options {
	return Options{CheckTechnical: true, CheckConsistency: true, MinAcceptable: DefaultMinAcceptable}
}

// HeuristicChecker はメタデータとプロンプトだけから推定するヒューリスティックな評価器なのだ。
type HeuristicChecker struct {
	opts Options
}

// NewHeuristicChecker は HeuristicChecker を生成します。
func NewHeuristicChecker(opts Options) *HeuristicChecker {
	return &HeuristicChecker{opts: opts}
}

// CheckImage は技術スコアと一貫性スコアを計算し、計算した分の単純平均を総合スコアにするのだ。
// 一貫性はキャラクターかシーンの ID が付いているときだけ評価するのだよ。
func (c *HeuristicChecker) CheckImage(img domain.GeneratedImage) Result {
	res := Result{Issues: []string{}, Suggestions: []string{}}
	var scores []float64

	if c.opts.CheckTechnical {
		tech := technicalScore(img)
		res.TechnicalScore = &tech
		scores = append(scores, tech)
		if tech < DefaultMinAcceptable {
			res.Issues = append(res.Issues, "技術品質が低めです: 画像がぼやけているか欠陥がある可能性があります")
			res.Suggestions = append(res.Suggestions, `より高い画質設定 (quality: "high" または "ultra") を試してください`)
		}
	}

	if c.opts.CheckConsistency && (img.Metadata.CharacterID != "" || img.Metadata.SceneID != "") {
		cs := consistencyScore(img)
		res.Consistency = &cs
		scores = append(scores, cs.Overall)
		if cs.Overall < consistencyWarnBelow {
			res.Issues = append(res.Issues, fmt.Sprintf("一貫性スコアが低めです: %.1f%%", cs.Overall*100))
			res.Suggestions = append(res.Suggestions, cs.Suggestions...)
		}
	}

	if len(scores) > 0 {
		var sum float64
		for _, s := range scores {
			sum += s
		}
		res.OverallScore = sum / float64(len(scores))
	}
	res.Passed = res.OverallScore >= c.opts.MinAcceptable
	return res
}

// technicalScore は URL・プロンプト長・シード・生成時間から技術品質を推定するのだ。
// 生成時間が 0 のときは不明として扱い、減点しないのだよ。
func technicalScore(img domain.GeneratedImage) float64 {
	if img.URL == "" {
		return technicalMissingURL
	}
	score := technicalBase
	if len([]rune(img.Prompt)) > detailedPromptLength {
		score += 0.1
	}
	if img.Seed > 0 {
		score += 0.05
	}
	if d := img.Metadata.GenerationTime; d > 0 && (d < minPlausibleDuration || d > maxPlausibleDuration) {
		score -= 0.1
	}
	return min(1, max(0, score))
}

func consistencyScore(img domain.GeneratedImage) ConsistencyScore {
	cs := ConsistencyScore{
		CharacterAppearance: consistencyBaseline,
		CharacterOutfit:     consistencyBaseline,
		SceneLayout:         consistencyBaseline,
		SceneLighting:       consistencyBaseline,
	}
	if img.Metadata.CharacterID != "" {
		cs.CharacterAppearance = 0.9
		cs.CharacterOutfit = 0.88
	} else {
		cs.Issues = append(cs.Issues, "キャラクター参照が見つかりません")
		cs.Suggestions = append(cs.Suggestions, "キャラクター参照を作成して一貫性を高めてください")
	}
	if img.Metadata.SceneID != "" {
		cs.SceneLayout = 0.87
		cs.SceneLighting = 0.86
	} else {
		cs.Issues = append(cs.Issues, "シーン参照が見つかりません")
		cs.Suggestions = append(cs.Suggestions, "シーン参照を作成して一貫性を高めてください")
	}
	cs.Overall = (cs.CharacterAppearance + cs.CharacterOutfit + cs.SceneLayout + cs.SceneLighting) / 4
	return cs
}
