package domain

import (
	"errors"
	"fmt"
	"time"
)

// BatchConfig はバッチ生成の挙動設定なのだ。YAML から読み込めるのだよ。
type BatchConfig struct {
	Provider        Provider `yaml:"provider" json:"provider"`
	Quality         Quality  `yaml:"quality" json:"quality"`
	VariantsPerShot int      `yaml:"variants_per_shot" json:"variants_per_shot"`
	// ConcurrentLimit は1ショット内で同時に依頼するバリエーション数の上限なのだ。0 なら無制限なのだよ。
	// ルーターのワーカープール (MAX_CONCURRENT) は別の上限なので、実際の並列数は小さい方になるのだ。
	ConcurrentLimit int `yaml:"concurrent_limit" json:"concurrent_limit"`
	// ContinueOnFailure が false なら最初に失敗したショットで打ち切るのだ。
	ContinueOnFailure  bool   `yaml:"continue_on_failure" json:"continue_on_failure"`
	SavePrompts        bool   `yaml:"save_prompts" json:"save_prompts"`
	Download           bool   `yaml:"download" json:"download"`
	DownloadFormat     string `yaml:"download_format" json:"download_format"`
	ReuseSeeds         bool   `yaml:"reuse_seeds" json:"reuse_seeds"`
	DeterministicSeeds bool   `yaml:"deterministic_seeds" json:"deterministic_seeds"`
	StylePreset        string `yaml:"style_preset" json:"style_preset,omitempty"`
}

// DefaultBatchConfig はデフォルトのバッチ設定を返すのだ。
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		Provider:          ProviderHybrid,
		Quality:           QualityHigh,
		VariantsPerShot:   1,
		ConcurrentLimit:   5,
		ContinueOnFailure: true,
		SavePrompts:       true,
		DownloadFormat:    "png",
		ReuseSeeds:        true,
	}
}

// Validate は設定値の妥当性を検証するのだ。
func (c BatchConfig) Validate() error {
	var errs []error
	if _, err := ParseProvider(string(c.Provider)); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseQuality(string(c.Quality)); err != nil {
		errs = append(errs, err)
	}
	if c.VariantsPerShot < 1 {
		errs = append(errs, fmt.Errorf("variants_per_shot は1以上が必要です: %d", c.VariantsPerShot))
	}
	if c.ConcurrentLimit < 0 {
		errs = append(errs, fmt.Errorf("concurrent_limit は0以上が必要です: %d", c.ConcurrentLimit))
	}
	switch c.DownloadFormat {
	case "", "png", "jpg":
	default:
		errs = append(errs, fmt.Errorf("未対応の保存形式です: %q", c.DownloadFormat))
	}
	return errors.Join(errs...)
}

// ConsistencySummary はバッチ全体の一貫性スコアなのだ。
type ConsistencySummary struct {
	Character float64 `json:"character"`
	Scene     float64 `json:"scene"`
}

// ShotFailure は失敗したショットの記録です。
type ShotFailure struct {
	ShotKey string `json:"shot_key"`
	Error   string `json:"error"`
}

// BatchResult はバッチ実行1回分の結果なのだ。実行完了後は変更しないのだよ。
type BatchResult struct {
	RunID       string                      `json:"run_id"`
	StartedAt   time.Time                   `json:"started_at"`
	FinishedAt  time.Time                   `json:"finished_at"`
	TotalShots  int                         `json:"total_shots"`
	TotalImages int                         `json:"total_images"`
	Successful  int                         `json:"successful"`
	Failed      int                         `json:"failed"`
	TotalCost   float64                     `json:"total_cost"`
	TotalTime   time.Duration               `json:"total_time"`
	Aborted     bool                        `json:"aborted,omitempty"`
	Images      map[string][]GeneratedImage `json:"images"`
	BestImages  map[string]GeneratedImage   `json:"best_images"`
	Failures    []ShotFailure               `json:"failures,omitempty"`
	Consistency ConsistencySummary          `json:"consistency"`
}
