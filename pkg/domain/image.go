package domain

import (
	"fmt"
	"time"
)

// Provider は画像生成プロバイダの選択肢なのだ。
type Provider string

const (
	ProviderVolcano Provider = "volcano"
	ProviderAliyun  Provider = "aliyun"
	ProviderHybrid  Provider = "hybrid"
)

// ParseProvider は文字列をプロバイダに変換するのだ。
func ParseProvider(s string) (Provider, error) {
	switch p := Provider(s); p {
	case ProviderVolcano, ProviderAliyun, ProviderHybrid:
		return p, nil
	}
	return "", fmt.Errorf("未知のプロバイダです: %q", s)
}

// Quality は画質ティアなのだ。
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHigh     Quality = "high"
	QualityUltra    Quality = "ultra"
)

// ParseQuality は文字列を画質ティアに変換するのだ。
func ParseQuality(s string) (Quality, error) {
	switch q := Quality(s); q {
	case QualityStandard, QualityHigh, QualityUltra:
		return q, nil
	}
	return "", fmt.Errorf("未知の画質です: %q", s)
}

// Dimensions は画質ティアに対応する出力サイズを返すのだ。
func (q Quality) Dimensions() (width, height int) {
	switch q {
	case QualityUltra:
		return 1536, 1536
	case QualityHigh:
		return 1280, 1280
	default:
		return 1024, 1024
	}
}

// GenerationRequest はルーターへの1回分の生成依頼なのだ。
type GenerationRequest struct {
	Prompt         string
	NegativePrompt string
	Provider       Provider
	Quality        Quality
	Count          int
	Seed           *int64
	// Width と Height が 0 のときは Quality から決まるのだ。
	Width  int
	Height int
}

// ImageMetadata は生成画像の付帯情報です。
type ImageMetadata struct {
	ShotID         string        `json:"shot_id,omitempty"`
	CharacterID    string        `json:"character_id,omitempty"`
	SceneID        string        `json:"scene_id,omitempty"`
	Provider       Provider      `json:"provider,omitempty"`
	GeneratedAt    time.Time     `json:"generated_at"`
	Cost           float64       `json:"cost"`
	GenerationTime time.Duration `json:"generation_time"`
}

// GeneratedImage は生成された1枚の画像なのだ。
// LocalPath はダウンローダーが一度だけ設定するのだよ。
type GeneratedImage struct {
	URL       string        `json:"url"`
	LocalPath string        `json:"local_path,omitempty"`
	Seed      int64         `json:"seed,omitempty"`
	Prompt    string        `json:"prompt"`
	Metadata  ImageMetadata `json:"metadata"`
}
