package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxGenerationHistory は参照ごとに保持する生成履歴の上限なのだ。
	MaxGenerationHistory = 100
	// HighQualityThreshold 以上のスコアの生成だけがシードと参照画像に昇格するのだ。
	HighQualityThreshold = 0.8
	DefaultStylePreset   = "anime"
)

// InvalidIDError は参照の ID としてファイル名に使えない値を表すのだ。
type InvalidIDError struct {
	ID string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("ファイル名に使えない ID です: %q", e.ID)
}

// ValidateReferenceID は空や "."、".."、パス区切りを含む ID を拒否するのだ。
func ValidateReferenceID(id string) error {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return &InvalidIDError{ID: id}
	}
	return nil
}

// HistoryEntry は1回分の生成記録です。
type HistoryEntry struct {
	Prompt       string    `json:"prompt"`
	Seed         int64     `json:"seed"`
	ImageURL     string    `json:"image_url"`
	QualityScore float64   `json:"quality_score"`
	Timestamp    time.Time `json:"timestamp"`
}

type StyleParams struct {
	StylePreset string `json:"style_preset,omitempty"`
	LoRA        string `json:"lora,omitempty"`
}

// CharacterReference はキャラクターの一貫性参照なのだ。
// CoreFeatures は作成後に変わらず、3つのリストだけが伸びていくのだよ。
type CharacterReference struct {
	CharacterID       string         `json:"character_id"`
	CharacterName     string         `json:"character_name"`
	CoreFeatures      string         `json:"core_features"`
	ReferenceImages   []string       `json:"reference_images"`
	SuccessfulSeeds   []int64        `json:"successful_seeds"`
	StyleParams       StyleParams    `json:"style_params"`
	GenerationHistory []HistoryEntry `json:"generation_history"`
}

type LightingParams struct {
	TimeOfDay      string `json:"time_of_day"`
	LightDirection string `json:"light_direction"`
	Mood           string `json:"mood"`
}

// SceneReference はシーンの一貫性参照なのだ。
type SceneReference struct {
	SceneID           string         `json:"scene_id"`
	SceneName         string         `json:"scene_name"`
	CoreDescription   string         `json:"core_description"`
	ReferenceImages   []string       `json:"reference_images"`
	SuccessfulSeeds   []int64        `json:"successful_seeds"`
	LightingParams    LightingParams `json:"lighting_params"`
	GenerationHistory []HistoryEntry `json:"generation_history"`
}

// Clone は呼び出し元が内部状態を書き換えないよう、スライスまで複製するのだ。
func (r *CharacterReference) Clone() *CharacterReference {
	if r == nil {
		return nil
	}
	c := *r
	c.ReferenceImages = append([]string(nil), r.ReferenceImages...)
	c.SuccessfulSeeds = append([]int64(nil), r.SuccessfulSeeds...)
	c.GenerationHistory = append([]HistoryEntry(nil), r.GenerationHistory...)
	return &c
}

// Clone は SceneReference の防御的コピーなのだ。
func (r *SceneReference) Clone() *SceneReference {
	if r == nil {
		return nil
	}
	c := *r
	c.ReferenceImages = append([]string(nil), r.ReferenceImages...)
	c.SuccessfulSeeds = append([]int64(nil), r.SuccessfulSeeds...)
	c.GenerationHistory = append([]HistoryEntry(nil), r.GenerationHistory...)
	return &c
}
