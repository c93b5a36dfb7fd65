package domain

import (
	"encoding/json"
	"fmt"
)

// WorkspaceType は分镜の出力先（漫画・短編動画・動態漫画）を表すのだ。
type WorkspaceType string

const (
	WorkspaceManga        WorkspaceType = "manga"
	WorkspaceShortVideo   WorkspaceType = "short-video"
	WorkspaceDynamicManga WorkspaceType = "dynamic-manga"
)

// Valid は既知のワークスペースかどうかを返すのだ。
func (w WorkspaceType) Valid() bool {
	switch w {
	case WorkspaceManga, WorkspaceShortVideo, WorkspaceDynamicManga:
		return true
	}
	return false
}

// WorkspaceProfile はワークスペースごとの表示名とアスペクト比なのだ。
type WorkspaceProfile struct {
	Name        WorkspaceType
	DisplayName string
	AspectRatio string
}

var workspaceProfiles = map[WorkspaceType]WorkspaceProfile{
	WorkspaceManga:        {Name: WorkspaceManga, DisplayName: "漫画ワークスペース", AspectRatio: "4:3"},
	WorkspaceShortVideo:   {Name: WorkspaceShortVideo, DisplayName: "短編動画ワークスペース", AspectRatio: "9:16"},
	WorkspaceDynamicManga: {Name: WorkspaceDynamicManga, DisplayName: "動態漫画ワークスペース", AspectRatio: "16:9"},
}

// ProfileFor はワークスペースのプロファイルを返すのだ。
func ProfileFor(w WorkspaceType) (WorkspaceProfile, bool) {
	p, ok := workspaceProfiles[w]
	return p, ok
}

// WorkspaceFields はショットに付随するワークスペース固有フィールドの共用体なのだ。
// 実装は MangaFields / ShortVideoFields / DynamicMangaFields の3つだけ。
type WorkspaceFields interface {
	Workspace() WorkspaceType
}

// MangaFields は漫画ワークスペース固有のフィールドです。
type MangaFields struct {
	PageBreak      bool   `json:"page_break"`
	BubblePosition string `json:"bubble_position,omitempty"`
	PanelLayout    string `json:"panel_layout,omitempty"`
}

func (MangaFields) Workspace() WorkspaceType { return WorkspaceManga }

// ShortVideoFields は短編動画ワークスペース固有のフィールドです。
type ShortVideoFields struct {
	Timeline  string           `json:"timeline"`
	Subtitle  *SubtitleConfig  `json:"subtitle,omitempty"`
	Voiceover *VoiceoverConfig `json:"voiceover,omitempty"`
}

func (ShortVideoFields) Workspace() WorkspaceType { return WorkspaceShortVideo }

type SubtitleConfig struct {
	Text     string `json:"text"`
	Position string `json:"position"`
}

type VoiceoverConfig struct {
	Text    string `json:"text"`
	Voice   string `json:"voice"`
	Speed   string `json:"speed"`
	Emotion string `json:"emotion"`
	Volume  int    `json:"volume"`
}

// DynamicMangaFields は動態漫画ワークスペース固有のフィールドです。
type DynamicMangaFields struct {
	FrameRange     string          `json:"frame_range"`
	LayerStructure []Layer         `json:"layer_structure,omitempty"`
	Camera3D       *Camera3DParams `json:"camera_3d,omitempty"`
	VFX            *VFXParams      `json:"vfx,omitempty"`
}

func (DynamicMangaFields) Workspace() WorkspaceType { return WorkspaceDynamicManga }

type Layer struct {
	Layer   string  `json:"layer"`
	Content string  `json:"content"`
	ZDepth  float64 `json:"z_depth"`
}

type Camera3DParams struct {
	FOV            float64 `json:"fov"`
	AnimationCurve string  `json:"animation_curve"`
}

// VFXParams は動態漫画の視覚効果パラメータなのだ。プロンプトの効果句にも使われるのだよ。
type VFXParams struct {
	ParticleSystem *ParticleSystem `json:"particle_system,omitempty"`
	Glow           *Glow           `json:"glow,omitempty"`
	MotionBlur     *MotionBlur     `json:"motion_blur,omitempty"`
}

type ParticleSystem struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
	Color string `json:"color"`
}

type Glow struct {
	Intensity float64 `json:"intensity"`
	Radius    float64 `json:"radius"`
}

type MotionBlur struct {
	Samples      int     `json:"samples"`
	ShutterAngle float64 `json:"shutter_angle"`
}

// DecodeWorkspaceFields はワークスペース種別に応じて生の JSON を共用体へデコードするのだ。
// raw が空なら nil を返すのだ。
func DecodeWorkspaceFields(w WorkspaceType, raw json.RawMessage) (WorkspaceFields, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	switch w {
	case WorkspaceManga:
		var f MangaFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("漫画フィールドのデコードに失敗しました: %w", err)
		}
		return f, nil
	case WorkspaceShortVideo:
		var f ShortVideoFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("短編動画フィールドのデコードに失敗しました: %w", err)
		}
		return f, nil
	case WorkspaceDynamicManga:
		var f DynamicMangaFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("動態漫画フィールドのデコードに失敗しました: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("未知のワークスペースです: %q", w)
	}
}
