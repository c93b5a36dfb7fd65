package domain

import (
	"encoding/json"
	"fmt"
	"os"
)

// ShotType は景別（ショットサイズ）なのだ。
type ShotType string

const (
	ShotExtremeLong  ShotType = "远景"
	ShotLong         ShotType = "全景"
	ShotMedium       ShotType = "中景"
	ShotClose        ShotType = "近景"
	ShotCloseUp      ShotType = "特写"
	ShotExtremeClose ShotType = "大特写"
)

// CameraAngle はカメラアングルなのだ。
type CameraAngle string

const (
	AngleEyeLevel CameraAngle = "平视"
	AngleHigh     CameraAngle = "俯视"
	AngleLow      CameraAngle = "仰视"
	AngleDutch    CameraAngle = "斜角"
	AngleBirdsEye CameraAngle = "鸟瞰"
	AngleWormsEye CameraAngle = "虫视"
)

// MovementStatic は固定カメラを表す運鏡種別なのだ。
const MovementStatic = "静止"

// CameraMovement はカメラワークなのだ。Type が "静止" のときは動きなし。
type CameraMovement struct {
	Type  string `json:"type"`
	Speed string `json:"speed,omitempty"`
	Curve string `json:"curve,omitempty"`
}

// Mood はショットの情緒注釈です。
type Mood struct {
	Emotion    string `json:"emotion"`
	Atmosphere string `json:"atmosphere"`
	Rhythm     string `json:"rhythm"`
}

// Dialogue はショット内の台詞です。
type Dialogue struct {
	CharacterID   string `json:"character_id"`
	CharacterName string `json:"character_name"`
	Text          string `json:"text"`
}

// ShotEffects は台詞・ナレーション・効果音などの動的効果です。
type ShotEffects struct {
	Dialogue     []Dialogue `json:"dialogue,omitempty"`
	Narration    string     `json:"narration,omitempty"`
	SoundEffects []string   `json:"sound_effects,omitempty"`
	Duration     float64    `json:"duration,omitempty"`
}

// Shot は1つのカメラセットアップなのだ。
type Shot struct {
	ShotNumber     int             `json:"shot_number"`
	ShotType       ShotType        `json:"shot_type"`
	CameraAngle    CameraAngle     `json:"camera_angle"`
	Content        string          `json:"content"`
	Dialogue       string          `json:"dialogue,omitempty"`
	CameraMovement *CameraMovement `json:"camera_movement,omitempty"`
	Mood           *Mood           `json:"mood,omitempty"`
	Effects        *ShotEffects    `json:"effects,omitempty"`

	// RawWorkspaceFields は読み込み時に WorkspaceFields へ解決されるのだ。
	RawWorkspaceFields json.RawMessage `json:"workspace_fields,omitempty"`
	WorkspaceFields    WorkspaceFields `json:"-"`
}

// StoryboardScene は複数のショットを束ねる分镜シーンなのだ。
type StoryboardScene struct {
	SceneID   string `json:"scene_id"`
	SceneName string `json:"scene_name"`
	Shots     []Shot `json:"shots"`
}

// StoryboardMetadata は分镜全体のメタ情報です。
type StoryboardMetadata struct {
	Title       string        `json:"title"`
	Workspace   WorkspaceType `json:"workspace"`
	AspectRatio string        `json:"aspect_ratio,omitempty"`
	TotalScenes int           `json:"total_scenes,omitempty"`
	TotalShots  int           `json:"total_shots,omitempty"`
	CreatedAt   string        `json:"created_at,omitempty"`
}

// Storyboard は上流の分割処理が生成する分镜脚本なのだ。
type Storyboard struct {
	Version  string             `json:"version"`
	Metadata StoryboardMetadata `json:"metadata"`
	Scenes   []StoryboardScene  `json:"scenes"`
}

// LoadStoryboard はファイルから分镜を読み込むのだ。
func LoadStoryboard(path string) (*Storyboard, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("分镜ファイルの読み込みに失敗しました: %w", err)
	}
	return ParseStoryboard(data)
}

// ParseStoryboard は JSON をパースし、ワークスペース固有フィールドを型付きで解決するのだ。
func ParseStoryboard(data []byte) (*Storyboard, error) {
	var sb Storyboard
	if err := json.Unmarshal(data, &sb); err != nil {
		return nil, fmt.Errorf("分镜のJSONパースに失敗しました: %w", err)
	}
	if !sb.Metadata.Workspace.Valid() {
		return nil, fmt.Errorf("未知のワークスペースです: %q", sb.Metadata.Workspace)
	}

	for i := range sb.Scenes {
		for j := range sb.Scenes[i].Shots {
			shot := &sb.Scenes[i].Shots[j]
			fields, err := DecodeWorkspaceFields(sb.Metadata.Workspace, shot.RawWorkspaceFields)
			if err != nil {
				return nil, fmt.Errorf("シーン %s のショット %d: %w", sb.Scenes[i].SceneID, shot.ShotNumber, err)
			}
			shot.WorkspaceFields = fields
		}
	}
	return &sb, nil
}

// ShotCount は全ショット数を返すのだ。
func (sb *Storyboard) ShotCount() int {
	n := 0
	for _, s := range sb.Scenes {
		n += len(s.Shots)
	}
	return n
}

// DialogueNames は台詞に登場するキャラクター名を出現順・重複なしで返すのだ。
func (s Shot) DialogueNames() []string {
	if s.Effects == nil {
		return nil
	}
	seen := make(map[string]struct{})
	names := make([]string, 0, len(s.Effects.Dialogue))
	for _, d := range s.Effects.Dialogue {
		if d.CharacterName == "" {
			continue
		}
		if _, ok := seen[d.CharacterName]; ok {
			continue
		}
		seen[d.CharacterName] = struct{}{}
		names = append(names, d.CharacterName)
	}
	return names
}
