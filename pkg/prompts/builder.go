package prompts

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Options はプロンプト構築の切り替えスイッチなのだ。
type Options struct {
	Workspace             domain.WorkspaceType
	IncludeNegative       bool
	UseCharacterReference bool
	UseSceneReference     bool
	StylePreset           string
	EnhanceQuality        bool
}

// Metadata は構築したプロンプトの出どころです。
type Metadata struct {
	CharacterIDs []string             `json:"character_ids,omitempty"`
	SceneID      string               `json:"scene_id,omitempty"`
	ShotNumber   int                  `json:"shot_number"`
	Workspace    domain.WorkspaceType `json:"workspace"`
}

// Built は正負のプロンプトとメタデータの組なのだ。
type Built struct {
	Positive string   `json:"positive"`
	Negative string   `json:"negative"`
	Metadata Metadata `json:"metadata"`
}

// Builder は固定の語順でプロンプトを組み立てるのだ。状態を持たないので並行に使えるのだよ。
type Builder struct{}

// NewBuilder は Builder を生成します。
func NewBuilder() *Builder {
	return &Builder{}
}

// BuildForShot はショット1つ分のプロンプトを構築するのだ。
// 同じ入力からは常に同じ文字列が得られるのだよ。
func (b *Builder) BuildForShot(
	shot domain.Shot,
	scene domain.Scene,
	characters []domain.Character,
	opts Options,
	charRefs map[string]*domain.CharacterReference,
	sceneRef *domain.SceneReference,
) Built {
	quality := QualityTagsHigh
	if opts.EnhanceQuality {
		quality = QualityTagsUltra
	}

	parts := []string{
		quality,
		workspaceStyles[opts.Workspace],
		cameraClause(shot),
		sceneClause(scene, sceneRef, opts.UseSceneReference),
	}
	if len(characters) > 0 {
		parts = append(parts, charactersClause(characters, charRefs, opts.UseCharacterReference))
	}
	parts = append(parts, shot.Content)
	if shot.Mood != nil {
		parts = append(parts, moodClause(*shot.Mood))
	}
	parts = append(parts, effectsClause(shot), opts.StylePreset)

	ids := make([]string, len(characters))
	for i, c := range characters {
		ids[i] = c.ID
	}

	var negative string
	if opts.IncludeNegative {
		negative = NegativeFor(opts.Workspace)
	}

	return Built{
		Positive: joinClauses(parts),
		Negative: negative,
		Metadata: Metadata{
			CharacterIDs: ids,
			SceneID:      scene.ID,
			ShotNumber:   shot.ShotNumber,
			Workspace:    opts.Workspace,
		},
	}
}

// NegativeFor は共通の除外タグにワークスペース固有のものを足して返すのだ。
func NegativeFor(w domain.WorkspaceType) string {
	return joinClauses([]string{NegativeBase, workspaceNegatives[w]})
}

// joinClauses は空の句を落として ", " で連結するのだ。
func joinClauses(parts []string) string {
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			clean = append(clean, s)
		}
	}
	return strings.Join(clean, ", ")
}

// cameraClause は景別・アングル・運鏡の句なのだ。表に無い景別とアングルはそのまま通すのだよ。
func cameraClause(shot domain.Shot) string {
	shotType, ok := shotTypeTags[shot.ShotType]
	if !ok {
		shotType = string(shot.ShotType)
	}
	angle, ok := angleTags[shot.CameraAngle]
	if !ok {
		angle = string(shot.CameraAngle)
	}

	parts := []string{shotType, angle}
	if m := shot.CameraMovement; m != nil && m.Type != domain.MovementStatic {
		parts = append(parts, movementTags[m.Type])
	}
	return joinClauses(parts)
}

func sceneClause(scene domain.Scene, ref *domain.SceneReference, useRef bool) string {
	if useRef && ref != nil {
		l := ref.LightingParams
		parts := []string{ref.CoreDescription, fmt.Sprintf("%s, %s lighting", l.TimeOfDay, l.LightDirection)}
		if l.Mood != "" {
			parts = append(parts, l.Mood+" atmosphere")
		}
		return joinClauses(parts)
	}

	parts := []string{scene.Location, scene.Time, scene.Weather}
	if scene.Atmosphere != "" {
		parts = append(parts, scene.Atmosphere+" atmosphere")
	}
	if len(scene.ColorScheme) > 0 {
		parts = append(parts, "color palette: "+strings.Join(scene.ColorScheme, ", "))
	}
	return joinClauses(parts)
}

func charactersClause(chars []domain.Character, refs map[string]*domain.CharacterReference, useRef bool) string {
	out := make([]string, 0, len(chars))
	for _, c := range chars {
		out = append(out, characterClause(c, refs[c.ID], useRef))
	}
	return strings.Join(out, "; ")
}

// characterClause は参照があれば確定済みの特徴を、無ければ生の外見情報を使うのだ。
func characterClause(c domain.Character, ref *domain.CharacterReference, useRef bool) string {
	if useRef && ref != nil {
		return ref.CoreFeatures
	}

	parts := []string{c.Name}
	if c.Age > 0 {
		parts = append(parts, strconv.Itoa(c.Age)+" years old")
	}
	if a := c.Appearance; a != nil {
		if len(a.Hair) > 0 {
			parts = append(parts, strings.Join(a.Hair, " "))
		}
		if len(a.Clothing) > 0 {
			parts = append(parts, "wearing "+strings.Join(a.Clothing, ", "))
		}
		if len(a.DistinctiveFeatures) > 0 {
			parts = append(parts, strings.Join(a.DistinctiveFeatures, ", "))
		}
	}
	return joinClauses(parts)
}

func moodClause(m domain.Mood) string {
	return joinClauses([]string{
		m.Emotion + " emotion",
		m.Atmosphere + " atmosphere",
		rhythmTags[m.Rhythm],
	})
}

// effectsClause は絵にできる効果音と、動態漫画の VFX 指定を句にするのだ。
func effectsClause(shot domain.Shot) string {
	var parts []string
	if shot.Effects != nil {
		for _, se := range shot.Effects.SoundEffects {
			if v := soundToVisual(se); v != "" {
				parts = append(parts, v)
			}
		}
	}
	if f, ok := shot.WorkspaceFields.(domain.DynamicMangaFields); ok && f.VFX != nil {
		parts = append(parts, vfxClause(*f.VFX)...)
	}
	return joinClauses(parts)
}

func soundToVisual(se string) string {
	for _, sv := range soundVisuals {
		if strings.Contains(se, sv.keyword) {
			return sv.visual
		}
	}
	return ""
}

func vfxClause(v domain.VFXParams) []string {
	var parts []string
	if p := v.ParticleSystem; p != nil && p.Type != "" {
		parts = append(parts, strings.TrimSpace(p.Color+" "+p.Type+" particles"))
	}
	if g := v.Glow; g != nil && g.Intensity > 0 {
		parts = append(parts, "glowing aura")
	}
	if m := v.MotionBlur; m != nil && m.Samples > 0 {
		parts = append(parts, "motion blur")
	}
	return parts
}
