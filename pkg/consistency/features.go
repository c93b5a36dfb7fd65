package consistency

import (
	"strconv"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	defaultTimeOfDay      = "白天"
	defaultLightDirection = "natural"
	defaultLightingMood   = "neutral"
)

// coreFeatures はキャラクターの不変の特徴を "; " 区切りで要約するのだ。
func coreFeatures(c domain.Character) string {
	age := "unknown age"
	if c.Age > 0 {
		age = strconv.Itoa(c.Age)
	}
	parts := []string{c.Name + ", " + age}
	if c.Role != "" {
		parts = append(parts, c.Role)
	}
	if a := c.Appearance; a != nil {
		if len(a.Hair) > 0 {
			parts = append(parts, "hair: "+strings.Join(a.Hair, ", "))
		}
		if len(a.Clothing) > 0 {
			parts = append(parts, "clothing: "+strings.Join(a.Clothing, ", "))
		}
		if len(a.DistinctiveFeatures) > 0 {
			parts = append(parts, "features: "+strings.Join(a.DistinctiveFeatures, ", "))
		}
	}
	if c.Personality != "" {
		parts = append(parts, "personality: "+c.Personality)
	}
	return strings.Join(parts, "; ")
}

// sceneDescription はシーンの不変の描写を ", " 区切りで要約するのだ。
func sceneDescription(s domain.Scene) string {
	var parts []string
	for _, p := range []string{s.Location, s.Time, s.Weather, s.Atmosphere} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(s.ColorScheme) > 0 {
		parts = append(parts, "colors: "+strings.Join(s.ColorScheme, ", "))
	}
	return strings.Join(parts, ", ")
}

func newCharacterReference(c domain.Character) *domain.CharacterReference {
	return &domain.CharacterReference{
		CharacterID:       c.ID,
		CharacterName:     c.Name,
		CoreFeatures:      coreFeatures(c),
		ReferenceImages:   []string{},
		SuccessfulSeeds:   []int64{},
		StyleParams:       domain.StyleParams{StylePreset: domain.DefaultStylePreset},
		GenerationHistory: []domain.HistoryEntry{},
	}
}

func newSceneReference(s domain.Scene) *domain.SceneReference {
	lighting := domain.LightingParams{
		TimeOfDay:      s.Time,
		LightDirection: defaultLightDirection,
		Mood:           s.Atmosphere,
	}
	if lighting.TimeOfDay == "" {
		lighting.TimeOfDay = defaultTimeOfDay
	}
	if lighting.Mood == "" {
		lighting.Mood = defaultLightingMood
	}
	return &domain.SceneReference{
		SceneID:           s.ID,
		SceneName:         s.Name,
		CoreDescription:   sceneDescription(s),
		ReferenceImages:   []string{},
		SuccessfulSeeds:   []int64{},
		LightingParams:    lighting,
		GenerationHistory: []domain.HistoryEntry{},
	}
}
