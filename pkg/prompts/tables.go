package prompts

import "github.com/shouni/go-storyboard-kit/pkg/domain"

const (
	// QualityTagsStandard から QualityTagsUltra は先頭に置く品質タグなのだ。
	QualityTagsStandard = "high quality, detailed"
	QualityTagsHigh     = "masterpiece, best quality, highly detailed, sharp focus"
	QualityTagsUltra    = "masterpiece, best quality, ultra detailed, 8k, professional, sharp focus, vivid colors"

	// NegativeBase は全ワークスペース共通の除外タグです。
	NegativeBase = "low quality, blurry, distorted, deformed, ugly, bad anatomy, bad proportions, extra limbs, watermark, text, signature"

	CharacterSheetTags = "character reference sheet, white background, multiple views"
	SceneSheetTags     = "environment concept art, detailed background, no characters"
	sceneSheetNegative = "people, characters"
)

var workspaceStyles = map[domain.WorkspaceType]string{
	domain.WorkspaceManga:        "manga style, black and white lineart, screentone, japanese comic",
	domain.WorkspaceShortVideo:   "cinematic, modern, vibrant colors, social media ready",
	domain.WorkspaceDynamicManga: "dynamic manga, motion lines, dramatic angle, action scene",
}

var workspaceNegatives = map[domain.WorkspaceType]string{
	domain.WorkspaceManga:        "color, colored, photorealistic",
	domain.WorkspaceShortVideo:   "monochrome, sketch, unfinished",
	domain.WorkspaceDynamicManga: "static, boring composition",
}

var shotTypeTags = map[domain.ShotType]string{
	domain.ShotExtremeLong:  "extreme long shot, wide angle",
	domain.ShotLong:         "long shot, full scene",
	domain.ShotMedium:       "medium shot",
	domain.ShotClose:        "close shot",
	domain.ShotCloseUp:      "close-up",
	domain.ShotExtremeClose: "extreme close-up",
}

var angleTags = map[domain.CameraAngle]string{
	domain.AngleEyeLevel: "eye level angle",
	domain.AngleHigh:     "high angle, looking down",
	domain.AngleLow:      "low angle, looking up",
	domain.AngleDutch:    "dutch angle, tilted",
	domain.AngleBirdsEye: "birds eye view, overhead",
	domain.AngleWormsEye: "worms eye view, ground level",
}

// movementTags に無い運鏡は句に含めないのだ。
var movementTags = map[string]string{
	"推":  "dolly in, zoom in",
	"拉":  "dolly out, zoom out",
	"摇":  "pan shot",
	"移":  "tracking shot",
	"跟":  "follow shot",
	"升":  "crane up",
	"降":  "crane down",
	"环绕": "orbit shot, rotating camera",
}

var rhythmTags = map[string]string{
	"慢节奏": "slow paced, calm",
	"中节奏": "moderate pace",
	"快节奏": "fast paced, intense",
}

// soundVisuals は効果音のうち絵にできるものの対応表なのだ。
// 部分一致で先頭から探すので順序に意味があるのだよ。
var soundVisuals = []struct {
	keyword string
	visual  string
}{
	{"爆炸", "explosion effects, debris flying"},
	{"闪电", "lightning effects, electric sparks"},
	{"火焰", "fire effects, flames"},
	{"水花", "water splash, splashing water"},
	{"烟雾", "smoke effects, fog"},
	{"光芒", "glowing light, radiant"},
}

// SheetView はキャラクター設定画の視点です。
type SheetView string

const (
	ViewFullBody SheetView = "full_body"
	ViewCloseUp  SheetView = "close_up"
	ViewSide     SheetView = "side_view"
)

var sheetViews = map[SheetView]string{
	ViewFullBody: "full body shot, standing pose, front view",
	ViewCloseUp:  "close up portrait, facial details, front view",
	ViewSide:     "side view, profile shot, full body",
}

// QualityTags は画質ティアに対応する品質タグを返すのだ。
func QualityTags(q domain.Quality) string {
	switch q {
	case domain.QualityUltra:
		return QualityTagsUltra
	case domain.QualityStandard:
		return QualityTagsStandard
	default:
		return QualityTagsHigh
	}
}
