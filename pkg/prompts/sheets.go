package prompts

import "github.com/shouni/go-storyboard-kit/pkg/domain"

// BuildForCharacterSheet はキャラクター設定画（白背景・多視点）のプロンプトを構築するのだ。
// 設定画は常に ultra の品質タグを使い、除外タグも必ず付けるのだよ。
func (b *Builder) BuildForCharacterSheet(c domain.Character, view SheetView, opts Options) Built {
	viewTags, ok := sheetViews[view]
	if !ok {
		viewTags = sheetViews[ViewFullBody]
	}

	return Built{
		Positive: joinClauses([]string{
			QualityTagsUltra,
			CharacterSheetTags,
			viewTags,
			characterClause(c, nil, false),
			c.DrawingPrompt,
		}),
		Negative: NegativeFor(opts.Workspace),
		Metadata: Metadata{
			CharacterIDs: []string{c.ID},
			Workspace:    opts.Workspace,
		},
	}
}

// BuildForSceneSheet は人物を含まない背景設定画のプロンプトを構築するのだ。
func (b *Builder) BuildForSceneSheet(s domain.Scene, opts Options, ref *domain.SceneReference) Built {
	return Built{
		Positive: joinClauses([]string{
			QualityTagsUltra,
			SceneSheetTags,
			sceneClause(s, ref, true),
			s.DrawingPrompt,
		}),
		Negative: joinClauses([]string{NegativeFor(opts.Workspace), sceneSheetNegative}),
		Metadata: Metadata{
			SceneID:   s.ID,
			Workspace: opts.Workspace,
		},
	}
}
