package batch

import (
	"fmt"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

const (
	fallbackLocation = "默认位置"
	fallbackTime     = "白天"
)

// shotItem は平坦化した1ショット分の作業単位なのだ。
type shotItem struct {
	key        string
	shot       domain.Shot
	scene      domain.Scene
	sceneIndex int
	shotIndex  int
	// err が非 nil のショットは生成せずに失敗として記録するのだ。
	err error
}

// ShotKey は scene_<i+1>_shot_<j+1> 形式のキーを返すのだ。
func ShotKey(sceneIndex, shotIndex int) string {
	return fmt.Sprintf("scene_%d_shot_%d", sceneIndex+1, shotIndex+1)
}

// collectShots は分镜を出現順に平坦化するのだ。
// シーンはロスターから ID で引き、見つからなければ分镜の情報から合成するのだよ。
// 参照 ID に使えない scene_id のシーンは合成せず、そのショットに err を持たせるのだ。
func collectShots(sb *domain.Storyboard, roster *domain.Roster) ([]shotItem, []domain.Scene) {
	var (
		items       []shotItem
		synthesized []domain.Scene
	)
	for i, sbScene := range sb.Scenes {
		invalid := domain.ValidateReferenceID(sbScene.SceneID)
		scene, ok := roster.FindScene(sbScene.SceneID)
		if !ok {
			scene = domain.Scene{
				ID:       sbScene.SceneID,
				Name:     sbScene.SceneName,
				Location: fallbackLocation,
				Time:     fallbackTime,
			}
			if invalid == nil {
				synthesized = append(synthesized, scene)
			}
		}
		var itemErr error
		if invalid != nil {
			itemErr = fmt.Errorf("シーン[%d] の scene_id が不正です: %w", i, invalid)
		}
		for j, shot := range sbScene.Shots {
			items = append(items, shotItem{
				key:        ShotKey(i, j),
				shot:       shot,
				scene:      scene,
				sceneIndex: i,
				shotIndex:  j,
				err:        itemErr,
			})
		}
	}
	return items, synthesized
}
