package builder

import (
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/downloader"
	"github.com/shouni/go-storyboard-kit/pkg/router"
)

// AppContext は、アプリケーション実行に必要な共通コンテキストを保持する
// これを各Build関数に渡すことで、依存関係の注入を簡素化します。
type AppContext struct {
	Config     *config.Config         // Configは、環境変数から読み込まれたグローバルな設定です（アクセスキー、予算など）。
	Options    config.GenerateOptions // Optionsは、コマンドラインから渡された実行時の設定です。
	Router     *router.Router         // Routerは、予算と同時実行数を管理する生成リクエストの窓口です。
	Tracker    *consistency.Tracker   // Trackerは、キャラクターとシーンの一貫性参照です。
	Downloader *downloader.Downloader // Downloaderは、生成画像をローカルに保存します。
	Generator  *batch.Generator       // Generatorは、分镜全体のバッチ生成を行います。
}
