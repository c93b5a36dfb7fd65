package builder

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/downloader"
	"github.com/shouni/go-storyboard-kit/pkg/provider"
	"github.com/shouni/go-storyboard-kit/pkg/router"

	"github.com/shouni/go-http-kit/pkg/httpkit"
	"golang.org/x/time/rate"
)

// ErrNoProvider はアクセスキーが1組も設定されていないことを表すのだ。
var ErrNoProvider = errors.New("プロバイダのアクセスキーが1組も設定されていません（VOLCANO_* または ALIYUN_*）")

// NewAppContext は設定からアプリケーションの全コンポーネントを組み立てるのだ。
func NewAppContext(cfg *config.Config) (*AppContext, error) {
	clients, err := BuildProviderClients(cfg)
	if err != nil {
		return nil, err
	}
	r, err := BuildRouter(cfg, clients)
	if err != nil {
		return nil, err
	}

	projectDir := cfg.Options.ProjectDir
	if projectDir == "" {
		projectDir = config.DefaultProjectDir
	}
	tracker, err := consistency.NewTracker(consistency.NewFileStore(projectDir))
	if err != nil {
		return nil, fmt.Errorf("一貫性トラッカーの初期化に失敗しました: %w", err)
	}
	dl, err := BuildDownloader(cfg)
	if err != nil {
		return nil, err
	}

	gen, err := batch.New(r, tracker, projectDir, batch.WithDownloader(dl))
	if err != nil {
		return nil, fmt.Errorf("バッチジェネレーターの初期化に失敗しました: %w", err)
	}

	return &AppContext{
		Config:     cfg,
		Options:    cfg.Options,
		Router:     r,
		Tracker:    tracker,
		Downloader: dl,
		Generator:  gen,
	}, nil
}

// BuildProviderClients はアクセスキーが揃っているプロバイダのクライアントを作るのだ。
// タスク作成はプロバイダごとのリミッターで間隔を空けるのだよ。
func BuildProviderClients(cfg *config.Config) ([]provider.Client, error) {
	timeout := cfg.Options.HTTPTimeout
	if timeout <= 0 {
		timeout = provider.DefaultHTTPTimeout
	}

	var clients []provider.Client
	if cfg.HasAliyun() {
		c, err := provider.NewAliyunClient(provider.AliyunConfig{
			Credentials: provider.Credentials{AccessKeyID: cfg.AliyunAccessKeyID, AccessKeySecret: cfg.AliyunAccessKeySecret},
			Endpoint:    cfg.AliyunEndpoint,
		}, clientOptions(cfg.RateInterval, timeout)...)
		if err != nil {
			return nil, fmt.Errorf("通義万相クライアントの初期化に失敗しました: %w", err)
		}
		clients = append(clients, c)
	}
	if cfg.HasVolcano() {
		c, err := provider.NewVolcanoClient(provider.VolcanoConfig{
			Credentials: provider.Credentials{AccessKeyID: cfg.VolcanoAccessKeyID, AccessKeySecret: cfg.VolcanoAccessKeySecret},
			Region:      cfg.VolcanoRegion,
		}, clientOptions(cfg.RateInterval, timeout)...)
		if err != nil {
			return nil, fmt.Errorf("火山引擎クライアントの初期化に失敗しました: %w", err)
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return nil, ErrNoProvider
	}
	return clients, nil
}

func clientOptions(interval, timeout time.Duration) []provider.Option {
	opts := []provider.Option{provider.WithTimeout(timeout)}
	if interval > 0 {
		opts = append(opts, provider.WithRateLimiter(rate.NewLimiter(rate.Every(interval), 2)))
	}
	return opts
}

// BuildRouter は予算と同時実行数を設定したルーターを作るのだ。
func BuildRouter(cfg *config.Config, clients []provider.Client) (*router.Router, error) {
	r, err := router.New(clients,
		router.WithMaxDailyCost(cfg.MaxDailyCost),
		router.WithMaxConcurrent(cfg.MaxConcurrent))
	if err != nil {
		return nil, fmt.Errorf("ルーターの初期化に失敗しました: %w", err)
	}
	slog.Info("ルーターを初期化したのだ",
		"providers", len(clients),
		"max_daily_cost", cfg.MaxDailyCost,
		"max_concurrent", cfg.MaxConcurrent)
	return r, nil
}

// BuildDownloader は httpkit のクライアントで画像を取得するダウンローダーを作るのだ。
func BuildDownloader(cfg *config.Config) (*downloader.Downloader, error) {
	timeout := cfg.Options.HTTPTimeout
	if timeout <= 0 {
		timeout = config.DefaultHTTPTimeout
	}
	var httpClient httpkit.ClientInterface = httpkit.New(timeout)
	dl, err := downloader.New(httpClient)
	if err != nil {
		return nil, fmt.Errorf("ダウンローダーの初期化に失敗しました: %w", err)
	}
	return dl, nil
}
