package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// Execute は分镜とロスターを読み込み、バッチ生成を最後まで実行するのだ。
func Execute(ctx context.Context, cfg *config.Config) (*domain.BatchResult, error) {
	in, err := LoadInput(cfg.Options)
	if err != nil {
		return nil, err
	}

	appCtx, err := builder.NewAppContext(cfg)
	if err != nil {
		return nil, err
	}

	result, err := appCtx.Generator.Run(ctx, in)
	if err != nil {
		return result, fmt.Errorf("バッチ生成に失敗しました: %w", err)
	}

	slog.Info("バッチ生成の結果なのだ",
		"run_id", result.RunID,
		"successful", result.Successful,
		"failed", result.Failed,
		"images", result.TotalImages,
		"total_cost", result.TotalCost)
	return result, nil
}

// LoadInput はオプションのパスから分镜・ロスター・バッチ設定を読み込むのだ。
// 相対パスはプロジェクトディレクトリ基準で解決し、ロスターは無ければ空として扱うのだよ。
func LoadInput(opts config.GenerateOptions) (batch.Input, error) {
	projectDir := orDefault(opts.ProjectDir, config.DefaultProjectDir)

	sb, err := domain.LoadStoryboard(resolve(projectDir, orDefault(opts.StoryboardFile, config.DefaultStoryboardFile)))
	if err != nil {
		return batch.Input{}, err
	}

	roster, err := LoadRosterIfExists(resolve(projectDir, orDefault(opts.RosterFile, config.DefaultRosterFile)))
	if err != nil {
		return batch.Input{}, err
	}

	bc, err := loadBatchConfig(opts, projectDir)
	if err != nil {
		return batch.Input{}, err
	}
	return batch.Input{Storyboard: sb, Roster: roster, Config: bc}, nil
}

// loadBatchConfig は YAML の設定に CLI の上書きを重ねるのだ。
func loadBatchConfig(opts config.GenerateOptions, projectDir string) (domain.BatchConfig, error) {
	path := opts.BatchConfigFile
	if path != "" {
		path = resolve(projectDir, path)
	}
	bc, err := config.LoadBatchConfig(path)
	if err != nil {
		return bc, err
	}
	bc, err = opts.ApplyOverrides(bc)
	if err != nil {
		return bc, fmt.Errorf("バッチ設定が不正です: %w", err)
	}
	return bc, nil
}

// LoadRosterIfExists はファイルが無ければ空のロスターを返すのだ。
func LoadRosterIfExists(path string) (*domain.Roster, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		slog.Warn("ロスターが見つからないので空として扱うのだ", "path", path)
		return &domain.Roster{}, nil
	}
	return domain.LoadRoster(path)
}

func resolve(projectDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(projectDir, path)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
