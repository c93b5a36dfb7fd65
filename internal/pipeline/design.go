package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
)

// DesignRequest は設定画生成の対象です。
type DesignRequest struct {
	CharacterIDs []string
	SceneIDs     []string
	View         prompts.SheetView
	Workspace    domain.WorkspaceType
}

// SheetGenerator は設定画を生成する窓口です。*batch.Generator が満たすのだ。
type SheetGenerator interface {
	Prepare(ctx context.Context, roster *domain.Roster, extraScenes ...domain.Scene) error
	GenerateCharacterSheet(ctx context.Context, c domain.Character, view prompts.SheetView, workspace domain.WorkspaceType, cfg domain.BatchConfig) (*batch.SheetResult, error)
	GenerateSceneSheet(ctx context.Context, s domain.Scene, workspace domain.WorkspaceType, cfg domain.BatchConfig) (*batch.SheetResult, error)
}

// ExecuteDesign はロスターのキャラクターとシーンの設定画を生成し、良いシードを参照に登録するのだ。
func ExecuteDesign(ctx context.Context, cfg *config.Config, req DesignRequest) ([]batch.SheetResult, error) {
	in, err := loadDesignInput(cfg.Options)
	if err != nil {
		return nil, err
	}
	appCtx, err := builder.NewAppContext(cfg)
	if err != nil {
		return nil, err
	}
	return RunDesign(ctx, appCtx.Generator, in.Roster, in.Config, req)
}

func loadDesignInput(opts config.GenerateOptions) (batch.Input, error) {
	projectDir := orDefault(opts.ProjectDir, config.DefaultProjectDir)
	roster, err := domain.LoadRoster(resolve(projectDir, orDefault(opts.RosterFile, config.DefaultRosterFile)))
	if err != nil {
		return batch.Input{}, err
	}
	bc, err := loadBatchConfig(opts, projectDir)
	if err != nil {
		return batch.Input{}, err
	}
	return batch.Input{Roster: roster, Config: bc}, nil
}

// RunDesign は指定された ID を順に生成するのだ。ロスターに無い ID は警告して飛ばすのだよ。
func RunDesign(ctx context.Context, gen SheetGenerator, roster *domain.Roster, bc domain.BatchConfig, req DesignRequest) ([]batch.SheetResult, error) {
	if len(req.CharacterIDs) == 0 && len(req.SceneIDs) == 0 {
		return nil, errors.New("--chars か --scenes で最低1つの ID を指定してほしいのだ")
	}
	if !req.Workspace.Valid() {
		req.Workspace = domain.WorkspaceManga
	}
	if err := gen.Prepare(ctx, roster); err != nil {
		return nil, err
	}

	var results []batch.SheetResult
	for _, id := range req.CharacterIDs {
		c := roster.FindCharacter(id)
		if c == nil {
			slog.Warn("キャラクターが見つからないのだ", "char_id", id)
			continue
		}
		res, err := gen.GenerateCharacterSheet(ctx, *c, req.View, req.Workspace, bc)
		if err != nil {
			return results, fmt.Errorf("キャラクター %s の設定画の生成に失敗しました: %w", id, err)
		}
		slog.Info("キャラクター設定画を生成したのだ", "char_id", id, "seed", res.Image.Seed, "score", res.Quality.OverallScore)
		results = append(results, *res)
	}
	for _, id := range req.SceneIDs {
		s, ok := roster.FindScene(id)
		if !ok {
			slog.Warn("シーンが見つからないのだ", "scene_id", id)
			continue
		}
		res, err := gen.GenerateSceneSheet(ctx, s, req.Workspace, bc)
		if err != nil {
			return results, fmt.Errorf("シーン %s の設定画の生成に失敗しました: %w", id, err)
		}
		slog.Info("シーン設定画を生成したのだ", "scene_id", id, "seed", res.Image.Seed, "score", res.Quality.OverallScore)
		results = append(results, *res)
	}
	return results, nil
}
