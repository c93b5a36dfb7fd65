package batch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/downloader"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/quality"
)

const sheetsDirName = "sheets"

// SheetResult は設定画1枚の生成結果です。
type SheetResult struct {
	Image   domain.GeneratedImage
	Quality quality.Result
}

// GenerateCharacterSheet はキャラクター設定画を1枚生成し、参照に記録するのだ。
// 高評価ならシードが参照に昇格し、以降のショットで再利用されるのだよ。Prepare 済みであること。
func (g *Generator) GenerateCharacterSheet(ctx context.Context, c domain.Character, view prompts.SheetView, workspace domain.WorkspaceType, cfg domain.BatchConfig) (*SheetResult, error) {
	if _, ok := g.tracker.CharacterReference(c.ID); !ok {
		return nil, fmt.Errorf("キャラクター %s は未初期化です", c.ID)
	}
	built := g.prompts.BuildForCharacterSheet(c, view, prompts.Options{Workspace: workspace})

	var seed *int64
	if cfg.ReuseSeeds {
		if best := g.tracker.BestSeedsForCharacter(c.ID, 1); len(best) > 0 {
			seed = &best[0]
		}
	}
	if seed == nil && cfg.DeterministicSeeds {
		s := domain.GetSeedFromName(c.ID)
		seed = &s
	}

	key := fmt.Sprintf("sheet_%s_%s", c.ID, view)
	img, err := g.generateOne(ctx, key, built, seed, cfg, domain.ImageMetadata{CharacterID: c.ID})
	if err != nil {
		return nil, err
	}

	res := g.scorer.CheckImage(img)
	if err := g.tracker.RecordCharacterGeneration(context.WithoutCancel(ctx), c.ID, img, res.OverallScore); err != nil {
		return nil, err
	}
	return &SheetResult{Image: img, Quality: res}, nil
}

// GenerateSceneSheet は人物を含まない背景設定画を1枚生成し、シーン参照に記録するのだ。
func (g *Generator) GenerateSceneSheet(ctx context.Context, s domain.Scene, workspace domain.WorkspaceType, cfg domain.BatchConfig) (*SheetResult, error) {
	ref, ok := g.tracker.SceneReference(s.ID)
	if !ok {
		return nil, fmt.Errorf("シーン %s は未初期化です", s.ID)
	}
	built := g.prompts.BuildForSceneSheet(s, prompts.Options{Workspace: workspace}, ref)

	var seed *int64
	if cfg.ReuseSeeds {
		if best := g.tracker.BestSeedsForScene(s.ID, 1); len(best) > 0 {
			seed = &best[0]
		}
	}
	if seed == nil && cfg.DeterministicSeeds {
		v := domain.GetSeedFromName(s.ID)
		seed = &v
	}

	key := fmt.Sprintf("sheet_%s", s.ID)
	img, err := g.generateOne(ctx, key, built, seed, cfg, domain.ImageMetadata{SceneID: s.ID})
	if err != nil {
		return nil, err
	}

	res := g.scorer.CheckImage(img)
	if err := g.tracker.RecordSceneGeneration(context.WithoutCancel(ctx), s.ID, img, res.OverallScore); err != nil {
		return nil, err
	}
	return &SheetResult{Image: img, Quality: res}, nil
}

// generateOne は1枚をルーター経由で生成し、必要なら sheets ディレクトリに保存するのだ。
func (g *Generator) generateOne(ctx context.Context, key string, built prompts.Built, seed *int64, cfg domain.BatchConfig, meta domain.ImageMetadata) (domain.GeneratedImage, error) {
	resp, err := g.router.Generate(ctx, domain.GenerationRequest{
		Prompt:         built.Positive,
		NegativePrompt: built.Negative,
		Provider:       cfg.Provider,
		Quality:        cfg.Quality,
		Count:          1,
		Seed:           seed,
	})
	if err != nil {
		return domain.GeneratedImage{}, err
	}
	if len(resp.Images) == 0 {
		return domain.GeneratedImage{}, errors.New("レスポンスに画像が含まれていません")
	}

	meta.ShotID = key
	meta.Provider = resp.Provider
	meta.GeneratedAt = g.now()
	meta.Cost = resp.Cost
	meta.GenerationTime = resp.GenerationTime
	img := domain.GeneratedImage{
		URL:      resp.Images[0].URL,
		Seed:     resp.Images[0].Seed,
		Prompt:   built.Positive,
		Metadata: meta,
	}

	if cfg.Download && g.downloader != nil {
		res, err := g.downloader.Download(ctx, img, downloader.Options{
			OutputDir: filepath.Join(g.outputDir, sheetsDirName),
			Format:    downloader.Format(cfg.DownloadFormat),
		})
		if err != nil {
			g.logger.Warn("設定画のダウンロードに失敗したのだ", "key", key, "error", err)
		} else {
			img.LocalPath = res.LocalPath
		}
	}
	return img, nil
}
