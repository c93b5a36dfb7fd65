package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/downloader"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/quality"
	"github.com/shouni/go-storyboard-kit/pkg/router"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	outputDirName = "output"
	imagesDirName = "images"
	promptDirName = "prompts"
)

// ImageRouter は生成リクエストの窓口です。*router.Router が満たすのだ。
type ImageRouter interface {
	Generate(ctx context.Context, req domain.GenerationRequest) (*router.GenerationResponse, error)
	CostStats() router.CostStats
}

// queueReporter はワーカープールの容量を公開するルーターです。*router.Router が満たすのだ。
type queueReporter interface {
	QueueStatus() router.QueueStatus
}

// ImageDownloader は生成画像をローカルに保存する契約です。*downloader.Downloader が満たすのだ。
type ImageDownloader interface {
	Download(ctx context.Context, img domain.GeneratedImage, opts downloader.Options) (*downloader.Result, error)
}

// Input は1回のバッチ実行の入力なのだ。
type Input struct {
	Storyboard *domain.Storyboard
	Roster     *domain.Roster
	Config     domain.BatchConfig
}

// Option は Generator の設定を差し替える関数オプションなのだ。
type Option func(*Generator)

// WithDownloader はダウンロードに使う実装を設定するのだ。Config.Download が true のときだけ使うのだよ。
func WithDownloader(d ImageDownloader) Option {
	return func(g *Generator) { g.downloader = d }
}

// WithScorer は画像の評価器を差し替えるのだ。
func WithScorer(s quality.Scorer) Option {
	return func(g *Generator) { g.scorer = s }
}

// WithOutputDir は画像の保存先を差し替えるのだ。既定は <project>/output/images なのだ。
func WithOutputDir(dir string) Option {
	return func(g *Generator) { g.outputDir = dir }
}

// WithClock は時計を差し替えるのだ。
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// WithLogger はロガーを設定するのだ。
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// Generator は分镜の全ショットについて画像を生成し、結果を集計するのだ。
// ショットは順番に処理し、1ショット内のバリエーションだけを並行に依頼するのだよ。
type Generator struct {
	router     ImageRouter
	tracker    *consistency.Tracker
	prompts    *prompts.Builder
	scorer     quality.Scorer
	downloader ImageDownloader

	projectDir string
	outputDir  string
	now        func() time.Time
	logger     *slog.Logger
}

// New は Generator を初期化するのだ。
func New(r ImageRouter, tracker *consistency.Tracker, projectDir string, opts ...Option) (*Generator, error) {
	if r == nil {
		return nil, errors.New("router は必須です")
	}
	if tracker == nil {
		return nil, errors.New("tracker は必須です")
	}
	if projectDir == "" {
		return nil, errors.New("プロジェクトディレクトリが指定されていません")
	}
	g := &Generator{
		router:     r,
		tracker:    tracker,
		prompts:    prompts.NewBuilder(),
		scorer:     quality.NewHeuristicChecker(quality.DefaultOptions()),
		projectDir: projectDir,
		outputDir:  filepath.Join(projectDir, outputDirName, imagesDirName),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Prepare は永続化済みの参照を読み込み、ロスターと追加のシーンのうち参照の無いものを作るのだ。
func (g *Generator) Prepare(ctx context.Context, roster *domain.Roster, extraScenes ...domain.Scene) error {
	if roster == nil {
		roster = &domain.Roster{}
	}
	if err := g.tracker.Initialize(ctx); err != nil {
		return err
	}
	if err := g.tracker.InitializeCharacters(ctx, roster.Characters); err != nil {
		return err
	}
	scenes := append(append([]domain.Scene(nil), roster.Scenes...), extraScenes...)
	return g.tracker.InitializeScenes(ctx, scenes)
}

// shotOutcome は1ショット分の生成結果です。
type shotOutcome struct {
	images []domain.GeneratedImage
	best   *domain.GeneratedImage
	scores map[string]quality.Result // URL ごと
}

// Run はバッチ全体を実行し、レポートを書き出して結果を返すのだ。
// 個々のショットの失敗は結果に記録するだけで、エラーとしては返さないのだよ。
func (g *Generator) Run(ctx context.Context, in Input) (*domain.BatchResult, error) {
	if in.Storyboard == nil {
		return nil, errors.New("分镜が指定されていません")
	}
	if in.Roster == nil {
		in.Roster = &domain.Roster{}
	}
	cfg := in.Config
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("バッチ設定が不正です: %w", err)
	}

	started := g.now()

	// 1. 出力ディレクトリ
	if err := os.MkdirAll(g.outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	// 2. 一貫性参照の準備
	items, synthesized := collectShots(in.Storyboard, in.Roster)
	if err := g.Prepare(ctx, in.Roster, synthesized...); err != nil {
		return nil, err
	}

	g.logger.Info("バッチ生成を開始するのだ",
		"title", in.Storyboard.Metadata.Title,
		"shots", len(items),
		"provider", cfg.Provider,
		"quality", cfg.Quality,
		"variants", cfg.VariantsPerShot)
	g.warnIfRouterCapped(cfg)

	result := &domain.BatchResult{
		RunID:      uuid.NewString(),
		StartedAt:  started,
		TotalShots: len(items),
		Images:     make(map[string][]domain.GeneratedImage),
		BestImages: make(map[string]domain.GeneratedImage),
	}
	var bests []scoredImage

	// 3. ショットを順番に処理
	for n, item := range items {
		if err := ctx.Err(); err != nil {
			result.Aborted = true
			break
		}

		logger := g.logger.With("shot", item.key, "progress", fmt.Sprintf("%d/%d", n+1, len(items)))
		var (
			out shotOutcome
			err = item.err
		)
		if err == nil {
			out, err = g.generateShot(ctx, item, in.Storyboard.Metadata.Workspace, in.Roster, cfg)
		}

		// 失敗したショットでも完了したバリエーションの費用は計上するのだ
		for _, img := range out.images {
			result.TotalCost += img.Metadata.Cost
		}

		if err != nil {
			// 失敗したショットでも完了した画像は残すのだ。ベスト画像には選ばないのだよ
			if len(out.images) > 0 {
				result.Images[item.key] = out.images
				result.TotalImages += len(out.images)
			}
			result.Failed++
			result.Failures = append(result.Failures, domain.ShotFailure{ShotKey: item.key, Error: err.Error()})
			logger.Warn("ショットの生成に失敗したのだ", "error", err, "images", len(out.images))
			if !cfg.ContinueOnFailure {
				result.Aborted = true
				break
			}
			continue
		}

		result.Images[item.key] = out.images
		result.TotalImages += len(out.images)
		result.Successful++
		if out.best != nil {
			result.BestImages[item.key] = *out.best
			bests = append(bests, scoredImage{img: *out.best, res: out.scores[out.best.URL]})
		}
		logger.Info("ショットの生成が完了したのだ", "images", len(out.images), "total_cost", result.TotalCost)
	}

	result.Consistency = summarizeConsistency(bests)
	result.FinishedAt = g.now()
	result.TotalTime = result.FinishedAt.Sub(started)

	// 4. レポート
	if err := WriteReports(filepath.Join(g.projectDir, outputDirName), result, g.router.CostStats()); err != nil {
		return result, err
	}

	g.logger.Info("バッチ生成が完了したのだ",
		"successful", result.Successful,
		"failed", result.Failed,
		"total_cost", result.TotalCost,
		"elapsed", result.TotalTime.Round(time.Millisecond))

	if result.Aborted {
		if err := ctx.Err(); err != nil {
			return result, err
		}
	}
	return result, nil
}

// warnIfRouterCapped はショット内の並列数がルーターの容量を超えるときに警告するのだ。
// 超えた分はルーターの待ち行列に並ぶだけで、エラーにはしないのだよ。
func (g *Generator) warnIfRouterCapped(cfg domain.BatchConfig) {
	qr, ok := g.router.(queueReporter)
	if !ok {
		return
	}
	capacity := qr.QueueStatus().Capacity
	parallel := cfg.VariantsPerShot
	if cfg.ConcurrentLimit > 0 && cfg.ConcurrentLimit < parallel {
		parallel = cfg.ConcurrentLimit
	}
	if capacity > 0 && parallel > capacity {
		g.logger.Warn("ショット内の並列数がルーターの同時実行数を超えているので、超過分は待たされるのだ",
			"concurrent_limit", cfg.ConcurrentLimit,
			"variants", cfg.VariantsPerShot,
			"router_capacity", capacity)
	}
}

// generateShot は1ショット分のバリエーションを生成し、保存・評価・記録まで行うのだ。
// エラー時も完了した画像は返すのだよ。
func (g *Generator) generateShot(ctx context.Context, item shotItem, workspace domain.WorkspaceType, roster *domain.Roster, cfg domain.BatchConfig) (shotOutcome, error) {
	// 1. 登場人物と参照の解決
	chars := roster.CharactersInShot(item.shot)
	charRefs := make(map[string]*domain.CharacterReference, len(chars))
	for _, c := range chars {
		if ref, ok := g.tracker.CharacterReference(c.ID); ok {
			charRefs[c.ID] = ref
		}
	}
	sceneRef, _ := g.tracker.SceneReference(item.scene.ID)

	// 2. プロンプト構築
	built := g.prompts.BuildForShot(item.shot, item.scene, chars, prompts.Options{
		Workspace:             workspace,
		IncludeNegative:       true,
		UseCharacterReference: true,
		UseSceneReference:     true,
		StylePreset:           cfg.StylePreset,
		EnhanceQuality:        cfg.Quality == domain.QualityUltra,
	}, charRefs, sceneRef)

	if cfg.SavePrompts {
		if err := g.savePrompt(item, built); err != nil {
			g.logger.Warn("プロンプトの保存に失敗したのだ", "shot", item.key, "error", err)
		}
	}

	// 3. バリエーションを並行に依頼
	// 一部が失敗しても完了分は保存・記録してからエラーを返すのだ
	images, reqErr := g.requestVariants(ctx, item, built, chars, cfg)
	out := shotOutcome{images: images}
	if len(images) == 0 {
		if reqErr != nil {
			return out, reqErr
		}
		return out, errors.New("画像が1枚も生成されませんでした")
	}

	// 4. 保存
	if cfg.Download && g.downloader != nil {
		g.download(ctx, item.key, images, cfg)
	}

	// 5. 評価と参照への記録
	// 生成済みの結果はキャンセル後も記録しきるのだ
	recordCtx := context.WithoutCancel(ctx)
	out.scores = make(map[string]quality.Result, len(images))
	for _, img := range images {
		res := g.scorer.CheckImage(img)
		out.scores[img.URL] = res
		for _, c := range chars {
			if err := g.tracker.RecordCharacterGeneration(recordCtx, c.ID, img, res.OverallScore); err != nil {
				return out, errors.Join(reqErr, err)
			}
		}
		if err := g.tracker.RecordSceneGeneration(recordCtx, item.scene.ID, img, res.OverallScore); err != nil {
			return out, errors.Join(reqErr, err)
		}
	}

	if reqErr != nil {
		return out, reqErr
	}
	if best, _, ok := quality.SelectBest(g.scorer, images); ok {
		out.best = &best
	}
	return out, nil
}

// requestVariants は VariantsPerShot 枚をルーター経由で並行に生成するのだ。
// 兄弟の失敗で他のリクエストは中断しないので、成功した分は常に返るのだよ。
func (g *Generator) requestVariants(ctx context.Context, item shotItem, built prompts.Built, chars []domain.Character, cfg domain.BatchConfig) ([]domain.GeneratedImage, error) {
	n := cfg.VariantsPerShot
	seeds := g.seedsFor(item, chars, cfg, n)
	slots := make([]*domain.GeneratedImage, n)

	var characterID string
	if len(chars) > 0 {
		characterID = chars[0].ID
	}

	var (
		mu   sync.Mutex
		errs []error
		eg   errgroup.Group
	)
	if cfg.ConcurrentLimit > 0 {
		eg.SetLimit(cfg.ConcurrentLimit)
	}
	for i := 0; i < n; i++ {
		eg.Go(func() error {
			resp, err := g.router.Generate(ctx, domain.GenerationRequest{
				Prompt:         built.Positive,
				NegativePrompt: built.Negative,
				Provider:       cfg.Provider,
				Quality:        cfg.Quality,
				Count:          1,
				Seed:           seeds[i],
			})
			if err == nil && len(resp.Images) == 0 {
				err = errors.New("レスポンスに画像が含まれていません")
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("バリエーション %d: %w", i+1, err))
				mu.Unlock()
				return nil
			}

			first := resp.Images[0]
			slots[i] = &domain.GeneratedImage{
				URL:    first.URL,
				Seed:   first.Seed,
				Prompt: built.Positive,
				Metadata: domain.ImageMetadata{
					ShotID:         item.key,
					CharacterID:    characterID,
					SceneID:        item.scene.ID,
					Provider:       resp.Provider,
					GeneratedAt:    g.now(),
					Cost:           resp.Cost,
					GenerationTime: resp.GenerationTime,
				},
			}
			return nil
		})
	}
	_ = eg.Wait()

	images := make([]domain.GeneratedImage, 0, n)
	for _, s := range slots {
		if s != nil {
			images = append(images, *s)
		}
	}
	return images, errors.Join(errs...)
}

// seedsFor は各バリエーションのシードを決めるのだ。nil はプロバイダ側で乱数を使うことを意味するのだよ。
// ReuseSeeds なら実績のあるシードを先頭から割り当て、残りは DeterministicSeeds のときだけ名前から導出するのだ。
func (g *Generator) seedsFor(item shotItem, chars []domain.Character, cfg domain.BatchConfig, n int) []*int64 {
	seeds := make([]*int64, n)
	if cfg.ReuseSeeds {
		var known []int64
		if len(chars) > 0 {
			known = g.tracker.BestSeedsForCharacter(chars[0].ID, n)
		}
		if len(known) == 0 {
			known = g.tracker.BestSeedsForScene(item.scene.ID, n)
		}
		for i := 0; i < n && i < len(known); i++ {
			seeds[i] = &known[i]
		}
	}
	if cfg.DeterministicSeeds {
		for i := range seeds {
			if seeds[i] == nil {
				s := domain.GetSeedFromName(fmt.Sprintf("%s#%d", item.key, i+1))
				seeds[i] = &s
			}
		}
	}
	return seeds
}

// download はショットキーのサブディレクトリに保存し、LocalPath を埋めるのだ。失敗は警告に留めるのだよ。
func (g *Generator) download(ctx context.Context, key string, images []domain.GeneratedImage, cfg domain.BatchConfig) {
	opts := downloader.Options{
		OutputDir: filepath.Join(g.outputDir, key),
		Format:    downloader.Format(cfg.DownloadFormat),
	}
	for i := range images {
		res, err := g.downloader.Download(ctx, images[i], opts)
		if err != nil {
			g.logger.Warn("画像のダウンロードに失敗したのだ", "shot", key, "url", images[i].URL, "error", err)
			continue
		}
		images[i].LocalPath = res.LocalPath
	}
}

// savePrompt は <project>/output/prompts/<shot key>.json に書き出すのだ。
// ショットキーは分镜の中で一意なのだ。
func (g *Generator) savePrompt(item shotItem, built prompts.Built) error {
	dir := filepath.Join(g.projectDir, outputDirName, promptDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(built, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, item.key+".json"), data, 0o644)
}

type scoredImage struct {
	img domain.GeneratedImage
	res quality.Result
}

// summarizeConsistency は各ショットのベスト画像の一貫性スコアを平均するのだ。
// 参照 ID を持たない画像はそれぞれの平均から外すのだよ。
func summarizeConsistency(bests []scoredImage) domain.ConsistencySummary {
	var (
		charSum, sceneSum float64
		charN, sceneN     int
	)
	for _, b := range bests {
		cs := b.res.Consistency
		if cs == nil {
			continue
		}
		if b.img.Metadata.CharacterID != "" {
			charSum += cs.CharacterAppearance
			charN++
		}
		if b.img.Metadata.SceneID != "" {
			sceneSum += cs.SceneLayout
			sceneN++
		}
	}
	var s domain.ConsistencySummary
	if charN > 0 {
		s.Character = charSum / float64(charN)
	}
	if sceneN > 0 {
		s.Scene = sceneSum / float64(sceneN)
	}
	return s
}
