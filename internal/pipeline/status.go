package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/shouni/go-storyboard-kit/internal/builder"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/downloader"
	"github.com/shouni/go-storyboard-kit/pkg/router"
)

const bestSeedsShown = 3

// ExecuteProviderCheck は設定済みの全プロバイダへ疎通確認を行い、予算の状況と合わせて表示するのだ。
// 1つでも失敗したプロバイダがあればエラーを返すのだよ。
func ExecuteProviderCheck(ctx context.Context, cfg *config.Config, w io.Writer) error {
	clients, err := builder.BuildProviderClients(cfg)
	if err != nil {
		return err
	}
	r, err := builder.BuildRouter(cfg, clients)
	if err != nil {
		return err
	}
	results := r.TestProviders(ctx)
	WriteProviderStatus(w, results, r.CostStats(), r.QueueStatus())

	var failed []string
	for p, err := range results {
		if err != nil {
			failed = append(failed, string(p))
		}
	}
	if len(failed) > 0 {
		slices.Sort(failed)
		return fmt.Errorf("疎通確認に失敗したプロバイダがあります: %s", strings.Join(failed, ", "))
	}
	return nil
}

// WriteProviderStatus は疎通確認の結果をプロバイダ名の順に書き出すのだ。
func WriteProviderStatus(w io.Writer, results map[domain.Provider]error, stats router.CostStats, queue router.QueueStatus) {
	names := make([]domain.Provider, 0, len(results))
	for p := range results {
		names = append(names, p)
	}
	slices.Sort(names)

	fmt.Fprintln(w, "プロバイダ:")
	for _, p := range names {
		if err := results[p]; err != nil {
			fmt.Fprintf(w, "  %-8s NG  %v\n", p, err)
		} else {
			fmt.Fprintf(w, "  %-8s OK\n", p)
		}
	}
	fmt.Fprintln(w, "コスト:")
	fmt.Fprintf(w, "  日付: %s\n", stats.Date)
	fmt.Fprintf(w, "  本日の使用額: ¥%.2f / ¥%.2f (%.1f%%)\n", stats.DailyCost, stats.MaxDailyCost, stats.Utilization*100)
	fmt.Fprintf(w, "  残り予算: ¥%.2f\n", stats.Remaining)
	fmt.Fprintf(w, "同時実行: %d / %d (待機 %d)\n", queue.InFlight, queue.Capacity, queue.Waiting)
}

// ExecuteReferences は永続化済みの一貫性参照を集計し、ロスターの各 ID の実績シードを表示するのだ。
func ExecuteReferences(ctx context.Context, opts config.GenerateOptions, w io.Writer) error {
	projectDir := orDefault(opts.ProjectDir, config.DefaultProjectDir)
	tracker, err := consistency.NewTracker(consistency.NewFileStore(projectDir))
	if err != nil {
		return err
	}
	if err := tracker.Initialize(ctx); err != nil {
		return err
	}
	roster, err := LoadRosterIfExists(resolve(projectDir, orDefault(opts.RosterFile, config.DefaultRosterFile)))
	if err != nil {
		return err
	}

	st := tracker.Statistics()
	fmt.Fprintln(w, "一貫性参照:")
	fmt.Fprintf(w, "  キャラクター: %d (参照画像あり %d)\n", st.TotalCharacters, st.CharactersWithReferences)
	fmt.Fprintf(w, "  シーン: %d (参照画像あり %d)\n", st.TotalScenes, st.ScenesWithReferences)
	fmt.Fprintf(w, "  生成履歴: %d 件\n", st.TotalGenerations)

	for _, c := range roster.Characters {
		if _, ok := tracker.CharacterReference(c.ID); !ok {
			continue
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", c.ID, c.Name, formatSeeds(tracker.BestSeedsForCharacter(c.ID, bestSeedsShown)))
	}
	for _, s := range roster.Scenes {
		if _, ok := tracker.SceneReference(s.ID); !ok {
			continue
		}
		fmt.Fprintf(w, "  [%s] %s: %s\n", s.ID, s.Name, formatSeeds(tracker.BestSeedsForScene(s.ID, bestSeedsShown)))
	}
	return nil
}

func formatSeeds(seeds []int64) string {
	if len(seeds) == 0 {
		return "実績シードなし"
	}
	parts := make([]string, len(seeds))
	for i, s := range seeds {
		parts[i] = fmt.Sprint(s)
	}
	return "seeds " + strings.Join(parts, ", ")
}

// ExecuteCleanup は画像ディレクトリとその直下のショットごとのディレクトリから古いファイルを消すのだ。
func ExecuteCleanup(opts config.GenerateOptions, maxAge time.Duration, now time.Time, w io.Writer) (downloader.CleanupResult, error) {
	projectDir := orDefault(opts.ProjectDir, config.DefaultProjectDir)
	imagesDir := filepath.Join(projectDir, "output", "images")

	dirs := []string{imagesDir}
	entries, err := os.ReadDir(imagesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return downloader.CleanupResult{}, fmt.Errorf("画像ディレクトリの読み込みに失敗しました: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(imagesDir, e.Name()))
		}
	}

	var total downloader.CleanupResult
	for _, dir := range dirs {
		res, err := downloader.CleanupOldFiles(dir, maxAge, now)
		if err != nil {
			return total, err
		}
		total.Deleted += res.Deleted
		total.Errors += res.Errors
	}

	size, err := downloader.DirectorySize(imagesDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return total, err
	}
	fmt.Fprintf(w, "削除したファイル: %d\n", total.Deleted)
	if total.Errors > 0 {
		fmt.Fprintf(w, "削除に失敗したファイル: %d\n", total.Errors)
	}
	fmt.Fprintf(w, "残りのサイズ: %s\n", downloader.FormatFileSize(size))
	return total, nil
}
