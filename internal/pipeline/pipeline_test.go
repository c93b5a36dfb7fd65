package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouni/go-storyboard-kit/examples"
	"github.com/shouni/go-storyboard-kit/internal/config"
	"github.com/shouni/go-storyboard-kit/pkg/batch"
	"github.com/shouni/go-storyboard-kit/pkg/consistency"
	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/prompts"
	"github.com/shouni/go-storyboard-kit/pkg/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultStoryboardFile), examples.StoryboardJSON, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.DefaultRosterFile), examples.RosterJSON, 0o644))
	return dir
}

func TestLoadInput(t *testing.T) {
	t.Run("プロジェクトディレクトリ基準で読み込み、CLI の値で上書きする", func(t *testing.T) {
		dir := writeProject(t)
		yml := "provider: volcano\nquality: standard\nvariants_per_shot: 3\n"
		require.NoError(t, os.WriteFile(filepath.Join(dir, "batch.yaml"), []byte(yml), 0o644))

		in, err := LoadInput(config.GenerateOptions{ProjectDir: dir, BatchConfigFile: "batch.yaml", Quality: "ultra"})
		require.NoError(t, err)

		assert.Equal(t, 3, in.Storyboard.ShotCount())
		assert.Len(t, in.Roster.Characters, 2)
		assert.Equal(t, domain.ProviderVolcano, in.Config.Provider)
		assert.Equal(t, domain.QualityUltra, in.Config.Quality)
		assert.Equal(t, 3, in.Config.VariantsPerShot)
	})

	t.Run("ロスターが無ければ空として扱う", func(t *testing.T) {
		dir := writeProject(t)
		require.NoError(t, os.Remove(filepath.Join(dir, config.DefaultRosterFile)))

		in, err := LoadInput(config.GenerateOptions{ProjectDir: dir})
		require.NoError(t, err)
		assert.Empty(t, in.Roster.Characters)
		assert.Equal(t, domain.DefaultBatchConfig(), in.Config)
	})

	t.Run("分镜が無いとエラー", func(t *testing.T) {
		_, err := LoadInput(config.GenerateOptions{ProjectDir: t.TempDir()})
		assert.Error(t, err)
	})

	t.Run("不正な上書きはエラー", func(t *testing.T) {
		_, err := LoadInput(config.GenerateOptions{ProjectDir: writeProject(t), Provider: "midjourney"})
		assert.Error(t, err)
	})
}

// --- Mocks ---

type fakeSheets struct {
	prepared bool
	chars    []string
	scenes   []string
	fail     error
}

func (f *fakeSheets) Prepare(ctx context.Context, roster *domain.Roster, extra ...domain.Scene) error {
	f.prepared = true
	return nil
}

func (f *fakeSheets) GenerateCharacterSheet(ctx context.Context, c domain.Character, view prompts.SheetView, ws domain.WorkspaceType, cfg domain.BatchConfig) (*batch.SheetResult, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.chars = append(f.chars, c.ID+":"+string(view))
	return &batch.SheetResult{Image: domain.GeneratedImage{Seed: 42}}, nil
}

func (f *fakeSheets) GenerateSceneSheet(ctx context.Context, s domain.Scene, ws domain.WorkspaceType, cfg domain.BatchConfig) (*batch.SheetResult, error) {
	f.scenes = append(f.scenes, s.ID)
	return &batch.SheetResult{Image: domain.GeneratedImage{Seed: 7}}, nil
}

func TestRunDesign(t *testing.T) {
	roster, err := examples.SampleRoster()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("指定された ID を順に生成し、未知の ID は飛ばす", func(t *testing.T) {
		f := &fakeSheets{}
		res, err := RunDesign(ctx, f, roster, domain.DefaultBatchConfig(), DesignRequest{
			CharacterIDs: []string{"ren", "nobody", "aki"},
			SceneIDs:     []string{"temple", "forest"},
			View:         prompts.ViewCloseUp,
		})
		require.NoError(t, err)
		assert.True(t, f.prepared)
		assert.Equal(t, []string{"ren:close_up", "aki:close_up"}, f.chars)
		assert.Equal(t, []string{"temple"}, f.scenes)
		assert.Len(t, res, 3)
	})

	t.Run("ID が無いとエラー", func(t *testing.T) {
		_, err := RunDesign(ctx, &fakeSheets{}, roster, domain.DefaultBatchConfig(), DesignRequest{})
		assert.Error(t, err)
	})

	t.Run("生成の失敗はラップして返す", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := RunDesign(ctx, &fakeSheets{fail: boom}, roster, domain.DefaultBatchConfig(), DesignRequest{CharacterIDs: []string{"aki"}})
		assert.ErrorIs(t, err, boom)
	})
}

func TestWriteProviderStatus(t *testing.T) {
	var buf bytes.Buffer
	WriteProviderStatus(&buf,
		map[domain.Provider]error{domain.ProviderVolcano: errors.New("認証失敗"), domain.ProviderAliyun: nil},
		router.CostStats{Date: "2026-03-14", DailyCost: 12.5, MaxDailyCost: 500, Remaining: 487.5, Utilization: 0.025},
		router.QueueStatus{Capacity: 5})

	out := buf.String()
	assert.Contains(t, out, "aliyun   OK")
	assert.Contains(t, out, "volcano  NG  認証失敗")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("aliyun")), bytes.Index(buf.Bytes(), []byte("volcano")))
	assert.Contains(t, out, "¥12.50 / ¥500.00 (2.5%)")
	assert.Contains(t, out, "同時実行: 0 / 5")
}

func TestExecuteReferences(t *testing.T) {
	dir := writeProject(t)
	ctx := context.Background()
	roster, err := examples.SampleRoster()
	require.NoError(t, err)

	tracker, err := consistency.NewTracker(consistency.NewFileStore(dir))
	require.NoError(t, err)
	require.NoError(t, tracker.Initialize(ctx))
	require.NoError(t, tracker.InitializeCharacters(ctx, roster.Characters))
	require.NoError(t, tracker.InitializeScenes(ctx, roster.Scenes))
	require.NoError(t, tracker.RecordCharacterGeneration(ctx, "aki", domain.GeneratedImage{URL: "u1", Seed: 11, LocalPath: "a.png"}, 0.9))
	require.NoError(t, tracker.RecordCharacterGeneration(ctx, "aki", domain.GeneratedImage{URL: "u2", Seed: 22}, 0.95))

	var buf bytes.Buffer
	require.NoError(t, ExecuteReferences(ctx, config.GenerateOptions{ProjectDir: dir}, &buf))

	out := buf.String()
	assert.Contains(t, out, "キャラクター: 2 (参照画像あり 1)")
	assert.Contains(t, out, "生成履歴: 2 件")
	assert.Contains(t, out, "[aki] Aki: seeds 22, 11")
	assert.Contains(t, out, "[ren] Ren: 実績シードなし")
	assert.Contains(t, out, "[temple] 廃寺: 実績シードなし")
}

func TestExecuteCleanup(t *testing.T) {
	dir := t.TempDir()
	images := filepath.Join(dir, "output", "images")
	shotDir := filepath.Join(images, "scene_1_shot_1")
	require.NoError(t, os.MkdirAll(shotDir, 0o755))

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)
	for _, p := range []string{filepath.Join(images, "old.png"), filepath.Join(shotDir, "old.png")} {
		require.NoError(t, os.WriteFile(p, make([]byte, 100), 0o644))
		require.NoError(t, os.Chtimes(p, old, old))
	}
	fresh := filepath.Join(shotDir, "fresh.png")
	require.NoError(t, os.WriteFile(fresh, make([]byte, 2048), 0o644))
	require.NoError(t, os.Chtimes(fresh, now, now))

	var buf bytes.Buffer
	res, err := ExecuteCleanup(config.GenerateOptions{ProjectDir: dir}, 24*time.Hour, now, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Deleted)
	assert.FileExists(t, fresh)
	assert.Contains(t, buf.String(), "削除したファイル: 2")
	assert.Contains(t, buf.String(), "残りのサイズ: 2.00 KB")

	t.Run("画像ディレクトリが無くてもエラーにしない", func(t *testing.T) {
		res, err := ExecuteCleanup(config.GenerateOptions{ProjectDir: t.TempDir()}, time.Hour, now, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Zero(t, res.Deleted)
	})
}
