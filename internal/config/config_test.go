package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("環境変数から読み込む", func(t *testing.T) {
		t.Setenv("VOLCANO_ACCESS_KEY_ID", "vak")
		t.Setenv("VOLCANO_ACCESS_KEY_SECRET", "vsk")
		t.Setenv("ALIYUN_ACCESS_KEY_ID", "")
		t.Setenv("ALIYUN_ACCESS_KEY_SECRET", "")
		t.Setenv("MAX_DAILY_COST", "120.5")
		t.Setenv("MAX_CONCURRENT", "3")
		t.Setenv("PROVIDER_RATE_INTERVAL", "2s")

		cfg := LoadConfig()
		assert.True(t, cfg.HasVolcano())
		assert.False(t, cfg.HasAliyun())
		assert.Equal(t, 120.5, cfg.MaxDailyCost)
		assert.Equal(t, 3, cfg.MaxConcurrent)
		assert.Equal(t, 2*time.Second, cfg.RateInterval)
	})

	t.Run("不正な数値はデフォルトに戻す", func(t *testing.T) {
		t.Setenv("MAX_DAILY_COST", "lots")
		t.Setenv("MAX_CONCURRENT", "-1")
		t.Setenv("PROVIDER_RATE_INTERVAL", "soon")

		cfg := LoadConfig()
		assert.Equal(t, DefaultMaxDailyCost, cfg.MaxDailyCost)
		assert.Equal(t, DefaultMaxConcurrent, cfg.MaxConcurrent)
		assert.Equal(t, DefaultRateInterval, cfg.RateInterval)
	})
}

func TestLoadBatchConfig(t *testing.T) {
	t.Run("パス未指定ならデフォルト", func(t *testing.T) {
		cfg, err := LoadBatchConfig("")
		require.NoError(t, err)
		assert.Equal(t, domain.DefaultBatchConfig(), cfg)
	})

	t.Run("YAML の値をデフォルトに重ねる", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "batch.yaml")
		require.NoError(t, os.WriteFile(path, []byte("provider: volcano\nvariants_per_shot: 3\ncontinue_on_failure: false\n"), 0o644))

		cfg, err := LoadBatchConfig(path)
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderVolcano, cfg.Provider)
		assert.Equal(t, 3, cfg.VariantsPerShot)
		assert.False(t, cfg.ContinueOnFailure)
		assert.Equal(t, domain.QualityHigh, cfg.Quality, "書かれていない項目はデフォルトのまま")
		assert.True(t, cfg.SavePrompts)
	})

	t.Run("不正な値は検証エラー", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "batch.yaml")
		require.NoError(t, os.WriteFile(path, []byte("quality: extreme\n"), 0o644))

		_, err := LoadBatchConfig(path)
		assert.ErrorContains(t, err, "未知の画質")
	})

	t.Run("存在しないファイル", func(t *testing.T) {
		_, err := LoadBatchConfig(filepath.Join(t.TempDir(), "none.yaml"))
		assert.Error(t, err)
	})
}

func TestGenerateOptions_ApplyOverrides(t *testing.T) {
	base := domain.DefaultBatchConfig()

	cfg, err := GenerateOptions{Provider: "aliyun", Quality: "ultra", Variants: 4, Download: true, Format: "jpg"}.ApplyOverrides(base)
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderAliyun, cfg.Provider)
	assert.Equal(t, domain.QualityUltra, cfg.Quality)
	assert.Equal(t, 4, cfg.VariantsPerShot)
	assert.True(t, cfg.Download)
	assert.Equal(t, "jpg", cfg.DownloadFormat)

	cfg, err = GenerateOptions{}.ApplyOverrides(base)
	require.NoError(t, err)
	assert.Equal(t, base, cfg)

	_, err = GenerateOptions{Provider: "openai"}.ApplyOverrides(base)
	assert.Error(t, err)
	_, err = GenerateOptions{Format: "webp"}.ApplyOverrides(base)
	assert.Error(t, err)
}
