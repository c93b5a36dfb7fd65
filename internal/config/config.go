package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"github.com/shouni/go-utils/envutil"
	"gopkg.in/yaml.v3"
)

// デフォルト値の定義なのだ
const (
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultRateInterval   = 500 * time.Millisecond
	DefaultMaxDailyCost   = 500.0
	DefaultMaxConcurrent  = 5
	DefaultProjectDir     = "."
	DefaultStoryboardFile = "storyboard.json"
	DefaultRosterFile     = "roster.json"
	DefaultCleanupMaxAge  = 24 * time.Hour
)

// Config はアプリケーション全体の環境設定（アクセスキーや予算）を保持する構造体なのだ。
type Config struct {
	VolcanoAccessKeyID     string
	VolcanoAccessKeySecret string
	VolcanoRegion          string
	AliyunAccessKeyID      string
	AliyunAccessKeySecret  string
	AliyunEndpoint         string

	MaxDailyCost  float64
	MaxConcurrent int
	RateInterval  time.Duration

	Options GenerateOptions
}

// LoadConfig は環境変数から設定を読み込み、構造体を返すのだ！
// 数値として読めない値は警告を出してデフォルトに戻すのだよ。
func LoadConfig() *Config {
	return &Config{
		VolcanoAccessKeyID:     envutil.GetEnv("VOLCANO_ACCESS_KEY_ID", ""),
		VolcanoAccessKeySecret: envutil.GetEnv("VOLCANO_ACCESS_KEY_SECRET", ""),
		VolcanoRegion:          envutil.GetEnv("VOLCANO_REGION", ""),
		AliyunAccessKeyID:      envutil.GetEnv("ALIYUN_ACCESS_KEY_ID", ""),
		AliyunAccessKeySecret:  envutil.GetEnv("ALIYUN_ACCESS_KEY_SECRET", ""),
		AliyunEndpoint:         envutil.GetEnv("ALIYUN_ENDPOINT", ""),
		MaxDailyCost:           envFloat("MAX_DAILY_COST", DefaultMaxDailyCost),
		MaxConcurrent:          envInt("MAX_CONCURRENT", DefaultMaxConcurrent),
		RateInterval:           envDuration("PROVIDER_RATE_INTERVAL", DefaultRateInterval),
	}
}

// HasVolcano は火山引擎のアクセスキーが揃っているかを返すのだ。
func (c *Config) HasVolcano() bool {
	return c.VolcanoAccessKeyID != "" && c.VolcanoAccessKeySecret != ""
}

// HasAliyun は通義万相のアクセスキーが揃っているかを返すのだ。
func (c *Config) HasAliyun() bool {
	return c.AliyunAccessKeyID != "" && c.AliyunAccessKeySecret != ""
}

// GenerateOptions は CLI フラグから渡される実行時のパラメータなのだ。
type GenerateOptions struct {
	// 入力
	ProjectDir      string // --project-dir
	StoryboardFile  string // --storyboard
	RosterFile      string // --roster
	BatchConfigFile string // --config

	// バッチ挙動の上書き（空やゼロは YAML の値を使う）
	Provider string // --provider
	Quality  string // --quality
	Variants int    // --variants
	Download bool   // --download
	Format   string // --format

	// 実行制御
	HTTPTimeout time.Duration // --http-timeout
}

// LoadBatchConfig は DefaultBatchConfig に YAML ファイルの値を重ねるのだ。path が空ならデフォルトのままなのだよ。
func LoadBatchConfig(path string) (domain.BatchConfig, error) {
	cfg := domain.DefaultBatchConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("バッチ設定ファイル '%s' の読み込みに失敗しました: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("バッチ設定ファイル '%s' のパースに失敗しました: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// ApplyOverrides は CLI で明示された値をバッチ設定に反映して検証するのだ。
func (o GenerateOptions) ApplyOverrides(cfg domain.BatchConfig) (domain.BatchConfig, error) {
	if o.Provider != "" {
		p, err := domain.ParseProvider(o.Provider)
		if err != nil {
			return cfg, err
		}
		cfg.Provider = p
	}
	if o.Quality != "" {
		q, err := domain.ParseQuality(o.Quality)
		if err != nil {
			return cfg, err
		}
		cfg.Quality = q
	}
	if o.Variants > 0 {
		cfg.VariantsPerShot = o.Variants
	}
	if o.Download {
		cfg.Download = true
	}
	if o.Format != "" {
		cfg.DownloadFormat = o.Format
	}
	return cfg, cfg.Validate()
}

func envFloat(key string, def float64) float64 {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		slog.Warn("環境変数の値が不正なのでデフォルトを使うのだ", "key", key, "value", raw)
		return def
	}
	return v
}

func envInt(key string, def int) int {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("環境変数の値が不正なのでデフォルトを使うのだ", "key", key, "value", raw)
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	raw := envutil.GetEnv(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v < 0 {
		slog.Warn("環境変数の値が不正なのでデフォルトを使うのだ", "key", key, "value", raw)
		return def
	}
	return v
}
