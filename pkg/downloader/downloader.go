package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/provider"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxRetries      = 3
	DefaultRetryDelay      = time.Second
	DefaultCacheExpiration = 30 * time.Minute
	cacheCleanupInterval   = time.Hour
	batchConcurrency       = 4
)

// Fetcher は URL の中身を取得する契約なのだ。httpkit のクライアントがそのまま満たすのだよ。
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
}

// Options は保存形式と加工の指定です。
type Options struct {
	OutputDir string
	Format    Format
	Quality   int // jpg の品質 (1-100)
	Resize    Resize
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = FormatPNG
	}
	if o.Quality <= 0 || o.Quality > 100 {
		o.Quality = DefaultQuality
	}
	return o
}

// Result は1枚分の保存結果なのだ。
type Result struct {
	LocalPath string `json:"local_path"`
	FileSize  int64  `json:"file_size"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// BatchSummary は DownloadBatch の集計です。
type BatchSummary struct {
	Total      int   `json:"total"`
	Successful int   `json:"successful"`
	Failed     int   `json:"failed"`
	TotalSize  int64 `json:"total_size"`
}

// Option は Downloader の設定を差し替える関数オプションなのだ。
type Option func(*Downloader)

// WithURLGuard は取得前に URL を検査する関数を設定するのだ。nil なら検査しないのだよ。
func WithURLGuard(guard func(string) error) Option {
	return func(d *Downloader) { d.guard = guard }
}

// WithRetryPolicy は取得のリトライ方針を設定するのだ。
func WithRetryPolicy(p provider.RetryPolicy) Option {
	return func(d *Downloader) { d.retry = p }
}

// WithTimerFactory はリトライ待機のタイマーを差し替えるのだ。
func WithTimerFactory(f provider.TimerFactory) Option {
	return func(d *Downloader) { d.newTimer = f }
}

// WithCache は取得済みバイト列のキャッシュを差し替えるのだ。
func WithCache(c *cache.Cache) Option {
	return func(d *Downloader) { d.cache = c }
}

// WithClock はファイル名のタイムスタンプに使う時計を差し替えるのだ。
func WithClock(now func() time.Time) Option {
	return func(d *Downloader) { d.now = now }
}

// WithLogger はロガーを設定するのだ。
func WithLogger(l *slog.Logger) Option {
	return func(d *Downloader) { d.logger = l }
}

// Downloader は生成画像を取得して加工し、ローカルに保存するのだ。
// 同じ URL の同時取得は1回にまとめ、取得済みのバイト列はキャッシュから返すのだよ。
type Downloader struct {
	fetcher  Fetcher
	cache    *cache.Cache
	group    singleflight.Group
	guard    func(string) error
	retry    provider.RetryPolicy
	newTimer provider.TimerFactory
	now      func() time.Time
	logger   *slog.Logger
}

// New は Downloader を初期化するのだ。
func New(fetcher Fetcher, opts ...Option) (*Downloader, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher は必須です")
	}
	d := &Downloader{
		fetcher:  fetcher,
		cache:    cache.New(DefaultCacheExpiration, cacheCleanupInterval),
		guard:    CheckURL,
		retry:    provider.RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay},
		newTimer: provider.NewWallTimer,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Download は1枚を取得して加工し、OutputDir に保存するのだ。
func (d *Downloader) Download(ctx context.Context, img domain.GeneratedImage, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("出力ディレクトリの作成に失敗しました: %w", err)
	}

	data, err := d.fetch(ctx, img.URL)
	if err != nil {
		return nil, err
	}
	out, w, h, err := process(data, opts)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(opts.OutputDir, d.fileName(img, opts.Format))
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return nil, fmt.Errorf("画像の保存に失敗しました: %w", err)
	}
	return &Result{LocalPath: path, FileSize: int64(len(out)), Width: w, Height: h}, nil
}

// DownloadBatch はショットキーごとのサブディレクトリに保存し、成功した画像の LocalPath を埋めるのだ。
// 個々の失敗は集計に数えるだけで、処理全体は止めないのだよ。
func (d *Downloader) DownloadBatch(ctx context.Context, images map[string][]domain.GeneratedImage, opts Options) (BatchSummary, error) {
	var (
		mu      sync.Mutex
		summary BatchSummary
	)
	var eg errgroup.Group
	eg.SetLimit(batchConcurrency)

	for key, list := range images {
		shotOpts := opts
		shotOpts.OutputDir = filepath.Join(opts.OutputDir, key)
		for i := range list {
			eg.Go(func() error {
				res, err := d.Download(ctx, list[i], shotOpts)

				mu.Lock()
				defer mu.Unlock()
				summary.Total++
				if err != nil {
					summary.Failed++
					d.logger.Warn("画像のダウンロードに失敗したのだ", "shot", key, "url", list[i].URL, "error", err)
					return nil
				}
				summary.Successful++
				summary.TotalSize += res.FileSize
				list[i].LocalPath = res.LocalPath
				return nil
			})
		}
	}
	_ = eg.Wait()
	return summary, ctx.Err()
}

// fetch は検査・キャッシュ・同時取得の集約・リトライを経てバイト列を返すのだ。
func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("画像 URL が空です")
	}
	if d.guard != nil {
		if err := d.guard(url); err != nil {
			return nil, fmt.Errorf("安全ではないURLが指定されました: %w", err)
		}
	}
	if v, ok := d.cache.Get(url); ok {
		if data, ok := v.([]byte); ok {
			return data, nil
		}
	}

	val, err, _ := d.group.Do(url, func() (any, error) {
		if v, ok := d.cache.Get(url); ok {
			return v, nil
		}
		data, err := provider.Retry(ctx, d.retry, d.newTimer, func(ctx context.Context) ([]byte, error) {
			return d.fetcher.FetchBytes(ctx, url)
		}, func(attempt int, err error) {
			d.logger.Warn("画像の取得に失敗したのだ。リトライするのだ", "url", url, "attempt", attempt, "error", err)
		})
		if err != nil {
			return nil, err
		}
		d.cache.SetDefault(url, data)
		return data, nil
	})
	if err != nil {
		return nil, fmt.Errorf("画像の取得に失敗しました: %w", err)
	}
	data, ok := val.([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	return data, nil
}

// fileName は <ショットID>_<生成時刻ms>_<シード>.<拡張子> を返すのだ。
func (d *Downloader) fileName(img domain.GeneratedImage, f Format) string {
	shotID := img.Metadata.ShotID
	if shotID == "" {
		shotID = "unknown"
	}
	ts := img.Metadata.GeneratedAt
	if ts.IsZero() {
		ts = d.now()
	}
	seed := "noseed"
	if img.Seed != 0 {
		seed = strconv.FormatInt(img.Seed, 10)
	}
	return fmt.Sprintf("%s_%d_%s.%s", shotID, ts.UnixMilli(), seed, f)
}
