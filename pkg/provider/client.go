package provider

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"

	"golang.org/x/time/rate"
)

const DefaultHTTPTimeout = 60 * time.Second

// Client はリモート画像生成プロバイダの共通窓口なのだ。
type Client interface {
	Name() domain.Provider
	// Submit は作成からポーリングまでを含む1回の生成を、リトライ方針付きで実行するのだ。
	Submit(ctx context.Context, req Request) (*Result, error)
	// EstimateCost は料金表による事前見積もりなのだ。
	EstimateCost(width, height, count int) float64
	TestConnection(ctx context.Context) error
}

// Request は Client への生成リクエストなのだ。
type Request struct {
	Prompt         string
	NegativePrompt string
	Seed           *int64
	Width          int
	Height         int
	Count          int
	StylePreset    string
}

// Image はプロバイダが返した1枚の画像です。
type Image struct {
	URL    string
	Seed   int64
	Width  int
	Height int
}

// Result は正規化された生成結果なのだ。
type Result struct {
	RequestID string
	Provider  domain.Provider
	Images    []Image
	Cost      float64
}

func (r Request) validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt が空です", ErrInvalidRequest)
	}
	if r.Width < 0 || r.Height < 0 || r.Count < 0 {
		return fmt.Errorf("%w: サイズと枚数は負にできません", ErrInvalidRequest)
	}
	return nil
}

// Credentials はアクセスキーの組なのだ。
type Credentials struct {
	AccessKeyID     string
	AccessKeySecret string
}

func (c Credentials) validate(p domain.Provider) error {
	if c.AccessKeyID == "" || c.AccessKeySecret == "" {
		return fmt.Errorf("%s のアクセスキーが設定されていません", p)
	}
	return nil
}

// Option はクライアントの挙動を差し替えるための関数オプションなのだ。
type Option func(*options)

type options struct {
	timeout      time.Duration
	retry        RetryPolicy
	newTimer     TimerFactory
	now          func() time.Time
	seedSource   func() int64
	limiter      *rate.Limiter
	logger       *slog.Logger
	maxPolls     int
	pollInterval time.Duration
}

func defaultOptions() options {
	return options{
		timeout:      DefaultHTTPTimeout,
		retry:        DefaultRetryPolicy(),
		newTimer:     NewWallTimer,
		now:          time.Now,
		seedSource:   func() int64 { return int64(rand.Uint32()) },
		logger:       slog.Default(),
		maxPolls:     DefaultMaxPolls,
		pollInterval: DefaultPollInterval,
	}
}

func buildOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithTimeout は HTTP リクエスト単位のタイムアウトを設定するのだ。
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetryPolicy はリトライ方針を設定するのだ。
func WithRetryPolicy(p RetryPolicy) Option {
	return func(o *options) { o.retry = p }
}

// WithTimerFactory はポーリングとリトライ待機に使う Timer を差し替えるのだ。
func WithTimerFactory(f TimerFactory) Option {
	return func(o *options) { o.newTimer = f }
}

// WithClock は署名に使う現在時刻の取得元を差し替えるのだ。
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithSeedSource はシード未指定時の乱数源を差し替えるのだ。
func WithSeedSource(f func() int64) Option {
	return func(o *options) { o.seedSource = f }
}

// WithRateLimiter はタスク作成の前に待機するリミッターを設定するのだ。
func WithRateLimiter(l *rate.Limiter) Option {
	return func(o *options) { o.limiter = l }
}

// WithLogger はロガーを設定するのだ。
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPolling はポーリングの上限回数と間隔を設定するのだ。
func WithPolling(maxPolls int, interval time.Duration) Option {
	return func(o *options) {
		o.maxPolls = maxPolls
		o.pollInterval = interval
	}
}

// normalize はサイズ・枚数・シードの既定値を埋めるのだ。
// シードはリトライ前に一度だけ決めるので、再試行でも同じ値が使われるのだよ。
func (o options) normalize(req Request) Request {
	if req.Width == 0 {
		req.Width = 1024
	}
	if req.Height == 0 {
		req.Height = 1024
	}
	if req.Count == 0 {
		req.Count = 1
	}
	if req.Seed == nil {
		seed := o.seedSource()
		req.Seed = &seed
	}
	return req
}

func (o options) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	return o.limiter.Wait(ctx)
}

func (o options) retryNotifier(p domain.Provider) func(int, error) {
	return func(attempt int, err error) {
		o.logger.Warn("画像生成APIの呼び出しに失敗したのだ。リトライするのだ",
			"provider", p,
			"attempt", attempt,
			"max_retries", o.retry.MaxRetries,
			"error", err)
	}
}

// testRequest は疎通確認に使う最小のリクエストなのだ。
func testRequest() Request {
	return Request{Prompt: "test connection", Width: 512, Height: 512, Count: 1}
}
