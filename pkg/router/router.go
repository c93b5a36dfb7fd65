package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/provider"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const DefaultMaxConcurrent = 5

// hybridOrder はハイブリッド指定時に試すプロバイダの順番なのだ。安い方から試すのだよ。
var hybridOrder = []domain.Provider{domain.ProviderAliyun, domain.ProviderVolcano}

// GenerationResponse はルーター経由の1回の生成結果なのだ。
type GenerationResponse struct {
	RequestID      string
	Provider       domain.Provider
	Images         []provider.Image
	Cost           float64
	GenerationTime time.Duration
}

// QueueStatus はワーカープールの状況です。
type QueueStatus struct {
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
	Capacity int `json:"capacity"`
}

// Option は Router の設定を差し替える関数オプションなのだ。
type Option func(*Router)

// WithMaxDailyCost は日次予算（元）を設定するのだ。
func WithMaxDailyCost(v float64) Option {
	return func(r *Router) { r.maxDailyCost = v }
}

// WithMaxConcurrent は同時実行数を設定するのだ。
func WithMaxConcurrent(n int) Option {
	return func(r *Router) { r.capacity = n }
}

// WithClock は日付判定と所要時間の計測に使う時計を差し替えるのだ。
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithLogger はロガーを設定するのだ。
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// Router は予算管理・同時実行制御・フェイルオーバーを担う唯一の窓口なのだ。
type Router struct {
	clients map[domain.Provider]provider.Client

	maxDailyCost float64
	capacity     int
	now          func() time.Time
	logger       *slog.Logger

	ledger   *CostLedger
	sem      *semaphore.Weighted
	inFlight atomic.Int64
	waiting  atomic.Int64
}

// New は Router を初期化するのだ。クライアントが1つも無い場合はエラーを返すのだよ。
func New(clients []provider.Client, opts ...Option) (*Router, error) {
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: クライアントが1つも渡されていません", ErrProviderNotConfigured)
	}

	r := &Router{
		clients:      make(map[domain.Provider]provider.Client, len(clients)),
		maxDailyCost: DefaultMaxDailyCost,
		capacity:     DefaultMaxConcurrent,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, c := range clients {
		if c == nil {
			return nil, errors.New("nil のクライアントは登録できません")
		}
		r.clients[c.Name()] = c
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.capacity <= 0 {
		r.capacity = DefaultMaxConcurrent
	}

	r.ledger = NewCostLedger(r.maxDailyCost, r.now, r.logger)
	r.sem = semaphore.NewWeighted(int64(r.capacity))
	return r, nil
}

// candidates は試行するクライアントを順番に返すのだ。
func (r *Router) candidates(p domain.Provider) ([]provider.Client, error) {
	if p == "" || p == domain.ProviderHybrid {
		var out []provider.Client
		for _, name := range hybridOrder {
			if c, ok := r.clients[name]; ok {
				out = append(out, c)
			}
		}
		return out, nil
	}
	c, ok := r.clients[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotConfigured, p)
	}
	return []provider.Client{c}, nil
}

// Generate は予算チェック、キュー待ち、プロバイダ呼び出しの順で1回の生成を行うのだ。
func (r *Router) Generate(ctx context.Context, req domain.GenerationRequest) (*GenerationResponse, error) {
	clients, err := r.candidates(req.Provider)
	if err != nil {
		return nil, err
	}
	if len(clients) == 0 {
		return nil, fmt.Errorf("%w: ハイブリッドで使えるプロバイダがありません", ErrProviderNotConfigured)
	}

	width, height := req.Width, req.Height
	if width == 0 || height == 0 {
		width, height = req.Quality.Dimensions()
	}
	count := req.Count
	if count <= 0 {
		count = 1
	}

	// フェイルオーバー先の方が高い場合もあるので、候補の中で最大の見積もりを予約するのだ
	var estimate float64
	for _, c := range clients {
		estimate = max(estimate, c.EstimateCost(width, height, count))
	}
	if err := r.ledger.Reserve(estimate); err != nil {
		r.logger.Warn("日次予算によりリクエストを拒否したのだ", "error", err)
		return nil, err
	}

	r.waiting.Add(1)
	err = r.sem.Acquire(ctx, 1)
	r.waiting.Add(-1)
	if err != nil {
		r.ledger.Release(estimate)
		return nil, fmt.Errorf("実行枠の待機中に中断されました: %w", err)
	}
	r.inFlight.Add(1)
	defer func() {
		r.inFlight.Add(-1)
		r.sem.Release(1)
	}()

	preq := provider.Request{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Seed:           req.Seed,
		Width:          width,
		Height:         height,
		Count:          count,
	}

	start := r.now()
	var (
		attempted []domain.Provider
		lastErr   error
	)
	for _, c := range clients {
		attempted = append(attempted, c.Name())
		res, err := c.Submit(ctx, preq)
		if err != nil {
			lastErr = err
			r.logger.Warn("プロバイダでの生成に失敗したのだ", "provider", c.Name(), "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		r.ledger.Commit(estimate, res.Cost)
		elapsed := r.now().Sub(start)
		r.logger.Info("画像を生成したのだ",
			"provider", res.Provider,
			"images", len(res.Images),
			"cost", res.Cost,
			"elapsed", elapsed.Round(time.Millisecond))
		return &GenerationResponse{
			RequestID:      res.RequestID,
			Provider:       c.Name(),
			Images:         res.Images,
			Cost:           res.Cost,
			GenerationTime: elapsed,
		}, nil
	}

	r.ledger.Release(estimate)
	if len(clients) == 1 && req.Provider != "" && req.Provider != domain.ProviderHybrid {
		return nil, lastErr
	}
	return nil, &AllProvidersFailedError{Attempted: attempted, Last: lastErr}
}

// CostStats は当日の支出状況を返すのだ。
func (r *Router) CostStats() CostStats {
	return r.ledger.Stats()
}

// QueueStatus はワーカープールの実行中・待機中の数を返すのだ。
func (r *Router) QueueStatus() QueueStatus {
	return QueueStatus{
		InFlight: int(r.inFlight.Load()),
		Waiting:  int(r.waiting.Load()),
		Capacity: r.capacity,
	}
}

// TestProviders は登録済みの全プロバイダへ並行して疎通確認を行うのだ。
// 結果はプロバイダごとのエラー（成功なら nil）で返すのだよ。
func (r *Router) TestProviders(ctx context.Context) map[domain.Provider]error {
	var (
		mu      sync.Mutex
		results = make(map[domain.Provider]error, len(r.clients))
		eg      errgroup.Group
	)
	for name, c := range r.clients {
		eg.Go(func() error {
			err := c.TestConnection(ctx)
			if err != nil {
				r.logger.Warn("プロバイダの疎通確認に失敗したのだ", "provider", name, "error", err)
			}
			mu.Lock()
			results[name] = err
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
	return results
}
