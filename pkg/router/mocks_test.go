package router

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/provider"
)

// --- Mocks ---

// fakeClient は呼び出しを記録し、設定されたエラーか固定の結果を返すのだ。
type fakeClient struct {
	name     domain.Provider
	unitCost float64
	cost     float64 // 0 なら見積もりと同額を報告するのだ
	err      error
	testErr  error
	block    chan struct{} // nil でなければ閉じられるまで Submit を止めるのだ
	started  chan struct{}

	mu       sync.Mutex
	requests []provider.Request
}

func (f *fakeClient) Name() domain.Provider { return f.name }

func (f *fakeClient) EstimateCost(width, height, count int) float64 {
	return f.unitCost * float64(count)
}

func (f *fakeClient) Submit(ctx context.Context, req provider.Request) (*provider.Result, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	cost := f.cost
	if cost == 0 {
		cost = f.EstimateCost(req.Width, req.Height, req.Count)
	}
	return &provider.Result{
		RequestID: "req-" + string(f.name),
		Provider:  f.name,
		Images:    []provider.Image{{URL: "https://example.com/" + string(f.name) + ".png", Seed: 11, Width: req.Width, Height: req.Height}},
		Cost:      cost,
	}, nil
}

func (f *fakeClient) TestConnection(ctx context.Context) error { return f.testErr }

func (f *fakeClient) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeClient) lastRequest() provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

// fakeClock は手で進める時計なのだ。
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 3, 14, 10, 0, 0, 0, time.Local)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// syncBuffer は並行に書かれるログを安全に読むためのバッファなのだ。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
