package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
	"github.com/shouni/go-storyboard-kit/pkg/downloader"
	"github.com/shouni/go-storyboard-kit/pkg/provider"
	"github.com/shouni/go-storyboard-kit/pkg/router"
)

// --- Mocks ---

// fakeRouter は1回ごとに連番の URL とシードを返すのだ。
type fakeRouter struct {
	mu       sync.Mutex
	requests []domain.GenerationRequest
	cost     float64
	// failWhen が true を返すリクエストは失敗させるのだ
	failWhen func(n int, req domain.GenerationRequest) bool
	// delay の間リクエストを保持して、同時実行数を観測できるようにするのだ
	delay       time.Duration
	inFlight    int
	maxInFlight int
	capacity    int
}

func (r *fakeRouter) Generate(ctx context.Context, req domain.GenerationRequest) (*router.GenerationResponse, error) {
	r.mu.Lock()
	r.requests = append(r.requests, req)
	n := len(r.requests)
	r.inFlight++
	r.maxInFlight = max(r.maxInFlight, r.inFlight)
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	if r.failWhen != nil && r.failWhen(n, req) {
		return nil, errors.New("provider exploded")
	}
	seed := int64(1000 + n)
	if req.Seed != nil {
		seed = *req.Seed
	}
	return &router.GenerationResponse{
		RequestID:      fmt.Sprintf("req-%d", n),
		Provider:       domain.ProviderAliyun,
		Images:         []provider.Image{{URL: fmt.Sprintf("https://cdn.example.com/%d.png", n), Seed: seed, Width: 1280, Height: 1280}},
		Cost:           r.cost,
		GenerationTime: 10 * time.Second,
	}, nil
}

func (r *fakeRouter) CostStats() router.CostStats {
	return router.CostStats{Date: "2026-03-14", DailyCost: 1.5, MaxDailyCost: 500, Remaining: 498.5, Utilization: 0.003}
}

func (r *fakeRouter) QueueStatus() router.QueueStatus {
	return router.QueueStatus{Capacity: r.capacity}
}

func (r *fakeRouter) peakInFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxInFlight
}

func (r *fakeRouter) snapshot() []domain.GenerationRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.GenerationRequest(nil), r.requests...)
}

func (r *fakeRouter) promptsContaining(s string) int {
	n := 0
	for _, req := range r.snapshot() {
		if strings.Contains(req.Prompt, s) {
			n++
		}
	}
	return n
}

type fakeDownloader struct {
	mu   sync.Mutex
	dirs []string
}

func (d *fakeDownloader) Download(ctx context.Context, img domain.GeneratedImage, opts downloader.Options) (*downloader.Result, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dirs = append(d.dirs, opts.OutputDir)
	return &downloader.Result{LocalPath: opts.OutputDir + "/" + img.Metadata.ShotID + ".png", FileSize: 10}, nil
}

var testNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
