package downloader

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shouni/go-storyboard-kit/pkg/provider"
)

// --- Mocks ---

type fakeFetcher struct {
	mu       sync.Mutex
	data     map[string][]byte
	failures map[string]int // 残りの失敗回数
	calls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		data:     map[string][]byte{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

func (f *fakeFetcher) FetchBytes(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[url]++
	if f.failures[url] > 0 {
		f.failures[url]--
		return nil, errors.New("connection reset by peer")
	}
	data, ok := f.data[url]
	if !ok {
		return nil, errors.New("404 not found")
	}
	return data, nil
}

func (f *fakeFetcher) callsFor(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type instantTimer struct{ c chan time.Time }

func (t *instantTimer) Start(time.Duration) { t.c <- time.Time{} }
func (t *instantTimer) Stop()               {}
func (t *instantTimer) C() <-chan time.Time { return t.c }

func instantTimers() provider.Timer { return &instantTimer{c: make(chan time.Time, 1)} }

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func newTestDownloader(f Fetcher, extra ...Option) *Downloader {
	opts := []Option{
		WithURLGuard(nil),
		WithTimerFactory(instantTimers),
		WithClock(func() time.Time { return fixedNow }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	d, err := New(f, append(opts, extra...)...)
	if err != nil {
		panic(err)
	}
	return d
}

// testPNG は単色の PNG を返すのだ。
func testPNG(w, h int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 80, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
