package provider

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// --- Mocks ---

// instantTimer は Start と同時に発火するタイマーなのだ。待機した時間だけを記録するのだよ。
type instantTimer struct {
	c      chan time.Time
	mu     *sync.Mutex
	waited *[]time.Duration
}

func (t *instantTimer) Start(d time.Duration) {
	t.mu.Lock()
	*t.waited = append(*t.waited, d)
	t.mu.Unlock()
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

type timerRecorder struct {
	mu     sync.Mutex
	waited []time.Duration
}

func (r *timerRecorder) factory() TimerFactory {
	return func() Timer {
		return &instantTimer{c: make(chan time.Time, 1), mu: &r.mu, waited: &r.waited}
	}
}

func (r *timerRecorder) total() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum time.Duration
	for _, d := range r.waited {
		sum += d
	}
	return sum
}

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(rec *timerRecorder, extra ...Option) []Option {
	opts := []Option{
		WithTimerFactory(rec.factory()),
		WithClock(fixedClock),
		WithSeedSource(func() int64 { return 42 }),
		WithLogger(discardLogger()),
		WithRetryPolicy(RetryPolicy{MaxRetries: 2, Delay: time.Second}),
		WithPolling(3, 2*time.Second),
	}
	return append(opts, extra...)
}
