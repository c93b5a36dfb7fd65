package provider

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Timer はポーリング間隔とリトライ待機の両方を駆動するタイマーなのだ。
// テストでは即時に発火する実装を差し込むのだよ。
type Timer = backoff.Timer

// TimerFactory は Timer を都度生成する関数です。
type TimerFactory func() Timer

type wallTimer struct {
	timer *time.Timer
}

func (t *wallTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = time.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *wallTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *wallTimer) C() <-chan time.Time {
	return t.timer.C
}

// NewWallTimer は実時間で動く Timer を返すのだ。
func NewWallTimer() Timer {
	return &wallTimer{}
}
