package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = time.Second
)

// RetryPolicy は固定間隔のリトライ方針なのだ。MaxRetries 回まで再試行するので、
// 最大試行回数は MaxRetries+1 回になるのだよ。
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy はデフォルトのリトライ方針を返すのだ。
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: DefaultMaxRetries, Delay: DefaultRetryDelay}
}

// Retry は op を方針に従って再実行する汎用コンビネータなのだ。
// IsRetryable が false を返すエラーは即座に返すのだ。notify は失敗のたびに試行番号付きで呼ばれるのだよ。
func Retry[T any](
	ctx context.Context,
	policy RetryPolicy,
	newTimer TimerFactory,
	op func(ctx context.Context) (T, error),
	notify func(attempt int, err error),
) (T, error) {
	retries := policy.MaxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(policy.Delay), uint64(retries)),
		ctx,
	)

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err != nil && !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	onFailure := func(err error, _ time.Duration) {
		if notify != nil {
			notify(attempt, err)
		}
	}

	var timer backoff.Timer
	if newTimer != nil {
		timer = newTimer()
	}

	v, err := backoff.RetryNotifyWithTimerAndData(operation, b, onFailure, timer)
	if err != nil {
		return v, fmt.Errorf("%d 回の試行で失敗しました: %w", attempt, err)
	}
	return v, nil
}
