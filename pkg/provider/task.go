package provider

import (
	"context"
	"strings"
	"time"
)

const (
	DefaultMaxPolls     = 60
	DefaultPollInterval = 2 * time.Second
)

// TaskState はリモートタスクの状態機械なのだ。
// Pending -> Running -> {Succeeded, Failed}、ポーリング上限で TimedOut になるのだよ。
type TaskState int

const (
	TaskPending TaskState = iota
	TaskRunning
	TaskSucceeded
	TaskFailed
	TaskTimedOut
)

func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "Pending"
	case TaskRunning:
		return "Running"
	case TaskSucceeded:
		return "Succeeded"
	case TaskFailed:
		return "Failed"
	case TaskTimedOut:
		return "TimedOut"
	}
	return "Unknown"
}

// Terminal は終端状態かどうかを返すのだ。
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed || s == TaskTimedOut
}

// Advance はリモートのステータス文字列を受けて次の状態を返すのだ。
// 終端状態からは遷移せず、Running から Pending へ戻ることもないのだよ。
// 未知のステータスは処理中として扱うのだ。
func (s TaskState) Advance(remote string) TaskState {
	if s.Terminal() {
		return s
	}
	switch strings.ToUpper(strings.TrimSpace(remote)) {
	case "SUCCEEDED":
		return TaskSucceeded
	case "FAILED":
		return TaskFailed
	case "PENDING":
		if s == TaskRunning {
			return TaskRunning
		}
		return TaskPending
	default:
		return TaskRunning
	}
}

type pollSpec struct {
	maxPolls int
	interval time.Duration
	newTimer TimerFactory
}

// pollTask は fetch を間隔を空けて呼び出し、終端状態に達するまで状態機械を進めるのだ。
// 上限に達したら TaskTimedOut と試行回数を返すのだよ。
func pollTask(ctx context.Context, ps pollSpec, fetch func(ctx context.Context) (string, error)) (TaskState, int, error) {
	maxPolls := ps.maxPolls
	if maxPolls <= 0 {
		maxPolls = DefaultMaxPolls
	}
	newTimer := ps.newTimer
	if newTimer == nil {
		newTimer = NewWallTimer
	}

	timer := newTimer()
	defer timer.Stop()

	state := TaskPending
	for attempt := 1; ; attempt++ {
		status, err := fetch(ctx)
		if err != nil {
			return state, attempt, err
		}
		state = state.Advance(status)
		if state.Terminal() {
			return state, attempt, nil
		}
		if attempt >= maxPolls {
			return TaskTimedOut, attempt, nil
		}

		timer.Start(ps.interval)
		select {
		case <-ctx.Done():
			return state, attempt, ctx.Err()
		case <-timer.C():
		}
	}
}
