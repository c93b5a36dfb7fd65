package router

import (
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultMaxDailyCost = 500.0
	warnUtilization     = 0.8
	errorUtilization    = 0.9
)

// CostStats は当日の支出状況のスナップショットです。
type CostStats struct {
	Date         string  `json:"date"`
	DailyCost    float64 `json:"daily_cost"`
	MaxDailyCost float64 `json:"max_daily_cost"`
	Remaining    float64 `json:"remaining"`
	Reserved     float64 `json:"reserved"`
	Utilization  float64 `json:"utilization"` // 0.0 - 1.0
	Generations  int     `json:"generations"`
}

// CostLedger は日次コストの台帳なのだ。
// 受付時に見積もりを予約し、成功で実費に確定、失敗で予約を解放するのだよ。
// 日付が変わったときだけ当日コストが 0 に戻り、それ以外では単調に増えるのだ。
type CostLedger struct {
	mu          sync.Mutex
	max         float64
	daily       float64
	reserved    float64
	date        string
	generations int

	now    func() time.Time
	logger *slog.Logger
}

// NewCostLedger は上限 maxDaily の台帳を作るのだ。
func NewCostLedger(maxDaily float64, now func() time.Time, logger *slog.Logger) *CostLedger {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CostLedger{max: maxDaily, now: now, logger: logger, date: dateKey(now())}
}

func dateKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

// rollover は日付が変わっていれば当日コストと生成数を 0 に戻すのだ。mu を保持して呼ぶこと。
func (l *CostLedger) rollover() {
	today := dateKey(l.now())
	if today == l.date {
		return
	}
	l.logger.Info("日付が変わったので日次コストをリセットするのだ",
		"previous_date", l.date,
		"previous_cost", l.daily,
		"date", today)
	l.date = today
	l.daily = 0
	l.generations = 0
}

// Reserve は見積もり額を予約するのだ。
// 既に上限に達しているか、見積もりを足すと上限を超える場合は BudgetExceededError を返すのだよ。
func (l *CostLedger) Reserve(estimate float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	committed := l.daily + l.reserved
	if committed >= l.max || committed+estimate > l.max {
		return &BudgetExceededError{Spent: l.daily, Reserved: l.reserved, Estimate: estimate, Limit: l.max}
	}
	l.reserved += estimate
	return nil
}

// Release は失敗したリクエストの予約を解放するのだ。
func (l *CostLedger) Release(estimate float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unreserve(estimate)
}

// Commit は予約を解放し、プロバイダが報告した実費を計上するのだ。
func (l *CostLedger) Commit(estimate, actual float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.unreserve(estimate)
	l.rollover()
	l.daily += actual
	l.generations++

	utilization := l.utilization()
	switch {
	case utilization >= errorUtilization:
		l.logger.Error("日次予算の90%を超えたのだ",
			"daily_cost", l.daily, "max_daily_cost", l.max, "utilization", utilization)
	case utilization >= warnUtilization:
		l.logger.Warn("日次予算の80%を超えたのだ",
			"daily_cost", l.daily, "max_daily_cost", l.max, "utilization", utilization)
	}
}

func (l *CostLedger) unreserve(estimate float64) {
	l.reserved -= estimate
	if l.reserved < 1e-9 {
		l.reserved = 0
	}
}

func (l *CostLedger) utilization() float64 {
	if l.max <= 0 {
		return 1
	}
	return l.daily / l.max
}

// Stats は台帳のスナップショットを返すのだ。
func (l *CostLedger) Stats() CostStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rollover()
	remaining := l.max - l.daily
	if remaining < 0 {
		remaining = 0
	}
	return CostStats{
		Date:         l.date,
		DailyCost:    l.daily,
		MaxDailyCost: l.max,
		Remaining:    remaining,
		Reserved:     l.reserved,
		Utilization:  l.utilization(),
		Generations:  l.generations,
	}
}
