package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// ErrProviderNotConfigured は指定されたプロバイダのクライアントが登録されていないことを表すのだ。
var ErrProviderNotConfigured = errors.New("プロバイダが設定されていません")

// BudgetExceededError は日次予算の超過で受付を拒否したことを表すのだ。
type BudgetExceededError struct {
	Spent    float64 // 確定済みの当日コスト
	Reserved float64 // 実行中リクエストの見積もり合計
	Estimate float64
	Limit    float64
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("日次予算を超過するため受け付けられません (使用済み %.2f + 予約 %.2f + 見積もり %.2f / 上限 %.2f 元)",
		e.Spent, e.Reserved, e.Estimate, e.Limit)
}

// AllProvidersFailedError はハイブリッド経路で全てのプロバイダが失敗したことを表すのだ。
// Last には最後に試したプロバイダのエラーが入るのだよ。
type AllProvidersFailedError struct {
	Attempted []domain.Provider
	Last      error
}

func (e *AllProvidersFailedError) Error() string {
	names := make([]string, len(e.Attempted))
	for i, p := range e.Attempted {
		names[i] = string(p)
	}
	return fmt.Sprintf("全てのプロバイダで生成に失敗しました [%s]: %v", strings.Join(names, ", "), e.Last)
}

func (e *AllProvidersFailedError) Unwrap() error { return e.Last }
