package provider

import (
	"errors"
	"fmt"

	"github.com/shouni/go-storyboard-kit/pkg/domain"
)

// AuthError は署名や認証情報の不備なのだ。リトライしないのだよ。
type AuthError struct {
	Provider   domain.Provider
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: 認証に失敗しました (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// TaskCreationError はタスク作成のレスポンスに task_id が無かったことを表すのだ。
type TaskCreationError struct {
	Provider domain.Provider
	Message  string
}

func (e *TaskCreationError) Error() string {
	return fmt.Sprintf("%s: タスクの作成に失敗しました: %s", e.Provider, e.Message)
}

// PollTimeoutError はポーリング回数の上限を超えたことを表すのだ。
type PollTimeoutError struct {
	Provider  domain.Provider
	TaskID    string
	Attempts  int
	LastState TaskState
}

func (e *PollTimeoutError) Error() string {
	return fmt.Sprintf("%s: タスク %s が %d 回のポーリングで完了しませんでした (最終状態 %s)", e.Provider, e.TaskID, e.Attempts, e.LastState)
}

// ProviderFailure はリモート側が明示的に FAILED を返したか、結果が空だったことを表すのだ。
type ProviderFailure struct {
	Provider domain.Provider
	TaskID   string
	Message  string
}

func (e *ProviderFailure) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("%s: 画像生成に失敗しました: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("%s: タスク %s が失敗しました: %s", e.Provider, e.TaskID, e.Message)
}

// NetworkError は通信エラーや想定外のHTTPステータスなのだ。
type NetworkError struct {
	Provider   domain.Provider
	Op         string
	StatusCode int
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s が status %d で失敗しました: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s の通信に失敗しました: %v", e.Provider, e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsRetryable はリトライで回復しうるエラーかどうかを返すのだ。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return false
	}
	return !errors.Is(err, ErrInvalidRequest)
}

// ErrInvalidRequest はリクエスト自体の不備で、送信前に検出されるのだ。
var ErrInvalidRequest = errors.New("不正なリクエストです")
