// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ジョブ実行時のセンチネルエラー。errors.Isで判定する。
var (
	// ErrJobAlreadyRunning は同じジョブが実行中のため起動を拒否したことを示す。
	ErrJobAlreadyRunning = errors.New("job is already running")
	// ErrSubscriberQuery は購読者一覧の取得に失敗したことを示す。
	ErrSubscriberQuery = errors.New("failed to list subscribers")
	// ErrArticleQuery は記事一覧の取得に失敗したことを示す。
	ErrArticleQuery = errors.New("failed to list articles")
	// ErrInvalidRegistry はフィードレジストリの内容が不正であることを示す。
	ErrInvalidRegistry = errors.New("invalid feed registry")
)

// APIError は統一エラーフォーマットを表す。
// 運用者に表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: job, system
	Action   string // 対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeJobAlreadyRunning = "JOB_ALREADY_RUNNING"
	ErrCodeJobFailed         = "JOB_FAILED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternal          = "INTERNAL_ERROR"
)

// NewJobAlreadyRunningError はジョブ多重起動エラーを生成する。
func NewJobAlreadyRunningError(job string) *APIError {
	return &APIError{
		Code:     ErrCodeJobAlreadyRunning,
		Message:  fmt.Sprintf("ジョブは既に実行中です: %s", job),
		Category: "job",
		Action:   "実行中のジョブが完了してから再度お試しください。",
	}
}

// NewJobFailedError はジョブ失敗エラーを生成する。
// 詳細はログのみに記録し、レスポンスには要約のみを含める。
func NewJobFailedError(job string) *APIError {
	return &APIError{
		Code:     ErrCodeJobFailed,
		Message:  fmt.Sprintf("ジョブの実行に失敗しました: %s", job),
		Category: "job",
		Action:   "ログを確認し、データベースと外部サービスの状態を確認してください。",
	}
}

// NewUnauthorizedError はジョブ起動トークンの検証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "AuthorizationヘッダーにJOBS_TOKENをBearerトークンとして指定してください。",
	}
}
