package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// StatusClass はHTTPステータスコードに基づく取得結果の分類。
type StatusClass int

const (
	// StatusOK は取得成功（2xx）。
	StatusOK StatusClass = iota
	// StatusRetryable は一時的な失敗でリトライ対象（429/5xx）。
	StatusRetryable
	// StatusPermanent はリトライしても結果が変わらない失敗（429以外の4xx、3xxなど）。
	StatusPermanent
)

// initialRetryInterval はリトライの初回待機時間。
const initialRetryInterval = 500 * time.Millisecond

// ErrBodyTooLarge はレスポンスボディが上限サイズを超えたことを示す。
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// StatusError は2xx以外のHTTPステータスによる取得失敗を表す。
type StatusError struct {
	StatusCode int
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %d", e.StatusCode)
}

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
func ClassifyHTTPStatus(statusCode int) StatusClass {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return StatusOK
	case statusCode == 429:
		return StatusRetryable
	case statusCode >= 500:
		return StatusRetryable
	default:
		return StatusPermanent
	}
}

// newRetryPolicy はリトライ回数と総経過時間で打ち切る指数バックオフを生成する。
// maxElapsedが0以下の場合は経過時間による打ち切りを行わない。
func newRetryPolicy(ctx context.Context, maxRetries int, initial, maxElapsed time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 5 * time.Second
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	if maxElapsed > 0 {
		b.MaxElapsedTime = maxElapsed
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxRetries)), ctx)
}

// failureReason は取得失敗をメトリクスのラベル値に分類する。
func failureReason(err error) string {
	var statusErr *StatusError
	var netErr net.Error
	switch {
	case errors.Is(err, ErrBodyTooLarge):
		return "too_large"
	case errors.As(err, &statusErr):
		return "status"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	default:
		return "network"
	}
}
