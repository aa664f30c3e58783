// Package fetch はフィードソースのHTTP取得を提供する。
// 同一カテゴリ内のソースを並列に取得し、一時的な失敗は指数バックオフでリトライする。
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hitoshi/fitpress/internal/model"
)

const userAgent = "FitPress/1.0 Feed Fetcher"

// EgressGuard は外向き通信の検証インターフェース。
type EgressGuard interface {
	ValidateURL(rawURL string) error
	NewClient(timeout time.Duration) *http.Client
}

// MetricsRecorder は取得結果のメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordFetchSuccess(category string)
	RecordFetchFailure(category string, reason string)
	RecordHTTPStatus(statusCode int)
	RecordFetchLatency(duration time.Duration)
}

// Result は1ソース分の取得結果。Errがnilの場合のみBodyが有効。
type Result struct {
	Source   model.FeedSource
	Body     []byte
	Err      error
	Duration time.Duration
}

// OK は取得が成功したかを返す。
func (r Result) OK() bool {
	return r.Err == nil
}

// Options はFetcherの動作パラメータ。
type Options struct {
	Timeout       time.Duration
	MaxBodySize   int64
	MaxConcurrent int
	MaxRetries    int
	// RetryInterval はリトライの初回待機時間。0の場合は既定値を使う。
	RetryInterval time.Duration
}

// Fetcher はフィードソースのHTTP GETを行う。
type Fetcher struct {
	guard   EgressGuard
	client  *http.Client
	metrics MetricsRecorder
	logger  *slog.Logger
	opts    Options
}

// NewFetcher はFetcherの新しいインスタンスを生成する。
// MaxConcurrentが0以下の場合はデフォルト値10を使用する。
func NewFetcher(guard EgressGuard, metrics MetricsRecorder, logger *slog.Logger, opts Options) *Fetcher {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 10
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 5 * 1024 * 1024
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = initialRetryInterval
	}
	return &Fetcher{
		guard:   guard,
		client:  guard.NewClient(opts.Timeout),
		metrics: metrics,
		logger:  logger,
		opts:    opts,
	}
}

// FetchAll は全ソースを並列に取得し、すべての取得が完了してから結果を返す。
// 結果は完了順に並ぶ。個々の失敗はResult.Errに格納され、他のソースの取得は継続する。
func (f *Fetcher) FetchAll(ctx context.Context, sources []model.FeedSource) []Result {
	if len(sources) == 0 {
		return nil
	}

	results := make(chan Result, len(sources))
	sem := make(chan struct{}, f.opts.MaxConcurrent)
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		sem <- struct{}{}

		go func(src model.FeedSource) {
			defer wg.Done()
			defer func() { <-sem }()

			results <- f.Fetch(ctx, src)
		}(src)
	}

	wg.Wait()
	close(results)

	out := make([]Result, 0, len(sources))
	for r := range results {
		out = append(out, r)
	}
	return out
}

// Fetch は1ソースを取得する。失敗はログとメトリクスに記録した上でResult.Errとして返す。
func (f *Fetcher) Fetch(ctx context.Context, src model.FeedSource) Result {
	start := time.Now()
	result := Result{Source: src}

	if err := f.guard.ValidateURL(src.Endpoint); err != nil {
		result.Err = fmt.Errorf("URL検証に失敗: %w", err)
		result.Duration = time.Since(start)
		f.logger.Error("フィードURLの検証に失敗しました",
			slog.String("category", src.Category),
			slog.String("source_url", src.Endpoint),
			slog.String("error", err.Error()),
		)
		f.metrics.RecordFetchFailure(src.Category, "blocked")
		return result
	}

	attempt := 0
	policy := newRetryPolicy(ctx, f.opts.MaxRetries, f.opts.RetryInterval, f.opts.Timeout*time.Duration(f.opts.MaxRetries+1))
	body, err := backoff.RetryNotifyWithData(func() ([]byte, error) {
		attempt++
		return f.get(ctx, src.Endpoint)
	}, policy, func(err error, wait time.Duration) {
		f.logger.Warn("フィード取得をリトライします",
			slog.String("category", src.Category),
			slog.String("source_url", src.Endpoint),
			slog.Int("attempt", attempt),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})

	result.Duration = time.Since(start)
	f.metrics.RecordFetchLatency(result.Duration)

	if err != nil {
		result.Err = err
		reason := failureReason(err)
		f.logger.Error("フィード取得に失敗しました",
			slog.String("category", src.Category),
			slog.String("source_url", src.Endpoint),
			slog.String("reason", reason),
			slog.Int("attempts", attempt),
			slog.String("error", err.Error()),
			slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
		)
		f.metrics.RecordFetchFailure(src.Category, reason)
		return result
	}

	result.Body = body
	f.logger.Info("フィード取得が完了しました",
		slog.String("category", src.Category),
		slog.String("source_url", src.Endpoint),
		slog.Int("bytes", len(body)),
		slog.Int("attempts", attempt),
		slog.Float64("duration_ms", float64(result.Duration.Milliseconds())),
	)
	f.metrics.RecordFetchSuccess(src.Category)
	return result
}

// get は1回分のHTTP GETを行う。リトライ不要な失敗はbackoff.Permanentで包んで返す。
func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("リクエスト作成に失敗: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, */*")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(fmt.Errorf("HTTPリクエスト失敗: %w", err))
		}
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	f.metrics.RecordHTTPStatus(resp.StatusCode)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case StatusOK:
	case StatusRetryable:
		return nil, &StatusError{StatusCode: resp.StatusCode}
	default:
		return nil, backoff.Permanent(&StatusError{StatusCode: resp.StatusCode})
	}

	// 上限を1バイト超えて読めた場合はサイズ超過とみなす
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > f.opts.MaxBodySize {
		return nil, backoff.Permanent(fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.opts.MaxBodySize))
	}
	return body, nil
}

// Failed は失敗した結果のみを返す。
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.OK() {
			failed = append(failed, r)
		}
	}
	return failed
}
