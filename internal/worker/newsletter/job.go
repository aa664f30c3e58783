// Package newsletter はダイジェスト配信ジョブを提供する。
package newsletter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/fitpress/internal/mail"
	"github.com/hitoshi/fitpress/internal/model"
)

// JobName はログとメトリクスで使うジョブ名。
const JobName = "digest"

// SubscriberLister は認証済み購読者の一覧を提供する。
type SubscriberLister interface {
	List(ctx context.Context) ([]model.Subscriber, error)
}

// ArticleLister は記事一覧を提供する。
type ArticleLister interface {
	List(ctx context.Context, q model.ArticleQuery) ([]model.Article, error)
}

// Composer は記事一覧から購読者ごとのダイジェストを組み立てる。
type Composer interface {
	ComposeAll(articles []model.Article, subs []model.Subscriber) []model.DigestPayload
}

// Renderer はダイジェストをメールに変換する。
type Renderer interface {
	Render(p model.DigestPayload) (model.Email, error)
}

// MetricsRecorder は配信ジョブのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordDigestSent()
	RecordDigestFailed()
	RecordDigestsSkipped(n int)
	RecordJobRun(job string, ok bool, duration time.Duration)
}

// Deps は配信ジョブの依存関係。
type Deps struct {
	Subscribers SubscriberLister
	Articles    ArticleLister
	Composer    Composer
	Renderer    Renderer
	Sender      mail.Sender
	Metrics     MetricsRecorder
	Logger      *slog.Logger
}

// Config は配信ジョブの動作パラメータ。
type Config struct {
	// SendInterval は宛先ごとの送信間隔。0以下の場合は間隔を空けない。
	SendInterval time.Duration
}

// Report は配信ジョブ1回分の結果。
type Report struct {
	Subscribers int           `json:"subscribers"`
	Composed    int           `json:"composed"`
	Skipped     int           `json:"skipped"`
	Sent        int           `json:"sent"`
	Failed      int           `json:"failed"`
	Duration    time.Duration `json:"duration_ns"`
}

// Summary は運用者向けの1行要約を返す。
func (r Report) Summary() string {
	return fmt.Sprintf("digest: %d subscribers, %d composed, %d skipped, %d sent, %d failed in %s",
		r.Subscribers, r.Composed, r.Skipped, r.Sent, r.Failed, r.Duration.Round(time.Millisecond))
}

// Job はダイジェスト配信ジョブ。同時に1回分しか実行されない。
type Job struct {
	deps Deps
	cfg  Config
	mu   sync.Mutex
}

// NewJob はJobの新しいインスタンスを生成する。
func NewJob(deps Deps, cfg Config) *Job {
	return &Job{deps: deps, cfg: cfg}
}

// Name はジョブ名を返す。
func (j *Job) Name() string {
	return JobName
}

// RunOnce はジョブを1回実行し、要約をログに出力する。
func (j *Job) RunOnce(ctx context.Context) error {
	report, err := j.Run(ctx)
	if err != nil {
		return err
	}
	j.deps.Logger.Info(report.Summary())
	return nil
}

// Run は実行開始時点の購読者と記事を取得し、購読者ごとにダイジェストを送信する。
// 購読者または記事の取得に失敗した場合は1通も送信せずエラーを返す。
// 個々の送信失敗はReportに集計され、エラーにはならない。
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.mu.TryLock() {
		return Report{}, fmt.Errorf("%s: %w", JobName, model.ErrJobAlreadyRunning)
	}
	defer j.mu.Unlock()

	start := time.Now()
	report, err := j.run(ctx)
	report.Duration = time.Since(start)
	j.deps.Metrics.RecordJobRun(JobName, err == nil, report.Duration)
	return report, err
}

func (j *Job) run(ctx context.Context) (Report, error) {
	var report Report

	subs, err := j.deps.Subscribers.List(ctx)
	if err != nil {
		return report, fmt.Errorf("%s: %w: %w", JobName, model.ErrSubscriberQuery, err)
	}
	report.Subscribers = len(subs)

	articles, err := j.deps.Articles.List(ctx, model.ArticleQuery{
		OrderBy:    model.OrderByPublishedAt,
		Descending: true,
	})
	if err != nil {
		return report, fmt.Errorf("%s: %w: %w", JobName, model.ErrArticleQuery, err)
	}

	j.deps.Logger.Info("ダイジェスト配信を開始します",
		slog.Int("subscribers", len(subs)),
		slog.Int("articles", len(articles)),
	)

	payloads := j.deps.Composer.ComposeAll(articles, subs)
	report.Composed = len(payloads)
	report.Skipped = len(subs) - len(payloads)
	j.deps.Metrics.RecordDigestsSkipped(report.Skipped)

	limiter := rate.NewLimiter(rate.Inf, 1)
	if j.cfg.SendInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(j.cfg.SendInterval), 1)
	}

	for _, p := range payloads {
		if err := limiter.Wait(ctx); err != nil {
			return report, fmt.Errorf("%s: interrupted: %w", JobName, err)
		}

		if err := j.send(ctx, p); err != nil {
			report.Failed++
			j.deps.Metrics.RecordDigestFailed()
			j.deps.Logger.Error("ダイジェストの送信に失敗しました",
				slog.String("recipient", p.Recipient),
				slog.String("error", err.Error()),
			)
			continue
		}
		report.Sent++
		j.deps.Metrics.RecordDigestSent()
	}

	return report, nil
}

func (j *Job) send(ctx context.Context, p model.DigestPayload) error {
	email, err := j.deps.Renderer.Render(p)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return j.deps.Sender.Send(ctx, email)
}
