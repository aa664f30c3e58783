// Package cleanup は保持期間を超過した記事の削除ジョブを提供する。
// fetched_atが保持日数より古い記事を日次で削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/fitpress/internal/model"
)

// JobName はログとメトリクスで使うジョブ名。
const JobName = "cleanup"

// DefaultRetentionDays は記事の保持日数のデフォルト値。
const DefaultRetentionDays = 30

// ArticleDeleter は古い記事を削除する。
type ArticleDeleter interface {
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// MetricsRecorder はジョブ実行結果の記録インターフェース。
type MetricsRecorder interface {
	RecordJobRun(job string, ok bool, duration time.Duration)
}

// Report は削除ジョブ1回分の結果。
type Report struct {
	Deleted       int64         `json:"deleted"`
	Cutoff        time.Time     `json:"cutoff"`
	RetentionDays int           `json:"retention_days"`
	Duration      time.Duration `json:"duration_ns"`
}

// Summary は運用者向けの1行要約を返す。
func (r Report) Summary() string {
	return fmt.Sprintf("cleanup: %d articles older than %s deleted (retention %d days) in %s",
		r.Deleted, r.Cutoff.Format(time.RFC3339), r.RetentionDays, r.Duration.Round(time.Millisecond))
}

// Job は記事の自動削除ジョブ。冪等で、削除対象がなくてもエラーにならない。
type Job struct {
	repo          ArticleDeleter
	metrics       MetricsRecorder
	logger        *slog.Logger
	retentionDays int
	mu            sync.Mutex
	now           func() time.Time
}

// NewJob は新しいJobを生成する。retentionDaysが0以下の場合はデフォルト値を使用する。
func NewJob(repo ArticleDeleter, metrics MetricsRecorder, logger *slog.Logger, retentionDays int) *Job {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Job{
		repo:          repo,
		metrics:       metrics,
		logger:        logger,
		retentionDays: retentionDays,
		now:           time.Now,
	}
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
	j.logger.Info(report.Summary())
	return nil
}

// Run は保持期間を超過した記事を削除する。
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.mu.TryLock() {
		return Report{}, fmt.Errorf("%s: %w", JobName, model.ErrJobAlreadyRunning)
	}
	defer j.mu.Unlock()

	start := time.Now()
	report := Report{
		Cutoff:        j.now().UTC().AddDate(0, 0, -j.retentionDays),
		RetentionDays: j.retentionDays,
	}

	deleted, err := j.repo.DeleteOlderThan(ctx, report.Cutoff)
	report.Duration = time.Since(start)
	j.metrics.RecordJobRun(JobName, err == nil, report.Duration)
	if err != nil {
		j.logger.Error("記事クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.retentionDays),
		)
		return report, fmt.Errorf("記事クリーンアップの実行に失敗: %w", err)
	}
	report.Deleted = deleted

	j.logger.Info("記事クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.retentionDays),
		slog.Float64("duration_ms", float64(report.Duration.Milliseconds())),
	)
	return report, nil
}
