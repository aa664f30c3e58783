// Package worker はバックグラウンドジョブの定期実行を提供する。
// 取り込み、ダイジェスト配信、クリーンアップの各ジョブはサブパッケージに置く。
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/fitpress/internal/model"
)

// Job は定期実行されるジョブのインターフェース。
type Job interface {
	// Name はログとメトリクスに使うジョブ名を返す。
	Name() string
	// RunOnce はジョブを1回実行する。
	RunOnce(ctx context.Context) error
}

// Schedule はジョブと実行間隔の組。
type Schedule struct {
	Job      Job
	Interval time.Duration
	// RunAtStart がtrueの場合、起動直後に1回実行する。
	RunAtStart bool
}

// Scheduler は複数のジョブをそれぞれのティッカーで実行する。
type Scheduler struct {
	schedules []Schedule
	logger    *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// Intervalが0以下のスケジュールは登録しない。
func NewScheduler(logger *slog.Logger, schedules ...Schedule) *Scheduler {
	s := &Scheduler{logger: logger}
	for _, sc := range schedules {
		if sc.Interval <= 0 {
			logger.Warn("実行間隔が不正なためジョブを登録しません",
				slog.String("job", sc.Job.Name()),
				slog.Duration("interval", sc.Interval),
			)
			continue
		}
		s.schedules = append(s.schedules, sc)
	}
	return s
}

// Start はコンテキストがキャンセルされるまで全ジョブを実行し、全ジョブの停止を待って戻る。
func (s *Scheduler) Start(ctx context.Context) {
	var wg sync.WaitGroup
	for _, sc := range s.schedules {
		wg.Add(1)
		go func(sc Schedule) {
			defer wg.Done()
			s.loop(ctx, sc)
		}(sc)
	}
	wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context, sc Schedule) {
	ticker := time.NewTicker(sc.Interval)
	defer ticker.Stop()

	name := sc.Job.Name()
	s.logger.Info("ジョブスケジューラを開始しました",
		slog.String("job", name),
		slog.Duration("interval", sc.Interval),
		slog.Bool("run_at_start", sc.RunAtStart),
	)

	if sc.RunAtStart {
		s.run(ctx, sc.Job)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ジョブスケジューラを停止しました", slog.String("job", name))
			return
		case <-ticker.C:
			s.run(ctx, sc.Job)
		}
	}
}

// run はジョブを1回実行する。多重起動による拒否は警告として扱う。
func (s *Scheduler) run(ctx context.Context, job Job) {
	err := job.RunOnce(ctx)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrJobAlreadyRunning):
		s.logger.Warn("前回のジョブが実行中のためスキップしました",
			slog.String("job", job.Name()),
		)
	case ctx.Err() != nil:
		// シャットダウン中の中断はエラーとして扱わない
	default:
		s.logger.Error("ジョブの実行に失敗しました",
			slog.String("job", job.Name()),
			slog.String("error", err.Error()),
		)
	}
}
