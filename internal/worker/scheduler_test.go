package worker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hitoshi/fitpress/internal/model"
)

// mockJob はJobのテスト用モック。
type mockJob struct {
	name  string
	calls int32
	err   error
}

func (m *mockJob) Name() string { return m.name }

func (m *mockJob) RunOnce(_ context.Context) error {
	atomic.AddInt32(&m.calls, 1)
	return m.err
}

// syncBuffer は並行書き込みに耐えるログ出力先。
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger(w *syncBuffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func TestScheduler_RunAtStartAndTicks(t *testing.T) {
	var buf syncBuffer
	job := &mockJob{name: "ingest"}
	s := NewScheduler(newTestLogger(&buf), Schedule{Job: job, Interval: 20 * time.Millisecond, RunAtStart: true})

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if got := atomic.LoadInt32(&job.calls); got < 3 {
		t.Errorf("calls = %d, want >= 3 (start + ticks)", got)
	}
	if !strings.Contains(buf.String(), "ジョブスケジューラを停止しました") {
		t.Error("stop should be logged")
	}
}

func TestScheduler_NoRunAtStart(t *testing.T) {
	var buf syncBuffer
	job := &mockJob{name: "digest"}
	s := NewScheduler(newTestLogger(&buf), Schedule{Job: job, Interval: time.Hour})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	if got := atomic.LoadInt32(&job.calls); got != 0 {
		t.Errorf("calls = %d, want 0", got)
	}
}

func TestScheduler_SkipsInvalidInterval(t *testing.T) {
	var buf syncBuffer
	job := &mockJob{name: "cleanup"}
	s := NewScheduler(newTestLogger(&buf), Schedule{Job: job, Interval: 0, RunAtStart: true})

	if len(s.schedules) != 0 {
		t.Fatalf("schedules = %d, want 0", len(s.schedules))
	}
	if !strings.Contains(buf.String(), "実行間隔が不正なためジョブを登録しません") {
		t.Error("skipped schedule should be logged")
	}
}

func TestScheduler_LogsJobErrors(t *testing.T) {
	var buf syncBuffer
	failing := &mockJob{name: "ingest", err: errors.New("boom")}
	busy := &mockJob{name: "digest", err: model.ErrJobAlreadyRunning}
	s := NewScheduler(newTestLogger(&buf),
		Schedule{Job: failing, Interval: time.Hour, RunAtStart: true},
		Schedule{Job: busy, Interval: time.Hour, RunAtStart: true},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	s.Start(ctx)

	out := buf.String()
	if !strings.Contains(out, "ジョブの実行に失敗しました") || !strings.Contains(out, "boom") {
		t.Errorf("job error should be logged: %s", out)
	}
	if !strings.Contains(out, "前回のジョブが実行中のためスキップしました") {
		t.Errorf("already running should be logged as skip: %s", out)
	}
}
