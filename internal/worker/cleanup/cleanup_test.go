package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/fitpress/internal/model"
)

// mockDeleter はArticleDeleterのテスト用モック。
type mockDeleter struct {
	called  int
	before  time.Time
	deleted int64
	err     error
}

func (m *mockDeleter) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	m.called++
	m.before = before
	return m.deleted, m.err
}

type mockMetrics struct {
	runs   int
	lastOK bool
}

func (m *mockMetrics) RecordJobRun(_ string, ok bool, _ time.Duration) {
	m.runs++
	m.lastOK = ok
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

var fixedNow = time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

func newTestJob(repo *mockDeleter, m *mockMetrics, buf *bytes.Buffer, days int) *Job {
	job := NewJob(repo, m, newTestLogger(buf), days)
	job.now = func() time.Time { return fixedNow }
	return job
}

func TestNewJob_DefaultRetentionDays(t *testing.T) {
	var buf bytes.Buffer
	job := NewJob(&mockDeleter{}, &mockMetrics{}, newTestLogger(&buf), 0)

	if job.retentionDays != DefaultRetentionDays {
		t.Errorf("retentionDays = %d, want %d", job.retentionDays, DefaultRetentionDays)
	}
}

func TestJob_Run_DeletesBeforeCutoff(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{deleted: 7}
	m := &mockMetrics{}
	job := newTestJob(repo, m, &buf, 30)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := fixedNow.AddDate(0, 0, -30)
	if !repo.before.Equal(want) {
		t.Errorf("cutoff = %v, want %v", repo.before, want)
	}
	if report.Deleted != 7 || !report.Cutoff.Equal(want) {
		t.Errorf("report = %+v", report)
	}
	if m.runs != 1 || !m.lastOK {
		t.Errorf("metrics runs=%d ok=%v, want 1 true", m.runs, m.lastOK)
	}
}

func TestJob_Run_Idempotent(t *testing.T) {
	var buf bytes.Buffer
	repo := &mockDeleter{}
	job := newTestJob(repo, &mockMetrics{}, &buf, 30)

	for i := 0; i < 2; i++ {
		report, err := job.Run(context.Background())
		if err != nil {
			t.Fatalf("run %d returned error: %v", i, err)
		}
		if report.Deleted != 0 {
			t.Errorf("run %d deleted = %d, want 0", i, report.Deleted)
		}
	}
	if repo.called != 2 {
		t.Errorf("DeleteOlderThan called %d times, want 2", repo.called)
	}
}

func TestJob_Run_LogsCompletion(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockDeleter{deleted: 3}, &mockMetrics{}, &buf, 14)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	var entry map[string]interface{}
	line := strings.TrimSpace(buf.String())
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log is not JSON: %v", err)
	}
	if entry["deleted_count"] != float64(3) {
		t.Errorf("deleted_count = %v, want 3", entry["deleted_count"])
	}
	if entry["retention_days"] != float64(14) {
		t.Errorf("retention_days = %v, want 14", entry["retention_days"])
	}
}

func TestJob_Run_ErrorPropagates(t *testing.T) {
	var buf bytes.Buffer
	dbErr := errors.New("connection refused")
	m := &mockMetrics{}
	job := newTestJob(&mockDeleter{err: dbErr}, m, &buf, 30)

	_, err := job.Run(context.Background())
	if !errors.Is(err, dbErr) {
		t.Fatalf("error = %v, want wrapping %v", err, dbErr)
	}
	if m.lastOK {
		t.Error("job run should be recorded as failed")
	}
	if !strings.Contains(buf.String(), `"level":"ERROR"`) {
		t.Error("failure was not logged at ERROR level")
	}
}

func TestJob_Run_AlreadyRunning(t *testing.T) {
	var buf bytes.Buffer
	job := newTestJob(&mockDeleter{}, &mockMetrics{}, &buf, 30)
	job.mu.Lock()
	defer job.mu.Unlock()

	if _, err := job.Run(context.Background()); !errors.Is(err, model.ErrJobAlreadyRunning) {
		t.Fatalf("error = %v, want ErrJobAlreadyRunning", err)
	}
}

func TestReport_Summary(t *testing.T) {
	r := Report{Deleted: 2, Cutoff: fixedNow, RetentionDays: 30, Duration: 20 * time.Millisecond}
	want := "cleanup: 2 articles older than 2024-06-30T12:00:00Z deleted (retention 30 days) in 20ms"
	if got := r.Summary(); got != want {
		t.Errorf("Summary() = %q, want %q", got, want)
	}
}
