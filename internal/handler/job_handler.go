// Package handler は運用向けHTTPエンドポイントを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fitpress/internal/middleware"
	"github.com/hitoshi/fitpress/internal/model"
)

// JobRunner はHTTPから起動できるジョブ。
type JobRunner interface {
	Name() string
	Trigger(ctx context.Context) (JobResult, error)
}

// JobResult はジョブ1回分の結果。
type JobResult struct {
	Summary string
	Report  any
}

// jobResponse はジョブ起動エンドポイントのレスポンス。
type jobResponse struct {
	Job     string `json:"job"`
	Summary string `json:"summary"`
	Report  any    `json:"report"`
}

// Summarizer は1行要約を持つジョブ結果。
type Summarizer interface {
	Summary() string
}

type jobRunner[R Summarizer] struct {
	name string
	run  func(ctx context.Context) (R, error)
}

// NewJobRunner はRun関数をJobRunnerに適合させる。
func NewJobRunner[R Summarizer](name string, run func(ctx context.Context) (R, error)) JobRunner {
	return &jobRunner[R]{name: name, run: run}
}

func (j *jobRunner[R]) Name() string { return j.name }

func (j *jobRunner[R]) Trigger(ctx context.Context) (JobResult, error) {
	report, err := j.run(ctx)
	if err != nil {
		return JobResult{}, err
	}
	return JobResult{Summary: report.Summary(), Report: report}, nil
}

// JobHandler はジョブ起動のHTTPハンドラー。
type JobHandler struct {
	job    JobRunner
	logger *slog.Logger
}

// NewJobHandler はJobHandlerを生成する。
func NewJobHandler(job JobRunner, logger *slog.Logger) *JobHandler {
	return &JobHandler{job: job, logger: logger}
}

// ServeHTTP はジョブを同期実行し、要約をJSONで返す。
// 実行中の場合は409、実行に失敗した場合は500を返す。
// クライアントが切断してもジョブは最後まで実行する。
func (h *JobHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	name := h.job.Name()
	result, err := h.job.Trigger(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, model.ErrJobAlreadyRunning) {
			middleware.WriteErrorResponse(w, http.StatusConflict, model.NewJobAlreadyRunningError(name))
			return
		}
		h.logger.Error("ジョブの実行に失敗しました",
			slog.String("job", name),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewJobFailedError(name))
		return
	}

	h.logger.Info(result.Summary, slog.String("job", name))
	middleware.WriteJSON(w, http.StatusOK, jobResponse{
		Job:     name,
		Summary: result.Summary,
		Report:  result.Report,
	})
}
