package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/fitpress/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	HealthChecker HealthChecker
	Metrics       http.Handler
	Logger        *slog.Logger

	// JobsToken が空でない場合、/jobs/* はBearerトークンを要求する。
	JobsToken string

	Ingest  JobRunner
	Digest  JobRunner
	Cleanup JobRunner
}

// NewRouter は運用APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders
//
// /jobs/* にはさらにJobTokenミドルウェアを適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/health", NewHealthHandler(deps.HealthChecker, deps.Logger))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	r.Route("/jobs", func(r chi.Router) {
		r.Use(middleware.NewJobTokenMiddleware(deps.JobsToken))

		r.Method(http.MethodPost, "/fetch-articles", NewJobHandler(deps.Ingest, deps.Logger))
		r.Method(http.MethodPost, "/send-newsletters", NewJobHandler(deps.Digest, deps.Logger))
		r.Method(http.MethodPost, "/cleanup-articles", NewJobHandler(deps.Cleanup, deps.Logger))
	})

	return r
}
