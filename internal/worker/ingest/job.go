// Package ingest はフィード取り込みジョブを提供する。
// カテゴリごとに取得 → 解析 → 選定 → UPSERT を行い、必要に応じて補充記事を生成する。
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/fitpress/internal/ai"
	"github.com/hitoshi/fitpress/internal/article"
	"github.com/hitoshi/fitpress/internal/feed"
	"github.com/hitoshi/fitpress/internal/model"
	"github.com/hitoshi/fitpress/internal/worker/fetch"
)

// JobName はログとメトリクスで使うジョブ名。
const JobName = "ingest"

// SourceRegistry はカテゴリと取得先の一覧を提供する。
type SourceRegistry interface {
	Categories() []string
	Sources(category string) []model.FeedSource
}

// FeedFetcher はカテゴリ内のソースを並列に取得する。
type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []model.FeedSource) []fetch.Result
}

// FeedParser は取得した文書を正規化済み記事に変換する。
type FeedParser interface {
	Parse(body []byte, now time.Time) ([]model.NormalizedItem, error)
}

// ItemSelector はカテゴリ内の記事を選定する。
type ItemSelector interface {
	Select(batches []feed.SourceItems) []model.NormalizedItem
}

// ArticleUpserter は記事を永続化する。
type ArticleUpserter interface {
	UpsertCategory(ctx context.Context, category string, items []model.NormalizedItem) article.UpsertResult
	UpsertGenerated(ctx context.Context, category string, item model.NormalizedItem) (*model.Article, error)
}

// MetricsRecorder は取り込みジョブのメトリクス記録インターフェース。
type MetricsRecorder interface {
	RecordParseFailure(category string)
	RecordUpsertResult(category string, succeeded, failed int)
	RecordFillerGenerated(category string)
	RecordJobRun(job string, ok bool, duration time.Duration)
}

// Config は取り込みジョブの動作パラメータ。
type Config struct {
	// MaxCategories は同時に処理するカテゴリ数の上限。
	MaxCategories int
	// FillerEnabled がtrueの場合、記事数がFillerMinArticles未満のカテゴリに補充記事を生成する。
	FillerEnabled     bool
	FillerMinArticles int
}

// Deps は取り込みジョブの依存関係。Generatorは補充記事を使わない場合nilでよい。
type Deps struct {
	Registry  SourceRegistry
	Fetcher   FeedFetcher
	Parser    FeedParser
	Selector  ItemSelector
	Upserter  ArticleUpserter
	Generator ai.Generator
	Metrics   MetricsRecorder
	Logger    *slog.Logger
}

// Job はフィード取り込みジョブ。同時に1回分しか実行されない。
type Job struct {
	deps Deps
	cfg  Config
	mu   sync.Mutex
	now  func() time.Time
}

// NewJob はJobの新しいインスタンスを生成する。
// MaxCategoriesが0以下の場合はデフォルト値4を使用する。
func NewJob(deps Deps, cfg Config) *Job {
	if cfg.MaxCategories <= 0 {
		cfg.MaxCategories = 4
	}
	if cfg.FillerMinArticles <= 0 {
		cfg.FillerMinArticles = 3
	}
	if deps.Generator == nil {
		cfg.FillerEnabled = false
	}
	return &Job{deps: deps, cfg: cfg, now: time.Now}
}

// CategoryReport はカテゴリ1件分の処理結果。
type CategoryReport struct {
	Category     string `json:"category"`
	Sources      int    `json:"sources"`
	FetchFailed  int    `json:"fetch_failed"`
	ParseFailed  int    `json:"parse_failed"`
	Selected     int    `json:"selected"`
	Upserted     int    `json:"upserted"`
	UpsertFailed int    `json:"upsert_failed"`
	Filler       bool   `json:"filler"`
}

// Report は取り込みジョブ1回分の結果。Categoriesはレジストリの記載順に並ぶ。
type Report struct {
	Categories []CategoryReport `json:"categories"`
	StartedAt  time.Time        `json:"started_at"`
	Duration   time.Duration    `json:"duration_ns"`
}

// Totals はカテゴリ横断の合計値を返す。
func (r Report) Totals() CategoryReport {
	var t CategoryReport
	for _, c := range r.Categories {
		t.Sources += c.Sources
		t.FetchFailed += c.FetchFailed
		t.ParseFailed += c.ParseFailed
		t.Selected += c.Selected
		t.Upserted += c.Upserted
		t.UpsertFailed += c.UpsertFailed
	}
	return t
}

// Summary は運用者向けの1行要約を返す。
func (r Report) Summary() string {
	t := r.Totals()
	fillers := 0
	for _, c := range r.Categories {
		if c.Filler {
			fillers++
		}
	}
	return fmt.Sprintf(
		"ingest: %d categories, %d sources (%d fetch failed, %d parse failed), %d selected, %d upserted, %d upsert failed, %d filler in %s",
		len(r.Categories), t.Sources, t.FetchFailed, t.ParseFailed, t.Selected, t.Upserted, t.UpsertFailed, fillers,
		r.Duration.Round(time.Millisecond),
	)
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

// Run は全カテゴリを取り込む。カテゴリは並列に処理され、すべての完了を待って戻る。
// 個々のソースや記事の失敗はReportに集計され、エラーにはならない。
// 実行中に再度呼ばれた場合はmodel.ErrJobAlreadyRunningを返す。
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.mu.TryLock() {
		return Report{}, fmt.Errorf("%s: %w", JobName, model.ErrJobAlreadyRunning)
	}
	defer j.mu.Unlock()

	start := j.now()
	categories := j.deps.Registry.Categories()
	report := Report{
		Categories: make([]CategoryReport, len(categories)),
		StartedAt:  start,
	}

	j.deps.Logger.Info("取り込みジョブを開始します",
		slog.Int("category_count", len(categories)),
		slog.Int("max_categories", j.cfg.MaxCategories),
		slog.Bool("filler_enabled", j.cfg.FillerEnabled),
	)

	sem := make(chan struct{}, j.cfg.MaxCategories)
	var wg sync.WaitGroup

	for i, category := range categories {
		wg.Add(1)
		sem <- struct{}{}

		go func(i int, category string) {
			defer wg.Done()
			defer func() { <-sem }()

			report.Categories[i] = j.processCategory(ctx, category, start)
		}(i, category)
	}

	wg.Wait()

	report.Duration = time.Since(start)
	err := ctx.Err()
	j.deps.Metrics.RecordJobRun(JobName, err == nil, report.Duration)
	if err != nil {
		return report, fmt.Errorf("%s: interrupted: %w", JobName, err)
	}
	return report, nil
}

// processCategory は1カテゴリ分の取得、解析、選定、UPSERTを行う。
func (j *Job) processCategory(ctx context.Context, category string, now time.Time) CategoryReport {
	logger := j.deps.Logger.With(slog.String("category", category))
	sources := j.deps.Registry.Sources(category)
	cr := CategoryReport{Category: category, Sources: len(sources)}

	results := j.deps.Fetcher.FetchAll(ctx, sources)

	// 取得完了順がそのまま到着順になる
	batches := make([]feed.SourceItems, 0, len(results))
	for _, r := range results {
		if !r.OK() {
			cr.FetchFailed++
			continue
		}

		items, err := j.deps.Parser.Parse(r.Body, now)
		if err != nil {
			cr.ParseFailed++
			j.deps.Metrics.RecordParseFailure(category)
			logger.Warn("フィードを解析できないため0件として扱います",
				slog.String("source_url", r.Source.Endpoint),
				slog.String("error", err.Error()),
			)
			continue
		}
		batches = append(batches, feed.SourceItems{Source: r.Source, Items: items})
	}

	selected := j.deps.Selector.Select(batches)
	cr.Selected = len(selected)

	result := j.deps.Upserter.UpsertCategory(ctx, category, selected)
	cr.Upserted = result.Succeeded
	cr.UpsertFailed = result.Failed
	j.deps.Metrics.RecordUpsertResult(category, result.Succeeded, result.Failed)

	if j.cfg.FillerEnabled && cr.Selected < j.cfg.FillerMinArticles {
		cr.Filler = j.fill(ctx, logger, category, now)
	}

	logger.Info("カテゴリの取り込みが完了しました",
		slog.Int("sources", cr.Sources),
		slog.Int("fetch_failed", cr.FetchFailed),
		slog.Int("parse_failed", cr.ParseFailed),
		slog.Int("selected", cr.Selected),
		slog.Int("upserted", cr.Upserted),
		slog.Int("upsert_failed", cr.UpsertFailed),
	)
	return cr
}

// fill は補充記事を1件生成してUPSERTする。失敗してもRSS由来の結果には影響しない。
func (j *Job) fill(ctx context.Context, logger *slog.Logger, category string, now time.Time) bool {
	title, summary, err := j.deps.Generator.GenerateArticle(ctx, category)
	if err != nil {
		logger.Error("補充記事の生成に失敗しました", slog.String("error", err.Error()))
		return false
	}

	item := model.NormalizedItem{
		Title:        title,
		CanonicalURL: FillerURL(category, now),
		SummaryText:  summary,
		PublishedAt:  now.UTC(),
	}
	if _, err := j.deps.Upserter.UpsertGenerated(ctx, category, item); err != nil {
		logger.Error("補充記事の保存に失敗しました", slog.String("error", err.Error()))
		return false
	}

	j.deps.Metrics.RecordFillerGenerated(category)
	logger.Info("補充記事を追加しました", slog.String("title", title))
	return true
}

// FillerURL は補充記事のurlキーを返す。同じ日の再実行では同じキーになる。
func FillerURL(category string, now time.Time) string {
	key := strings.ReplaceAll(category, " ", "-")
	return fmt.Sprintf("fitpress:ai:%s:%s", key, now.UTC().Format("2006-01-02"))
}
