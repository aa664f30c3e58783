// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector は取り込みジョブとダイジェストジョブのメトリクスを収集する。
// 各ワーカーはこの型のメソッドのうち必要なものだけを自パッケージのインターフェースとして受け取る。
type Collector struct {
	fetchSuccess     *prometheus.CounterVec
	fetchFail        *prometheus.CounterVec
	parseFail        *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	fetchLatency     prometheus.Histogram
	articlesUpserted *prometheus.CounterVec
	upsertFail       *prometheus.CounterVec
	fillerGenerated  *prometheus.CounterVec
	digestsSent      prometheus.Counter
	digestsFailed    prometheus.Counter
	digestsSkipped   prometheus.Counter
	jobRuns          *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		fetchSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_fetch_success_total",
			Help: "フィード取得成功の合計数",
		}, []string{"category"}),
		fetchFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_fetch_fail_total",
			Help: "フィード取得失敗の合計数",
		}, []string{"category", "reason"}),
		parseFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_parse_fail_total",
			Help: "フィード解析失敗の合計数",
		}, []string{"category"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		fetchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fitpress_fetch_latency_seconds",
			Help:    "フィード取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		articlesUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_articles_upserted_total",
			Help: "UPSERTに成功した記事の合計数",
		}, []string{"category"}),
		upsertFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_articles_upsert_fail_total",
			Help: "UPSERTに失敗した記事の合計数",
		}, []string{"category"}),
		fillerGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_filler_generated_total",
			Help: "テキスト生成で補充した記事の合計数",
		}, []string{"category"}),
		digestsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitpress_digests_sent_total",
			Help: "送信に成功したダイジェストメールの合計数",
		}),
		digestsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitpress_digests_failed_total",
			Help: "送信に失敗したダイジェストメールの合計数",
		}),
		digestsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fitpress_digests_skipped_total",
			Help: "掲載記事がなく送信対象外となった購読者の合計数",
		}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fitpress_job_runs_total",
			Help: "ジョブ実行回数（結果別）",
		}, []string{"job", "result"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fitpress_job_duration_seconds",
			Help:    "ジョブの実行時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"job"}),
	}

	reg.MustRegister(
		c.fetchSuccess,
		c.fetchFail,
		c.parseFail,
		c.httpStatus,
		c.fetchLatency,
		c.articlesUpserted,
		c.upsertFail,
		c.fillerGenerated,
		c.digestsSent,
		c.digestsFailed,
		c.digestsSkipped,
		c.jobRuns,
		c.jobDuration,
	)

	return c
}

// RecordFetchSuccess はフィード取得成功を記録する。
func (c *Collector) RecordFetchSuccess(category string) {
	c.fetchSuccess.WithLabelValues(category).Inc()
}

// RecordFetchFailure はフィード取得失敗を記録する。
// reasonは network, timeout, status, too_large, blocked のいずれか。
func (c *Collector) RecordFetchFailure(category string, reason string) {
	c.fetchFail.WithLabelValues(category, reason).Inc()
}

// RecordParseFailure はフィード解析失敗を記録する。
func (c *Collector) RecordParseFailure(category string) {
	c.parseFail.WithLabelValues(category).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordFetchLatency はフィード取得のレイテンシを記録する。
func (c *Collector) RecordFetchLatency(duration time.Duration) {
	c.fetchLatency.Observe(duration.Seconds())
}

// RecordUpsertResult はカテゴリごとのUPSERT成功数と失敗数を記録する。
func (c *Collector) RecordUpsertResult(category string, succeeded, failed int) {
	c.articlesUpserted.WithLabelValues(category).Add(float64(succeeded))
	c.upsertFail.WithLabelValues(category).Add(float64(failed))
}

// RecordFillerGenerated は補充記事の生成を記録する。
func (c *Collector) RecordFillerGenerated(category string) {
	c.fillerGenerated.WithLabelValues(category).Inc()
}

// RecordDigestSent はダイジェスト送信成功を記録する。
func (c *Collector) RecordDigestSent() {
	c.digestsSent.Inc()
}

// RecordDigestFailed はダイジェスト送信失敗を記録する。
func (c *Collector) RecordDigestFailed() {
	c.digestsFailed.Inc()
}

// RecordDigestsSkipped は送信対象外の購読者数を記録する。
func (c *Collector) RecordDigestsSkipped(n int) {
	c.digestsSkipped.Add(float64(n))
}

// RecordJobRun はジョブ1回分の結果と実行時間を記録する。
func (c *Collector) RecordJobRun(job string, ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	c.jobRuns.WithLabelValues(job, result).Inc()
	c.jobDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
