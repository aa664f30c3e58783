package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/fitpress/internal/ai"
	"github.com/hitoshi/fitpress/internal/article"
	"github.com/hitoshi/fitpress/internal/config"
	"github.com/hitoshi/fitpress/internal/digest"
	"github.com/hitoshi/fitpress/internal/feed"
	"github.com/hitoshi/fitpress/internal/handler"
	"github.com/hitoshi/fitpress/internal/mail"
	"github.com/hitoshi/fitpress/internal/metrics"
	"github.com/hitoshi/fitpress/internal/registry"
	"github.com/hitoshi/fitpress/internal/repository"
	"github.com/hitoshi/fitpress/internal/security"
	"github.com/hitoshi/fitpress/internal/worker"
	"github.com/hitoshi/fitpress/internal/worker/cleanup"
	"github.com/hitoshi/fitpress/internal/worker/fetch"
	"github.com/hitoshi/fitpress/internal/worker/ingest"
	"github.com/hitoshi/fitpress/internal/worker/newsletter"
)

// mailSendTimeout はResend API呼び出し1回あたりのタイムアウト。
const mailSendTimeout = 15 * time.Second

// ErrMailNotConfigured はRESEND_API_KEYが未設定でダイジェストを送信できないことを示す。
var ErrMailNotConfigured = errors.New("RESEND_API_KEY is not set; digest sending is disabled")

// components はDB接続から組み立てたジョブ一式。
type components struct {
	registry *registry.Registry
	metrics  *metrics.Collector
	ingest   *ingest.Job
	digest   *newsletter.Job // メール送信が未設定の場合はnil
	cleanup  *cleanup.Job
}

// buildComponents は全依存関係をワイヤリングする。
// ジョブはインターフェース経由で依存を受け取り、具象型はここでのみ選択する。
func buildComponents(cfg *config.Config, db *sql.DB, reg prometheus.Registerer, logger *slog.Logger) (*components, error) {
	feeds, err := registry.Load(cfg.FeedRegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed registry: %w", err)
	}

	collector := metrics.NewCollector(reg)
	articleRepo := repository.NewPostgresArticleRepo(db)
	subscriberRepo := repository.NewPostgresSubscriberRepo(db)

	fetcher := fetch.NewFetcher(security.NewEgressGuard(), collector, logger, fetch.Options{
		Timeout:       cfg.FetchTimeout,
		MaxBodySize:   cfg.FetchMaxSize,
		MaxConcurrent: cfg.FetchMaxConcurrent,
		MaxRetries:    cfg.FetchMaxRetries,
	})

	deps := ingest.Deps{
		Registry: feeds,
		Fetcher:  fetcher,
		Parser:   feed.NewParser(security.NewTextStripper()),
		Selector: feed.NewSelector(cfg.PerSourceLimit, cfg.CategoryLimit),
		Upserter: article.NewUpsertService(articleRepo, logger),
		Metrics:  collector,
		Logger:   logger,
	}
	if cfg.FillerEnabled {
		deps.Generator = ai.NewOpenAIGenerator(ai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			Model:   cfg.OpenAIModel,
			BaseURL: cfg.OpenAIBaseURL,
		})
	}

	c := &components{
		registry: feeds,
		metrics:  collector,
		ingest: ingest.NewJob(deps, ingest.Config{
			MaxCategories:     cfg.IngestMaxCategories,
			FillerEnabled:     cfg.FillerEnabled,
			FillerMinArticles: cfg.FillerMinArticles,
		}),
		cleanup: cleanup.NewJob(articleRepo, collector, logger, cfg.ArticleRetentionDays),
	}

	if cfg.CanSendMail() {
		sender, err := mail.NewResendClient(&http.Client{Timeout: mailSendTimeout}, logger, mail.ResendConfig{
			APIKey:  cfg.ResendAPIKey,
			From:    cfg.MailFrom,
			BaseURL: cfg.ResendBaseURL,
		})
		if err != nil {
			return nil, err
		}
		c.digest = newsletter.NewJob(newsletter.Deps{
			Subscribers: subscriberRepo,
			Articles:    articleRepo,
			Composer:    digest.NewComposer(),
			Renderer: digest.NewRenderer(feeds, digest.RendererConfig{
				Subject: cfg.MailSubject,
				SiteURL: cfg.SiteURL,
			}),
			Sender:  sender,
			Metrics: collector,
			Logger:  logger,
		}, newsletter.Config{SendInterval: cfg.MailSendInterval})
	} else {
		logger.Warn("RESEND_API_KEYが未設定のためダイジェスト配信は無効です")
	}

	return c, nil
}

// runDigest はダイジェスト配信を実行する。送信が未設定の場合はErrMailNotConfiguredを返す。
func (c *components) runDigest(ctx context.Context) (newsletter.Report, error) {
	if c.digest == nil {
		return newsletter.Report{}, ErrMailNotConfigured
	}
	return c.digest.Run(ctx)
}

// schedules はワーカーモードで定期実行するジョブ一覧を返す。
// ダイジェストは起動直後には送信しない。
func (c *components) schedules(cfg *config.Config) []worker.Schedule {
	s := []worker.Schedule{
		{Job: c.ingest, Interval: cfg.IngestInterval, RunAtStart: true},
		{Job: c.cleanup, Interval: cfg.CleanupInterval, RunAtStart: true},
	}
	if c.digest != nil {
		s = append(s, worker.Schedule{Job: c.digest, Interval: cfg.DigestInterval})
	}
	return s
}

// router は運用APIのルーターを構築する。
func (c *components) router(cfg *config.Config, db *sql.DB, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	return handler.NewRouter(&handler.RouterDeps{
		HealthChecker: db,
		Metrics:       metrics.Handler(gatherer),
		Logger:        logger,
		JobsToken:     cfg.JobsToken,
		Ingest:        handler.NewJobRunner(ingest.JobName, c.ingest.Run),
		Digest:        handler.NewJobRunner(newsletter.JobName, c.runDigest),
		Cleanup:       handler.NewJobRunner(cleanup.JobName, c.cleanup.Run),
	})
}
